package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushcal/internal/model"
)

type fakeSubs struct {
	subs      []model.Subscription
	saved     []model.Subscription
	deleted   []string
	findErr   error
	deleteErr error
}

func (f *fakeSubs) Save(_ context.Context, sub model.Subscription) (string, error) {
	f.saved = append(f.saved, sub)
	return "sub-new", nil
}

func (f *fakeSubs) ListByUser(_ context.Context, userID model.SubjectID) ([]model.Subscription, error) {
	out := []model.Subscription{}
	for _, s := range f.subs {
		if s.UserID.String() == userID.String() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) FindByUser(ctx context.Context, userID model.SubjectID) (model.Subscription, error) {
	if f.findErr != nil {
		return model.Subscription{}, f.findErr
	}
	list, _ := f.ListByUser(ctx, userID)
	if len(list) == 0 {
		return model.Subscription{}, model.ErrNotFound
	}
	return list[0], nil
}

func (f *fakeSubs) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

type fakeSender struct {
	err      error
	payloads [][]byte
	hadDL    bool
}

func (f *fakeSender) Send(ctx context.Context, _ model.Subscription, payload []byte) error {
	_, f.hadDL = ctx.Deadline()
	f.payloads = append(f.payloads, payload)
	return f.err
}

func subscribed() *fakeSubs {
	return &fakeSubs{subs: []model.Subscription{{
		ID:       "sub-1",
		Endpoint: "https://push.example.com/device/abc",
		UserID:   "1",
	}}}
}

func TestSaveRequiresEndpoint(t *testing.T) {
	subs := &fakeSubs{}
	r := NewRelay(subs, &fakeSender{}, time.Second)

	_, err := r.Save(context.Background(), model.Subscription{UserID: "1"})
	require.ErrorIs(t, err, model.ErrValidation)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no-endpoint", ve.Code)
	assert.Empty(t, subs.saved)

	id, err := r.Save(context.Background(), model.Subscription{Endpoint: "https://push.example.com/x", UserID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "sub-new", id)
	assert.Len(t, subs.saved, 1)
}

func TestListReturnsEmptyForUnknownUser(t *testing.T) {
	r := NewRelay(subscribed(), &fakeSender{}, 0)

	list, err := r.List(context.Background(), "2")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = r.List(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTriggerDelivers(t *testing.T) {
	sender := &fakeSender{}
	subs := subscribed()
	r := NewRelay(subs, sender, time.Second)

	require.NoError(t, r.Trigger(context.Background(), "1", []byte(`{"title":"hi"}`)))
	require.Len(t, sender.payloads, 1)
	assert.Equal(t, `{"title":"hi"}`, string(sender.payloads[0]))
	assert.True(t, sender.hadDL)
	assert.Empty(t, subs.deleted)
}

func TestTriggerDeletesGoneSubscription(t *testing.T) {
	for _, code := range []int{http.StatusGone, http.StatusNotFound} {
		subs := subscribed()
		r := NewRelay(subs, &fakeSender{err: &DeliveryError{StatusCode: code}}, time.Second)

		require.NoError(t, r.Trigger(context.Background(), "1", nil))
		assert.Equal(t, []string{"sub-1"}, subs.deleted, "status %d", code)
	}
}

func TestTriggerGoneCleanupFailure(t *testing.T) {
	subs := subscribed()
	subs.deleteErr = errors.New("disk full")
	r := NewRelay(subs, &fakeSender{err: &DeliveryError{StatusCode: http.StatusGone}}, 0)

	err := r.Trigger(context.Background(), "1", nil)
	assert.ErrorIs(t, err, model.ErrUpstream)
}

func TestTriggerSwallowsOtherFailures(t *testing.T) {
	for _, sendErr := range []error{
		&DeliveryError{StatusCode: http.StatusTooManyRequests},
		errors.New("connection reset"),
	} {
		subs := subscribed()
		r := NewRelay(subs, &fakeSender{err: sendErr}, time.Second)

		assert.NoError(t, r.Trigger(context.Background(), "1", nil))
		assert.Empty(t, subs.deleted)
	}
}

func TestTriggerWithoutSubscription(t *testing.T) {
	sender := &fakeSender{}
	r := NewRelay(&fakeSubs{}, sender, time.Second)

	err := r.Trigger(context.Background(), "9", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, sender.payloads)
}

func TestTriggerLookupFailure(t *testing.T) {
	subs := subscribed()
	subs.findErr = errors.New("db locked")
	r := NewRelay(subs, &fakeSender{}, 0)

	assert.ErrorIs(t, r.Trigger(context.Background(), "1", nil), model.ErrUpstream)
}

func TestRedactEndpoint(t *testing.T) {
	assert.Equal(t, "https://fcm.googleapis.com/...(redacted)", redactEndpoint("https://fcm.googleapis.com/fcm/send/secret-token"))
	assert.Equal(t, "(redacted)", redactEndpoint("not a url"))
}

func clientKeys(t *testing.T) model.SubscriptionKeys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return model.SubscriptionKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestWebPushSender(t *testing.T) {
	vapidPriv, vapidPub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	var (
		status   = http.StatusCreated
		gotTTL   string
		gotAuth  string
		gotUA    string
		gotBytes int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTTL = r.Header.Get("TTL")
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		gotBytes = len(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("push service says hi"))
	}))
	defer srv.Close()

	sender := NewWebPushSender(WebPushOptions{
		VAPIDPublicKey:  vapidPub,
		VAPIDPrivateKey: vapidPriv,
		Subscriber:      "mailto:ops@example.com",
		TTL:             60,
		Timeout:         5 * time.Second,
	})
	sub := model.Subscription{
		ID:       "sub-1",
		Endpoint: srv.URL + "/device/abc",
		Keys:     clientKeys(t),
	}

	require.NoError(t, sender.Send(context.Background(), sub, []byte(`{"title":"hi"}`)))
	assert.Equal(t, "60", gotTTL)
	assert.Contains(t, gotAuth, "vapid")
	assert.Equal(t, "pushcal-relay", gotUA)
	assert.Positive(t, gotBytes)

	status = http.StatusGone
	err = sender.Send(context.Background(), sub, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsGone(err))
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "push service says hi", de.Body)
}
