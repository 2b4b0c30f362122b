package channel

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pusher "github.com/pusher/pusher-http-go/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushcal/internal/config"
	"pushcal/internal/model"
)

type fakeSigner struct {
	err    error
	params string
	member pusher.MemberData
}

func (f *fakeSigner) AuthorizePrivateChannel(params []byte) ([]byte, error) {
	f.params = string(params)
	return []byte(`{"auth":"k:sig"}`), f.err
}

func (f *fakeSigner) AuthorizePresenceChannel(params []byte, member pusher.MemberData) ([]byte, error) {
	f.params = string(params)
	f.member = member
	return []byte(`{"auth":"k:sig","channel_data":"{}"}`), f.err
}

func TestPrivate(t *testing.T) {
	signer := &fakeSigner{}
	a := NewWithSigner(signer)

	out, err := a.Private(Request{SocketID: "1.2", ChannelName: "private-x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"auth":"k:sig"}`, string(out))
	assert.Equal(t, "channel_name=private-x&socket_id=1.2", signer.params)
}

func TestPresence(t *testing.T) {
	signer := &fakeSigner{}
	a := NewWithSigner(signer)

	_, err := a.Presence(Request{SocketID: "1.2", ChannelName: "presence-x", UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "42", signer.member.UserID)

	_, err = a.Presence(Request{SocketID: "1.2", ChannelName: "presence-x"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMissingFields(t *testing.T) {
	a := NewWithSigner(&fakeSigner{})
	for _, req := range []Request{
		{ChannelName: "private-x"},
		{SocketID: "1.2"},
	} {
		_, err := a.Private(req)
		var ve *model.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "invalid-channel-auth", ve.Code)
	}
}

func TestSignerFailure(t *testing.T) {
	a := NewWithSigner(&fakeSigner{err: errors.New("invalid socket id")})
	_, err := a.Private(Request{SocketID: "bad", ChannelName: "private-x"})
	assert.ErrorIs(t, err, ErrSignFailed)
}

func TestRealClientSigns(t *testing.T) {
	a := New(config.PusherConfig{AppID: "1", Key: "key", Secret: "secret", Cluster: "eu"})

	out, err := a.Private(Request{SocketID: "1234.5678", ChannelName: "private-chat"})
	require.NoError(t, err)
	var body struct {
		Auth string `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(out, &body))
	assert.True(t, strings.HasPrefix(body.Auth, "key:"))
}

func TestDecodeRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"socket_id":"1.2","channel_name":"presence-x","id":7}`))
	r.Header.Set("Content-Type", "application/json")
	req, err := DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, Request{SocketID: "1.2", ChannelName: "presence-x", UserID: "7"}, req)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("socket_id=1.2&channel_name=private-x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, err = DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, Request{SocketID: "1.2", ChannelName: "private-x"}, req)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	r.Header.Set("Content-Type", "application/json")
	_, err = DecodeRequest(r)
	assert.ErrorIs(t, err, model.ErrValidation)
}
