package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

// Sender delivers one notification to one subscription.
type Sender interface {
	Send(ctx context.Context, sub model.Subscription, payload []byte) error
}

// SubscriptionRepository is the storage the relay needs.
type SubscriptionRepository interface {
	Save(ctx context.Context, sub model.Subscription) (string, error)
	ListByUser(ctx context.Context, userID model.SubjectID) ([]model.Subscription, error)
	FindByUser(ctx context.Context, userID model.SubjectID) (model.Subscription, error)
	Delete(ctx context.Context, id string) error
}

// DeliveryError is a non-2xx answer from a push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// IsGone reports whether err means the endpoint no longer exists and the
// subscription should be dropped. Push services answer 410, some 404.
func IsGone(err error) bool {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return false
	}
	return de.StatusCode == http.StatusGone || de.StatusCode == http.StatusNotFound
}

// Relay stores subscriptions and relays notifications to them.
type Relay struct {
	subs    SubscriptionRepository
	sender  Sender
	timeout time.Duration
}

// NewRelay returns a Relay. timeout bounds each outbound delivery; zero
// leaves only the caller's context.
func NewRelay(subs SubscriptionRepository, sender Sender, timeout time.Duration) *Relay {
	return &Relay{
		subs:    subs,
		sender:  sender,
		timeout: timeout,
	}
}

// Save validates and stores sub. A subscription without an endpoint is
// rejected before the store is touched.
func (r *Relay) Save(ctx context.Context, sub model.Subscription) (string, error) {
	if sub.Endpoint == "" {
		return "", model.NewValidationError("no-endpoint", "Subscription must have an endpoint.")
	}
	id, err := r.subs.Save(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("save subscription: %w: %w", model.ErrUpstream, err)
	}
	appLog.Info("subscription saved", "id", id, "user_id", sub.UserID)
	return id, nil
}

// List returns all subscriptions of userID.
func (r *Relay) List(ctx context.Context, userID model.SubjectID) ([]model.Subscription, error) {
	subs, err := r.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w: %w", model.ErrUpstream, err)
	}
	return subs, nil
}

// Trigger sends payload to the subscription of userID.
//
// A gone endpoint deletes the subscription; any other delivery failure is
// logged and swallowed. Only lookup and cleanup failures are returned.
func (r *Relay) Trigger(ctx context.Context, userID model.SubjectID, payload []byte) error {
	sub, err := r.subs.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no subscription for user %s: %w", userID, err)
		}
		return fmt.Errorf("find subscription: %w: %w", model.ErrUpstream, err)
	}
	return r.deliver(ctx, sub, payload)
}

func (r *Relay) deliver(ctx context.Context, sub model.Subscription, payload []byte) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	err := r.sender.Send(ctx, sub, payload)
	switch {
	case err == nil:
		appLog.Info("push delivered", "subscription_id", sub.ID, "user_id", sub.UserID)
		return nil
	case IsGone(err):
		appLog.Info("push endpoint gone, deleting subscription", "subscription_id", sub.ID)
		// The delivery context may be spent; cleanup uses a fresh one.
		if derr := r.subs.Delete(context.WithoutCancel(ctx), sub.ID); derr != nil && !errors.Is(derr, model.ErrNotFound) {
			return fmt.Errorf("delete gone subscription: %w: %w", model.ErrUpstream, derr)
		}
		return nil
	default:
		appLog.Error("push delivery failed", err, "subscription_id", sub.ID, "endpoint", redactEndpoint(sub.Endpoint))
		return nil
	}
}

// redactEndpoint keeps the push service host and hides the per-device path.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
