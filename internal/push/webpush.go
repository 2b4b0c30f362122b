package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-resty/resty/v2"

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

const userAgent = "pushcal-relay"

// WebPushOptions configures WebPushSender.
type WebPushOptions struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the VAPID contact, "mailto:ops@example.com" or a bare
	// address.
	Subscriber string
	TTL        int
	Timeout    time.Duration
}

// WebPushSender delivers notifications with VAPID through the browser
// vendors' push services.
type WebPushSender struct {
	client *resty.Client
	opts   WebPushOptions
}

// NewWebPushSender builds a sender whose HTTP client has opts.Timeout and
// no retries.
func NewWebPushSender(opts WebPushOptions) *WebPushSender {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
	return &WebPushSender{client: client, opts: opts}
}

// restyDoer runs the requests webpush builds through resty, so they carry
// the client's headers and timeout.
type restyDoer struct {
	client *resty.Client
}

func (d restyDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read push request: %w", err)
		}
		body = b
	}

	resp, err := d.client.R().
		SetContext(req.Context()).
		SetHeaderMultiValues(req.Header).
		SetBody(body).
		SetDoNotParseResponse(true).
		Execute(req.Method, req.URL.String())
	if err != nil {
		return nil, err
	}
	appLog.Info("push service responded",
		"endpoint", redactEndpoint(req.URL.String()),
		"status", resp.StatusCode(),
		"duration", resp.Time(),
	)
	return resp.RawResponse, nil
}

// Send implements Sender. Non-2xx answers become *DeliveryError.
func (s *WebPushSender) Send(ctx context.Context, sub model.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      restyDoer{client: s.client},
		Subscriber:      strings.TrimPrefix(s.opts.Subscriber, "mailto:"),
		TTL:             s.opts.TTL,
		VAPIDPublicKey:  s.opts.VAPIDPublicKey,
		VAPIDPrivateKey: s.opts.VAPIDPrivateKey,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
