// Package channel signs Pusher presence and private channel subscriptions.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	pusher "github.com/pusher/pusher-http-go/v5"

	"pushcal/internal/config"
	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

// ErrSignFailed means the signer refused the request.
var ErrSignFailed = errors.New("channel authorization failed")

// Signer produces Pusher auth payloads. *pusher.Client satisfies it.
type Signer interface {
	AuthorizePrivateChannel(params []byte) ([]byte, error)
	AuthorizePresenceChannel(params []byte, member pusher.MemberData) ([]byte, error)
}

// Request is a channel auth request as posted by pusher-js.
type Request struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
	// UserID is the presence member id, posted as "id".
	UserID model.SubjectID `json:"id"`
}

// Authorizer signs channel auth requests.
type Authorizer struct {
	signer Signer
}

// New builds an Authorizer on a Pusher client for cfg.
func New(cfg config.PusherConfig) *Authorizer {
	return NewWithSigner(&pusher.Client{
		AppID:   cfg.AppID,
		Key:     cfg.Key,
		Secret:  cfg.Secret,
		Cluster: cfg.Cluster,
		Secure:  cfg.Encrypted == nil || *cfg.Encrypted,
	})
}

// NewWithSigner returns an Authorizer using s.
func NewWithSigner(s Signer) *Authorizer {
	return &Authorizer{signer: s}
}

// Presence signs a presence channel subscription for req.UserID.
func (a *Authorizer) Presence(req Request) (json.RawMessage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, model.NewValidationError("invalid-channel-auth", "Presence channels require an id.")
	}
	out, err := a.signer.AuthorizePresenceChannel(req.params(), pusher.MemberData{
		UserID: req.UserID.String(),
	})
	if err != nil {
		appLog.Error("presence auth failed", err, "channel", req.ChannelName)
		return nil, fmt.Errorf("%w: %w", ErrSignFailed, err)
	}
	return out, nil
}

// Private signs a private channel subscription.
func (a *Authorizer) Private(req Request) (json.RawMessage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	out, err := a.signer.AuthorizePrivateChannel(req.params())
	if err != nil {
		appLog.Error("private auth failed", err, "channel", req.ChannelName)
		return nil, fmt.Errorf("%w: %w", ErrSignFailed, err)
	}
	return out, nil
}

func (r Request) validate() error {
	if r.SocketID == "" || r.ChannelName == "" {
		return model.NewValidationError("invalid-channel-auth", "socket_id and channel_name are required.")
	}
	return nil
}

// params is the form encoding the Pusher client expects.
func (r Request) params() []byte {
	v := url.Values{}
	v.Set("socket_id", r.SocketID)
	v.Set("channel_name", r.ChannelName)
	return []byte(v.Encode())
}

// DecodeRequest reads a Request from a JSON or form-encoded body.
func DecodeRequest(r *http.Request) (Request, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return Request{}, model.NewValidationError("invalid-channel-auth", "Malformed JSON body.")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return Request{}, model.NewValidationError("invalid-channel-auth", "Malformed form body.")
	}
	return Request{
		SocketID:    r.PostForm.Get("socket_id"),
		ChannelName: r.PostForm.Get("channel_name"),
		UserID:      model.SubjectID(r.PostForm.Get("id")),
	}, nil
}
