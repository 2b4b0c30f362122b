package web

import (
	"bytes"
	"encoding/json"
	"net/http"

	"pushcal/internal/model"
)

type subscriptionDTO struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

type subscriptionsResponse struct {
	Subscriptions []subscriptionDTO `json:"subscriptions"`
}

type userRequest struct {
	UserID model.SubjectID `json:"user_id"`
}

// handleSaveSubscription stores a push subscription as posted by the
// browser's PushManager.
func (s *Server) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-save-subscription"
		msg = "The subscription was received but we were unable to save it to our database."
	)

	var sub model.Subscription
	if err := decodeJSON(r, &sub); err != nil {
		// Anything without a readable endpoint is reported the same way.
		sub = model.Subscription{}
	}
	if _, err := s.deps.Subscriptions.Save(r.Context(), sub); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	writeSuccess(w)
}

// handleGetSubscriptions lists the subscriptions of a user.
func (s *Server) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-get-subscriptions"
		msg = "We were unable to get the subscriptions from our database."
	)

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	subs, err := s.deps.Subscriptions.List(r.Context(), req.UserID)
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}

	out := make([]subscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionDTO{ID: sub.ID, Endpoint: sub.Endpoint})
	}
	writeJSON(w, http.StatusOK, success{Data: subscriptionsResponse{Subscriptions: out}})
}

// handleTriggerPush sends the posted JSON body, as is, to the user's
// subscription.
func (s *Server) handleTriggerPush(w http.ResponseWriter, r *http.Request) {
	const id = "unable-to-send-messages"

	body, err := readBody(r)
	if err != nil {
		writeAPIError(w, r, err, id, "Unable to send message to subscription : '"+err.Error()+"'")
		return
	}
	var req userRequest
	payload := new(bytes.Buffer)
	if err := json.Unmarshal(body, &req); err != nil || json.Compact(payload, body) != nil {
		err = model.NewValidationError("invalid-body", "The request body must be valid JSON.")
		writeAPIError(w, r, err, id, "")
		return
	}

	if err := s.deps.Subscriptions.Trigger(r.Context(), req.UserID, payload.Bytes()); err != nil {
		writeAPIError(w, r, err, id, "Unable to send message to subscription : '"+err.Error()+"'")
		return
	}
	writeSuccess(w)
}
