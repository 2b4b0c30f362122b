package web

import (
	"encoding/json"
	"net/http"

	"pushcal/internal/channel"
)

func (s *Server) handlePresenceAuth(w http.ResponseWriter, r *http.Request) {
	s.authorizeChannel(w, r, s.deps.Channels.Presence)
}

func (s *Server) handlePrivateAuth(w http.ResponseWriter, r *http.Request) {
	s.authorizeChannel(w, r, s.deps.Channels.Private)
}

// authorizeChannel answers pusher-js with the signed payload verbatim.
func (s *Server) authorizeChannel(w http.ResponseWriter, r *http.Request, sign func(channel.Request) (json.RawMessage, error)) {
	const (
		id  = "unable-to-authorize-channel"
		msg = "The channel subscription could not be authorized."
	)

	req, err := channel.DecodeRequest(r)
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	auth, err := sign(req)
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(auth)
}
