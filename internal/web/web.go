package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pushcal/internal/channel"
	"pushcal/internal/config"
	"pushcal/internal/ics"
	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

// SubscriptionService is the push relay as the HTTP layer sees it.
type SubscriptionService interface {
	Save(ctx context.Context, sub model.Subscription) (string, error)
	List(ctx context.Context, userID model.SubjectID) ([]model.Subscription, error)
	Trigger(ctx context.Context, userID model.SubjectID, payload []byte) error
}

// ChannelAuthorizer signs Pusher channel subscriptions.
type ChannelAuthorizer interface {
	Presence(req channel.Request) (json.RawMessage, error)
	Private(req channel.Request) (json.RawMessage, error)
}

// CalendarRepository stores calendar items.
type CalendarRepository interface {
	Add(ctx context.Context, item model.CalendarItem) (string, error)
	ListAddedBy(ctx context.Context, subject model.SubjectID) ([]model.CalendarItem, error)
	ListForUser(ctx context.Context, subject model.SubjectID) ([]model.CalendarItem, error)
	Update(ctx context.Context, id string, item model.CalendarItem) error
	Delete(ctx context.Context, id string) error
}

// TokenVerifier resolves a calendar token to its subject.
type TokenVerifier interface {
	Verify(raw string) (model.SubjectID, error)
}

// FeedBuilder renders calendar items.
type FeedBuilder interface {
	Build(items []model.CalendarItem) (ics.BuildResult, error)
	Events(items []model.CalendarItem) ([]model.CalendarEvent, []string)
}

// CalendarFetcher downloads remote calendars for import.
type CalendarFetcher interface {
	Fetch(ctx context.Context, rawURL string) (ics.FetchResult, error)
}

// Deps are the collaborators behind the HTTP surface. Fetcher may be nil,
// which limits imports to inline documents.
type Deps struct {
	Subscriptions SubscriptionService
	Channels      ChannelAuthorizer
	Calendar      CalendarRepository
	Tokens        TokenVerifier
	Feed          FeedBuilder
	Fetcher       CalendarFetcher
}

// Server provides the push, channel auth and calendar HTTP APIs.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.route(http.MethodPost, "/api/save-subscription", s.handleSaveSubscription)
	s.route(http.MethodPost, "/api/get-subscriptions", s.handleGetSubscriptions)
	s.route(http.MethodPost, "/api/trigger-push-msg", s.handleTriggerPush)

	s.route(http.MethodPost, "/pusher/auth/presence", s.handlePresenceAuth)
	s.route(http.MethodPost, "/pusher/auth/private", s.handlePrivateAuth)

	s.route(http.MethodPost, "/ical/add-calendar-item", s.handleAddCalendarItem)
	s.route(http.MethodGet, "/ical/get-calendar-items", s.handleGetCalendarItems)
	s.route(http.MethodPost, "/ical/update-calendar-item", s.handleUpdateCalendarItem)
	s.route(http.MethodPost, "/ical/delete-calendar-item", s.handleDeleteCalendarItem)
	s.route(http.MethodPost, "/ical/import-calendar", s.handleImportCalendar)
	s.route(http.MethodGet, "/ical/subscribe", s.handleSubscribe)
	s.route(http.MethodGet, "/ical/agenda", s.handleAgenda)
}

// route registers path with and without a trailing slash; clients have
// always used both.
func (s *Server) route(method, path string, h http.HandlerFunc) {
	s.mux.HandleFunc(method+" "+path, h)
	s.mux.HandleFunc(method+" "+path+"/{$}", h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// corsMiddleware allows any origin and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
				h.Add("Vary", "Access-Control-Request-Headers")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// success is the {data: ...} envelope.
type success struct {
	Data any `json:"data"`
}

type successFlag struct {
	Success bool `json:"success"`
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, success{Data: successFlag{Success: true}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
