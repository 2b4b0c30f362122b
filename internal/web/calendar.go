package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pushcal/internal/ics"
	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

const (
	defaultAgendaDays = 7
	maxAgendaDays     = 366
)

type itemsResponse struct {
	Items []model.CalendarItem `json:"items"`
}

type updateItemRequest struct {
	ID   string             `json:"id"`
	Item model.CalendarItem `json:"item"`
}

type deleteItemRequest struct {
	ID string `json:"id"`
}

type importRequest struct {
	UserID  model.SubjectID `json:"user_id"`
	AddedBy model.SubjectID `json:"added_by"`
	// Exactly one of URL and ICS is set.
	URL string `json:"url"`
	ICS string `json:"ics"`
}

type importResponse struct {
	Imported int      `json:"imported"`
	IDs      []string `json:"ids"`
	Skipped  []string `json:"skipped"`
}

type agendaResponse struct {
	Occurrences   []model.Occurrence `json:"occurrences"`
	TruncatedUIDs []string           `json:"truncated_uids,omitempty"`
	Skipped       []string           `json:"skipped,omitempty"`
	RangeStart    time.Time          `json:"range_start"`
	RangeEnd      time.Time          `json:"range_end"`
}

var errItemNotFound = &apiError{
	Status:  http.StatusNotFound,
	ID:      "calendar-item-not-found",
	Message: "No calendar item has that id.",
}

func (s *Server) handleAddCalendarItem(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-save-calendar-item"
		msg = "The calendar item was received but we were unable to save it to our database."
	)

	var item model.CalendarItem
	if err := decodeJSON(r, &item); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	if err := ics.ValidateItem(item); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	newID, err := s.deps.Calendar.Add(r.Context(), item)
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	appLog.Info("calendar item added", "id", newID, "user_id", item.UserID, "added_by", item.AddedBy)
	writeSuccess(w)
}

// handleGetCalendarItems lists the items a user created.
func (s *Server) handleGetCalendarItems(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-get-calendar-items"
		msg = "We were unable to get the calendar items from our database."
	)

	n, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeAPIError(w, r, model.NewValidationError("invalid-user-id", "user_id must be a number."), id, msg)
		return
	}

	items, err := s.deps.Calendar.ListAddedBy(r.Context(), model.SubjectID(strconv.FormatInt(n, 10)))
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	writeJSON(w, http.StatusOK, success{Data: itemsResponse{Items: items}})
}

// handleUpdateCalendarItem replaces every field of an item but its id.
func (s *Server) handleUpdateCalendarItem(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-update-calendar-item"
		msg = "We were unable to update the calendar item."
	)

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	if req.ID == "" {
		writeAPIError(w, r, model.NewValidationError("invalid-calendar-item", "id is required."), id, msg)
		return
	}
	if err := ics.ValidateItem(req.Item); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	if err := s.deps.Calendar.Update(r.Context(), req.ID, req.Item); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			err = errItemNotFound
		}
		writeAPIError(w, r, err, id, msg)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleDeleteCalendarItem(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-delete-calendar-item"
		msg = "We were unable to delete the calendar item."
	)

	var req deleteItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	if req.ID == "" {
		writeAPIError(w, r, model.NewValidationError("invalid-calendar-item", "id is required."), id, msg)
		return
	}
	if err := s.deps.Calendar.Delete(r.Context(), req.ID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			err = errItemNotFound
		}
		writeAPIError(w, r, err, id, msg)
		return
	}
	writeSuccess(w)
}

// handleImportCalendar copies the events of an iCalendar document, posted
// inline or fetched from a URL, into a user's calendar.
func (s *Server) handleImportCalendar(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-import-calendar"
		msg = "We were unable to import the calendar."
	)

	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}

	var body []byte
	switch {
	case req.ICS != "" && req.URL == "":
		body = []byte(req.ICS)
	case req.URL != "" && req.ICS == "" && s.deps.Fetcher != nil:
		res, err := s.deps.Fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			writeAPIError(w, r, &apiError{
				Status:  http.StatusBadGateway,
				ID:      "unable-to-fetch-calendar",
				Message: "The remote calendar could not be fetched.",
			}, id, msg)
			appLog.Error("calendar import fetch failed", err, "user_id", req.UserID)
			return
		}
		body = res.Body
	default:
		writeAPIError(w, r, model.NewValidationError("invalid-import", "Send either url or ics."), id, msg)
		return
	}

	parsed, err := ics.ParseImport(body, ics.ImportTarget{UserID: req.UserID, AddedBy: req.AddedBy})
	if err != nil {
		if !errors.Is(err, model.ErrValidation) {
			err = model.NewValidationError("invalid-import", err.Error())
		}
		writeAPIError(w, r, err, id, msg)
		return
	}

	resp := importResponse{IDs: []string{}, Skipped: parsed.Skipped}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	for _, item := range parsed.Items {
		newID, err := s.deps.Calendar.Add(r.Context(), item)
		if err != nil {
			writeAPIError(w, r, err, id, msg)
			return
		}
		resp.IDs = append(resp.IDs, newID)
	}
	resp.Imported = len(resp.IDs)
	writeJSON(w, http.StatusOK, success{Data: resp})
}

// handleSubscribe serves the token holder's calendar as text/calendar.
// Every failure, a bad token included, is a 500 so calendar clients keep
// their last good copy.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	fail := func(err error) {
		appLog.Error("calendar subscribe failed", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			ID:      "unable-to-build-calendar",
			Message: "We were unable to build the calendar.",
		}})
	}

	subject, err := s.deps.Tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		fail(err)
		return
	}
	items, err := s.deps.Calendar.ListForUser(r.Context(), subject)
	if err != nil {
		fail(err)
		return
	}
	res, err := s.deps.Feed.Build(items)
	if err != nil {
		fail(err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Document))
}

// handleAgenda returns the token holder's occurrences, recurring items
// expanded.
//
// GET /ical/agenda?token=...&days=7&from=2024-03-10
//   - days: window length, default 7
//   - from: window start date (UTC), default today
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	const (
		id  = "unable-to-build-agenda"
		msg = "We were unable to build the agenda."
	)

	q := r.URL.Query()
	subject, err := s.deps.Tokens.Verify(q.Get("token"))
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}

	days := parseIntDefault(q.Get("days"), defaultAgendaDays)
	if days <= 0 || days > maxAgendaDays {
		days = defaultAgendaDays
	}
	now := s.now().UTC()
	rangeStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			writeAPIError(w, r, model.NewValidationError("invalid-range", "from must be YYYY-MM-DD."), id, msg)
			return
		}
		rangeStart = t
	}
	rangeEnd := rangeStart.AddDate(0, 0, days)

	items, err := s.deps.Calendar.ListForUser(r.Context(), subject)
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}
	events, skipped := s.deps.Feed.Events(items)
	res, err := ics.ExpandOccurrences(events, ics.ExpandConfig{
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	})
	if err != nil {
		writeAPIError(w, r, err, id, msg)
		return
	}

	writeJSON(w, http.StatusOK, success{Data: agendaResponse{
		Occurrences:   res.Occurrences,
		TruncatedUIDs: res.TruncatedEvents,
		Skipped:       skipped,
		RangeStart:    rangeStart,
		RangeEnd:      rangeEnd,
	}})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
