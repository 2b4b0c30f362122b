package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

// storedLayout is the date format calendar items are kept in. Imported
// times are written in UTC with a zero offset so both offset modes read
// them back unchanged.
const storedLayout = "2006-01-02T15:04:05+00"

// ImportTarget says whose calendar imported events land in.
type ImportTarget struct {
	UserID  model.SubjectID
	AddedBy model.SubjectID
}

// ImportResult is the outcome of ParseImport.
type ImportResult struct {
	Items []model.CalendarItem
	// Skipped lists UIDs (or positions, when the UID is missing) of
	// VEVENTs that could not be converted.
	Skipped []string
}

// ParseImport converts the VEVENTs of an iCalendar document into calendar
// items for target. Bad events are logged and skipped; overridden
// instances (RECURRENCE-ID) are skipped as the store has no place for them.
func ParseImport(body []byte, target ImportTarget) (ImportResult, error) {
	var result ImportResult

	if len(bytes.TrimSpace(body)) == 0 {
		return result, errors.New("empty ICS body")
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return result, errors.New("not an iCalendar document")
	}
	if target.UserID == "" {
		return result, model.NewValidationError("invalid-calendar-item", "Imported items need a user_id.")
	}
	addedBy := target.AddedBy
	if addedBy == "" {
		addedBy = target.UserID
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("parse ics: %w", err)
	}

	for i, ve := range cal.Events() {
		item, err := importEvent(ve)
		if err != nil {
			ref := item.Title
			if ref == "" {
				ref = fmt.Sprintf("#%d", i)
			}
			appLog.Error("ics vevent import skipped", err, "event", ref)
			result.Skipped = append(result.Skipped, ref)
			continue
		}
		item.UserID = target.UserID
		item.AddedBy = addedBy
		result.Items = append(result.Items, item)
	}

	appLog.Info("ics import parsed", "user_id", target.UserID, "items", len(result.Items), "skipped", len(result.Skipped))
	return result, nil
}

func importEvent(ve *ical.VEvent) (model.CalendarItem, error) {
	var out model.CalendarItem

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		out.URL = p.Value
	}
	if uid := ve.GetProperty(ical.ComponentPropertyUniqueId); uid != nil && out.Title == "" {
		out.Title = uid.Value
	}

	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return out, errors.New("recurrence override")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; a missing one means a zero-length event.
		end = start
	}
	if end.Before(start) {
		return out, errors.New("DTEND before DTSTART")
	}
	out.StartDate = start.UTC().Format(storedLayout)
	out.EndDate = end.UTC().Format(storedLayout)

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		if err := ValidateRRule(p.Value); err != nil {
			return out, err
		}
		out.RRule = strings.TrimSpace(p.Value)
	}
	return out, nil
}
