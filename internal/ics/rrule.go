package ics

import (
	"strings"

	"github.com/teambition/rrule-go"

	"pushcal/internal/model"
)

// ValidateRRule checks an optional recurrence rule such as
// "FREQ=WEEKLY;COUNT=4". An empty rule is valid.
func ValidateRRule(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := rrule.StrToRRule(strings.TrimPrefix(s, "RRULE:")); err != nil {
		return model.NewValidationError("invalid-rrule", "The recurrence rule could not be parsed: "+err.Error())
	}
	return nil
}

// ValidateItem checks the fields a calendar item must carry before it is
// stored. Dates are not parsed here; a malformed date only drops the item
// from the feed.
func ValidateItem(item model.CalendarItem) error {
	if item.UserID == "" {
		return model.NewValidationError("invalid-calendar-item", "Calendar item must have a user_id.")
	}
	if item.StartDate == "" || item.EndDate == "" {
		return model.NewValidationError("invalid-calendar-item", "Calendar item must have a startDate and an endDate.")
	}
	return ValidateRRule(item.RRule)
}
