package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// ExpandConfig controls recurrence expansion for the agenda.
type ExpandConfig struct {
	// RangeStart / RangeEnd bound the window, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps open-ended rules. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the occurrences in start order.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// ExpandOccurrences turns feed events into concrete occurrences inside the
// configured window. Events without an RRULE yield at most one occurrence.
// Event times are floating and read as UTC, the same way the feed writes
// them.
func ExpandOccurrences(events []model.CalendarEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		occ, hitCap := expandEvent(ev, cfg)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Error("expand: truncated occurrences",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})
	result.Occurrences = all
	return result, nil
}

func expandEvent(ev model.CalendarEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	start := ev.Start.Time(time.UTC)
	end := ev.End.Time(time.UTC)

	if ev.RRule == "" {
		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false
		}
		return []model.Occurrence{makeOccurrence(ev, start, end)}, false
	}

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return nil, false
	}
	r.DTStart(start)

	// Occurrences that began before the window but are still running count.
	dur := end.Sub(start)
	times := r.Between(cfg.RangeStart.UTC().Add(-dur), cfg.RangeEnd.UTC(), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, t := range times {
		out = append(out, makeOccurrence(ev, t, t.Add(dur)))
	}
	return out, hitCap
}

func makeOccurrence(ev model.CalendarEvent, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		UID:         ev.UID,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       start,
		End:         end,
		// Start time is unique per instance of one UID.
		InstanceKey: ev.UID + "@" + start.Format(time.RFC3339),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
