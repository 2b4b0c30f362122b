package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"pushcal/internal/model"
)

// ErrMalformedTimestamp is returned when a stored date string does not have
// the YYYY-MM-DDThh:mm:ss+oo shape.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// OffsetMode selects how the "+oo" suffix of a stored date is applied.
type OffsetMode string

const (
	// OffsetLegacy adds the offset hours to the local hour and ignores the
	// offset sign and minutes. Existing feed consumers depend on this.
	OffsetLegacy OffsetMode = "legacy"
	// OffsetStandard parses the value as a real timestamp and converts it
	// to UTC.
	OffsetStandard OffsetMode = "standard"
)

// ParseOffsetMode validates a config value. Empty means OffsetLegacy.
func ParseOffsetMode(s string) (OffsetMode, error) {
	switch OffsetMode(s) {
	case "", OffsetLegacy:
		return OffsetLegacy, nil
	case OffsetStandard:
		return OffsetStandard, nil
	default:
		return "", fmt.Errorf("unknown offset mode %q", s)
	}
}

// DateTimeParser converts stored date strings into component tuples.
// The zero value uses OffsetLegacy.
type DateTimeParser struct {
	Mode OffsetMode
}

// Parse dispatches on p.Mode.
func (p DateTimeParser) Parse(raw string) (model.ParsedDateTime, error) {
	if p.Mode == OffsetStandard {
		return parseStandard(raw)
	}
	return ParseDateTime(raw)
}

// ParseDateTime parses raw with the legacy rules:
//
//	YYYY-MM-DD T hh:mm:ss[+oo[:..]]
//
//   - year and month are the first two "-" fields; everything after the
//     second "-" holds the day, a "T", and the time.
//   - the time needs three ":" fields: hour, minute, and seconds[+offset].
//   - with a "+" present, hour = hour + offset; otherwise hour is kept.
//   - minutes are never adjusted and nothing is range checked.
//
// On failure the zero value is returned together with an error wrapping
// ErrMalformedTimestamp.
func ParseDateTime(raw string) (model.ParsedDateTime, error) {
	dateParts := strings.Split(raw, "-")
	if len(dateParts) < 3 {
		return malformed(raw, "expected YYYY-MM-DD date")
	}

	year, err := atoi(dateParts[0])
	if err != nil {
		return malformed(raw, "year: "+err.Error())
	}
	month, err := atoi(dateParts[1])
	if err != nil {
		return malformed(raw, "month: "+err.Error())
	}

	dayAndTime := strings.Split(strings.Join(dateParts[2:], "-"), "T")
	if len(dayAndTime) < 2 {
		return malformed(raw, "missing T separator")
	}
	day, err := atoi(dayAndTime[0])
	if err != nil {
		return malformed(raw, "day: "+err.Error())
	}

	timeParts := strings.Split(dayAndTime[1], ":")
	if len(timeParts) < 3 {
		return malformed(raw, "expected hh:mm:ss time")
	}
	hour, err := atoi(timeParts[0])
	if err != nil {
		return malformed(raw, "hour: "+err.Error())
	}
	minute, err := atoi(timeParts[1])
	if err != nil {
		return malformed(raw, "minute: "+err.Error())
	}

	// Seconds are not interpreted; only the part after "+" matters.
	offsetParts := strings.Split(timeParts[2], "+")
	if len(offsetParts) >= 2 {
		offset, err := atoi(offsetParts[1])
		if err != nil {
			return malformed(raw, "offset: "+err.Error())
		}
		hour += offset
	}

	return model.ParsedDateTime{
		Year:   year,
		Month:  month,
		Day:    day,
		Hour:   hour,
		Minute: minute,
	}, nil
}

func parseStandard(raw string) (model.ParsedDateTime, error) {
	t, err := dateparse.ParseStrict(raw)
	if err != nil {
		return malformed(raw, err.Error())
	}
	t = t.UTC()
	return model.ParsedDateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty field")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func malformed(raw, reason string) (model.ParsedDateTime, error) {
	return model.ParsedDateTime{}, fmt.Errorf("%w %q: %s", ErrMalformedTimestamp, raw, reason)
}
