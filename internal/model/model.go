package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SubjectID identifies a user. Clients send it either as a JSON number
// (`1`) or a string (`"1"`); it is kept as a string and written back as a
// number whenever it is a canonical integer, so `"1"` loads as `1`.
type SubjectID string

func (id *SubjectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("subject id: %w", err)
		}
		*id = SubjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("subject id: %w", err)
	}
	*id = SubjectID(n.String())
	return nil
}

func (id SubjectID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// IsNumeric reports whether id is a canonical base-10 integer.
func (id SubjectID) IsNumeric() bool {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return false
	}
	return strconv.FormatInt(n, 10) == string(id)
}

func (id SubjectID) String() string { return string(id) }

// SubscriptionKeys holds the client's push encryption keys.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a browser push subscription as posted by the client.
type Subscription struct {
	ID             string           `json:"id,omitempty"`
	Endpoint       string           `json:"endpoint"`
	ExpirationTime json.RawMessage  `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
	UserID         SubjectID        `json:"user_id,omitempty"`
}

// CalendarItem is one stored calendar entry.
//
// StartDate and EndDate are kept exactly as the client sent them
// (YYYY-MM-DDThh:mm:ss+oo); they are only interpreted when a feed is built.
type CalendarItem struct {
	ID          string    `json:"id,omitempty"`
	UserID      SubjectID `json:"user_id"`
	AddedBy     SubjectID `json:"added_by"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	RRule       string    `json:"rrule,omitempty"`
}

// ParsedDateTime is the component tuple extracted from a stored date string.
// Hour may exceed 23 after the legacy offset addition; it is not normalized.
type ParsedDateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// Time builds a time.Time in loc. Out-of-range components wrap the way
// time.Date does (hour 25 becomes 01 on the next day).
func (p ParsedDateTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(p.Year, time.Month(p.Month), p.Day, p.Hour, p.Minute, 0, 0, loc)
}

// CalendarEvent is a feed-ready event derived from a CalendarItem.
type CalendarEvent struct {
	UID         string
	Title       string
	Description string
	Start       ParsedDateTime
	End         ParsedDateTime
	URL         string
	RRule       string
}

// Occurrence is one concrete instance of a CalendarEvent, recurring or not.
type Occurrence struct {
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}
