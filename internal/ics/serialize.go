package ics

import (
	"bytes"
	"fmt"
	"time"

	golangical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"

	"pushcal/internal/model"
)

const (
	SerializerGolangICal = "golang-ical"
	SerializerGoICal     = "go-ical"

	// Event times are written as floating local date-times.
	floatingDateTimeFormat = "20060102T150405"
	utcDateTimeFormat      = "20060102T150405Z"
)

// FeedMeta carries the calendar-level properties of a feed.
type FeedMeta struct {
	ProductID string
	Name      string
	// Stamp becomes DTSTAMP on every event.
	Stamp time.Time
}

// Serializer turns an ordered event list into an iCalendar document.
// Implementations must emit VERSION:2.0 and CALSCALE:GREGORIAN and keep
// event order.
type Serializer interface {
	Serialize(meta FeedMeta, events []model.CalendarEvent) (string, error)
}

// NewSerializer returns the Serializer registered under name.
func NewSerializer(name string) (Serializer, error) {
	switch name {
	case "", SerializerGolangICal:
		return golangICalSerializer{}, nil
	case SerializerGoICal:
		return goICalSerializer{}, nil
	default:
		return nil, fmt.Errorf("unknown calendar serializer %q", name)
	}
}

// golangICalSerializer writes feeds with github.com/arran4/golang-ical.
type golangICalSerializer struct{}

func (golangICalSerializer) Serialize(meta FeedMeta, events []model.CalendarEvent) (string, error) {
	cal := golangical.NewCalendar()
	cal.SetProductId(meta.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(golangical.MethodPublish)
	if meta.Name != "" {
		cal.SetXWRCalName(meta.Name)
	}

	for _, ev := range events {
		vev := cal.AddEvent(ev.UID)
		vev.SetDtStampTime(meta.Stamp)
		vev.SetProperty(golangical.ComponentPropertyDtStart, floating(ev.Start))
		vev.SetProperty(golangical.ComponentPropertyDtEnd, floating(ev.End))
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		if ev.URL != "" {
			vev.SetURL(ev.URL)
		}
		if ev.RRule != "" {
			vev.AddRrule(ev.RRule)
		}
	}

	return cal.Serialize(), nil
}

// goICalSerializer writes feeds with github.com/emersion/go-ical.
type goICalSerializer struct{}

func (goICalSerializer) Serialize(meta FeedMeta, events []model.CalendarEvent) (string, error) {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, meta.ProductID)
	cal.Props.SetText(goical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(goical.PropMethod, "PUBLISH")
	if meta.Name != "" {
		cal.Props.SetText("X-WR-CALNAME", meta.Name)
	}

	stamp := meta.Stamp.UTC().Format(utcDateTimeFormat)
	for _, ev := range events {
		vev := goical.NewEvent()
		vev.Props.SetText(goical.PropUID, ev.UID)
		setRaw(vev.Props, goical.PropDateTimeStamp, stamp)
		setRaw(vev.Props, goical.PropDateTimeStart, floating(ev.Start))
		setRaw(vev.Props, goical.PropDateTimeEnd, floating(ev.End))
		vev.Props.SetText(goical.PropSummary, ev.Title)
		if ev.Description != "" {
			vev.Props.SetText(goical.PropDescription, ev.Description)
		}
		if ev.URL != "" {
			setRaw(vev.Props, goical.PropURL, ev.URL)
		}
		if ev.RRule != "" {
			setRaw(vev.Props, goical.PropRecurrenceRule, ev.RRule)
		}
		cal.Children = append(cal.Children, vev.Component)
	}

	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("encode calendar: %w", err)
	}
	return buf.String(), nil
}

func setRaw(props goical.Props, name, value string) {
	prop := goical.NewProp(name)
	prop.Value = value
	props.Set(prop)
}

// floating formats p without a zone. Out-of-range hours roll over into the
// next day here, not in the parser.
func floating(p model.ParsedDateTime) string {
	return p.Time(time.UTC).Format(floatingDateTimeFormat)
}
