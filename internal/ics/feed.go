package ics

import (
	"fmt"
	"strings"
	"time"

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

// FeedOptions configures a FeedBuilder.
type FeedOptions struct {
	OffsetMode OffsetMode
	Serializer string
	ProductID  string
	Name       string
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

// FeedBuilder turns stored calendar items into an iCalendar document.
// It keeps no state between calls and is safe for concurrent use.
type FeedBuilder struct {
	parser     DateTimeParser
	serializer Serializer
	productID  string
	name       string
	now        func() time.Time
}

// BuildResult is the outcome of FeedBuilder.Build.
type BuildResult struct {
	Document string
	Events   []model.CalendarEvent
	// Skipped lists ids of items whose dates could not be parsed.
	Skipped []string
}

// NewFeedBuilder validates opts and returns a FeedBuilder.
func NewFeedBuilder(opts FeedOptions) (*FeedBuilder, error) {
	mode, err := ParseOffsetMode(string(opts.OffsetMode))
	if err != nil {
		return nil, err
	}
	ser, err := NewSerializer(opts.Serializer)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FeedBuilder{
		parser:     DateTimeParser{Mode: mode},
		serializer: ser,
		productID:  opts.ProductID,
		name:       opts.Name,
		now:        now,
	}, nil
}

// Events converts items to events in input order. Items with an unparsable
// startDate or endDate are logged and skipped; their ids are returned.
func (b *FeedBuilder) Events(items []model.CalendarItem) ([]model.CalendarEvent, []string) {
	events := make([]model.CalendarEvent, 0, len(items))
	var skipped []string

	for _, item := range items {
		ev, err := b.event(item)
		if err != nil {
			appLog.Error("calendar item skipped", err, "id", item.ID, "user_id", item.UserID)
			skipped = append(skipped, item.ID)
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

func (b *FeedBuilder) event(item model.CalendarItem) (model.CalendarEvent, error) {
	start, err := b.parser.Parse(item.StartDate)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("startDate: %w", err)
	}
	end, err := b.parser.Parse(item.EndDate)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("endDate: %w", err)
	}

	return model.CalendarEvent{
		UID:         item.ID,
		Title:       item.Title,
		Description: Describe(item),
		Start:       start,
		End:         end,
		URL:         item.URL,
		RRule:       strings.TrimPrefix(strings.TrimSpace(item.RRule), "RRULE:"),
	}, nil
}

// Build renders items as a text/calendar document.
func (b *FeedBuilder) Build(items []model.CalendarItem) (BuildResult, error) {
	events, skipped := b.Events(items)

	doc, err := b.serializer.Serialize(FeedMeta{
		ProductID: b.productID,
		Name:      b.name,
		Stamp:     b.now().UTC(),
	}, events)
	if err != nil {
		return BuildResult{}, fmt.Errorf("serialize feed: %w", err)
	}

	appLog.Debug("calendar feed built", "events", len(events), "skipped", len(skipped))
	return BuildResult{
		Document: doc,
		Events:   events,
		Skipped:  skipped,
	}, nil
}

// Describe returns the event description, with " Link: <url>" appended
// when the item has a URL.
func Describe(item model.CalendarItem) string {
	if item.URL == "" {
		return item.Description
	}
	return item.Description + " Link: " + item.URL
}
