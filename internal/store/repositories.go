package store

import (
	"context"
	"encoding/json"
	"fmt"

	"pushcal/internal/model"
)

// SubscriptionStore persists push subscriptions.
type SubscriptionStore struct {
	c *Collection
}

// NewSubscriptionStore returns a SubscriptionStore backed by db.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{c: db.Collection(CollectionSubscriptions)}
}

// Save stores sub and returns its new id.
func (s *SubscriptionStore) Save(ctx context.Context, sub model.Subscription) (string, error) {
	sub.ID = ""
	return s.c.Insert(ctx, sub)
}

// ListByUser returns every subscription registered for userID.
func (s *SubscriptionStore) ListByUser(ctx context.Context, userID model.SubjectID) ([]model.Subscription, error) {
	docs, err := s.c.Find(ctx, Eq{Field: "user_id", Value: userID.String()})
	if err != nil {
		return nil, err
	}
	subs := make([]model.Subscription, 0, len(docs))
	for _, d := range docs {
		sub, err := decodeSubscription(d)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// FindByUser returns the first subscription for userID, or an error
// wrapping model.ErrNotFound.
func (s *SubscriptionStore) FindByUser(ctx context.Context, userID model.SubjectID) (model.Subscription, error) {
	d, err := s.c.FindOne(ctx, Eq{Field: "user_id", Value: userID.String()})
	if err != nil {
		return model.Subscription{}, err
	}
	return decodeSubscription(d)
}

// Delete removes subscription id.
func (s *SubscriptionStore) Delete(ctx context.Context, id string) error {
	return s.c.Remove(ctx, id)
}

func decodeSubscription(d Document) (model.Subscription, error) {
	var sub model.Subscription
	if err := json.Unmarshal(d.Body, &sub); err != nil {
		return model.Subscription{}, fmt.Errorf("store: decode subscription %s: %w", d.ID, err)
	}
	sub.ID = d.ID
	return sub, nil
}

// CalendarStore persists calendar items.
type CalendarStore struct {
	c *Collection
}

// NewCalendarStore returns a CalendarStore backed by db.
func NewCalendarStore(db *DB) *CalendarStore {
	return &CalendarStore{c: db.Collection(CollectionCalendarItems)}
}

// Add stores item and returns its new id.
func (s *CalendarStore) Add(ctx context.Context, item model.CalendarItem) (string, error) {
	item.ID = ""
	return s.c.Insert(ctx, item)
}

// ListAddedBy returns the items created by subject.
func (s *CalendarStore) ListAddedBy(ctx context.Context, subject model.SubjectID) ([]model.CalendarItem, error) {
	return s.list(ctx, Eq{Field: "added_by", Value: subject.String()})
}

// ListForUser returns the items scheduled for subject; this is what the
// subject's feed shows.
func (s *CalendarStore) ListForUser(ctx context.Context, subject model.SubjectID) ([]model.CalendarItem, error) {
	return s.list(ctx, Eq{Field: "user_id", Value: subject.String()})
}

// Update replaces every field of item id.
func (s *CalendarStore) Update(ctx context.Context, id string, item model.CalendarItem) error {
	item.ID = ""
	return s.c.Update(ctx, id, item)
}

// Delete removes item id.
func (s *CalendarStore) Delete(ctx context.Context, id string) error {
	return s.c.Remove(ctx, id)
}

func (s *CalendarStore) list(ctx context.Context, filter Eq) ([]model.CalendarItem, error) {
	docs, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]model.CalendarItem, 0, len(docs))
	for _, d := range docs {
		var item model.CalendarItem
		if err := json.Unmarshal(d.Body, &item); err != nil {
			return nil, fmt.Errorf("store: decode calendar item %s: %w", d.ID, err)
		}
		item.ID = d.ID
		items = append(items, item)
	}
	return items, nil
}
