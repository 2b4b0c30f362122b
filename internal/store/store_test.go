package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushcal/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCollectionCRUD(t *testing.T) {
	ctx := context.Background()
	c := openTestDB(t).Collection("things")

	id1, err := c.Insert(ctx, map[string]any{"user_id": 1, "name": "first"})
	require.NoError(t, err)
	id2, err := c.Insert(ctx, map[string]any{"user_id": "1", "name": "second"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, map[string]any{"user_id": 2, "name": "other"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	docs, err := c.Find(ctx, Eq{Field: "user_id", Value: "1"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, id1, docs[0].ID)
	assert.Equal(t, id2, docs[1].ID)

	all, err := c.Find(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, c.Update(ctx, id1, map[string]any{"user_id": 3, "name": "moved"}))
	doc, err := c.FindOne(ctx, Eq{Field: "user_id", Value: "3"})
	require.NoError(t, err)
	assert.Equal(t, id1, doc.ID)
	assert.JSONEq(t, `{"user_id":3,"name":"moved"}`, string(doc.Body))

	require.NoError(t, c.Remove(ctx, id1))
	_, err = c.FindOne(ctx, Eq{Field: "user_id", Value: "3"})
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(c.Remove(ctx, id1)))
	assert.True(t, IsNotFound(c.Update(ctx, "missing", map[string]any{})))
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Collection("a").Insert(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)

	docs, err := db.Collection("b").Find(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFindRejectsBadFieldName(t *testing.T) {
	_, err := openTestDB(t).Collection("a").Find(context.Background(), Eq{Field: "x') OR 1=1 --", Value: "1"})
	assert.Error(t, err)
}

func TestCompactAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pushcal.db")

	db, err := Open(path)
	require.NoError(t, err)
	id, err := db.Collection("a").Insert(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, db.Compact(ctx))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	doc, err := db.Collection("a").FindOne(ctx, Eq{Field: "k", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
}

func TestSubscriptionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSubscriptionStore(openTestDB(t))

	sub := model.Subscription{
		Endpoint: "https://push.example.com/abc",
		Keys:     model.SubscriptionKeys{P256dh: "p", Auth: "a"},
		UserID:   "1",
	}
	id, err := s.Save(ctx, sub)
	require.NoError(t, err)

	_, err = s.Save(ctx, model.Subscription{Endpoint: "https://push.example.com/other", UserID: "2"})
	require.NoError(t, err)

	got, err := s.FindByUser(ctx, "1")
	require.NoError(t, err)
	sub.ID = id
	assert.Equal(t, sub, got)

	list, err := s.ListByUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []model.Subscription{sub}, list)

	empty, err := s.ListByUser(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.FindByUser(ctx, "1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCalendarStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore(openTestDB(t))

	var item model.CalendarItem
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":1,"added_by":2,"title":"Checkup",
		"description":"Doctor visit","url":"http://x",
		"startDate":"2024-03-10T09:00:00+01","endDate":"2024-03-10T10:00:00+01"}`), &item))

	id, err := s.Add(ctx, item)
	require.NoError(t, err)

	byCreator, err := s.ListAddedBy(ctx, "2")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	item.ID = id
	if diff := cmp.Diff(item, byCreator[0]); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	forUser, err := s.ListForUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, byCreator, forUser)

	none, err := s.ListAddedBy(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, none)

	updated := item
	updated.Title = "Dentist"
	updated.URL = ""
	require.NoError(t, s.Update(ctx, id, updated))
	forUser, err = s.ListForUser(ctx, "1")
	require.NoError(t, err)
	require.Len(t, forUser, 1)
	assert.Equal(t, "Dentist", forUser[0].Title)
	assert.Empty(t, forUser[0].URL)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), model.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, id, updated), model.ErrNotFound)
}
