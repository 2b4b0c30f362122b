// Package store is a small document store on SQLite: JSON documents grouped
// in named collections, found by top-level field equality.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver, no CGO

	appLog "pushcal/internal/log"
	"pushcal/internal/model"
)

const (
	CollectionSubscriptions = "subscriptions"
	CollectionCalendarItems = "calendar_items"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Document is a stored JSON body and its store-assigned id.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Eq matches documents whose top-level Field equals Value. Numbers and
// strings compare by their text form, so Eq{"user_id", "1"} matches both
// 1 and "1".
type Eq struct {
	Field string
	Value string
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a throwaway store.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// One connection: SQLite serializes writes anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	instance := &DB{db}
	if err := instance.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return instance, nil
}

func (db *DB) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (collection, id)
	);`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	appLog.Debug("store tables initialized")
	return nil
}

// Compact rebuilds the database file, reclaiming space left by deletes.
func (db *DB) Compact(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("store: compact: %w", err)
	}
	return nil
}

// Collection returns a handle on the named collection.
func (db *DB) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Collection is a named group of documents.
type Collection struct {
	db   *DB
	name string
}

// Insert stores doc under a new id and returns it.
func (c *Collection) Insert(ctx context.Context, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("store: encode %s document: %w", c.name, err)
	}

	id := uuid.NewString()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
		c.name, id, string(body))
	if err != nil {
		return "", fmt.Errorf("store: insert into %s: %w", c.name, err)
	}
	return id, nil
}

// Find returns matching documents in insertion order. No filters returns
// the whole collection.
func (c *Collection) Find(ctx context.Context, filters ...Eq) ([]Document, error) {
	var (
		where strings.Builder
		args  = []any{c.name}
	)
	where.WriteString("collection = ?")
	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return nil, fmt.Errorf("store: invalid field name %q", f.Field)
		}
		where.WriteString(" AND CAST(json_extract(body, ?) AS TEXT) = ?")
		args = append(args, "$."+f.Field, f.Value)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE `+where.String()+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", c.name, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", c.name, err)
		}
		docs = append(docs, Document{ID: id, Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find in %s: %w", c.name, err)
	}
	return docs, nil
}

// FindOne returns the first match or an error wrapping model.ErrNotFound.
func (c *Collection) FindOne(ctx context.Context, filters ...Eq) (Document, error) {
	docs, err := c.Find(ctx, filters...)
	if err != nil {
		return Document{}, err
	}
	if len(docs) == 0 {
		return Document{}, fmt.Errorf("store: %s: %w", c.name, model.ErrNotFound)
	}
	return docs[0], nil
}

// Update replaces the body of document id.
func (c *Collection) Update(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode %s document: %w", c.name, err)
	}

	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
		string(body), c.name, id)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", c.name, err)
	}
	return requireAffected(res, c.name, id)
}

// Remove deletes document id.
func (c *Collection) Remove(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, id)
	if err != nil {
		return fmt.Errorf("store: remove from %s: %w", c.name, err)
	}
	return requireAffected(res, c.name, id)
}

func requireAffected(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: %w", collection, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s %q: %w", collection, id, model.ErrNotFound)
	}
	return nil
}

// IsNotFound reports whether err means a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
