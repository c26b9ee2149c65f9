// Package postgres backs the remote profile store and the hymn update feed
// with PostgreSQL, keeping each document as one JSONB value.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the tables used by this package.
const Schema = `
CREATE TABLE IF NOT EXISTS profile_documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS mezmurs (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	lyrics      TEXT NOT NULL DEFAULT '',
	translation TEXT NOT NULL DEFAULT '',
	section     TEXT NOT NULL DEFAULT '',
	audio_url   TEXT NOT NULL DEFAULT '',
	duration    TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS mezmurs_updated_at_idx ON mezmurs (updated_at);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ProfileStore implements profile.Store. Merges use the JSONB || operator,
// which replaces top-level keys and leaves the others untouched.
type ProfileStore struct {
	db  DB
	now func() time.Time
}

// NewProfileStore creates a store over db.
func NewProfileStore(db DB) *ProfileStore {
	return &ProfileStore{db: db, now: time.Now}
}

func (s *ProfileStore) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM profile_documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, profile.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *ProfileStore) MergeSet(ctx context.Context, collection, id string, data map[string]any) error {
	payload, err := s.encode(data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO profile_documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = profile_documents.data || EXCLUDED.data, updated_at = now()`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *ProfileStore) UpdateFields(ctx context.Context, collection, id string, data map[string]any) error {
	payload, err := s.encode(data)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE profile_documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, profile.ErrNotFound)
	}
	return nil
}

// encode marshals data, resolving the server timestamp sentinel to the
// store's clock.
func (s *ProfileStore) encode(data map[string]any) (string, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if profile.IsServerTimestamp(v) {
			out[k] = s.now().UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(raw), nil
}
