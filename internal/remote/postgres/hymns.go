package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
)

const hymnColumns = `id, title, lyrics, translation, section, audio_url, duration, updated_at`

// HymnSource implements catalogue.UpdateSource over the mezmurs table.
type HymnSource struct {
	db DB
}

// NewHymnSource creates a source over db.
func NewHymnSource(db DB) *HymnSource {
	return &HymnSource{db: db}
}

func (s *HymnSource) UpdatedSince(ctx context.Context, since time.Time) ([]catalogue.Update, error) {
	query := `SELECT ` + hymnColumns + ` FROM mezmurs ORDER BY updated_at ASC`
	args := []any{}
	if !since.IsZero() {
		query = `SELECT ` + hymnColumns + ` FROM mezmurs WHERE updated_at > $1 ORDER BY updated_at ASC`
		args = append(args, since)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hymn updates: %w", err)
	}
	defer rows.Close()

	var out []catalogue.Update
	for rows.Next() {
		var u catalogue.Update
		h := &u.Hymn
		if err := rows.Scan(&h.ID, &h.Title, &h.Lyrics, &h.Translation, &h.Section, &h.AudioURL, &h.Duration, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hymn update: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hymn updates: %w", err)
	}
	return out, nil
}
