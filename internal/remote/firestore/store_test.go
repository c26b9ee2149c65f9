package firestore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

func TestToFirestore_SwapsServerTimestamp(t *testing.T) {
	in := map[string]any{
		profile.FieldTheme:    "dark",
		profile.FieldLastSync: profile.ServerTimestamp,
	}
	out := toFirestore(in)

	assert.Equal(t, "dark", out[profile.FieldTheme])
	assert.Equal(t, firestore.ServerTimestamp, out[profile.FieldLastSync])
	assert.Equal(t, profile.ServerTimestamp, in[profile.FieldLastSync], "input left untouched")
}

func TestUpdates_SortedFieldPaths(t *testing.T) {
	got := updates(map[string]any{
		profile.FieldFavorites: []any{"1"},
		profile.FieldLastSync:  profile.ServerTimestamp,
	})

	assert.Equal(t, []firestore.Update{
		{FieldPath: firestore.FieldPath{profile.FieldFavorites}, Value: []any{"1"}},
		{FieldPath: firestore.FieldPath{profile.FieldLastSync}, Value: firestore.ServerTimestamp},
	}, got)
}

func TestIsNotFound(t *testing.T) {
	nf := status.Error(codes.NotFound, "no document")

	assert.True(t, isNotFound(nf))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", nf)))
	assert.False(t, isNotFound(status.Error(codes.Unavailable, "down")))
	assert.False(t, isNotFound(errors.New("plain")))
	assert.False(t, isNotFound(nil))
}

func TestHymnUpdate(t *testing.T) {
	at := time.Date(2025, 1, 19, 8, 0, 0, 0, time.UTC)

	t.Run("document id", func(t *testing.T) {
		u := hymnUpdate("12", map[string]any{
			"title":     "ሆሣዕና",
			"lyrics":    "a\nb",
			"section":   "baptism",
			"audioUrl":  "https://cdn.example/12.mp3",
			"updatedAt": at,
		})
		assert.Equal(t, "12", u.Hymn.ID)
		assert.Equal(t, "ሆሣዕና", u.Hymn.Title)
		assert.Equal(t, "https://cdn.example/12.mp3", u.Hymn.AudioURL)
		assert.Equal(t, at, u.UpdatedAt)
	})

	t.Run("numeric id field wins", func(t *testing.T) {
		u := hymnUpdate("auto-id", map[string]any{"id": int64(205), "title": "x"})
		assert.Equal(t, "205", u.Hymn.ID)
		assert.True(t, u.UpdatedAt.IsZero())
	})
}
