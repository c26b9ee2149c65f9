package firestore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
)

// HymnsCollection holds admin-edited hymns.
const HymnsCollection = "mezmurs"

// HymnSource implements catalogue.UpdateSource over the hymns collection.
type HymnSource struct {
	client *firestore.Client
}

// NewHymnSource wraps an initialized client.
func NewHymnSource(client *firestore.Client) *HymnSource {
	return &HymnSource{client: client}
}

func (s *HymnSource) UpdatedSince(ctx context.Context, since time.Time) ([]catalogue.Update, error) {
	q := s.client.Collection(HymnsCollection).Query
	if !since.IsZero() {
		q = q.Where("updatedAt", ">", since)
	}
	iter := q.OrderBy("updatedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []catalogue.Update
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query %s: %w", HymnsCollection, err)
		}
		out = append(out, hymnUpdate(snap.Ref.ID, snap.Data()))
	}
	return out, nil
}

// hymnUpdate maps one document. An id field in the data wins over the
// document id.
func hymnUpdate(docID string, data map[string]any) catalogue.Update {
	h := catalogue.Hymn{
		ID:          docID,
		Title:       str(data["title"]),
		Lyrics:      str(data["lyrics"]),
		Translation: str(data["translation"]),
		Section:     str(data["section"]),
		AudioURL:    str(data["audioUrl"]),
		Duration:    str(data["duration"]),
	}
	if id := str(data["id"]); id != "" {
		h.ID = id
	}
	u := catalogue.Update{Hymn: h}
	if t, ok := data["updatedAt"].(time.Time); ok {
		u.UpdatedAt = t
	}
	return u
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func sortedFields(data map[string]any) []string {
	return slices.Sorted(maps.Keys(data))
}
