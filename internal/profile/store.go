package profile

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the remote, per-user document store. Writes have partial-field
// merge semantics: fields not named in data are left untouched.
type Store interface {
	// GetDocument returns the document or an error wrapping ErrNotFound.
	GetDocument(ctx context.Context, collection, id string) (map[string]any, error)
	// MergeSet creates the document if needed and merges data into it.
	MergeSet(ctx context.Context, collection, id string, data map[string]any) error
	// UpdateFields merges data into an existing document and fails with an
	// error wrapping ErrNotFound when the document is absent.
	UpdateFields(ctx context.Context, collection, id string, data map[string]any) error
}

// Sentinel is a placeholder value that backends replace on write.
type Sentinel string

// ServerTimestamp asks the backend to store its own current time.
const ServerTimestamp Sentinel = "__server_timestamp__"

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	s, ok := v.(Sentinel)
	return ok && s == ServerTimestamp
}

// documentValue converts a payload into the plain JSON shapes (maps, slices,
// strings, float64) every backend can encode. Struct tags decide field names.
func documentValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, int64, int:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}
	return out, nil
}
