// Package kvstore is the device-local, string-keyed persistence capability.
// Values are opaque strings; callers store JSON under the key names below.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Key names shared by the sync core.
const (
	KeySyncQueue        = "syncQueue"
	KeySelectedTheme    = "selectedTheme"
	KeySelectedLanguage = "selectedLanguage"
	KeyLegacyFavorites  = "favorites"
	KeyGuestFavorites   = "favorites_guest"
	KeyGuestPlaylists   = "user_playlists_guest"
)

// ErrMalformed is returned by GetJSON when a stored value does not decode.
var ErrMalformed = errors.New("malformed stored value")

// Store is an async, durable get/set/remove store.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// FavoritesKey returns the favorites key for a user id.
func FavoritesKey(userID string) string {
	return "favorites_" + userID
}

// PlaylistsKey returns the playlists key for a user id.
func PlaylistsKey(userID string) string {
	return "user_playlists_" + userID
}

// MigratedKey returns the top-level migration flag key for a user id.
func MigratedKey(userID string) string {
	return "migrated_" + userID
}

// DomainMigratedKey returns the per-domain migration flag key. The prefix
// differs from MigratedKey's, and the domain precedes the user id, so no
// user id can produce another user's flag.
func DomainMigratedKey(userID, domain string) string {
	return "migration_" + domain + "_" + userID
}

// GetJSON decodes the JSON value stored under key into out.
// found is false when the key is absent. A value that fails to decode
// yields an error wrapping ErrMalformed and leaves out untouched.
func GetJSON(ctx context.Context, s Store, key string, out any) (found bool, err error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("%w: key %s: %v", ErrMalformed, key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
