package profile

import (
	"encoding/json"
	"fmt"
	"time"
)

// UsersCollection is the remote collection that holds one document per user.
const UsersCollection = "users"

// Remote document field names.
const (
	FieldFavorites = "favorites"
	FieldPlaylists = "playlists"
	FieldTheme     = "theme"
	FieldLanguage  = "language"
	FieldPhotoURL  = "photoURL"
	FieldLastSync  = "lastSync"
)

// SyncType names a user-state domain that can be synced or queued.
type SyncType string

const (
	SyncFavorites SyncType = "favorites"
	SyncPlaylists SyncType = "playlists"
	SyncTheme     SyncType = "theme"
	SyncLanguage  SyncType = "language"
)

// Field returns the remote document field written for the domain.
func (t SyncType) Field() (string, error) {
	switch t {
	case SyncFavorites:
		return FieldFavorites, nil
	case SyncPlaylists:
		return FieldPlaylists, nil
	case SyncTheme:
		return FieldTheme, nil
	case SyncLanguage:
		return FieldLanguage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSyncType, string(t))
	}
}

// Playlist is a user-owned ordered list of hymn ids.
type Playlist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Items     []string `json:"items"`
	CreatedAt int64    `json:"createdAt"` // epoch ms
	UpdatedAt int64    `json:"updatedAt"` // epoch ms
}

// RemoteProfile is the per-user cloud document. A nil Favorites or Playlists
// slice means the field is absent remotely; an empty one means it is present.
type RemoteProfile struct {
	Favorites []string   `json:"favorites,omitempty"`
	Playlists []Playlist `json:"playlists,omitempty"`
	Theme     string     `json:"theme,omitempty"`
	Language  string     `json:"language,omitempty"`
	PhotoURL  string     `json:"photoURL,omitempty"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
}

// DecodeProfile converts a raw document into a RemoteProfile.
func DecodeProfile(doc map[string]any) (*RemoteProfile, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile document: %w", err)
	}
	var p RemoteProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile document: %w", err)
	}
	return &p, nil
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
