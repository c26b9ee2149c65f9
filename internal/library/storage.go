// Package library holds the signed-in (or guest) user's favorites and
// playlists, persisted locally and pushed to the remote profile.
package library

import (
	"context"
	"errors"
	"strconv"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// ErrPlaylistNotFound is returned when a playlist id does not exist.
var ErrPlaylistNotFound = errors.New("playlist not found")

// FavoritesKey resolves the favorites storage key for an identity. No
// session and anonymous sessions share the guest key.
func FavoritesKey(id identity.Identity) string {
	if !id.Authenticated() {
		return kvstore.KeyGuestFavorites
	}
	return kvstore.FavoritesKey(id.UserID)
}

// PlaylistsKey resolves the playlists storage key for an identity.
func PlaylistsKey(id identity.Identity) string {
	if !id.Authenticated() {
		return kvstore.KeyGuestPlaylists
	}
	return kvstore.PlaylistsKey(id.UserID)
}

// LoadIDs reads a favorites list stored under key. Numeric ids are coerced
// to strings, duplicates dropped and other values ignored. A value that is
// not a JSON array yields nil and an error wrapping kvstore.ErrMalformed.
func LoadIDs(ctx context.Context, store kvstore.Store, key string) ([]string, error) {
	var raw []any
	if _, err := kvstore.GetJSON(ctx, store, key, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			ids = append(ids, t)
		case float64:
			ids = append(ids, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	return Union(ids), nil
}

// LoadPlaylists reads a playlist array stored under key.
func LoadPlaylists(ctx context.Context, store kvstore.Store, key string) ([]profile.Playlist, error) {
	var pls []profile.Playlist
	if _, err := kvstore.GetJSON(ctx, store, key, &pls); err != nil {
		return nil, err
	}
	return pls, nil
}

// Union concatenates the lists keeping the first occurrence of every id.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Submitter accepts outbound sync tasks. *profile.Dispatcher satisfies it.
type Submitter interface {
	Submit(task profile.Task) *profile.Ticket
}

// dispatch submits a task for authenticated identities. It returns nil
// when there is nothing to push.
func dispatch(sub Submitter, id identity.Identity, t profile.SyncType, data any) *profile.Ticket {
	if sub == nil || !id.Authenticated() {
		return nil
	}
	return sub.Submit(profile.Task{UserID: id.UserID, Type: t, Data: data})
}
