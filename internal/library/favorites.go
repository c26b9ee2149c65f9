package library

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// Favorites is the favorites set of the current identity.
type Favorites struct {
	store kvstore.Store
	sub   Submitter
	log   *logging.Logger

	mu  sync.Mutex
	id  identity.Identity
	ids []string

	// commitMu orders persists and pushes the way mu ordered the changes.
	// It is taken while mu is held.
	commitMu sync.Mutex
}

// NewFavorites creates an empty favorites set. sub may be nil, in which case
// nothing is pushed remotely.
func NewFavorites(store kvstore.Store, sub Submitter) *Favorites {
	return &Favorites{
		store: store,
		sub:   sub,
		log:   logging.New("favorites"),
		ids:   []string{},
	}
}

// Load switches to id and reads its favorites. A malformed stored value
// loads as empty.
func (f *Favorites) Load(ctx context.Context, id identity.Identity) error {
	ids, err := LoadIDs(ctx, f.store, FavoritesKey(id))
	if errors.Is(err, kvstore.ErrMalformed) {
		f.log.Warnf("load", "%v, starting empty", err)
		ids, err = []string{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
	if err != nil {
		f.ids = []string{}
		return err
	}
	f.ids = ids
	return nil
}

// Follow reloads the set whenever the provider's identity changes.
func (f *Favorites) Follow(p identity.Provider) (stop func()) {
	return p.Subscribe(func(id identity.Identity) {
		if err := f.Load(context.Background(), id); err != nil {
			f.log.Error("follow", err)
		}
	})
}

// Toggle adds hymnID if absent, or removes it. The new list is written
// locally first; the returned ticket tracks the remote push and is nil for
// guests.
func (f *Favorites) Toggle(ctx context.Context, hymnID string) ([]string, *profile.Ticket) {
	f.mu.Lock()
	next := slices.Clone(f.ids)
	if i := slices.Index(next, hymnID); i >= 0 {
		next = slices.Delete(next, i, i+1)
	} else {
		next = append(next, hymnID)
	}
	f.ids = next
	id := f.id
	f.commitMu.Lock()
	defer f.commitMu.Unlock()
	f.mu.Unlock()

	if err := kvstore.SetJSON(ctx, f.store, FavoritesKey(id), next); err != nil {
		f.log.Error("toggle", err)
	}
	return slices.Clone(next), dispatch(f.sub, id, profile.SyncFavorites, slices.Clone(next))
}

// IsFavorite reports whether hymnID is in the set.
func (f *Favorites) IsFavorite(hymnID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.ids, hymnID)
}

// List returns a copy of the favorites in insertion order.
func (f *Favorites) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ids)
}

func (f *Favorites) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
