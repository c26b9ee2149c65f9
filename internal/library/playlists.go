package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// NewPlaylistID returns a time-ordered random playlist id.
func NewPlaylistID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Playlists is the playlist set of the current identity.
type Playlists struct {
	store kvstore.Store
	sub   Submitter
	log   *logging.Logger
	now   func() time.Time

	mu  sync.Mutex
	id  identity.Identity
	pls []profile.Playlist

	// commitMu orders persists and pushes the way mu ordered the changes.
	// It is taken while mu is held.
	commitMu sync.Mutex
}

// NewPlaylists creates an empty playlist set.
func NewPlaylists(store kvstore.Store, sub Submitter) *Playlists {
	return &Playlists{
		store: store,
		sub:   sub,
		log:   logging.New("playlists"),
		now:   time.Now,
		pls:   []profile.Playlist{},
	}
}

// Load switches to id and reads its playlists.
func (p *Playlists) Load(ctx context.Context, id identity.Identity) error {
	pls, err := LoadPlaylists(ctx, p.store, PlaylistsKey(id))
	if errors.Is(err, kvstore.ErrMalformed) {
		p.log.Warnf("load", "%v, starting empty", err)
		err = nil
	}
	if pls == nil {
		pls = []profile.Playlist{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.pls = pls
	return err
}

// Follow reloads the set whenever the provider's identity changes.
func (p *Playlists) Follow(prov identity.Provider) (stop func()) {
	return prov.Subscribe(func(id identity.Identity) {
		if err := p.Load(context.Background(), id); err != nil {
			p.log.Error("follow", err)
		}
	})
}

// List returns a deep copy of the playlists.
func (p *Playlists) List() []profile.Playlist {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clonePlaylists(p.pls)
}

// Get returns one playlist.
func (p *Playlists) Get(playlistID string) (profile.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := indexOf(p.pls, playlistID)
	if i < 0 {
		return profile.Playlist{}, fmt.Errorf("%w: %s", ErrPlaylistNotFound, playlistID)
	}
	return clonePlaylist(p.pls[i]), nil
}

// Create appends an empty playlist.
func (p *Playlists) Create(ctx context.Context, name string) (profile.Playlist, *profile.Ticket) {
	ts := p.now().UnixMilli()
	pl := profile.Playlist{
		ID:        NewPlaylistID(),
		Name:      name,
		Items:     []string{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	p.mu.Lock()
	next := append(clonePlaylists(p.pls), pl)
	ticket := p.commitLocked(ctx, next)
	return clonePlaylist(pl), ticket
}

// Rename changes a playlist's name.
func (p *Playlists) Rename(ctx context.Context, playlistID, name string) (*profile.Ticket, error) {
	return p.modify(ctx, playlistID, func(pl *profile.Playlist) bool {
		pl.Name = name
		return true
	})
}

// Delete removes a playlist.
func (p *Playlists) Delete(ctx context.Context, playlistID string) (*profile.Ticket, error) {
	p.mu.Lock()
	i := indexOf(p.pls, playlistID)
	if i < 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, playlistID)
	}
	next := slices.Delete(clonePlaylists(p.pls), i, i+1)
	return p.commitLocked(ctx, next), nil
}

// Add appends hymnID to a playlist. Adding an id already present is a
// no-op that writes nothing.
func (p *Playlists) Add(ctx context.Context, playlistID, hymnID string) (*profile.Ticket, error) {
	return p.modify(ctx, playlistID, func(pl *profile.Playlist) bool {
		if slices.Contains(pl.Items, hymnID) {
			return false
		}
		pl.Items = append(pl.Items, hymnID)
		return true
	})
}

// Remove drops hymnID from a playlist.
func (p *Playlists) Remove(ctx context.Context, playlistID, hymnID string) (*profile.Ticket, error) {
	return p.modify(ctx, playlistID, func(pl *profile.Playlist) bool {
		pl.Items = slices.DeleteFunc(pl.Items, func(id string) bool { return id == hymnID })
		return true
	})
}

// Reorder replaces a playlist's items. Duplicates in items are dropped.
func (p *Playlists) Reorder(ctx context.Context, playlistID string, items []string) (*profile.Ticket, error) {
	return p.modify(ctx, playlistID, func(pl *profile.Playlist) bool {
		pl.Items = Union(items)
		return true
	})
}

// SetFromCloud replaces the set with remote playlists. The remote already
// holds them, so nothing is pushed.
func (p *Playlists) SetFromCloud(ctx context.Context, pls []profile.Playlist) error {
	next := clonePlaylists(pls)
	p.mu.Lock()
	p.pls = next
	key := PlaylistsKey(p.id)
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	p.mu.Unlock()
	return kvstore.SetJSON(ctx, p.store, key, next)
}

func (p *Playlists) modify(ctx context.Context, playlistID string, fn func(*profile.Playlist) bool) (*profile.Ticket, error) {
	p.mu.Lock()
	i := indexOf(p.pls, playlistID)
	if i < 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, playlistID)
	}
	next := clonePlaylists(p.pls)
	if !fn(&next[i]) {
		p.mu.Unlock()
		return nil, nil
	}
	next[i].UpdatedAt = p.now().UnixMilli()
	return p.commitLocked(ctx, next), nil
}

// commitLocked installs next and releases mu, then persists and pushes in
// the same order the changes were installed.
func (p *Playlists) commitLocked(ctx context.Context, next []profile.Playlist) *profile.Ticket {
	p.pls = next
	id := p.id
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	p.mu.Unlock()

	if err := kvstore.SetJSON(ctx, p.store, PlaylistsKey(id), next); err != nil {
		p.log.Error("persist", err)
	}
	return dispatch(p.sub, id, profile.SyncPlaylists, clonePlaylists(next))
}

func indexOf(pls []profile.Playlist, playlistID string) int {
	return slices.IndexFunc(pls, func(pl profile.Playlist) bool { return pl.ID == playlistID })
}

func clonePlaylist(pl profile.Playlist) profile.Playlist {
	pl.Items = slices.Clone(pl.Items)
	if pl.Items == nil {
		pl.Items = []string{}
	}
	return pl
}

func clonePlaylists(pls []profile.Playlist) []profile.Playlist {
	out := make([]profile.Playlist, len(pls))
	for i, pl := range pls {
		out[i] = clonePlaylist(pl)
	}
	return out
}
