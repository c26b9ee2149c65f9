package catalogue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// Local keys owned by the delta sync.
const (
	KeyOverrides = "mezmur_cloud_overrides"
	KeyLastSync  = "mezmur_last_sync_timestamp"
)

// Update is one remotely edited hymn with its edit time.
type Update struct {
	Hymn      Hymn
	UpdatedAt time.Time
}

// UpdateSource lists remotely edited hymns. A zero since asks for all of
// them. Results are ordered by UpdatedAt ascending.
type UpdateSource interface {
	UpdatedSince(ctx context.Context, since time.Time) ([]Update, error)
}

// Syncer keeps the index patched with remote edits. Edits are persisted as
// overrides so a restart offline still shows them.
type Syncer struct {
	index  *Index
	store  kvstore.Store
	source UpdateSource
	log    *logging.Logger

	mu       sync.Mutex
	lastSync time.Time
}

// NewSyncer creates a Syncer. A nil source makes SyncWithCloud a no-op.
func NewSyncer(index *Index, store kvstore.Store, source UpdateSource) *Syncer {
	return &Syncer{
		index:  index,
		store:  store,
		source: source,
		log:    logging.New("catalogue_sync"),
	}
}

// Init builds the index from the base bundles with the stored overrides
// applied on top. Unreadable overrides are ignored.
func (s *Syncer) Init(ctx context.Context, base []Hymn) error {
	hymns := base
	overrides, err := s.readOverrides(ctx)
	if err != nil {
		s.log.Warnf("init", "ignoring stored overrides: %v", err)
	}
	if len(overrides) > 0 {
		hymns = mergeOverrides(base, overrides)
		s.log.Infof("init", "applied %d cloud overrides", len(overrides))
	}

	raw, ok, err := s.store.Get(ctx, KeyLastSync)
	if err != nil {
		s.log.Warnf("init", "failed to read last sync time: %v", err)
	} else if ok {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			s.mu.Lock()
			s.lastSync = time.UnixMilli(ms)
			s.mu.Unlock()
		}
	}

	if err := s.index.Build(hymns); err != nil && !errors.Is(err, ErrAlreadyBuilt) {
		return err
	}
	s.log.Infof("init", "indexed %d hymns", s.index.Len())
	return nil
}

// LastSync returns the edit time of the newest applied remote update.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SyncWithCloud fetches hymns edited after the last sync and applies them.
// It returns the number of applied updates. On a source error nothing is
// persisted or applied.
func (s *Syncer) SyncWithCloud(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updates, err := s.source.UpdatedSince(ctx, s.lastSync)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch hymn updates: %w", err)
	}
	if len(updates) == 0 {
		s.log.Debugf("sync_with_cloud", "up to date since=%d", s.lastSync.UnixMilli())
		return 0, nil
	}

	overrides, err := s.readOverrides(ctx)
	if err != nil {
		s.log.Warnf("sync_with_cloud", "resetting unreadable overrides: %v", err)
		overrides = nil
	}
	if overrides == nil {
		overrides = make(map[string]Hymn, len(updates))
	}
	for _, u := range updates {
		overrides[u.Hymn.ID] = u.Hymn
	}
	if err := kvstore.SetJSON(ctx, s.store, KeyOverrides, overrides); err != nil {
		return 0, fmt.Errorf("failed to persist overrides: %w", err)
	}

	if latest := updates[len(updates)-1].UpdatedAt; !latest.IsZero() {
		ms := latest.UnixMilli()
		if err := s.store.Set(ctx, KeyLastSync, strconv.FormatInt(ms, 10)); err != nil {
			return 0, fmt.Errorf("failed to persist last sync time: %w", err)
		}
		s.lastSync = time.UnixMilli(ms)
	}

	for _, u := range updates {
		s.index.UpdateOne(u.Hymn)
	}
	s.log.Infof("sync_with_cloud", "synced %d hymns from cloud", len(updates))
	return len(updates), nil
}

func (s *Syncer) readOverrides(ctx context.Context) (map[string]Hymn, error) {
	var overrides map[string]Hymn
	if _, err := kvstore.GetJSON(ctx, s.store, KeyOverrides, &overrides); err != nil {
		return nil, err
	}
	return overrides, nil
}

// mergeOverrides replaces base records by id in place and appends the
// overrides base does not know, sorted by id.
func mergeOverrides(base []Hymn, overrides map[string]Hymn) []Hymn {
	out := make([]Hymn, 0, len(base)+len(overrides))
	used := make(map[string]bool, len(overrides))
	for _, h := range base {
		if o, ok := overrides[h.ID]; ok {
			out = append(out, o)
			used[h.ID] = true
			continue
		}
		out = append(out, h)
	}
	for _, id := range slices.Sorted(maps.Keys(overrides)) {
		if !used[id] {
			out = append(out, overrides[id])
		}
	}
	return out
}
