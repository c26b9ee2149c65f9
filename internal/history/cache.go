// Package history keeps recent searches and recently opened hymns on the
// device, plus a runtime-only cache of search suggestions.
package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/textnorm"
)

// Storage keys.
const (
	KeySearchHistory = "cache_search_history"
	KeyHymnHistory   = "cache_hymn_history"
)

// Retention limits.
const (
	MaxSearches = 10
	MaxHymns    = 50
	minQueryLen = 2
)

// Entry is one opened hymn.
type Entry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Section   string `json:"section"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

// Cache is the history store. The persistent lists live in a kvstore; the
// suggestions and recommendations are lost on restart.
type Cache struct {
	store kvstore.Store
	log   *logging.Logger
	now   func() time.Time

	mu sync.Mutex // serializes read-modify-write of the persisted lists

	emu             sync.RWMutex
	suggestions     map[string][]catalogue.IndexedHymn
	recommendations []catalogue.IndexedHymn
}

// NewCache creates a Cache over store.
func NewCache(store kvstore.Store) *Cache {
	return &Cache{
		store:       store,
		log:         logging.New("history"),
		now:         time.Now,
		suggestions: make(map[string][]catalogue.IndexedHymn),
	}
}

// RecentSearches returns up to MaxSearches queries, most recent first.
func (c *Cache) RecentSearches(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.load(ctx, KeySearchHistory, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// AddSearch records a trimmed query of at least two characters, moving a
// repeated query to the front.
func (c *Cache) AddSearch(ctx context.Context, query string) error {
	q := strings.TrimSpace(query)
	if len([]rune(q)) < minQueryLen {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	searches, err := c.RecentSearches(ctx)
	if err != nil {
		return err
	}
	next := []string{q}
	for _, s := range searches {
		if s != q {
			next = append(next, s)
		}
	}
	if len(next) > MaxSearches {
		next = next[:MaxSearches]
	}
	return kvstore.SetJSON(ctx, c.store, KeySearchHistory, next)
}

// Hymns returns up to MaxHymns opened hymns, most recent first.
func (c *Cache) Hymns(ctx context.Context) ([]Entry, error) {
	var out []Entry
	if err := c.load(ctx, KeyHymnHistory, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

// AddHymn records that h was opened. Hymns without an id are ignored.
func (c *Cache) AddHymn(ctx context.Context, h catalogue.Hymn) error {
	if h.ID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hist, err := c.Hymns(ctx)
	if err != nil {
		return err
	}
	next := []Entry{{ID: h.ID, Title: h.Title, Section: h.Section, Timestamp: c.now().UnixMilli()}}
	for _, e := range hist {
		if e.ID != h.ID {
			next = append(next, e)
		}
	}
	if len(next) > MaxHymns {
		next = next[:MaxHymns]
	}
	return kvstore.SetJSON(ctx, c.store, KeyHymnHistory, next)
}

// load decodes key into out; a malformed value reads as empty.
func (c *Cache) load(ctx context.Context, key string, out any) error {
	_, err := kvstore.GetJSON(ctx, c.store, key, out)
	if errors.Is(err, kvstore.ErrMalformed) {
		c.log.Warnf("load", "%v, starting empty", err)
		return nil
	}
	return err
}

// SetSuggestions caches results for a query. Keys are case-folded.
func (c *Cache) SetSuggestions(query string, results []catalogue.IndexedHymn) {
	c.emu.Lock()
	defer c.emu.Unlock()
	c.suggestions[textnorm.Fold(query)] = results
}

// Suggestions returns cached results for query.
func (c *Cache) Suggestions(query string) ([]catalogue.IndexedHymn, bool) {
	c.emu.RLock()
	defer c.emu.RUnlock()
	res, ok := c.suggestions[textnorm.Fold(query)]
	return res, ok
}

func (c *Cache) SetRecommendations(hymns []catalogue.IndexedHymn) {
	c.emu.Lock()
	defer c.emu.Unlock()
	c.recommendations = hymns
}

func (c *Cache) Recommendations() []catalogue.IndexedHymn {
	c.emu.RLock()
	defer c.emu.RUnlock()
	return c.recommendations
}

// ClearEphemeral drops suggestions and recommendations.
func (c *Cache) ClearEphemeral() {
	c.emu.Lock()
	defer c.emu.Unlock()
	clear(c.suggestions)
	c.recommendations = nil
}
