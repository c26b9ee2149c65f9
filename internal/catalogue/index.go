package catalogue

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyBuilt is returned by Build on every call after the first.
var ErrAlreadyBuilt = errors.New("catalogue index already built")

// compactMin is the slot count below which removals never trigger compaction.
const compactMin = 32

// orderedSet keeps hymns in insertion order with O(1) lookup, replace and
// remove. Removed slots are tombstoned and reclaimed once they outnumber
// the live ones.
type orderedSet struct {
	slots []*IndexedHymn
	pos   map[string]int
	live  int
}

func newOrderedSet() *orderedSet {
	return &orderedSet{pos: make(map[string]int)}
}

func (s *orderedSet) get(id string) (*IndexedHymn, bool) {
	i, ok := s.pos[id]
	if !ok {
		return nil, false
	}
	return s.slots[i], true
}

// put replaces in place or appends.
func (s *orderedSet) put(h *IndexedHymn) {
	if i, ok := s.pos[h.ID]; ok {
		s.slots[i] = h
		return
	}
	s.pos[h.ID] = len(s.slots)
	s.slots = append(s.slots, h)
	s.live++
}

func (s *orderedSet) remove(id string) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	s.slots[i] = nil
	delete(s.pos, id)
	s.live--
	if len(s.slots) > compactMin && s.live*2 < len(s.slots) {
		s.compact()
	}
	return true
}

func (s *orderedSet) compact() {
	out := make([]*IndexedHymn, 0, s.live)
	for _, h := range s.slots {
		if h == nil {
			continue
		}
		s.pos[h.ID] = len(out)
		out = append(out, h)
	}
	s.slots = out
}

func (s *orderedSet) list(limit int) []IndexedHymn {
	n := s.live
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]IndexedHymn, 0, n)
	for _, h := range s.slots {
		if len(out) == n {
			break
		}
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// Index is the process-wide hymn index. Every mutation completes under the
// write lock, so readers only ever observe whole states.
type Index struct {
	mu       sync.RWMutex
	built    bool
	ready    chan struct{}
	all      *orderedSet
	sections map[string]*orderedSet
	order    []string

	lmu        sync.Mutex
	listeners  map[int]func()
	nextListen int
}

// NewIndex creates an empty, not yet ready index.
func NewIndex() *Index {
	return &Index{
		ready:     make(chan struct{}),
		all:       newOrderedSet(),
		sections:  make(map[string]*orderedSet),
		listeners: make(map[int]func()),
	}
}

// Build indexes hymns once. Later hymns with a repeated id replace earlier
// ones in place.
func (x *Index) Build(hymns []Hymn) error {
	x.mu.Lock()
	if x.built {
		x.mu.Unlock()
		return ErrAlreadyBuilt
	}
	for _, h := range hymns {
		x.putLocked(h)
	}
	x.built = true
	close(x.ready)
	x.mu.Unlock()

	x.notify()
	return nil
}

// Ready reports whether Build has completed.
func (x *Index) Ready() bool {
	select {
	case <-x.ready:
		return true
	default:
		return false
	}
}

// WaitForReady blocks until Build completes or ctx is done.
func (x *Index) WaitForReady(ctx context.Context) error {
	select {
	case <-x.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// All returns every hymn in catalogue order.
func (x *Index) All() []IndexedHymn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.all.list(-1)
}

// Len returns the number of indexed hymns.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.all.live
}

// Get returns one hymn by id.
func (x *Index) Get(id string) (IndexedHymn, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	h, ok := x.all.get(id)
	if !ok {
		return IndexedHymn{}, false
	}
	return *h, true
}

// BySection returns the hymns of a section, or an empty slice.
func (x *Index) BySection(section string) []IndexedHymn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	b, ok := x.sections[section]
	if !ok {
		return []IndexedHymn{}
	}
	return b.list(-1)
}

// Sections lists non-empty sections in the order they were first seen.
func (x *Index) Sections() []Section {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Section, 0, len(x.order))
	for _, id := range x.order {
		if b := x.sections[id]; b.live > 0 {
			out = append(out, Section{ID: id, Label: id, Count: b.live})
		}
	}
	return out
}

// FeaturedForFeast returns the first ten hymns of section, or the first five
// of the catalogue when the section is empty or unknown.
func (x *Index) FeaturedForFeast(section string) []IndexedHymn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if b, ok := x.sections[section]; ok && section != "" && b.live > 0 {
		return b.list(10)
	}
	return x.all.list(5)
}

// UpdateOne inserts or replaces one hymn, re-deriving its fields and moving
// it between section buckets when its section changed.
func (x *Index) UpdateOne(h Hymn) {
	x.mu.Lock()
	x.putLocked(h)
	x.mu.Unlock()
	x.notify()
}

// RemoveOne drops a hymn. It returns false when the id is unknown.
func (x *Index) RemoveOne(id string) bool {
	x.mu.Lock()
	prev, ok := x.all.get(id)
	if ok {
		x.all.remove(id)
		if prev.Section != "" {
			x.sections[prev.Section].remove(id)
		}
	}
	x.mu.Unlock()

	if ok {
		x.notify()
	}
	return ok
}

func (x *Index) putLocked(h Hymn) {
	ih := Derive(h)
	if prev, ok := x.all.get(ih.ID); ok && prev.Section != "" && prev.Section != ih.Section {
		x.sections[prev.Section].remove(ih.ID)
	}
	x.all.put(&ih)
	if ih.Section == "" {
		return
	}
	b, ok := x.sections[ih.Section]
	if !ok {
		b = newOrderedSet()
		x.sections[ih.Section] = b
		x.order = append(x.order, ih.Section)
	}
	b.put(&ih)
}

// Subscribe registers fn to run after every change. The returned function
// removes it.
func (x *Index) Subscribe(fn func()) (unsubscribe func()) {
	x.lmu.Lock()
	id := x.nextListen
	x.nextListen++
	x.listeners[id] = fn
	x.lmu.Unlock()

	return func() {
		x.lmu.Lock()
		delete(x.listeners, id)
		x.lmu.Unlock()
	}
}

func (x *Index) notify() {
	x.lmu.Lock()
	fns := make([]func(), 0, len(x.listeners))
	for _, fn := range x.listeners {
		fns = append(fns, fn)
	}
	x.lmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
