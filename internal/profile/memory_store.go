package profile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call records one operation issued against a MemoryStore.
type Call struct {
	Op   string // "get", "merge_set", "update_fields"
	ID   string
	Data map[string]any
}

// MemoryStore is an in-process Store. It records every call and can be told
// to fail, which lets tests simulate an unreachable backend.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]map[string]any
	calls []Call
	fail  error
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]any),
		now:  time.Now,
	}
}

// SetFailure makes every subsequent call return err. Pass nil to recover.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Put seeds a document directly, bypassing call recording.
func (m *MemoryStore) Put(collection, id string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docKey(collection, id)] = copyDoc(data)
}

// Doc returns a copy of a stored document, or nil.
func (m *MemoryStore) Doc(collection, id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(collection, id)]
	if !ok {
		return nil
	}
	return copyDoc(doc)
}

// Calls returns the recorded calls in order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Writes counts recorded merge_set and update_fields calls.
func (m *MemoryStore) Writes() int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op != "get" {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MemoryStore) GetDocument(_ context.Context, collection, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "get", ID: id})
	if m.fail != nil {
		return nil, m.fail
	}
	doc, ok := m.docs[docKey(collection, id)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return copyDoc(doc), nil
}

func (m *MemoryStore) MergeSet(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "merge_set", ID: id, Data: copyDoc(data)})
	if m.fail != nil {
		return m.fail
	}
	key := docKey(collection, id)
	doc, ok := m.docs[key]
	if !ok {
		doc = make(map[string]any)
		m.docs[key] = doc
	}
	m.merge(doc, data)
	return nil
}

func (m *MemoryStore) UpdateFields(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "update_fields", ID: id, Data: copyDoc(data)})
	if m.fail != nil {
		return m.fail
	}
	doc, ok := m.docs[docKey(collection, id)]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	m.merge(doc, data)
	return nil
}

func (m *MemoryStore) merge(doc, data map[string]any) {
	for k, v := range data {
		if IsServerTimestamp(v) {
			doc[k] = m.now().UTC()
			continue
		}
		doc[k] = v
	}
}

func docKey(collection, id string) string {
	return collection + "/" + id
}

func copyDoc(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
