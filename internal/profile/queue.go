package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// Entry is one pending remote write owned by UserID. Data holds the full
// current-state snapshot of the domain, so replaying an entry twice converges.
type Entry struct {
	ID        string          `json:"id,omitempty"` // set on enqueue
	UserID    string          `json:"userId"`
	Type      SyncType        `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch ms, set on enqueue
}

// NewEntry builds an Entry for userID from a domain payload.
func NewEntry(userID string, t SyncType, data any) (Entry, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Entry{UserID: userID, Type: t, Data: raw}, nil
}

// key identifies an entry within the queue. Entries written without an id
// fall back to their content.
func (e Entry) key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.UserID + "|" + string(e.Type) + "|" + strconv.FormatInt(e.Timestamp, 10) + "|" + string(e.Data)
}

// Queue is the persisted FIFO of pending writes, stored as one JSON array
// under kvstore.KeySyncQueue.
type Queue struct {
	mu    sync.Mutex
	store kvstore.Store
	now   func() time.Time
	log   *logging.Logger
}

// NewQueue creates a Queue over a local store
func NewQueue(store kvstore.Store) *Queue {
	return &Queue{
		store: store,
		now:   time.Now,
		log:   logging.New("sync_queue"),
	}
}

// Append adds an entry at the tail, stamping the local time and an id.
func (q *Queue) Append(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return ErrMissingUser
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.read(ctx)
	if err != nil {
		return err
	}
	e.ID = uuid.NewString()
	e.Timestamp = q.now().UnixMilli()
	entries = append(entries, e)
	return q.write(ctx, entries)
}

// Entries returns the queued entries in order.
func (q *Queue) Entries(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read(ctx)
}

// EntriesFor returns the entries owned by userID, in order.
func (q *Queue) EntriesFor(ctx context.Context, userID string) ([]Entry, error) {
	entries, err := q.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Entries(ctx)
	return len(entries), err
}

// LenFor returns the number of entries owned by userID.
func (q *Queue) LenFor(ctx context.Context, userID string) (int, error) {
	entries, err := q.EntriesFor(ctx, userID)
	return len(entries), err
}

// Remove deletes exactly the given entries. Entries appended or removed by
// someone else since they were read are left alone.
func (q *Queue) Remove(ctx context.Context, done []Entry) error {
	if len(done) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(done))
	for _, e := range done {
		drop[e.key()] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.read(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := drop[e.key()]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return q.store.Remove(ctx, kvstore.KeySyncQueue)
	}
	return q.write(ctx, kept)
}

// Clear removes every queued entry.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Remove(ctx, kvstore.KeySyncQueue)
}

// read treats a malformed blob as an empty queue and removes it.
func (q *Queue) read(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	_, err := kvstore.GetJSON(ctx, q.store, kvstore.KeySyncQueue, &entries)
	if errors.Is(err, kvstore.ErrMalformed) {
		q.log.Warnf("read", "discarding unreadable queue: %v", err)
		if rmErr := q.store.Remove(ctx, kvstore.KeySyncQueue); rmErr != nil {
			q.log.Error("read", rmErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) write(ctx context.Context, entries []Entry) error {
	if err := kvstore.SetJSON(ctx, q.store, kvstore.KeySyncQueue, entries); err != nil {
		return fmt.Errorf("failed to write sync queue: %w", err)
	}
	return nil
}
