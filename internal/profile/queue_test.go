package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
)

func mustEntry(t *testing.T, st SyncType, data any) Entry {
	t.Helper()
	e, err := NewEntry("u1", st, data)
	require.NoError(t, err)
	return e
}

func TestQueue_AppendStampsAndOrders(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kvstore.NewMemoryStore())
	clock := time.UnixMilli(1_700_000_000_000)
	q.now = func() time.Time { return clock }

	require.NoError(t, q.Append(ctx, mustEntry(t, SyncTheme, "dark")))
	clock = clock.Add(time.Second)
	require.NoError(t, q.Append(ctx, mustEntry(t, SyncLanguage, "am")))

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, SyncTheme, entries[0].Type)
	assert.Equal(t, int64(1_700_000_000_000), entries[0].Timestamp)
	assert.Equal(t, SyncLanguage, entries[1].Type)
	assert.Equal(t, int64(1_700_000_001_000), entries[1].Timestamp)
}

func TestQueue_RemoveKeepsLaterEntries(t *testing.T) {
	ctx := context.Background()
	local := kvstore.NewMemoryStore()
	q := NewQueue(local)

	require.NoError(t, q.Append(ctx, mustEntry(t, SyncTheme, "a")))
	require.NoError(t, q.Append(ctx, mustEntry(t, SyncTheme, "b")))
	read, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.NotEqual(t, read[0].ID, read[1].ID)

	require.NoError(t, q.Append(ctx, mustEntry(t, SyncTheme, "c")))

	require.NoError(t, q.Remove(ctx, read))
	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `"c"`, string(entries[0].Data))

	// a second removal of the same read set must not touch the late entry
	require.NoError(t, q.Remove(ctx, read))
	entries, err = q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, q.Remove(ctx, entries))
	_, ok, err := local.Get(ctx, kvstore.KeySyncQueue)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_RemoveMatchesEntriesWithoutID(t *testing.T) {
	ctx := context.Background()
	local := kvstore.NewMemoryStore()
	require.NoError(t, local.Set(ctx, kvstore.KeySyncQueue,
		`[{"userId":"u1","type":"theme","data":"a","timestamp":1},{"userId":"u1","type":"theme","data":"b","timestamp":2}]`))
	q := NewQueue(local)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, entries[:1]))

	entries, err = q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `"b"`, string(entries[0].Data))
}

func TestQueue_EntriesForOwner(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kvstore.NewMemoryStore())

	a, err := NewEntry("userA", SyncFavorites, []string{"a1"})
	require.NoError(t, err)
	b, err := NewEntry("userB", SyncTheme, "dark")
	require.NoError(t, err)
	require.NoError(t, q.Append(ctx, a))
	require.NoError(t, q.Append(ctx, b))

	entries, err := q.EntriesFor(ctx, "userB")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SyncTheme, entries[0].Type)

	n, err := q.LenFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueue_AppendRequiresOwner(t *testing.T) {
	q := NewQueue(kvstore.NewMemoryStore())
	e, err := NewEntry("", SyncTheme, "dark")
	require.NoError(t, err)
	assert.ErrorIs(t, q.Append(context.Background(), e), ErrMissingUser)
}

func TestQueue_MalformedIsEmpty(t *testing.T) {
	ctx := context.Background()
	local := kvstore.NewMemoryStore()
	require.NoError(t, local.Set(ctx, kvstore.KeySyncQueue, "{not json"))
	q := NewQueue(local)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, q.Append(ctx, mustEntry(t, SyncFavorites, []string{"1"})))
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_Clear(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kvstore.NewMemoryStore())
	require.NoError(t, q.Append(ctx, mustEntry(t, SyncTheme, "dark")))
	require.NoError(t, q.Clear(ctx))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
