package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
)

var errNetwork = errors.New("network unreachable")

type connFlag struct {
	mu sync.Mutex
	on bool
}

func (c *connFlag) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

func (c *connFlag) set(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = on
}

// flakyStore fails the N-th write (1-based) and passes everything else through.
type flakyStore struct {
	*MemoryStore
	failOn int
	writes int
}

func (f *flakyStore) UpdateFields(ctx context.Context, collection, id string, data map[string]any) error {
	f.writes++
	if f.writes == f.failOn {
		return errNetwork
	}
	return f.MemoryStore.UpdateFields(ctx, collection, id, data)
}

func setupService(t *testing.T) (*Service, *MemoryStore, *kvstore.MemoryStore, *connFlag) {
	t.Helper()
	remote := NewMemoryStore()
	local := kvstore.NewMemoryStore()
	conn := &connFlag{on: true}
	return NewService(remote, local, conn), remote, local, conn
}

func TestService_SyncFavorites_Online(t *testing.T) {
	ctx := context.Background()

	t.Run("creates document when missing", func(t *testing.T) {
		svc, remote, _, _ := setupService(t)

		res := svc.SyncFavorites(ctx, "u1", []string{"1", "2"})
		assert.Equal(t, OutcomeSynced, res.Outcome)
		assert.NoError(t, res.Err)

		calls := remote.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "update_fields", calls[0].Op)
		assert.Equal(t, "merge_set", calls[1].Op)

		doc := remote.Doc(UsersCollection, "u1")
		assert.Equal(t, []any{"1", "2"}, doc[FieldFavorites])
		assert.NotNil(t, doc[FieldLastSync])
	})

	t.Run("updates existing document without touching other fields", func(t *testing.T) {
		svc, remote, _, _ := setupService(t)
		remote.Put(UsersCollection, "u1", map[string]any{FieldTheme: "dark"})

		res := svc.SyncFavorites(ctx, "u1", []string{"7"})
		assert.Equal(t, OutcomeSynced, res.Outcome)

		calls := remote.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "update_fields", calls[0].Op)

		doc := remote.Doc(UsersCollection, "u1")
		assert.Equal(t, "dark", doc[FieldTheme])
		assert.Equal(t, []any{"7"}, doc[FieldFavorites])
	})
}

func TestService_SyncTheme_CreatesWhenMissing(t *testing.T) {
	svc, remote, _, _ := setupService(t)

	res := svc.SyncTheme(context.Background(), "u1", "dark")
	assert.Equal(t, OutcomeSynced, res.Outcome)
	assert.Equal(t, "dark", remote.Doc(UsersCollection, "u1")[FieldTheme])
}

func TestService_Sync_Offline_Queues(t *testing.T) {
	svc, remote, _, conn := setupService(t)
	conn.set(false)
	ctx := context.Background()

	res := svc.SyncLanguage(ctx, "u1", "am")
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.True(t, res.OK())
	assert.Empty(t, remote.Calls(), "no remote call while offline")

	entries, err := svc.Queue().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SyncLanguage, entries[0].Type)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.JSONEq(t, `"am"`, string(entries[0].Data))
	assert.NotZero(t, entries[0].Timestamp)
}

// Connectivity drops while the write is in flight: the remote rejects and the
// write lands in the queue without surfacing an error.
func TestService_Sync_RemoteRejects_Queues(t *testing.T) {
	svc, remote, local, _ := setupService(t)
	remote.SetFailure(errNetwork)
	ctx := context.Background()

	res := svc.SyncFavorites(ctx, "u1", []string{"1"})
	assert.Equal(t, OutcomeQueued, res.Outcome)
	assert.NoError(t, res.Err)

	raw, ok, err := local.Get(ctx, kvstore.KeySyncQueue)
	require.NoError(t, err)
	require.True(t, ok)

	var stored []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "favorites", stored[0]["type"])
	assert.Equal(t, []any{"1"}, stored[0]["data"])
}

func TestService_Sync_Validation(t *testing.T) {
	svc, remote, _, _ := setupService(t)
	ctx := context.Background()

	res := svc.SyncTheme(ctx, "  ", "dark")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrMissingUser)

	res = svc.Sync(ctx, "u1", SyncType("avatar"), "x")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnknownSyncType)

	assert.Empty(t, remote.Calls())
}

// Reconnect with [favorites, theme] queued: both writes happen in order and
// the queue ends empty.
func TestService_ProcessQueue_ReplaysInOrder(t *testing.T) {
	svc, remote, local, conn := setupService(t)
	ctx := context.Background()

	conn.set(false)
	svc.SyncFavorites(ctx, "u1", []string{"101", "205"})
	svc.SyncTheme(ctx, "u1", "dark")
	conn.set(true)

	res, err := svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	var fields []string
	for _, c := range remote.Calls() {
		if c.Op != "update_fields" {
			continue
		}
		for k := range c.Data {
			if k != FieldLastSync {
				fields = append(fields, k)
			}
		}
	}
	assert.Equal(t, []string{FieldFavorites, FieldTheme}, fields)

	_, ok, err := local.Get(ctx, kvstore.KeySyncQueue)
	require.NoError(t, err)
	assert.False(t, ok, "queue cleared after a full pass")
}

func TestService_ProcessQueue_FIFO(t *testing.T) {
	svc, remote, _, conn := setupService(t)
	ctx := context.Background()
	remote.Put(UsersCollection, "u1", map[string]any{})

	conn.set(false)
	svc.SyncFavorites(ctx, "u1", []string{"A"})
	svc.SyncFavorites(ctx, "u1", []string{"A", "B"})
	svc.SyncFavorites(ctx, "u1", []string{"A", "B", "C"})
	conn.set(true)

	_, err := svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)

	calls := remote.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []any{"A"}, calls[0].Data[FieldFavorites])
	assert.Equal(t, []any{"A", "B"}, calls[1].Data[FieldFavorites])
	assert.Equal(t, []any{"A", "B", "C"}, calls[2].Data[FieldFavorites])
	assert.Equal(t, []any{"A", "B", "C"}, remote.Doc(UsersCollection, "u1")[FieldFavorites])
}

func TestService_ProcessQueue_ReplayTwiceConverges(t *testing.T) {
	ctx := context.Background()
	entries := []struct {
		t    SyncType
		data any
	}{
		{SyncFavorites, []string{"1", "2"}},
		{SyncPlaylists, []Playlist{{ID: "p1", Name: "Morning", Items: []string{"1"}}}},
		{SyncTheme, "dark"},
	}

	run := func(passes int) map[string]any {
		svc, remote, _, _ := setupService(t)
		for i := 0; i < passes; i++ {
			for _, e := range entries {
				entry, err := NewEntry("u1", e.t, e.data)
				require.NoError(t, err)
				require.NoError(t, svc.QueueSync(ctx, entry))
			}
			_, err := svc.ProcessQueue(ctx, "u1")
			require.NoError(t, err)
		}
		doc := remote.Doc(UsersCollection, "u1")
		delete(doc, FieldLastSync)
		return doc
	}

	assert.Equal(t, run(1), run(2))
}

func TestService_ProcessQueue_AbortLeavesQueue(t *testing.T) {
	local := kvstore.NewMemoryStore()
	mem := NewMemoryStore()
	mem.Put(UsersCollection, "u1", map[string]any{})
	remote := &flakyStore{MemoryStore: mem, failOn: 2}
	svc := NewService(remote, local, StatusFunc(func() bool { return true }))
	ctx := context.Background()

	for _, theme := range []string{"light", "dark", "sepia"} {
		entry, err := NewEntry("u1", SyncTheme, theme)
		require.NoError(t, err)
		require.NoError(t, svc.QueueSync(ctx, entry))
	}

	res, err := svc.ProcessQueue(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNetwork)
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "replay", syncErr.Op)
	assert.Equal(t, 1, res.Processed)

	n, err := svc.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "queue left intact for the next attempt")

	res, err = svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, "sepia", mem.Doc(UsersCollection, "u1")[FieldTheme])
}

func TestService_ProcessQueue_EmptyAndMalformed(t *testing.T) {
	svc, remote, local, _ := setupService(t)
	ctx := context.Background()

	res, err := svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{}, res)

	require.NoError(t, local.Set(ctx, kvstore.KeySyncQueue, `[{"type":"theme","da`))
	res, err = svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Empty(t, remote.Calls())
}

func TestService_ProcessQueue_SkipsUnknownTypes(t *testing.T) {
	svc, remote, local, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, local.Set(ctx, kvstore.KeySyncQueue,
		`[{"userId":"u1","type":"avatar","data":"x","timestamp":1},{"userId":"u1","type":"language","data":"om","timestamp":2}]`))

	res, err := svc.ProcessQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Processed: 1, Skipped: 1}, res)
	assert.Equal(t, "om", remote.Doc(UsersCollection, "u1")[FieldLanguage])
}

func TestService_ProcessQueue_ReplaysOnlyOwnEntries(t *testing.T) {
	svc, remote, _, conn := setupService(t)
	ctx := context.Background()
	remote.Put(UsersCollection, "userB", map[string]any{FieldFavorites: []any{"b1", "b2"}})

	conn.set(false)
	res := svc.SyncFavorites(ctx, "userA", []string{"a1"})
	require.Equal(t, OutcomeQueued, res.Outcome)
	conn.set(true)

	replay, err := svc.ProcessQueue(ctx, "userB")
	require.NoError(t, err)
	assert.Zero(t, replay.Processed)
	assert.Equal(t, []any{"b1", "b2"}, remote.Doc(UsersCollection, "userB")[FieldFavorites])
	assert.Nil(t, remote.Doc(UsersCollection, "userA"))

	n, err := svc.Queue().LenFor(ctx, "userA")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "userA's write stays queued")

	replay, err = svc.ProcessQueue(ctx, "userA")
	require.NoError(t, err)
	assert.Equal(t, 1, replay.Processed)
	assert.Equal(t, []any{"a1"}, remote.Doc(UsersCollection, "userA")[FieldFavorites])
	assert.Equal(t, []any{"b1", "b2"}, remote.Doc(UsersCollection, "userB")[FieldFavorites])
}

// gateStore blocks the first UpdateFields call until release is closed.
type gateStore struct {
	*MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gateStore) UpdateFields(ctx context.Context, collection, id string, data map[string]any) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.UpdateFields(ctx, collection, id, data)
}

func TestService_ProcessQueue_OverlappingPassesKeepLateEntries(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put(UsersCollection, "u1", map[string]any{})
	remote := &gateStore{MemoryStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(remote, kvstore.NewMemoryStore(), nil)

	for _, e := range []struct {
		t    SyncType
		data any
	}{{SyncFavorites, []string{"1"}}, {SyncTheme, "dark"}} {
		entry, err := NewEntry("u1", e.t, e.data)
		require.NoError(t, err)
		require.NoError(t, svc.QueueSync(ctx, entry))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	pass := func() {
		defer wg.Done()
		_, err := svc.ProcessQueue(ctx, "u1")
		errs <- err
	}

	wg.Add(1)
	go pass()
	<-remote.entered

	wg.Add(1)
	go pass()

	late, err := NewEntry("u1", SyncLanguage, "om")
	require.NoError(t, err)
	require.NoError(t, svc.QueueSync(ctx, late))

	close(remote.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// the second pass waits for the first, then replays the late entry
	n, err := svc.Queue().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	doc := mem.Doc(UsersCollection, "u1")
	assert.Equal(t, "om", doc[FieldLanguage])
	assert.Equal(t, "dark", doc[FieldTheme])
}

func TestService_ProcessQueue_RequiresUser(t *testing.T) {
	svc, _, _, _ := setupService(t)
	_, err := svc.ProcessQueue(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestService_GetAndSaveProfile(t *testing.T) {
	svc, remote, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, svc.SaveProfile(ctx, "u1", map[string]any{
		FieldFavorites: []string{"5"},
		FieldLanguage:  "en",
	}))

	p, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, p.Favorites)
	assert.Equal(t, "en", p.Language)
	assert.Nil(t, p.Playlists)
	require.NotNil(t, p.LastSync)

	url, err := svc.SaveProfilePicture(ctx, "u1", "QUJD")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", url)
	assert.Equal(t, url, remote.Doc(UsersCollection, "u1")[FieldPhotoURL])
	assert.Equal(t, []any{"5"}, remote.Doc(UsersCollection, "u1")[FieldFavorites])

	remote.SetFailure(errNetwork)
	_, err = svc.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, errNetwork)
}

func TestDecodeProfile_PresentButEmpty(t *testing.T) {
	p, err := DecodeProfile(map[string]any{FieldFavorites: []any{}})
	require.NoError(t, err)
	assert.NotNil(t, p.Favorites)
	assert.Empty(t, p.Favorites)
	assert.Nil(t, p.Playlists)
}
