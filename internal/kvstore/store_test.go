package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	err = client.Ping(context.Background()).Err()
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func backends(t *testing.T) map[string]Store {
	client, _ := setupTestRedis(t)

	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "kv", "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, ""),
		"sqlite": sqliteStore,
	}
}

func TestStore_GetSetRemove(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "k", "v1"))
			v, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v1", v)

			require.NoError(t, s.Set(ctx, "k", "v2"))
			v, _, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)

			require.NoError(t, s.Remove(ctx, "k"))
			_, ok, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			// removing an absent key is not an error
			require.NoError(t, s.Remove(ctx, "k"))
		})
	}
}

func TestStore_JSONHelpers(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var favs []string
			found, err := GetJSON(ctx, s, KeyGuestFavorites, &favs)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, SetJSON(ctx, s, KeyGuestFavorites, []string{"101", "205"}))
			found, err = GetJSON(ctx, s, KeyGuestFavorites, &favs)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []string{"101", "205"}, favs)

			require.NoError(t, s.Set(ctx, KeySyncQueue, `[{"type":"favor`))
			var queue []map[string]any
			found, err = GetJSON(ctx, s, KeySyncQueue, &queue)
			assert.True(t, found)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.Nil(t, queue)
		})
	}
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisStore(client, "device-a")
	b := NewRedisStore(client, "device-b")

	require.NoError(t, a.Set(ctx, KeySelectedTheme, "dark"))
	_, ok, err := b.Get(ctx, KeySelectedTheme)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("mezmur:kv:device-a:selectedTheme"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedisStore(client, "")
	mr.Close()

	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, MigratedKey("u1"), "true"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, MigratedKey("u1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "favorites_u1", FavoritesKey("u1"))
	assert.Equal(t, "user_playlists_u1", PlaylistsKey("u1"))
	assert.Equal(t, "migrated_u1", MigratedKey("u1"))
	assert.Equal(t, "migration_playlists_u1", DomainMigratedKey("u1", "playlists"))
	assert.NotEqual(t, MigratedKey("abc_favorites"), DomainMigratedKey("abc", "favorites"))
}
