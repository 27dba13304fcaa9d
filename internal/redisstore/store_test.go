package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rpggio/deskset/internal/repository"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewFromClient(client, "test:")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return mr, store
}

func TestStore_SetGet(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "sessions", []byte(`{"a":{}}`)))

	value, err := store.Get(ctx, "sessions")
	require.NoError(t, err)
	require.Equal(t, `{"a":{}}`, string(value))

	raw, err := mr.Get("test:sessions")
	require.NoError(t, err)
	require.Equal(t, `{"a":{}}`, raw, "keys carry the configured prefix")
}

func TestStore_GetMissing(t *testing.T) {
	_, store := setupMiniredis(t)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_Remove(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "current_session", []byte("a")))
	require.NoError(t, store.Remove(ctx, "current_session"))
	require.NoError(t, store.Remove(ctx, "current_session"))
	require.False(t, mr.Exists("test:current_session"))
}

func TestStore_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Set(context.Background(), "current_session", []byte("a")))
	require.True(t, mr.Exists("deskset:current_session"))
}

func TestStore_New(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := New(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(context.Background()))

	_, err = New(Config{})
	require.Error(t, err)
}

func TestStore_Closed(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.Get(ctx, "sessions")
	require.ErrorIs(t, err, repository.ErrClosed)
	require.ErrorIs(t, store.Set(ctx, "sessions", []byte("x")), repository.ErrClosed)
	require.ErrorIs(t, store.Remove(ctx, "sessions"), repository.ErrClosed)
	require.ErrorIs(t, store.Ping(ctx), repository.ErrClosed)
}
