package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, KeyCurrentUser)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, KeyCurrentUser, []byte(`{"id":"1"}`)))
	got, err := store.Get(ctx, KeyCurrentUser)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1"}`, string(got))

	require.NoError(t, store.Delete(ctx, KeyCurrentUser))
	_, err = store.Get(ctx, KeyCurrentUser)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "portal:")
	exerciseStore(t, store)

	require.NoError(t, store.Set(context.Background(), KeyRegisteredUsers, []byte("[]")))
	require.True(t, mr.Exists("portal:"+KeyRegisteredUsers))
}

func TestNewRedisClientPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
