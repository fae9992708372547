package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := DefaultConfig()
	cfg.KeyTTL = time.Hour
	s := NewStoreFromClient(client, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	_, err := s.Get(ctx, "kungfu", "Meiren/Yunxi")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Put(ctx, "kungfu", "Meiren/Yunxi", []byte(`{"kuangfu":"Lijing"}`)))

	got, err := s.Get(ctx, "kungfu", "Meiren/Yunxi")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kuangfu":"Lijing"}`, string(got))

	assert.True(t, mr.Exists("arena:kungfu:Meiren/Yunxi"))
	assert.Equal(t, time.Hour, mr.TTL("arena:kungfu:Meiren/Yunxi"))

	require.NoError(t, s.Delete(ctx, "kungfu", "Meiren/Yunxi"))
	_, err = s.Get(ctx, "kungfu", "Meiren/Yunxi")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_KeyExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Put(ctx, "ranking", "snapshot", []byte(`{}`)))
	mr.FastForward(2 * time.Hour)

	_, err := s.Get(ctx, "ranking", "snapshot")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_PingAndInvalidKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Ping(ctx))
	assert.ErrorIs(t, s.Put(ctx, "", "k", nil), kv.ErrInvalidKey)
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
}
