package arenacache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/file"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

var t0 = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

func newFileStore(t *testing.T) *file.Store {
	t.Helper()
	s, err := file.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func sampleSnapshot(at time.Time) *arena.RankingSnapshot {
	return arena.NewRankingSnapshot([]arena.PlayerEntry{
		{Server: "Meiren", RoleName: "Yunxi", GameRoleID: "1001", Zone: "dianxin", Score: 2901},
		{Server: "Qianlong", RoleName: "Chuyun", GameRoleID: "1002", Zone: "shuangxian", Score: 2890},
	}, 10, at)
}

func TestRankingSnapshotCache_TTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := NewRankingSnapshotCache(newFileStore(t), clk, 0, logger.Nop())

	assert.Nil(t, c.Get(ctx))

	require.NoError(t, c.Put(ctx, sampleSnapshot(t0)))

	clk.Advance(2*time.Hour - time.Second)
	got := c.Get(ctx)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, 10, got.DefaultWeek)
	assert.True(t, got.FetchedAt.Equal(t0))
	assert.Equal(t, "Chuyun", got.Players[1].RoleName)
	assert.Equal(t, 2, got.Players[1].Rank)

	clk.Advance(time.Second)
	assert.Nil(t, c.Get(ctx), "expired at exactly two hours")
	assert.NotNil(t, c.Latest(ctx), "latest ignores the ttl")
}

func TestRankingSnapshotCache_StoredShape(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	c := NewRankingSnapshotCache(store, clock.NewFake(t0), 0, logger.Nop())
	require.NoError(t, c.Put(ctx, sampleSnapshot(t0)))

	raw, err := os.ReadFile(store.Path(NamespaceRanking, KeySnapshot))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.JSONEq(t, "1709719200", string(doc["cache_time"]))
	assert.Contains(t, string(doc["data"]), `"players"`)
}

func TestRankingSnapshotCache_CorruptFileIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	c := NewRankingSnapshotCache(store, clock.NewFake(t0), 0, logger.Nop())

	path := store.Path(NamespaceRanking, KeySnapshot)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))
	assert.Nil(t, c.Get(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`{"cache_time": 1}`), 0o644))
	assert.Nil(t, c.Get(ctx))
}

func TestRankingSnapshotCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewRankingSnapshotCache(newFileStore(t), clock.NewFake(t0), 0, logger.Nop())

	require.NoError(t, c.Put(ctx, sampleSnapshot(t0)))
	require.NoError(t, c.Invalidate(ctx))
	assert.Nil(t, c.Get(ctx))
	assert.ErrorIs(t, c.Put(ctx, nil), arena.ErrNoSnapshot)
}

func TestKungfuAttributionCache_RoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := NewKungfuAttributionCache(newFileStore(t), clk, 0, logger.Nop())

	assert.Nil(t, c.Get(ctx, "Meiren", "Yunxi"))

	attr := arena.Resolved("Meiren", "Yunxi", "Lijing", arena.TierIndicator, t0)
	require.NoError(t, c.Put(ctx, attr))

	clk.Advance(7*24*time.Hour - time.Second)
	got := c.Get(ctx, "Meiren", "Yunxi")
	require.NotNil(t, got)
	assert.Equal(t, attr.Kungfu, got.Kungfu)
	assert.True(t, got.Found)
	assert.True(t, got.ResolvedAt.Equal(t0))
	assert.Equal(t, arena.TierIndicator, got.Tier)

	clk.Advance(time.Second)
	assert.Nil(t, c.Get(ctx, "Meiren", "Yunxi"))
}

func TestKungfuAttributionCache_NeverStoresFailures(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	c := NewKungfuAttributionCache(store, clock.NewFake(t0), 0, logger.Nop())

	err := c.Put(ctx, arena.Unresolved("Meiren", "Yunxi", "no data", t0))
	assert.ErrorIs(t, err, ErrNotCacheable)

	err = c.Put(ctx, arena.Resolved("Meiren", "Yunxi", " ", arena.TierHistory, t0))
	assert.ErrorIs(t, err, ErrNotCacheable)

	_, statErr := os.Stat(store.Path(NamespaceKungfu, Key("Meiren", "Yunxi")))
	assert.True(t, os.IsNotExist(statErr))

	// A good entry is not overwritten by a later failure.
	require.NoError(t, c.Put(ctx, arena.Resolved("Meiren", "Yunxi", "Lijing", arena.TierHistory, t0)))
	_ = c.Put(ctx, arena.Unresolved("Meiren", "Yunxi", "no data", t0))

	raw, err := os.ReadFile(store.Path(NamespaceKungfu, Key("Meiren", "Yunxi")))
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "Lijing", rec["kuangfu"])
	assert.Equal(t, true, rec["found"])
	assert.Equal(t, "Meiren", rec["server"])
	assert.Equal(t, "Yunxi", rec["name"])
	assert.EqualValues(t, t0.Unix(), rec["cache_time"])
}

func TestKungfuAttributionCache_IgnoresHandWrittenEmptyEntries(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	c := NewKungfuAttributionCache(store, clock.NewFake(t0), 0, logger.Nop())

	path := store.Path(NamespaceKungfu, Key("Meiren", "Yunxi"))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	body := []byte(`{"server":"Meiren","name":"Yunxi","kuangfu":"","found":true,"cache_time":1709719200}`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	assert.Nil(t, c.Get(ctx, "Meiren", "Yunxi"))
}
