package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/pacing"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

type resolverFixture struct {
	resolver *Resolver
	roles    *fakeRoles
	caches   caches
	clock    *clock.Fake
	snap     *arena.RankingSnapshot
}

func newResolverFixture(t *testing.T) resolverFixture {
	t.Helper()
	clk := clock.NewFake(t0)
	c := newCaches(t, clk)
	roles := newFakeRoles()
	pacer := pacing.New("resolve", pacing.Jitter(pacing.ResolveMinDelay, pacing.ResolveMaxDelay), clk)
	return resolverFixture{
		resolver: NewResolver(roles, c.kungfu, c.snapshot, nil, pacer, clk, ResolverConfig{}, logger.Nop()),
		roles:    roles,
		caches:   c,
		clock:    clk,
		snap:     arena.NewRankingSnapshot(threePlayers(), 10, t0),
	}
}

func (f resolverFixture) assertPaced(t *testing.T, n int) {
	t.Helper()
	sleeps := f.clock.Sleeps()
	require.Len(t, sleeps, n)
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestResolver_IndicatorTier(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t)
	f.roles.indicators["1001"] = []arena.IndicatorMetric{
		{Type: "5c", Kungfu: "mowen", WinCount: 99, TotalCount: 99},
		{Type: "3c", Kungfu: "lijingyidao", WinCount: 30, TotalCount: 50},
		{Type: "3d", Kungfu: "xiangzhi", WinCount: 12, TotalCount: 80},
	}

	attr, err := f.resolver.ResolveEntry(ctx, f.snap, f.snap.Players[0])
	require.NoError(t, err)

	assert.True(t, attr.Found)
	assert.Equal(t, "Lijing", attr.Kungfu, "highest win count among recognized types")
	assert.Equal(t, arena.TierIndicator, attr.Tier)
	assert.Equal(t, "Yunxi", attr.Name, "canonical name")
	assert.Empty(t, f.roles.historyCalls)
	f.assertPaced(t, 1)

	cached := f.caches.kungfu.Get(ctx, "Meiren", "Yunxi")
	require.NotNil(t, cached)
	assert.Equal(t, "Lijing", cached.Kungfu)
}

func TestResolver_CacheHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t)
	require.NoError(t, f.caches.kungfu.Put(ctx, arena.Resolved("Meiren", "Yunxi", "Lijing", arena.TierIndicator, t0)))

	attr, err := f.resolver.ResolveEntry(ctx, f.snap, f.snap.Players[0])
	require.NoError(t, err)

	assert.Equal(t, "Lijing", attr.Kungfu)
	assert.Equal(t, arena.TierCache, attr.Tier)
	assert.Empty(t, f.roles.indicatorCalls)
	assert.Empty(t, f.roles.historyCalls)
	assert.Empty(t, f.clock.Sleeps(), "no pacing on a cache hit")
}

func TestResolver_ExpiredCacheResolvesAgain(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t)
	require.NoError(t, f.caches.kungfu.Put(ctx, arena.Resolved("Meiren", "Yunxi", "Lijing", arena.TierIndicator, t0)))
	f.roles.indicators["1001"] = indicatorWin("yunchangxinjing")

	f.clock.Advance(7 * 24 * time.Hour)
	attr, err := f.resolver.ResolveEntry(ctx, f.snap, f.snap.Players[0])
	require.NoError(t, err)
	assert.Equal(t, "Yunchang", attr.Kungfu)
	assert.Equal(t, arena.TierIndicator, attr.Tier)
}

func TestResolver_FallsBackToHistory(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f resolverFixture)
	}{
		{"indicator request fails", func(f resolverFixture) { f.roles.indErr = errBoom }},
		{"indicator has no recognized metric", func(f resolverFixture) {
			f.roles.indicators["1001"] = []arena.IndicatorMetric{{Type: "5c", Kungfu: "mowen", WinCount: 9}}
		}},
		{"indicator has no wins", func(f resolverFixture) {
			f.roles.indicators["1001"] = []arena.IndicatorMetric{{Type: "3c", Kungfu: "mowen", TotalCount: 9}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(t)
			tt.setup(f)
			f.roles.history["Meiren/Yunxi"] = []arena.MatchRecord{
				{Won: false, Kungfu: "Mowen"},
				{Won: true, Kungfu: "相知"},
				{Won: true, Kungfu: "Zixia"},
			}

			attr, err := f.resolver.ResolveEntry(context.Background(), f.snap, f.snap.Players[0])
			require.NoError(t, err)
			assert.Equal(t, "Xiangzhi", attr.Kungfu, "most recent win, mapped to display name")
			assert.Equal(t, arena.TierHistory, attr.Tier)
			assert.Equal(t, []string{"Meiren/Yunxi"}, f.roles.historyCalls)
			f.assertPaced(t, 1)
		})
	}
}

func TestResolver_PlayerOutsideSnapshotUsesHistory(t *testing.T) {
	f := newResolverFixture(t)
	f.roles.history["Meiren/Wanderer"] = []arena.MatchRecord{{Won: true, Kungfu: "taixujianyi"}}

	attr, err := f.resolver.ResolveEntry(context.Background(), f.snap,
		arena.PlayerEntry{Server: "Meiren", RoleName: "Wanderer@Meiren"})
	require.NoError(t, err)

	assert.Equal(t, "Taixu", attr.Kungfu)
	assert.Empty(t, f.roles.indicatorCalls)
}

func TestResolver_EntryWithoutIdentityUsesHistory(t *testing.T) {
	f := newResolverFixture(t)
	snap := arena.NewRankingSnapshot([]arena.PlayerEntry{{Server: "Meiren", RoleName: "Yunxi"}}, 10, t0)
	f.roles.history["Meiren/Yunxi"] = []arena.MatchRecord{{Won: true, Kungfu: "Bingxin"}}

	attr, err := f.resolver.ResolveEntry(context.Background(), snap, snap.Players[0])
	require.NoError(t, err)
	assert.Equal(t, "Bingxin", attr.Kungfu)
	assert.Empty(t, f.roles.indicatorCalls)
}

func TestResolver_NotFoundIsNeverCached(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f resolverFixture)
	}{
		{"no win in history", func(f resolverFixture) {
			f.roles.history["Meiren/Yunxi"] = []arena.MatchRecord{{Won: false, Kungfu: "Mowen"}}
		}},
		{"empty history", func(f resolverFixture) {}},
		{"history fails", func(f resolverFixture) { f.roles.histErr = errBoom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newResolverFixture(t)
			f.roles.indErr = errBoom
			tt.setup(f)

			attr, err := f.resolver.ResolveEntry(ctx, f.snap, f.snap.Players[0])
			require.NoError(t, err, "a failed lookup is a value, not an error")
			assert.False(t, attr.Found)
			assert.Empty(t, attr.Kungfu)
			assert.Equal(t, arena.TierNone, attr.Tier)
			assert.NotEmpty(t, attr.Reason)

			assert.Nil(t, f.caches.kungfu.Get(ctx, "Meiren", "Yunxi"))
			_, err = f.caches.store.Get(ctx, "kungfu", "Meiren/Yunxi")
			assert.Error(t, err, "nothing written")
		})
	}
}

func TestResolver_ResolveName(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t)
	require.NoError(t, f.caches.snapshot.Put(ctx, f.snap))
	f.roles.indicators["1002"] = indicatorWin("zixiagong")

	attr, err := f.resolver.ResolveName(ctx, " Qianlong ", "Chuyun·Qianlong")
	require.NoError(t, err)
	assert.Equal(t, "Zixia", attr.Kungfu)
	assert.Equal(t, arena.TierIndicator, attr.Tier)
	assert.Equal(t, []string{"1002"}, f.roles.indicatorCalls)
}

func TestResolver_ResolveNameWithoutSnapshot(t *testing.T) {
	f := newResolverFixture(t)
	f.roles.history["Qianlong/Chuyun"] = []arena.MatchRecord{{Won: true, Kungfu: "Zixia"}}

	attr, err := f.resolver.ResolveName(context.Background(), "Qianlong", "Chuyun")
	require.NoError(t, err)
	assert.Equal(t, arena.TierHistory, attr.Tier)
	assert.Empty(t, f.roles.indicatorCalls)
}

func TestResolver_ResolveNameValidates(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.ResolveName(context.Background(), "", "Yunxi")
	assert.ErrorIs(t, err, arena.ErrInvalidInput)

	_, err = f.resolver.ResolveName(context.Background(), "Meiren", "  ")
	assert.ErrorIs(t, err, arena.ErrInvalidInput)
}

func TestResolver_CancelledContext(t *testing.T) {
	f := newResolverFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attr, err := f.resolver.ResolveEntry(ctx, f.snap, f.snap.Players[0])
	assert.ErrorIs(t, err, arena.ErrTimeout)
	assert.False(t, attr.Found)
	assert.Empty(t, f.roles.indicatorCalls)
	assert.Empty(t, f.roles.historyCalls)
}
