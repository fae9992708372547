package ranking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/arenacache"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/file"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

var t0 = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// fakeSource is an in-memory RankingSource.
type fakeSource struct {
	mu         sync.Mutex
	week       int
	weekErr    error
	entries    []arena.PlayerEntry
	rankingErr error

	// gate, when set, holds DefaultWeek until it is closed.
	gate chan struct{}

	weekCalls    int
	rankingCalls int
	lastTag      int
}

func (f *fakeSource) DefaultWeek(ctx context.Context) (int, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weekCalls++
	return f.week, f.weekErr
}

func (f *fakeSource) RankingEntries(ctx context.Context, week int) ([]arena.PlayerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankingCalls++
	f.lastTag = week
	if f.rankingErr != nil {
		return nil, f.rankingErr
	}
	return append([]arena.PlayerEntry(nil), f.entries...), nil
}

// fakeRoles is an in-memory RoleDataSource keyed by game role id and by name.
type fakeRoles struct {
	mu         sync.Mutex
	indicators map[string][]arena.IndicatorMetric
	indErr     error
	history    map[string][]arena.MatchRecord
	histErr    error

	indicatorCalls []string
	historyCalls   []string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{
		indicators: make(map[string][]arena.IndicatorMetric),
		history:    make(map[string][]arena.MatchRecord),
	}
}

func (f *fakeRoles) IndicatorMetrics(ctx context.Context, entry arena.PlayerEntry) ([]arena.IndicatorMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indicatorCalls = append(f.indicatorCalls, entry.GameRoleID)
	if f.indErr != nil {
		return nil, f.indErr
	}
	return f.indicators[entry.GameRoleID], nil
}

func (f *fakeRoles) RecentMatches(ctx context.Context, server, name string) ([]arena.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, server+"/"+name)
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.history[server+"/"+name], nil
}

// indicatorWin returns a single-metric indicator for kungfu.
func indicatorWin(kungfu string) []arena.IndicatorMetric {
	return []arena.IndicatorMetric{{Type: "3c", Kungfu: kungfu, WinCount: 12, TotalCount: 20}}
}

type caches struct {
	store    *file.Store
	snapshot *arenacache.RankingSnapshotCache
	kungfu   *arenacache.KungfuAttributionCache
}

func newCaches(t *testing.T, clk clock.Clock) caches {
	t.Helper()
	store, err := file.New(t.TempDir())
	require.NoError(t, err)
	return caches{
		store:    store,
		snapshot: arenacache.NewRankingSnapshotCache(store, clk, 0, logger.Nop()),
		kungfu:   arenacache.NewKungfuAttributionCache(store, clk, 0, logger.Nop()),
	}
}

func threePlayers() []arena.PlayerEntry {
	return []arena.PlayerEntry{
		{Server: "Meiren", RoleName: "Yunxi·Meiren", GameRoleID: "1001", Zone: "dianxin", Score: 2950},
		{Server: "Qianlong", RoleName: "Chuyun", GameRoleID: "1002", Zone: "shuangxian", Score: 2930},
		{Server: "Meiren", RoleName: "Qingshan", GameRoleID: "1003", Zone: "dianxin", Score: 2900},
	}
}
