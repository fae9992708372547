package ranking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/pacing"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
	"github.com/jianghu-hub/arena-hub/pkg/timeutil"
)

var seasonStart = time.Date(2024, 1, 1, 0, 0, 0, 0, timeutil.ServerTZ)

func TestReportService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCaches(t, clk)

	src := &fakeSource{week: 10, entries: threePlayers()}
	roles := newFakeRoles()
	roles.indicators["1001"] = indicatorWin("lijingyidao")
	roles.indicators["1002"] = indicatorWin("zixiagong")
	roles.indicators["1003"] = indicatorWin("离经")

	fetcher := NewFetcher(src, c.snapshot, pacing.New("ranking", pacing.Fixed(pacing.RankingDelay), clk), clk, logger.Nop())
	resolver := NewResolver(roles, c.kungfu, c.snapshot, nil,
		pacing.New("resolve", pacing.Jitter(pacing.ResolveMinDelay, pacing.ResolveMaxDelay), clk),
		clk, ResolverConfig{}, logger.Nop())
	archive := &fakeArchive{}
	svc := NewReportService(fetcher, resolver, nil, nil, archive, clk,
		ReportConfig{SeasonStart: seasonStart}, logger.Nop())

	report, err := svc.Build(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 10, report.DefaultWeek)
	assert.Equal(t, 3, report.Players)
	assert.Equal(t, 3, report.SnapshotSize)
	assert.Zero(t, report.Unresolved)
	assert.False(t, report.Partial)
	assert.Equal(t, map[arena.ResolutionTier]int{arena.TierIndicator: 3}, report.TierCounts)
	assert.Equal(t, arena.WeekCurrent, report.Season.Status)
	assert.Equal(t, "Week 10 Wednesday 18:00", report.SeasonLabel)

	require.Len(t, report.Distributions, 3)
	for i, cutoff := range []int{50, 100, 200} {
		d := report.Distributions[i]
		assert.Equal(t, cutoff, d.Cutoff)
		assert.Equal(t, 3, d.TotalPlayers)
		assert.Equal(t, []arena.BuildCount{{Kungfu: "Lijing", Count: 2, FirstRank: 1, Percent: 100}}, d.Healer.Builds)
		assert.Equal(t, []arena.BuildCount{{Kungfu: "Zixia", Count: 1, FirstRank: 2, Percent: 100}}, d.DPS.Builds)
		require.NotNil(t, d.Healer.MinScore)
		assert.Equal(t, 2900.0, *d.Healer.MinScore)
	}

	assert.Same(t, report, svc.Latest())
	require.Len(t, archive.saved, 1)
	assert.Equal(t, report.ID, archive.saved[0].ID)

	// Second build reuses the cached snapshot and attributions.
	second, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, report.ID, second.ID)
	assert.Equal(t, map[arena.ResolutionTier]int{arena.TierCache: 3}, second.TierCounts)
	assert.Equal(t, 1, src.weekCalls)
	assert.Len(t, roles.indicatorCalls, 3)
}

func TestReportService_PartialAttribution(t *testing.T) {
	snap := arena.NewRankingSnapshot(threePlayers(), 10, t0)
	resolver := &scriptedResolver{builds: map[string]string{
		"Yunxi":    "Lijing",
		"Chuyun":   "",
		"Qingshan": "Tielao",
	}}
	svc := NewReportService(staticSnapshot{snap: snap}, resolver, nil, nil, nil, clock.NewFake(t0),
		ReportConfig{SeasonStart: seasonStart}, logger.Nop())

	report, err := svc.Build(context.Background())
	require.NoError(t, err, "unresolved players do not fail the report")

	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, 2, report.Resolved())

	d, ok := report.Distribution(50)
	require.True(t, ok)
	assert.Equal(t, 1, d.InvalidCount)
	assert.Equal(t, 1, d.UnclassifiedCount)
	assert.Equal(t, 1, d.Healer.ValidCount)
	assert.Equal(t, 0, d.DPS.ValidCount)
	assert.Equal(t, []arena.UnclassifiedBuild{{Kungfu: "Tielao", Count: 1, FirstRank: 3}}, d.Unclassified)

	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], `unclassified build "Tielao"`)
}

func TestReportService_SnapshotFailure(t *testing.T) {
	failure := arena.NewStageError(arena.StageTimeTag, arena.ErrUpstream, "failed", errBoom)
	svc := NewReportService(staticSnapshot{err: failure}, &scriptedResolver{}, nil, nil, nil, clock.NewFake(t0),
		ReportConfig{}, logger.Nop())

	report, err := svc.Build(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, arena.ErrUpstream)
	assert.Nil(t, svc.Latest())
}

func TestReportService_TimeBudget(t *testing.T) {
	snap := arena.NewRankingSnapshot(threePlayers(), 10, t0)
	resolver := &scriptedResolver{
		builds: map[string]string{"Yunxi": "Lijing"},
		block:  map[string]bool{"Chuyun": true, "Qingshan": true},
	}
	svc := NewReportService(staticSnapshot{snap: snap}, resolver, nil, nil, nil, clock.NewFake(t0),
		ReportConfig{Timeout: 50 * time.Millisecond}, logger.Nop())

	report, err := svc.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Partial)
	assert.Equal(t, 2, report.Unresolved)
	assert.Contains(t, report.Warnings, "time budget exhausted; remaining players counted as unresolved")

	d, _ := report.Distribution(50)
	assert.Equal(t, map[string]int{"Lijing": 1}, d.Healer.Distribution())
	assert.Equal(t, 2, d.InvalidCount)
}

func TestReportService_WorkersPreserveOrder(t *testing.T) {
	players := make([]arena.PlayerEntry, 0, 120)
	builds := make(map[string]string)
	for i := 0; i < 120; i++ {
		name := fmt.Sprintf("p%03d", i)
		players = append(players, arena.PlayerEntry{Server: "Meiren", RoleName: name, Score: float64(3000 - i)})
		if i%2 == 0 {
			builds[name] = "Lijing"
		} else {
			builds[name] = "Mowen"
		}
	}
	snap := arena.NewRankingSnapshot(players, 10, t0)
	resolver := &scriptedResolver{builds: builds}
	svc := NewReportService(staticSnapshot{snap: snap}, resolver, nil, nil, nil, clock.NewFake(t0),
		ReportConfig{Workers: 4}, logger.Nop())

	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(120), resolver.calls.Load())
	assert.LessOrEqual(t, resolver.maxInFlight.Load(), int32(4))

	d, _ := report.Distribution(50)
	assert.Equal(t, []arena.BuildCount{{Kungfu: "Lijing", Count: 25, FirstRank: 1, Percent: 100}}, d.Healer.Builds)
	assert.Equal(t, []arena.BuildCount{{Kungfu: "Mowen", Count: 25, FirstRank: 2, Percent: 100}}, d.DPS.Builds)
	require.NotNil(t, d.DPS.MinScore)
	assert.Equal(t, 2951.0, *d.DPS.MinScore)
}

func TestReportService_ArchiveFailureIsAWarning(t *testing.T) {
	snap := arena.NewRankingSnapshot(threePlayers()[:1], 10, t0)
	svc := NewReportService(staticSnapshot{snap: snap}, &scriptedResolver{builds: map[string]string{"Yunxi": "Lijing"}},
		nil, nil, &fakeArchive{err: errBoom}, clock.NewFake(t0), ReportConfig{}, logger.Nop())

	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.Warnings, "report was not archived")
}

func TestReportService_LatestOrBuild(t *testing.T) {
	snap := arena.NewRankingSnapshot(threePlayers()[:1], 10, t0)
	provider := &countingSnapshot{snap: snap}
	svc := NewReportService(provider, &scriptedResolver{builds: map[string]string{"Yunxi": "Lijing"}},
		nil, nil, nil, clock.NewFake(t0), ReportConfig{}, logger.Nop())

	first, err := svc.LatestOrBuild(context.Background())
	require.NoError(t, err)
	second, err := svc.LatestOrBuild(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestReportService_CallerGivesUp(t *testing.T) {
	release := make(chan struct{})
	provider := &countingSnapshot{snap: arena.NewRankingSnapshot(threePlayers()[:1], 10, t0), gate: release}
	svc := NewReportService(provider, &scriptedResolver{builds: map[string]string{"Yunxi": "Lijing"}},
		nil, nil, nil, clock.NewFake(t0), ReportConfig{}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Build(ctx)
	assert.ErrorIs(t, err, arena.ErrTimeout)

	// The detached build still completes.
	close(release)
	assert.Eventually(t, func() bool { return svc.Latest() != nil }, time.Second, 5*time.Millisecond)
}

// ── fakes ────────────────────────────────────────────────────────────────────

type staticSnapshot struct {
	snap *arena.RankingSnapshot
	err  error
}

func (s staticSnapshot) Snapshot(ctx context.Context) (*arena.RankingSnapshot, error) {
	return s.snap, s.err
}

type countingSnapshot struct {
	snap  *arena.RankingSnapshot
	gate  chan struct{}
	calls atomic.Int32
}

func (s *countingSnapshot) Snapshot(ctx context.Context) (*arena.RankingSnapshot, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.snap, nil
}

// scriptedResolver resolves canonical names from a fixed table. Names marked in
// block wait for the context to end.
type scriptedResolver struct {
	builds map[string]string
	block  map[string]bool

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (r *scriptedResolver) ResolveEntry(ctx context.Context, snap *arena.RankingSnapshot, entry arena.PlayerEntry) (arena.KungfuAttribution, error) {
	r.calls.Add(1)
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		m := r.maxInFlight.Load()
		if n <= m || r.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	name := entry.CanonicalName()
	if r.block[name] {
		<-ctx.Done()
		return arena.Unresolved(entry.Server, name, "interrupted", t0),
			arena.NewStageError(arena.StageResolve, arena.ErrTimeout, "interrupted", ctx.Err())
	}
	if b := r.builds[name]; b != "" {
		return arena.Resolved(entry.Server, name, b, arena.TierHistory, t0), nil
	}
	return arena.Unresolved(entry.Server, name, "no recent win", t0), nil
}

type fakeArchive struct {
	mu    sync.Mutex
	err   error
	saved []*arena.Report
}

func (a *fakeArchive) Save(ctx context.Context, report *arena.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, report)
	return nil
}
