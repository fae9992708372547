package ranking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT SERVICE
// snapshot → resolve leading players → aggregate → season label.
// ══════════════════════════════════════════════════════════════════════════════

// ReportConfig contains the report settings.
type ReportConfig struct {
	// Workers bounds concurrent resolutions. Each worker still waits on the pacer.
	Workers int

	// Timeout is the budget of one report build.
	Timeout time.Duration

	// SeasonStart is the first day of the season.
	SeasonStart time.Time

	// ArchiveTimeout bounds the archive write.
	ArchiveTimeout time.Duration
}

// DefaultReportConfig returns the defaults: sequential resolution and a budget
// that covers a full top 1000.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Workers:        1,
		Timeout:        90 * time.Minute,
		ArchiveTimeout: 10 * time.Second,
	}
}

const reportKey = "arena-report"

// ReportService builds ranking reports. Concurrent callers share one build.
type ReportService struct {
	snapshots  SnapshotProvider
	resolver   EntryResolver
	aggregator *arena.Aggregator
	season     *arena.SeasonCalculator
	archive    ReportArchive
	clock      clock.Clock
	cfg        ReportConfig
	logger     zerolog.Logger

	flight  singleflight.Group
	buildMu sync.Mutex

	latestMu sync.RWMutex
	latest   *arena.Report
}

// NewReportService creates a ReportService. archive may be nil.
func NewReportService(
	snapshots SnapshotProvider,
	resolver EntryResolver,
	aggregator *arena.Aggregator,
	season *arena.SeasonCalculator,
	archive ReportArchive,
	clk clock.Clock,
	cfg ReportConfig,
	log zerolog.Logger,
) *ReportService {
	defaults := DefaultReportConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = defaults.ArchiveTimeout
	}
	if aggregator == nil {
		aggregator = arena.NewAggregator(nil)
	}
	if season == nil {
		season = arena.NewSeasonCalculator(nil)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &ReportService{
		snapshots:  snapshots,
		resolver:   resolver,
		aggregator: aggregator,
		season:     season,
		archive:    archive,
		clock:      clk,
		cfg:        cfg,
		logger:     logger.Component(log, "report_service"),
	}
}

// Latest returns the last report built by this process, nil before the first one.
func (s *ReportService) Latest() *arena.Report {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// LatestOrBuild returns the last report, building one when there is none.
func (s *ReportService) LatestOrBuild(ctx context.Context) (*arena.Report, error) {
	if r := s.Latest(); r != nil {
		return r, nil
	}
	return s.Build(ctx)
}

// Build builds a fresh report. Callers arriving while a build runs wait for it
// and share its result. The build itself is detached from ctx: a caller giving up
// only stops waiting.
func (s *ReportService) Build(ctx context.Context) (*arena.Report, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(reportKey, func() (any, error) {
		return s.build(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*arena.Report), nil
	case <-ctx.Done():
		return nil, arena.NewStageError(arena.StageReport, arena.ErrTimeout, "stopped waiting for report", ctx.Err())
	}
}

func (s *ReportService) build(ctx context.Context) (*arena.Report, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	id := uuid.NewString()
	log := logger.FromContext(ctx, s.logger).With().Str(logger.KeyReportID, id).Logger()
	ctx = logger.WithContext(ctx, log)
	started := s.clock.Now()

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("no ranking snapshot for report")
		return nil, err
	}

	players := snap.Top(s.aggregator.Depth(snap.Len()))
	ranked := s.resolveAll(ctx, snap, players)

	report := &arena.Report{
		ID:                id,
		GeneratedAt:       s.clock.Now(),
		SnapshotFetchedAt: snap.FetchedAt,
		DefaultWeek:       snap.DefaultWeek,
		SnapshotSize:      snap.Len(),
		Players:           len(ranked),
		TierCounts:        make(map[arena.ResolutionTier]int),
		Distributions:     s.aggregator.Aggregate(ranked, snap.Len()),
	}
	report.Season = s.season.Compute(snap.DefaultWeek, s.cfg.SeasonStart, report.GeneratedAt)
	report.SeasonLabel = report.Season.Label
	report.Duration = report.GeneratedAt.Sub(started)

	for _, ra := range ranked {
		report.TierCounts[ra.Attribution.Tier]++
		if !ra.Attribution.Usable() {
			report.Unresolved++
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		report.Partial = true
		report.Warnings = append(report.Warnings, "time budget exhausted; remaining players counted as unresolved")
	}
	if report.Season.Fallback {
		report.Warnings = append(report.Warnings, "server week could not be placed in the calendar; labelled as current week")
	}
	unclassified := arena.UnclassifiedWarnings(report.Distributions)
	for _, w := range unclassified {
		log.Warn().Str("warning", w).Msg("unclassified build")
	}
	report.Warnings = append(report.Warnings, unclassified...)

	s.save(ctx, log, report)

	s.latestMu.Lock()
	s.latest = report
	s.latestMu.Unlock()

	log.Info().
		Int("players", report.Players).
		Int("unresolved", report.Unresolved).
		Bool("partial", report.Partial).
		Str("season", report.SeasonLabel).
		Dur("duration", report.Duration).
		Msg("report built")
	return report, nil
}

// resolveAll resolves players on a bounded pool. Results keep snapshot order.
func (s *ReportService) resolveAll(ctx context.Context, snap *arena.RankingSnapshot, players []arena.PlayerEntry) []arena.RankedAttribution {
	out := make([]arena.RankedAttribution, len(players))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, p := range players {
		i, p := i, p
		g.Go(func() error {
			attr, err := s.resolver.ResolveEntry(ctx, snap, p)
			if err != nil && !attr.Usable() {
				attr = arena.Unresolved(p.Server, p.CanonicalName(), err.Error(), s.clock.Now())
			}
			out[i] = arena.RankedAttribution{Entry: p, Attribution: attr}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *ReportService) save(ctx context.Context, log zerolog.Logger, report *arena.Report) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ArchiveTimeout)
	defer cancel()

	if err := s.archive.Save(ctx, report); err != nil {
		log.Warn().Err(err).Msg("failed to archive report")
		report.Warnings = append(report.Warnings, "report was not archived")
	}
}
