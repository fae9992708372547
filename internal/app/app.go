// Package app wires the service together with fx.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/jianghu-hub/arena-hub/config"
	"github.com/jianghu-hub/arena-hub/internal/application/ranking"
	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/external/jx3api"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/external/telegram"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/pacing"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/arenacache"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/file"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/redis"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/sqlite"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/scheduler"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/jianghu-hub/arena-hub/internal/interface/http"
	"github.com/jianghu-hub/arena-hub/internal/interface/http/handlers"
	"github.com/jianghu-hub/arena-hub/internal/interface/telegram/presenter"
	"github.com/jianghu-hub/arena-hub/pkg/circuitbreaker"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULES
// ══════════════════════════════════════════════════════════════════════════════

// Core provides the report pipeline: configuration, stores, upstream access and
// the ranking services. It starts nothing in the background.
var Core = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(NewLogger),
	fx.Provide(func() clock.Clock { return clock.New() }),
	// storage
	fx.Provide(NewStore),
	fx.Provide(NewRankingCache),
	fx.Provide(NewKungfuCache),
	fx.Provide(NewArchive),
	// upstream
	fx.Provide(NewUpstreamClient),
	fx.Provide(jx3api.NewGateway),
	fx.Provide(NewPacers),
	// domain
	fx.Provide(NewKungfuTable),
	fx.Provide(NewAggregator),
	fx.Provide(NewSeasonCalculator),
	// services
	fx.Provide(NewFetcher),
	fx.Provide(NewResolver),
	fx.Provide(NewReportService),
	fx.Provide(NewPresenter),
)

// Module is the long-running service: Core plus the HTTP API and the report
// schedule.
var Module = fx.Options(
	Core,
	fx.Provide(NewReportJob),
	fx.Provide(NewScheduler),
	fx.Provide(NewHealthChecker),
	fx.Provide(NewHTTPServer),
	fx.Invoke(func(*scheduler.Scheduler, *httpapi.Server) {}),
)

// ══════════════════════════════════════════════════════════════════════════════
// AMBIENT
// ══════════════════════════════════════════════════════════════════════════════

// NewLogger builds the root logger from the observability settings.
func NewLogger(cfg *config.Config) zerolog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.ParseFormat(cfg.Observability.LogFormat)
	opts.Service = cfg.App.Name
	opts.AddCaller = cfg.IsDevelopment()
	return logger.New(opts)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// NewStore opens the configured cache backend and closes it on shutdown.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		rc := redisstore.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		rc.KeyTTL = cfg.Redis.KeyTTL
		store, err = newRedisStore(rc)
	case config.BackendSQLite:
		sc := sqlite.DefaultConfig()
		sc.Path = cfg.Storage.SQLitePath
		store, err = newSQLiteStore(sc, log)
	default:
		store, err = newFileStore(cfg.Storage.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}

	log.Info().Str("backend", cfg.Storage.Backend).Msg("cache store ready")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

func newRedisStore(cfg redisstore.Config) (kv.Store, error) {
	s, err := redisstore.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newSQLiteStore(cfg sqlite.Config, log zerolog.Logger) (kv.Store, error) {
	s, err := sqlite.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newFileStore(dir string) (kv.Store, error) {
	s, err := file.New(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func NewRankingCache(store kv.Store, clk clock.Clock, cfg *config.Config, log zerolog.Logger) *arenacache.RankingSnapshotCache {
	return arenacache.NewRankingSnapshotCache(store, clk, cfg.Report.RankingTTL, log)
}

func NewKungfuCache(store kv.Store, clk clock.Clock, cfg *config.Config, log zerolog.Logger) *arenacache.KungfuAttributionCache {
	return arenacache.NewKungfuAttributionCache(store, clk, cfg.Report.KungfuTTL, log)
}

// NewArchive connects to Postgres and migrates the schema. It returns nil when
// DATABASE_URL is unset.
func NewArchive(lc fx.Lifecycle, cfg *config.Config, log zerolog.Logger) (*postgres.ReportArchive, error) {
	if !cfg.Database.Enabled() {
		log.Info().Msg("report archive disabled")
		return nil, nil
	}

	pc := postgres.DefaultConfig(cfg.Database.URL)
	pc.MaxConns = int32(cfg.Database.MaxConns)
	pc.ConnectTimeout = cfg.Database.ConnectTimeout

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout+time.Minute)
	defer cancel()

	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Close()
			return nil
		},
	})
	return postgres.NewReportArchive(conn, log), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPSTREAM
// ══════════════════════════════════════════════════════════════════════════════

// NewUpstreamClient builds the provider client. Retries wait on the same pacers
// as first attempts.
func NewUpstreamClient(cfg *config.Config, pacers Pacers, log zerolog.Logger) *jx3api.Client {
	jc := jx3api.DefaultConfig()
	jc.BaseURL = cfg.Upstream.BaseURL
	jc.Timeout = cfg.Upstream.Timeout
	jc.HistorySize = cfg.Upstream.HistorySize
	jc.RetryAttempts = cfg.Upstream.RetryAttempts
	jc.RetryInitialDelay = cfg.Upstream.RetryBaseDelay
	jc.RetryMaxDelay = cfg.Upstream.RetryMaxDelay
	jc.BreakerThreshold = cfg.Upstream.BreakerThreshold
	jc.BreakerCooldown = cfg.Upstream.BreakerTimeout
	return jx3api.New(jc, log, jx3api.WithRetryPacers(pacers.Ranking, pacers.Resolve))
}

// Pacers holds the two request pacers. Leaderboard pages and per-player lookups
// are paced independently.
type Pacers struct {
	Ranking *pacing.Pacer
	Resolve *pacing.Pacer
}

func NewPacers(cfg *config.Config, clk clock.Clock, log zerolog.Logger) Pacers {
	resolve := pacing.Jitter(cfg.Pacing.ResolveMin, cfg.Pacing.ResolveMax)
	resolve.MinSpacing = cfg.Pacing.MinSpacing
	return Pacers{
		Ranking: pacing.New("ranking", pacing.Fixed(cfg.Pacing.RankingDelay), clk, pacing.WithLogger(log)),
		Resolve: pacing.New("resolve", resolve, clk, pacing.WithLogger(log)),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN
// ══════════════════════════════════════════════════════════════════════════════

// NewKungfuTable loads the reference table from KUNGFU_TABLE_PATH, or the
// built-in one.
func NewKungfuTable(cfg *config.Config) (*arena.KungfuTable, error) {
	if cfg.Report.KungfuTablePath == "" {
		return arena.DefaultKungfuTable(), nil
	}
	data, err := os.ReadFile(cfg.Report.KungfuTablePath)
	if err != nil {
		return nil, fmt.Errorf("read kungfu table: %w", err)
	}
	return arena.ParseKungfuTable(data)
}

func NewAggregator(table *arena.KungfuTable, cfg *config.Config) *arena.Aggregator {
	var opts []arena.AggregatorOption
	if len(cfg.Report.Cutoffs) > 0 {
		opts = append(opts, arena.WithCutoffs(cfg.Report.Cutoffs...))
	}
	if cfg.Report.ExtendedCutoff > 0 {
		opts = append(opts, arena.WithExtendedCutoff(cfg.Report.ExtendedCutoff))
	}
	return arena.NewAggregator(table, opts...)
}

func NewSeasonCalculator(cfg *config.Config) *arena.SeasonCalculator {
	return arena.NewSeasonCalculator(cfg.App.Location)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICES
// ══════════════════════════════════════════════════════════════════════════════

func NewFetcher(gw *jx3api.Gateway, cache *arenacache.RankingSnapshotCache, pacers Pacers, clk clock.Clock, log zerolog.Logger) *ranking.Fetcher {
	return ranking.NewFetcher(gw, cache, pacers.Ranking, clk, log)
}

func NewResolver(
	gw *jx3api.Gateway,
	cache *arenacache.KungfuAttributionCache,
	snapshots *arenacache.RankingSnapshotCache,
	table *arena.KungfuTable,
	pacers Pacers,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *ranking.Resolver {
	return ranking.NewResolver(gw, cache, snapshots, table, pacers.Resolve, clk,
		ranking.ResolverConfig{IndicatorTypes: cfg.Report.IndicatorTypes}, log)
}

func NewReportService(
	fetcher *ranking.Fetcher,
	resolver *ranking.Resolver,
	aggregator *arena.Aggregator,
	season *arena.SeasonCalculator,
	archive *postgres.ReportArchive,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *ranking.ReportService {
	var sink ranking.ReportArchive
	if archive != nil {
		sink = archive
	}
	return ranking.NewReportService(fetcher, resolver, aggregator, season, sink, clk, ranking.ReportConfig{
		Workers:     cfg.Report.Workers,
		Timeout:     cfg.Report.Timeout,
		SeasonStart: cfg.Report.SeasonStart,
	}, log)
}

func NewPresenter(cfg *config.Config) *presenter.ReportPresenter {
	return presenter.NewReportPresenter(cfg.App.Location, cfg.Telegram.MaxRows)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKGROUND AND HTTP
// ══════════════════════════════════════════════════════════════════════════════

// NewReportJob builds the scheduled report job. Delivery is skipped when no bot
// token or chat is configured.
func NewReportJob(
	svc *ranking.ReportService,
	p *presenter.ReportPresenter,
	cfg *config.Config,
	log zerolog.Logger,
) *jobs.ArenaReportJob {
	jc := jobs.DefaultArenaReportConfig()
	var sender jobs.Sender
	if cfg.Telegram.Enabled() {
		tc := telegram.DefaultClientConfig(cfg.Telegram.Token)
		tc.BaseURL = cfg.Telegram.BaseURL
		sender = telegram.NewClient(tc, log)
		jc.ChatIDs = cfg.Telegram.ChatIDs
	}
	return jobs.NewArenaReportJob(svc, sender, p, log, jc)
}

// NewScheduler registers the report job and runs the loop between start and
// stop.
func NewScheduler(
	lc fx.Lifecycle,
	job *jobs.ArenaReportJob,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.Config{Logger: log, Clock: clk, Tick: cfg.Scheduler.Tick})

	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.ReportSchedule, cfg.App.Location)
	if err != nil {
		return nil, fmt.Errorf("report schedule: %w", err)
	}
	if err := s.Register(job, schedule); err != nil {
		return nil, err
	}

	if !cfg.Scheduler.Enabled {
		log.Info().Msg("scheduler disabled")
		return s, nil
	}
	lc.Append(fx.Hook{
		// The loop must outlive the start context.
		OnStart: func(context.Context) error { return s.Start(context.Background()) },
		OnStop:  func(context.Context) error { return s.Stop() },
	})
	return s, nil
}

// NewHealthChecker registers readiness checks for every dependency in use.
func NewHealthChecker(
	cfg *config.Config,
	store kv.Store,
	archive *postgres.ReportArchive,
	upstream *jx3api.Client,
) *handlers.CompositeHealthChecker {
	h := handlers.NewCompositeHealthChecker(cfg.App.Version)
	h.AddCheck("store", handlers.PingCheck(store))
	if archive != nil {
		h.AddCheck("archive", handlers.PingCheck(archive))
	}
	h.AddCheck("upstream", func(context.Context) error {
		if b := upstream.Breaker(); b.State() == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit %s is open", b.Name())
		}
		return nil
	})
	return h
}

// NewHTTPServer creates the API server and ties it to the app lifecycle.
func NewHTTPServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	reports *ranking.ReportService,
	fetcher *ranking.Fetcher,
	resolver *ranking.Resolver,
	season *arena.SeasonCalculator,
	health *handlers.CompositeHealthChecker,
	clk clock.Clock,
	log zerolog.Logger,
) *httpapi.Server {
	sc := httpapi.DefaultConfig()
	sc.Host = cfg.HTTP.Host
	sc.Port = cfg.HTTP.Port
	sc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	sc.ReadTimeout = cfg.HTTP.ReadTimeout
	sc.WriteTimeout = cfg.HTTP.WriteTimeout
	sc.Version = cfg.App.Version

	srv := httpapi.NewServer(sc, httpapi.Dependencies{
		Reports:     reports,
		Snapshots:   fetcher,
		Resolver:    resolver,
		Season:      season,
		SeasonStart: cfg.Report.SeasonStart,
		Clock:       clk,
		Health:      health,
		Logger:      log,
	})
	if !cfg.HTTP.Enabled {
		return srv
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			errCh := srv.StartAsync()
			go func() {
				if err, ok := <-errCh; ok && err != nil {
					log.Error().Err(err).Msg("http server failed")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.App.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
