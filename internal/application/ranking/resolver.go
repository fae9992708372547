package ranking

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// KUNGFU RESOLVER
// Resolves a player's build through an ordered chain, first success wins:
//   cache → pacing → ranking indicator → recent match history.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotReader gives the resolver the current snapshot for ad-hoc lookups.
type SnapshotReader interface {
	Get(ctx context.Context) *arena.RankingSnapshot
}

// ResolverConfig contains optional resolver settings.
type ResolverConfig struct {
	// IndicatorTypes are the indicator types accepted as build evidence.
	IndicatorTypes []string
}

// Resolver resolves player builds.
type Resolver struct {
	roles     RoleDataSource
	cache     AttributionCache
	snapshots SnapshotReader
	table     *arena.KungfuTable
	pacer     Pacer
	clock     clock.Clock
	types     []string
	logger    zerolog.Logger
}

// NewResolver creates a Resolver. snapshots may be nil; ad-hoc lookups then skip
// the ranking indicator step.
func NewResolver(
	roles RoleDataSource,
	cache AttributionCache,
	snapshots SnapshotReader,
	table *arena.KungfuTable,
	pacer Pacer,
	clk clock.Clock,
	cfg ResolverConfig,
	log zerolog.Logger,
) *Resolver {
	if table == nil {
		table = arena.DefaultKungfuTable()
	}
	if clk == nil {
		clk = clock.New()
	}
	types := cfg.IndicatorTypes
	if len(types) == 0 {
		types = arena.RecognizedIndicatorTypes
	}
	return &Resolver{
		roles:     roles,
		cache:     cache,
		snapshots: snapshots,
		table:     table,
		pacer:     pacer,
		clock:     clk,
		types:     types,
		logger:    logger.Component(log, "kungfu_resolver"),
	}
}

// ResolveEntry resolves a ranked entry against snap.
//
// A failed resolution is not an error: it comes back as an attribution with
// Found=false. The error is non-nil only when ctx ended before the chain finished.
func (r *Resolver) ResolveEntry(ctx context.Context, snap *arena.RankingSnapshot, entry arena.PlayerEntry) (arena.KungfuAttribution, error) {
	return r.resolve(ctx, snap, entry.Server, entry.CanonicalName())
}

// ResolveName resolves a bare (server, name) pair against the cached snapshot.
func (r *Resolver) ResolveName(ctx context.Context, server, name string) (arena.KungfuAttribution, error) {
	server = strings.TrimSpace(server)
	name = arena.CanonicalName(name)
	if server == "" || name == "" {
		return arena.KungfuAttribution{}, arena.NewStageError(arena.StageResolve, arena.ErrInvalidInput,
			"server and name are required", nil)
	}

	var snap *arena.RankingSnapshot
	if r.snapshots != nil {
		snap = r.snapshots.Get(ctx)
	}
	return r.resolve(ctx, snap, server, name)
}

func (r *Resolver) resolve(ctx context.Context, snap *arena.RankingSnapshot, server, name string) (arena.KungfuAttribution, error) {
	log := logger.FromContext(ctx, r.logger).With().
		Str(logger.KeyServer, server).
		Str(logger.KeyRole, name).
		Logger()

	if cached := r.cache.Get(ctx, server, name); cached != nil {
		attr := *cached
		attr.Tier = arena.TierCache
		log.Debug().Str(logger.KeyKungfu, attr.Kungfu).Str(logger.KeyTier, string(attr.Tier)).Msg("kungfu from cache")
		return attr, nil
	}

	if r.pacer != nil {
		if _, err := r.pacer.Wait(ctx); err != nil {
			return arena.Unresolved(server, name, "interrupted before lookup", r.clock.Now()),
				arena.NewStageError(arena.StageResolve, arena.ErrTimeout, "interrupted before lookup", err)
		}
	}

	if kungfu, ok := r.fromIndicator(ctx, log, snap, server, name); ok {
		return r.finish(ctx, log, arena.Resolved(server, name, kungfu, arena.TierIndicator, r.clock.Now())), nil
	}

	kungfu, reason := r.fromHistory(ctx, log, server, name)
	if kungfu == "" {
		log.Info().Str("reason", reason).Msg("kungfu not resolved")
		return arena.Unresolved(server, name, reason, r.clock.Now()), nil
	}
	return r.finish(ctx, log, arena.Resolved(server, name, kungfu, arena.TierHistory, r.clock.Now())), nil
}

// fromIndicator looks the player up in snap and reads the build off the role
// indicator.
func (r *Resolver) fromIndicator(ctx context.Context, log zerolog.Logger, snap *arena.RankingSnapshot, server, name string) (string, bool) {
	entry, ok := snap.Find(server, name)
	if !ok {
		log.Debug().Msg("player not in ranking snapshot")
		return "", false
	}
	if !entry.HasRoleIdentity() {
		log.Debug().Msg("ranking entry has no role identity")
		return "", false
	}

	metrics, err := r.roles.IndicatorMetrics(ctx, entry)
	if err != nil {
		log.Warn().Err(err).Msg("role indicator request failed")
		return "", false
	}

	sel, ok := arena.SelectIndicator(metrics, r.types)
	if !ok {
		log.Debug().Int("metrics", len(metrics)).Msg("no usable indicator metric")
		return "", false
	}
	if !sel.Consistent() {
		log.Warn().
			Str("most_won", sel.Best.Kungfu).
			Int("win_count", sel.Best.WinCount).
			Str("most_played", sel.MostPlayed.Kungfu).
			Int("total_count", sel.MostPlayed.TotalCount).
			Msg("most won and most played builds disagree")
	}

	display, _ := r.table.DisplayName(sel.Best.Kungfu)
	return display, display != ""
}

// fromHistory takes the build of the most recent win. On failure it returns the
// reason instead.
func (r *Resolver) fromHistory(ctx context.Context, log zerolog.Logger, server, name string) (string, string) {
	records, err := r.roles.RecentMatches(ctx, server, name)
	if err != nil {
		log.Warn().Err(err).Msg("match history request failed")
		return "", "match history unavailable"
	}

	raw, ok := arena.LatestWinKungfu(records)
	if !ok {
		return "", "no recent win"
	}
	display, _ := r.table.DisplayName(raw)
	if display == "" {
		return "", "no recent win"
	}
	return display, ""
}

func (r *Resolver) finish(ctx context.Context, log zerolog.Logger, attr arena.KungfuAttribution) arena.KungfuAttribution {
	if err := r.cache.Put(ctx, attr); err != nil {
		log.Warn().Err(err).Msg("failed to cache kungfu")
	}
	log.Info().Str(logger.KeyKungfu, attr.Kungfu).Str(logger.KeyTier, string(attr.Tier)).Msg("kungfu resolved")
	return attr
}
