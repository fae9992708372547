// Package ranking contains the arena ranking use cases: obtaining a leaderboard
// snapshot, resolving player builds and assembling reports.
package ranking

import (
	"context"
	"time"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RankingSource is the two-step leaderboard protocol of the data provider.
type RankingSource interface {
	// DefaultWeek returns the week currently scored, 0 when the provider omits it.
	DefaultWeek(ctx context.Context) (int, error)

	// RankingEntries returns the leaderboard of week in rank order.
	RankingEntries(ctx context.Context, week int) ([]arena.PlayerEntry, error)
}

// RoleDataSource provides per-player build evidence.
type RoleDataSource interface {
	// IndicatorMetrics returns the arena indicator of a ranked role.
	IndicatorMetrics(ctx context.Context, entry arena.PlayerEntry) ([]arena.IndicatorMetric, error)

	// RecentMatches returns the recent matches of (server, name), newest first.
	RecentMatches(ctx context.Context, server, name string) ([]arena.MatchRecord, error)
}

// Pacer spaces out upstream calls.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// SnapshotCache holds the current leaderboard snapshot.
type SnapshotCache interface {
	// Get returns the snapshot while it is fresh, nil otherwise.
	Get(ctx context.Context) *arena.RankingSnapshot
	Put(ctx context.Context, snap *arena.RankingSnapshot) error
}

// AttributionCache holds resolved builds per (server, name).
type AttributionCache interface {
	// Get returns a fresh usable attribution, nil otherwise.
	Get(ctx context.Context, server, name string) *arena.KungfuAttribution
	Put(ctx context.Context, attr arena.KungfuAttribution) error
}

// SnapshotProvider returns a snapshot, from cache when possible.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*arena.RankingSnapshot, error)
}

// EntryResolver resolves the build of a ranked entry.
type EntryResolver interface {
	ResolveEntry(ctx context.Context, snap *arena.RankingSnapshot, entry arena.PlayerEntry) (arena.KungfuAttribution, error)
}

// ReportArchive stores finished reports.
type ReportArchive interface {
	Save(ctx context.Context, report *arena.Report) error
}
