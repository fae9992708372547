// Package arenacache holds the two arena caches: the leaderboard snapshot and the
// per-player kungfu attributions. Both sit on a kv.Store and treat unreadable or
// corrupt entries as misses.
package arenacache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
)

// Storage layout.
const (
	NamespaceRanking = "ranking"
	NamespaceKungfu  = "kungfu"
	KeySnapshot      = "snapshot"
)

// Default freshness windows.
const (
	DefaultRankingTTL = 2 * time.Hour
	DefaultKungfuTTL  = 7 * 24 * time.Hour
)

// rankingRecord is the stored form: {"cache_time": <epoch seconds>, "data": {...}}.
type rankingRecord struct {
	CacheTime int64                  `json:"cache_time"`
	Data      *arena.RankingSnapshot `json:"data"`
}

// RankingSnapshotCache stores the single global leaderboard snapshot.
type RankingSnapshotCache struct {
	store  kv.Store
	clock  clock.Clock
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRankingSnapshotCache creates the cache. ttl <= 0 selects DefaultRankingTTL.
func NewRankingSnapshotCache(store kv.Store, clk clock.Clock, ttl time.Duration, logger zerolog.Logger) *RankingSnapshotCache {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultRankingTTL
	}
	return &RankingSnapshotCache{
		store:  store,
		clock:  clk,
		ttl:    ttl,
		logger: logger.With().Str("component", "ranking_cache").Logger(),
	}
}

// TTL returns the freshness window.
func (c *RankingSnapshotCache) TTL() time.Duration { return c.ttl }

// Get returns the stored snapshot if it is younger than the TTL, nil otherwise.
func (c *RankingSnapshotCache) Get(ctx context.Context) *arena.RankingSnapshot {
	snap := c.load(ctx)
	if snap == nil {
		return nil
	}
	if !snap.FreshAt(c.clock.Now(), c.ttl) {
		c.logger.Debug().
			Time("fetched_at", snap.FetchedAt).
			Dur("age", snap.Age(c.clock.Now())).
			Msg("ranking snapshot expired")
		return nil
	}
	return snap
}

// Latest returns the stored snapshot regardless of age, nil when there is none.
func (c *RankingSnapshotCache) Latest(ctx context.Context) *arena.RankingSnapshot {
	return c.load(ctx)
}

func (c *RankingSnapshotCache) load(ctx context.Context) *arena.RankingSnapshot {
	rec, err := kv.GetJSON[rankingRecord](ctx, c.store, NamespaceRanking, KeySnapshot)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn().Err(err).Msg("ranking cache unreadable, treating as miss")
		}
		return nil
	}
	if rec.Data == nil {
		c.logger.Warn().Msg("ranking cache has no data, treating as miss")
		return nil
	}

	snap := rec.Data
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Unix(rec.CacheTime, 0)
	}
	return snap
}

// Put replaces the stored snapshot.
func (c *RankingSnapshotCache) Put(ctx context.Context, snap *arena.RankingSnapshot) error {
	if snap == nil {
		return arena.ErrNoSnapshot
	}
	rec := rankingRecord{CacheTime: snap.FetchedAt.Unix(), Data: snap}
	if err := kv.PutJSON(ctx, c.store, NamespaceRanking, KeySnapshot, rec); err != nil {
		return err
	}

	c.logger.Debug().
		Int("players", snap.Len()).
		Int("default_week", snap.DefaultWeek).
		Msg("ranking snapshot cached")
	return nil
}

// Invalidate removes the stored snapshot.
func (c *RankingSnapshotCache) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, NamespaceRanking, KeySnapshot)
}
