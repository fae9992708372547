package ranking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING FETCHER
// Obtains the leaderboard for the scored week: time tag, pause, ranking.
// ══════════════════════════════════════════════════════════════════════════════

// Fetcher obtains leaderboard snapshots.
type Fetcher struct {
	source RankingSource
	cache  SnapshotCache
	pacer  Pacer
	clock  clock.Clock
	logger zerolog.Logger

	flight singleflight.Group
}

const snapshotKey = "snapshot"

// NewFetcher creates a Fetcher. pacer is waited on between the time tag call and
// the ranking call.
func NewFetcher(source RankingSource, cache SnapshotCache, pacer Pacer, clk clock.Clock, log zerolog.Logger) *Fetcher {
	if clk == nil {
		clk = clock.New()
	}
	return &Fetcher{
		source: source,
		cache:  cache,
		pacer:  pacer,
		clock:  clk,
		logger: logger.Component(log, "ranking_fetcher"),
	}
}

// Snapshot returns the cached snapshot while it is fresh and fetches a new one
// otherwise. Concurrent misses share one fetch; a caller whose ctx ends stops
// waiting without cancelling it.
func (f *Fetcher) Snapshot(ctx context.Context) (*arena.RankingSnapshot, error) {
	if snap := f.cached(ctx); snap != nil {
		return snap, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := f.flight.DoChan(snapshotKey, func() (any, error) {
		// A fetch that finished while this one was queued has filled the cache.
		if snap := f.cached(detached); snap != nil {
			return snap, nil
		}
		return f.Fetch(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*arena.RankingSnapshot), nil
	case <-ctx.Done():
		return nil, arena.NewStageError(arena.StageRanking, arena.ErrTimeout, "stopped waiting for ranking snapshot", ctx.Err())
	}
}

func (f *Fetcher) cached(ctx context.Context) *arena.RankingSnapshot {
	snap := f.cache.Get(ctx)
	if snap != nil {
		f.logger.Debug().
			Int("players", snap.Len()).
			Time("fetched_at", snap.FetchedAt).
			Msg("serving cached ranking snapshot")
	}
	return snap
}

// Fetch runs the remote protocol unconditionally. The snapshot is cached only when
// every step succeeded.
func (f *Fetcher) Fetch(ctx context.Context) (*arena.RankingSnapshot, error) {
	log := logger.FromContext(ctx, f.logger)

	week, err := f.source.DefaultWeek(ctx)
	if err != nil {
		log.Error().Err(err).Msg("time tag request failed")
		return nil, arena.NewStageError(arena.StageTimeTag, arena.ErrUpstream, "failed to get arena time tag", err)
	}
	if week <= 0 {
		log.Error().Int(logger.KeyWeek, week).Msg("time tag has no usable default week")
		return nil, arena.NewStageError(arena.StageTimeTag, arena.ErrInvalidWeek,
			fmt.Sprintf("default week missing or not positive (%d)", week), nil)
	}

	if f.pacer != nil {
		if _, err := f.pacer.Wait(ctx); err != nil {
			return nil, arena.NewStageError(arena.StageRanking, arena.ErrTimeout, "interrupted before ranking request", err)
		}
	}

	entries, err := f.source.RankingEntries(ctx, week)
	if err != nil {
		log.Error().Err(err).Int(logger.KeyWeek, week).Msg("ranking request failed")
		return nil, arena.NewStageError(arena.StageRanking, arena.ErrUpstream, "failed to get arena ranking", err)
	}
	if len(entries) == 0 {
		return nil, arena.NewStageError(arena.StageRanking, arena.ErrInvalidResponse,
			fmt.Sprintf("ranking for week %d is empty", week), nil)
	}

	snap := arena.NewRankingSnapshot(entries, week, f.clock.Now())
	if err := f.cache.Put(ctx, snap); err != nil {
		// The snapshot is still good for this caller.
		log.Warn().Err(err).Msg("failed to cache ranking snapshot")
	}

	log.Info().
		Int(logger.KeyWeek, week).
		Int("players", snap.Len()).
		Msg("ranking snapshot fetched")
	return snap, nil
}
