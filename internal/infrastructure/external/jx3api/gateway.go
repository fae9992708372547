package jx3api

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
)

// Gateway adapts Client to the arena application ports.
type Gateway struct {
	client *Client
	logger zerolog.Logger
}

// NewGateway creates a gateway over client.
func NewGateway(client *Client, logger zerolog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With().Str("component", "jx3api_gateway").Logger(),
	}
}

// DefaultWeek returns the scored week, 0 when the provider omitted it.
func (g *Gateway) DefaultWeek(ctx context.Context) (int, error) {
	resp, err := g.client.TimeTag(ctx)
	if err != nil {
		return 0, err
	}
	if resp.Data.DefaultWeek == nil {
		return 0, nil
	}
	return *resp.Data.DefaultWeek, nil
}

// RankingEntries returns the leaderboard for week.
func (g *Gateway) RankingEntries(ctx context.Context, week int) ([]arena.PlayerEntry, error) {
	resp, err := g.client.Ranking(ctx, week)
	if err != nil {
		return nil, err
	}
	entries, skipped := ToPlayerEntries(resp.Data)
	if skipped > 0 {
		g.logger.Warn().Int("skipped", skipped).Int("week", week).Msg("dropped malformed ranking rows")
	}
	return entries, nil
}

// IndicatorMetrics returns the arena metrics of a ranked role.
func (g *Gateway) IndicatorMetrics(ctx context.Context, entry arena.PlayerEntry) ([]arena.IndicatorMetric, error) {
	resp, err := g.client.RoleIndicator(ctx, IndicatorRequest{
		Server:     entry.Server,
		GameRoleID: entry.GameRoleID,
		Zone:       entry.Zone,
	})
	if err != nil {
		return nil, err
	}
	return ToIndicatorMetrics(resp.Data), nil
}

// RecentMatches returns the recent matches of (server, name).
func (g *Gateway) RecentMatches(ctx context.Context, server, name string) ([]arena.MatchRecord, error) {
	resp, err := g.client.MatchHistory(ctx, HistoryRequest{Server: server, Name: name})
	if err != nil {
		return nil, err
	}
	return ToMatchRecords(resp.Data), nil
}
