package jx3api

import (
	"strings"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
)

// ToPlayerEntries maps leaderboard rows to domain entries in leaderboard order.
// Rows without a server or role name are dropped and counted.
func ToPlayerEntries(rows []RankingEntryDTO) (entries []arena.PlayerEntry, skipped int) {
	entries = make([]arena.PlayerEntry, 0, len(rows))
	for _, row := range rows {
		if row.Validate() != nil {
			skipped++
			continue
		}
		entries = append(entries, arena.PlayerEntry{
			Server:     strings.TrimSpace(row.Server),
			RoleName:   strings.TrimSpace(row.RoleName),
			GameRoleID: strings.TrimSpace(row.GameRoleID),
			Zone:       strings.TrimSpace(row.Zone),
			Score:      row.Score,
			Rank:       len(entries) + 1,
		})
	}
	return entries, skipped
}

// ToIndicatorMetrics flattens the indicator groups.
func ToIndicatorMetrics(data *IndicatorData) []arena.IndicatorMetric {
	if data == nil {
		return nil
	}
	var out []arena.IndicatorMetric
	for _, group := range data.Indicator {
		for _, m := range group.Metrics {
			out = append(out, arena.IndicatorMetric{
				Type:       group.Type,
				Kungfu:     strings.TrimSpace(m.Kungfu),
				WinCount:   m.WinCount,
				TotalCount: m.TotalCount,
			})
		}
	}
	return out
}

// ToMatchRecords maps history rows, keeping their order.
func ToMatchRecords(data *HistoryData) []arena.MatchRecord {
	if data == nil {
		return nil
	}
	out := make([]arena.MatchRecord, 0, len(data.History))
	for _, h := range data.History {
		out = append(out, arena.MatchRecord{
			Won:     h.Won,
			Kungfu:  strings.TrimSpace(h.Kungfu),
			EndedAt: h.EndTime,
		})
	}
	return out
}
