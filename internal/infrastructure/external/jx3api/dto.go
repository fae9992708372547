// Package jx3api implements the client for the arena data provider: the weekly
// time tag, the arena leaderboard, role indicators and match history.
package jx3api

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the common response wrapper {code, msg, data}.
type Envelope[T any] struct {
	// Code is 0 on success. Some endpoints omit it.
	Code int `json:"code"`

	// Msg carries the provider's error text when Code != 0.
	Msg string `json:"msg,omitempty"`

	Data T `json:"data"`
}

// ══════════════════════════════════════════════════════════════════════════════
// TIME TAG
// ══════════════════════════════════════════════════════════════════════════════

// TimeTagData is the payload of the time-tag endpoint.
type TimeTagData struct {
	// DefaultWeek is the ISO week the leaderboard currently scores.
	// A pointer so that a missing field is distinguishable from zero.
	DefaultWeek *int `json:"defaultWeek"`
}

// TimeTagResponse is the time-tag endpoint response.
type TimeTagResponse = Envelope[*TimeTagData]

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// RankingEntryDTO is one leaderboard row as returned by the provider.
type RankingEntryDTO struct {
	Server     string  `json:"server"`
	RoleName   string  `json:"roleName"`
	GameRoleID string  `json:"gameRoleId"`
	Zone       string  `json:"zone"`
	Score      float64 `json:"score"`
	ForceID    int     `json:"forceId,omitempty"`
}

// Validate checks the fields every row must have.
func (e RankingEntryDTO) Validate() error {
	if strings.TrimSpace(e.Server) == "" {
		return fmt.Errorf("ranking row without server")
	}
	if strings.TrimSpace(e.RoleName) == "" {
		return fmt.Errorf("ranking row without roleName")
	}
	return nil
}

// RankingResponse is the ranking endpoint response.
type RankingResponse = Envelope[[]RankingEntryDTO]

// ══════════════════════════════════════════════════════════════════════════════
// ROLE INDICATOR
// ══════════════════════════════════════════════════════════════════════════════

// MetricDTO is the per-build line of an indicator.
type MetricDTO struct {
	Kungfu     string `json:"kungfu"`
	WinCount   int    `json:"win_count"`
	TotalCount int    `json:"total_count"`
}

// IndicatorDTO groups metrics by competition type.
type IndicatorDTO struct {
	Type    string      `json:"type"`
	Metrics []MetricDTO `json:"metrics"`
}

// IndicatorData is the payload of the role-indicator endpoint.
type IndicatorData struct {
	Indicator []IndicatorDTO `json:"indicator"`
}

// IndicatorResponse is the role-indicator endpoint response.
type IndicatorResponse = Envelope[*IndicatorData]

// IndicatorRequest identifies a role for the indicator lookup.
type IndicatorRequest struct {
	Server     string `json:"server"`
	GameRoleID string `json:"role_id"`
	Zone       string `json:"zone"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryEntryDTO is one match in a role's history.
type HistoryEntryDTO struct {
	Won     bool   `json:"won"`
	Kungfu  string `json:"kungfu"`
	EndTime int64  `json:"end_time,omitempty"`
}

// HistoryData is the payload of the match-history endpoint.
type HistoryData struct {
	History []HistoryEntryDTO `json:"history"`
}

// HistoryResponse is the match-history endpoint response.
type HistoryResponse = Envelope[*HistoryData]

// HistoryRequest identifies a role by server and canonical name.
type HistoryRequest struct {
	Server string `json:"server"`
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Cursor int    `json:"cursor"`
}

type rankingRequest struct {
	TypeName string `json:"typeName"`
	Tag      int    `json:"tag"`
}
