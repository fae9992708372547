package arena

import (
	"strings"
	"time"
)

// NameSeparators are the decorative separators that may follow a canonical role name,
// for example "Yunxi·Meiren" or "Yunxi@Meiren" for transferred characters.
var NameSeparators = []string{"·", "@"}

// CanonicalName returns the part of name before the first decorative separator.
func CanonicalName(name string) string {
	cut := len(name)
	for _, sep := range NameSeparators {
		if i := strings.Index(name, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(name[:cut])
}

// PlayerEntry is one row of the arena leaderboard.
type PlayerEntry struct {
	Server     string  `json:"server"`
	RoleName   string  `json:"roleName"`
	GameRoleID string  `json:"gameRoleId"`
	Zone       string  `json:"zone"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"` // 1-based position in the snapshot
}

// CanonicalName returns the role name without decoration.
func (p PlayerEntry) CanonicalName() string {
	return CanonicalName(p.RoleName)
}

// HasRoleIdentity reports whether the entry carries the identifiers needed for
// the role-indicator lookup.
func (p PlayerEntry) HasRoleIdentity() bool {
	return strings.TrimSpace(p.GameRoleID) != "" && strings.TrimSpace(p.Zone) != ""
}

// Matches reports whether the entry belongs to (server, name), comparing canonical names.
func (p PlayerEntry) Matches(server, name string) bool {
	return strings.TrimSpace(p.Server) == strings.TrimSpace(server) &&
		p.CanonicalName() == CanonicalName(name)
}

// RankingSnapshot is one timestamped capture of the whole leaderboard.
// It is never mutated after construction.
type RankingSnapshot struct {
	Players     []PlayerEntry `json:"players"`
	DefaultWeek int           `json:"defaultWeek"`
	FetchedAt   time.Time     `json:"fetchedAt"`
}

// NewRankingSnapshot builds a snapshot from players in leaderboard order.
// Ranks are assigned from the position.
func NewRankingSnapshot(players []PlayerEntry, defaultWeek int, fetchedAt time.Time) *RankingSnapshot {
	ranked := make([]PlayerEntry, len(players))
	for i, p := range players {
		p.Rank = i + 1
		ranked[i] = p
	}
	return &RankingSnapshot{
		Players:     ranked,
		DefaultWeek: defaultWeek,
		FetchedAt:   fetchedAt,
	}
}

// Len returns the number of players.
func (s *RankingSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Players)
}

// Top returns the first n players (all of them when n exceeds the size).
func (s *RankingSnapshot) Top(n int) []PlayerEntry {
	if s == nil || n <= 0 {
		return nil
	}
	if n > len(s.Players) {
		n = len(s.Players)
	}
	out := make([]PlayerEntry, n)
	copy(out, s.Players[:n])
	return out
}

// Find returns the best-ranked entry for (server, canonical name).
func (s *RankingSnapshot) Find(server, name string) (PlayerEntry, bool) {
	if s == nil {
		return PlayerEntry{}, false
	}
	for _, p := range s.Players {
		if p.Matches(server, name) {
			return p, true
		}
	}
	return PlayerEntry{}, false
}

// Age returns how old the snapshot is at now.
func (s *RankingSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// FreshAt reports whether the snapshot is younger than ttl at now.
func (s *RankingSnapshot) FreshAt(now time.Time, ttl time.Duration) bool {
	return s != nil && s.Age(now) < ttl
}
