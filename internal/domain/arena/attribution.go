package arena

import (
	"strings"
	"time"
)

// ResolutionTier records which source produced an attribution.
type ResolutionTier string

const (
	TierNone      ResolutionTier = "none"
	TierCache     ResolutionTier = "cache"
	TierIndicator ResolutionTier = "ranking_indicator"
	TierHistory   ResolutionTier = "match_history"
)

// KungfuAttribution is the resolved build of one player, keyed by (server, name).
type KungfuAttribution struct {
	Server     string         `json:"server"`
	Name       string         `json:"name"`
	Kungfu     string         `json:"kungfu,omitempty"`
	Found      bool           `json:"found"`
	ResolvedAt time.Time      `json:"resolvedAt"`
	Tier       ResolutionTier `json:"tier"`

	// Reason explains a failed resolution. Empty on success.
	Reason string `json:"reason,omitempty"`
}

// Usable reports whether the attribution carries a non-empty build.
func (a KungfuAttribution) Usable() bool {
	return a.Found && strings.TrimSpace(a.Kungfu) != ""
}

// FreshAt reports whether a usable attribution is younger than ttl at now.
func (a KungfuAttribution) FreshAt(now time.Time, ttl time.Duration) bool {
	return a.Usable() && now.Sub(a.ResolvedAt) < ttl
}

// Resolved builds a successful attribution.
func Resolved(server, name, kungfu string, tier ResolutionTier, at time.Time) KungfuAttribution {
	return KungfuAttribution{
		Server:     server,
		Name:       name,
		Kungfu:     kungfu,
		Found:      true,
		ResolvedAt: at,
		Tier:       tier,
	}
}

// Unresolved builds a failed attribution.
func Unresolved(server, name, reason string, at time.Time) KungfuAttribution {
	return KungfuAttribution{
		Server:     server,
		Name:       name,
		Found:      false,
		ResolvedAt: at,
		Tier:       TierNone,
		Reason:     reason,
	}
}
