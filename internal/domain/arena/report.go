package arena

import (
	"fmt"
	"time"
)

// Report is one complete ranking report: the distributions of a snapshot together
// with the season label and resolution bookkeeping.
type Report struct {
	ID                string                 `json:"id"`
	GeneratedAt       time.Time              `json:"generatedAt"`
	SnapshotFetchedAt time.Time              `json:"snapshotFetchedAt"`
	DefaultWeek       int                    `json:"defaultWeek"`
	Season            SeasonWeek             `json:"season"`
	SeasonLabel       string                 `json:"seasonLabel"`
	SnapshotSize      int                    `json:"snapshotSize"`
	Players           int                    `json:"players"`
	Unresolved        int                    `json:"unresolved"`
	TierCounts        map[ResolutionTier]int `json:"tierCounts"`
	Distributions     []RankDistribution     `json:"distributions"`
	Warnings          []string               `json:"warnings,omitempty"`

	// Partial is set when the time budget ran out before every player was resolved.
	Partial bool `json:"partial"`

	Duration time.Duration `json:"duration"`
}

// Distribution returns the distribution computed for cutoff.
func (r *Report) Distribution(cutoff int) (RankDistribution, bool) {
	if r == nil {
		return RankDistribution{}, false
	}
	for _, d := range r.Distributions {
		if d.Cutoff == cutoff {
			return d, true
		}
	}
	return RankDistribution{}, false
}

// Resolved returns how many players got a build.
func (r *Report) Resolved() int {
	if r == nil {
		return 0
	}
	return r.Players - r.Unresolved
}

// UnclassifiedWarnings turns the unclassified builds of every cutoff into
// operator-facing warnings.
func UnclassifiedWarnings(dists []RankDistribution) []string {
	var out []string
	for _, d := range dists {
		for _, u := range d.Unclassified {
			out = append(out, fmt.Sprintf("top %d: unclassified build %q x%d (first at rank %d)",
				d.Cutoff, u.Kungfu, u.Count, u.FirstRank))
		}
	}
	return out
}
