package arena

import (
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS AGGREGATION
// Turns resolved attributions into per-cutoff build distributions.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCutoffs are always computed.
var DefaultCutoffs = []int{50, 100, 200}

// ExtendedCutoff is computed only when the snapshot holds at least that many players.
const ExtendedCutoff = 1000

// RankedAttribution pairs a leaderboard entry with its resolved build.
type RankedAttribution struct {
	Entry       PlayerEntry       `json:"entry"`
	Attribution KungfuAttribution `json:"attribution"`
}

// BuildCount is one row of a category distribution.
type BuildCount struct {
	Kungfu    string  `json:"kungfu"`
	Count     int     `json:"count"`
	FirstRank int     `json:"firstRank"`
	Percent   float64 `json:"percent"`
}

// CategoryStats is the distribution of one role within a cutoff.
type CategoryStats struct {
	Role       Role         `json:"role"`
	ValidCount int          `json:"validCount"`
	Builds     []BuildCount `json:"builds"`
	MinScore   *float64     `json:"minScore"`
}

// Distribution returns build → count.
func (c CategoryStats) Distribution() map[string]int {
	out := make(map[string]int, len(c.Builds))
	for _, b := range c.Builds {
		out[b.Kungfu] = b.Count
	}
	return out
}

// UnclassifiedBuild is a resolved build that the reference table does not know.
type UnclassifiedBuild struct {
	Kungfu    string `json:"kungfu"`
	Count     int    `json:"count"`
	FirstRank int    `json:"firstRank"`
}

// RankDistribution holds the statistics for the first Cutoff players.
//
// Healer.ValidCount + DPS.ValidCount + InvalidCount + UnclassifiedCount == TotalPlayers.
type RankDistribution struct {
	Cutoff            int                 `json:"cutoff"`
	TotalPlayers      int                 `json:"totalPlayers"`
	InvalidCount      int                 `json:"invalidCount"`
	UnclassifiedCount int                 `json:"unclassifiedCount"`
	Healer            CategoryStats       `json:"healer"`
	DPS               CategoryStats       `json:"dps"`
	Unclassified      []UnclassifiedBuild `json:"unclassified,omitempty"`
}

// Category returns the stats for role.
func (d RankDistribution) Category(role Role) CategoryStats {
	if role == RoleHealer {
		return d.Healer
	}
	return d.DPS
}

// Percentage returns count as a percentage of valid; 0 when valid is 0.
func Percentage(count, valid int) float64 {
	if valid <= 0 {
		return 0
	}
	return float64(count) * 100 / float64(valid)
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCutoffs replaces the always-computed cutoffs.
func WithCutoffs(cutoffs ...int) AggregatorOption {
	return func(a *Aggregator) {
		clean := make([]int, 0, len(cutoffs))
		for _, c := range cutoffs {
			if c > 0 {
				clean = append(clean, c)
			}
		}
		sort.Ints(clean)
		a.cutoffs = clean
	}
}

// WithExtendedCutoff replaces the conditional cutoff. 0 disables it.
func WithExtendedCutoff(n int) AggregatorOption {
	return func(a *Aggregator) { a.extended = n }
}

// Aggregator computes RankDistributions. It holds no mutable state.
type Aggregator struct {
	table    *KungfuTable
	cutoffs  []int
	extended int
}

// NewAggregator creates an aggregator over table.
func NewAggregator(table *KungfuTable, opts ...AggregatorOption) *Aggregator {
	if table == nil {
		table = DefaultKungfuTable()
	}
	a := &Aggregator{
		table:    table,
		cutoffs:  append([]int(nil), DefaultCutoffs...),
		extended: ExtendedCutoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cutoffs returns the cutoffs that apply to a snapshot of the given size.
func (a *Aggregator) Cutoffs(snapshotSize int) []int {
	out := append([]int(nil), a.cutoffs...)
	if a.extended > 0 && snapshotSize >= a.extended {
		out = append(out, a.extended)
	}
	return out
}

// Depth returns how many leading players need an attribution for a snapshot of this size.
func (a *Aggregator) Depth(snapshotSize int) int {
	depth := 0
	for _, c := range a.Cutoffs(snapshotSize) {
		if c > depth {
			depth = c
		}
	}
	if depth > snapshotSize {
		depth = snapshotSize
	}
	return depth
}

// Aggregate computes one distribution per applicable cutoff. snapshotSize is the
// size of the whole snapshot; entries may cover only its leading part.
func (a *Aggregator) Aggregate(entries []RankedAttribution, snapshotSize int) []RankDistribution {
	ordered := rankOrdered(entries)
	cutoffs := a.Cutoffs(snapshotSize)
	out := make([]RankDistribution, 0, len(cutoffs))
	for _, n := range cutoffs {
		out = append(out, a.aggregateCutoff(ordered, n))
	}
	return out
}

// rankOrdered returns a copy of entries sorted by rank. Entries without a rank keep
// their position as rank.
func rankOrdered(entries []RankedAttribution) []RankedAttribution {
	out := make([]RankedAttribution, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].Entry.Rank <= 0 {
			out[i].Entry.Rank = i + 1
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Entry.Rank < out[j].Entry.Rank
	})
	return out
}

type categoryAccumulator struct {
	role     Role
	valid    int
	counts   map[string]int
	first    map[string]int
	minScore *float64
}

func newCategoryAccumulator(role Role) *categoryAccumulator {
	return &categoryAccumulator{
		role:   role,
		counts: make(map[string]int),
		first:  make(map[string]int),
	}
}

func (c *categoryAccumulator) add(build string, rank int, score float64) {
	c.valid++
	c.counts[build]++
	if _, seen := c.first[build]; !seen {
		c.first[build] = rank
	}
	if c.minScore == nil || score < *c.minScore {
		s := score
		c.minScore = &s
	}
}

func (c *categoryAccumulator) stats() CategoryStats {
	builds := make([]BuildCount, 0, len(c.counts))
	for build, count := range c.counts {
		builds = append(builds, BuildCount{
			Kungfu:    build,
			Count:     count,
			FirstRank: c.first[build],
			Percent:   Percentage(count, c.valid),
		})
	}
	SortBuilds(builds)
	return CategoryStats{
		Role:       c.role,
		ValidCount: c.valid,
		Builds:     builds,
		MinScore:   c.minScore,
	}
}

// SortBuilds orders builds by count descending, then by first appearance ascending.
// The name comparison only matters for malformed input with duplicate ranks.
func SortBuilds(builds []BuildCount) {
	sort.Slice(builds, func(i, j int) bool {
		if builds[i].Count != builds[j].Count {
			return builds[i].Count > builds[j].Count
		}
		if builds[i].FirstRank != builds[j].FirstRank {
			return builds[i].FirstRank < builds[j].FirstRank
		}
		return builds[i].Kungfu < builds[j].Kungfu
	})
}

func (a *Aggregator) aggregateCutoff(entries []RankedAttribution, cutoff int) RankDistribution {
	n := cutoff
	if n > len(entries) {
		n = len(entries)
	}

	healer := newCategoryAccumulator(RoleHealer)
	dps := newCategoryAccumulator(RoleDPS)
	unclassified := make(map[string]*UnclassifiedBuild)
	var unclassifiedOrder []string
	invalid := 0

	for i := 0; i < n; i++ {
		e := entries[i]
		rank := e.Entry.Rank

		if !e.Attribution.Usable() {
			invalid++
			continue
		}

		k, known := a.table.Lookup(e.Attribution.Kungfu)
		if !known {
			u, ok := unclassified[e.Attribution.Kungfu]
			if !ok {
				u = &UnclassifiedBuild{Kungfu: e.Attribution.Kungfu, FirstRank: rank}
				unclassified[e.Attribution.Kungfu] = u
				unclassifiedOrder = append(unclassifiedOrder, e.Attribution.Kungfu)
			}
			u.Count++
			continue
		}

		switch k.Role {
		case RoleHealer:
			healer.add(k.Name, rank, e.Entry.Score)
		case RoleDPS:
			dps.add(k.Name, rank, e.Entry.Score)
		}
	}

	dist := RankDistribution{
		Cutoff:       cutoff,
		TotalPlayers: n,
		InvalidCount: invalid,
		Healer:       healer.stats(),
		DPS:          dps.stats(),
	}
	dist.UnclassifiedCount = n - dist.Healer.ValidCount - dist.DPS.ValidCount - invalid

	for _, name := range unclassifiedOrder {
		dist.Unclassified = append(dist.Unclassified, *unclassified[name])
	}
	return dist
}
