package arena

import "strings"

// RecognizedIndicatorTypes are the competitive metric types that count as
// evidence of a player's arena build.
var RecognizedIndicatorTypes = []string{"3c", "3d"}

// IndicatorMetric is one per-build line of a role's arena indicator.
type IndicatorMetric struct {
	Type       string `json:"type"`
	Kungfu     string `json:"kungfu"`
	WinCount   int    `json:"winCount"`
	TotalCount int    `json:"totalCount"`
}

// IndicatorSelection is the outcome of choosing a build from indicator metrics.
type IndicatorSelection struct {
	// Best has the highest win count and decides the build.
	Best IndicatorMetric
	// MostPlayed has the highest total count and is only used for diagnostics.
	MostPlayed IndicatorMetric
}

// Consistent reports whether the most-won and the most-played builds agree.
func (s IndicatorSelection) Consistent() bool {
	return strings.EqualFold(s.Best.Kungfu, s.MostPlayed.Kungfu)
}

// SelectIndicator picks the build with the highest win count among metrics of the
// given types. Ties keep the first metric seen. It reports false when no metric
// of a recognized type has a build and at least one win.
func SelectIndicator(metrics []IndicatorMetric, types []string) (IndicatorSelection, bool) {
	if len(types) == 0 {
		types = RecognizedIndicatorTypes
	}
	accepted := make(map[string]struct{}, len(types))
	for _, t := range types {
		accepted[strings.ToLower(t)] = struct{}{}
	}

	var (
		sel   IndicatorSelection
		found bool
	)
	for _, m := range metrics {
		if _, ok := accepted[strings.ToLower(m.Type)]; !ok {
			continue
		}
		if strings.TrimSpace(m.Kungfu) == "" || m.WinCount <= 0 {
			continue
		}
		if !found {
			sel.Best, sel.MostPlayed = m, m
			found = true
			continue
		}
		if m.WinCount > sel.Best.WinCount {
			sel.Best = m
		}
		if m.TotalCount > sel.MostPlayed.TotalCount {
			sel.MostPlayed = m
		}
	}
	return sel, found
}

// MatchRecord is one entry of a player's recent match history.
type MatchRecord struct {
	Won     bool   `json:"won"`
	Kungfu  string `json:"kungfu"`
	EndedAt int64  `json:"endedAt,omitempty"` // epoch seconds, 0 when unknown
}

// LatestWinKungfu returns the build of the most recent won match. Records are
// taken newest first unless every record carries an end time.
func LatestWinKungfu(records []MatchRecord) (string, bool) {
	timed := len(records) > 0
	for _, r := range records {
		if r.EndedAt <= 0 {
			timed = false
			break
		}
	}

	var (
		best  MatchRecord
		found bool
	)
	for _, r := range records {
		if !r.Won || strings.TrimSpace(r.Kungfu) == "" {
			continue
		}
		if !timed {
			return strings.TrimSpace(r.Kungfu), true
		}
		if !found || r.EndedAt > best.EndedAt {
			best = r
			found = true
		}
	}
	if !found {
		return "", false
	}
	return strings.TrimSpace(best.Kungfu), true
}
