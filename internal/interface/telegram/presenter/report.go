// Package presenter formats arena reports for chat delivery.
package presenter

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT PRESENTER
// Renders a ranking report as HTML text for Telegram.
// ══════════════════════════════════════════════════════════════════════════════

// ReportView is a rendered message.
type ReportView struct {
	// Text is the message body with HTML markup.
	Text string

	// ParseMode is "HTML".
	ParseMode string
}

// ReportPresenter formats reports.
type ReportPresenter struct {
	loc *time.Location

	// maxRows caps the rows per category table; 0 means no cap.
	maxRows int
}

// NewReportPresenter creates a presenter that prints times in loc.
func NewReportPresenter(loc *time.Location, maxRows int) *ReportPresenter {
	if loc == nil {
		loc = timeutil.ServerTZ
	}
	return &ReportPresenter{loc: loc, maxRows: maxRows}
}

// FormatReport renders the whole report.
func (p *ReportPresenter) FormatReport(r *arena.Report) *ReportView {
	var sb strings.Builder

	sb.WriteString(p.formatHeader(r))

	for _, d := range r.Distributions {
		sb.WriteString("\n\n")
		sb.WriteString(p.formatDistribution(d))
	}

	if footer := p.formatFooter(r); footer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(footer)
	}

	return &ReportView{Text: sb.String(), ParseMode: "HTML"}
}

// FormatAttribution renders a single kungfu lookup.
func (p *ReportPresenter) FormatAttribution(a arena.KungfuAttribution) string {
	who := fmt.Sprintf("<b>%s</b>·%s", escape(a.Name), escape(a.Server))
	if !a.Usable() {
		reason := a.Reason
		if reason == "" {
			reason = "unknown"
		}
		return fmt.Sprintf("%s: kungfu not found (%s)", who, escape(reason))
	}
	return fmt.Sprintf("%s: <b>%s</b> <i>via %s</i>", who, escape(a.Kungfu), tierLabel(a.Tier))
}

// ─────────────────────────────────────────────────────────────────────────────
// SECTIONS
// ─────────────────────────────────────────────────────────────────────────────

func (p *ReportPresenter) formatHeader(r *arena.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Arena 3v3 · %s</b>", escape(r.SeasonLabel))
	fmt.Fprintf(&sb, "\nSnapshot %s · %d players ranked",
		timeutil.In(r.SnapshotFetchedAt, p.loc).Format(timeutil.DateTimeFormat), r.SnapshotSize)
	return sb.String()
}

func (p *ReportPresenter) formatDistribution(d arena.RankDistribution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Top %d</b>", d.Cutoff)
	if d.TotalPlayers < d.Cutoff {
		fmt.Fprintf(&sb, " (%d listed)", d.TotalPlayers)
	}

	sb.WriteString("\n")
	sb.WriteString(p.formatCategory("Healers", d.Healer))
	sb.WriteString("\n")
	sb.WriteString(p.formatCategory("DPS", d.DPS))

	if d.InvalidCount > 0 || d.UnclassifiedCount > 0 {
		fmt.Fprintf(&sb, "\n<i>unresolved %d · unclassified %d</i>", d.InvalidCount, d.UnclassifiedCount)
	}
	return sb.String()
}

func (p *ReportPresenter) formatCategory(title string, c arena.CategoryStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d", title, c.ValidCount)
	if c.MinScore != nil {
		fmt.Fprintf(&sb, " · min score %s", formatScore(*c.MinScore))
	}
	if len(c.Builds) == 0 {
		sb.WriteString("\n  <i>none</i>")
		return sb.String()
	}

	sb.WriteString("\n<pre>")
	rows := c.Builds
	if p.maxRows > 0 && len(rows) > p.maxRows {
		rows = rows[:p.maxRows]
	}
	for i, b := range rows {
		fmt.Fprintf(&sb, "%2d. %-10s %4d %6.1f%%  #%d\n", i+1, escape(b.Kungfu), b.Count, b.Percent, b.FirstRank)
	}
	if hidden := len(c.Builds) - len(rows); hidden > 0 {
		fmt.Fprintf(&sb, "    +%d more\n", hidden)
	}
	sb.WriteString("</pre>")
	return sb.String()
}

func (p *ReportPresenter) formatFooter(r *arena.Report) string {
	var lines []string
	if r.Unresolved > 0 {
		lines = append(lines, fmt.Sprintf("⚠️ %d of %d players could not be resolved", r.Unresolved, r.Players))
	}
	if r.Partial {
		lines = append(lines, "⚠️ report is partial: the time budget ran out")
	}
	for _, d := range r.Distributions {
		for _, u := range d.Unclassified {
			lines = append(lines, fmt.Sprintf("❓ top %d: unmapped kungfu %s ×%d", d.Cutoff, escape(u.Kungfu), u.Count))
		}
	}
	return strings.Join(lines, "\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// HELPERS
// ─────────────────────────────────────────────────────────────────────────────

func escape(s string) string {
	return html.EscapeString(s)
}

func formatScore(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

func tierLabel(t arena.ResolutionTier) string {
	switch t {
	case arena.TierCache:
		return "cache"
	case arena.TierIndicator:
		return "arena indicator"
	case arena.TierHistory:
		return "match history"
	default:
		return string(t)
	}
}
