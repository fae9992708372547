// Package jobs contains the scheduled jobs of the arena hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/interface/telegram/presenter"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARENA REPORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReportBuilder produces a fresh report.
type ReportBuilder interface {
	Build(ctx context.Context) (*arena.Report, error)
}

// Sender delivers an HTML message to one chat.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, html string) error
}

// ArenaReportConfig contains configuration for the report push.
type ArenaReportConfig struct {
	// ChatIDs receive the rendered report. Empty means build only.
	ChatIDs []int64

	// SendTimeout bounds delivery to a single chat.
	SendTimeout time.Duration
}

// DefaultArenaReportConfig returns sensible defaults.
func DefaultArenaReportConfig() ArenaReportConfig {
	return ArenaReportConfig{SendTimeout: 30 * time.Second}
}

// ArenaReportStats describes the last run.
type ArenaReportStats struct {
	StartedAt   time.Time
	Duration    time.Duration
	ReportID    string
	Players     int
	Unresolved  int
	Partial     bool
	Delivered   int
	FailedChats []int64
}

// ArenaReportJob builds the ranking report and pushes it to chats.
type ArenaReportJob struct {
	builder   ReportBuilder
	sender    Sender
	presenter *presenter.ReportPresenter
	logger    zerolog.Logger
	config    ArenaReportConfig

	last atomic.Pointer[ArenaReportStats]
}

// NewArenaReportJob creates the job. sender may be nil when no chats are configured.
func NewArenaReportJob(
	builder ReportBuilder,
	sender Sender,
	p *presenter.ReportPresenter,
	log zerolog.Logger,
	config ArenaReportConfig,
) *ArenaReportJob {
	if p == nil {
		p = presenter.NewReportPresenter(nil, 0)
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultArenaReportConfig().SendTimeout
	}
	return &ArenaReportJob{
		builder:   builder,
		sender:    sender,
		presenter: p,
		logger:    logger.Component(log, "job.arena_report"),
		config:    config,
	}
}

// Name returns the job name.
func (j *ArenaReportJob) Name() string { return "arena_report" }

// Description returns a human-readable description.
func (j *ArenaReportJob) Description() string {
	return "Builds the arena kungfu report and sends it to the configured chats"
}

// Run builds one report and delivers it. Delivery failures for individual chats
// are joined into the returned error after every chat has been tried.
func (j *ArenaReportJob) Run(ctx context.Context) error {
	log := logger.FromContext(ctx, j.logger)
	stats := &ArenaReportStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.last.Store(stats)
	}()

	report, err := j.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	stats.ReportID = report.ID
	stats.Players = report.Players
	stats.Unresolved = report.Unresolved
	stats.Partial = report.Partial

	log.Info().
		Str(logger.KeyReportID, report.ID).
		Int("players", report.Players).
		Int("unresolved", report.Unresolved).
		Bool("partial", report.Partial).
		Msg("report built")

	if j.sender == nil || len(j.config.ChatIDs) == 0 {
		return nil
	}

	view := j.presenter.FormatReport(report)

	var errs []error
	for _, chatID := range j.config.ChatIDs {
		if err := j.send(ctx, chatID, view.Text); err != nil {
			stats.FailedChats = append(stats.FailedChats, chatID)
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			log.Error().Err(err).Int64("chat_id", chatID).Msg("report delivery failed")
			continue
		}
		stats.Delivered++
	}
	return errors.Join(errs...)
}

func (j *ArenaReportJob) send(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.SendTimeout)
	defer cancel()
	return j.sender.SendHTML(ctx, chatID, text)
}

// LastStats returns statistics of the most recent run, or nil.
func (j *ArenaReportJob) LastStats() *ArenaReportStats {
	return j.last.Load()
}

// ParseChatIDs parses a comma separated list of chat ids.
func ParseChatIDs(ids []string) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, raw := range ids {
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, nil
}
