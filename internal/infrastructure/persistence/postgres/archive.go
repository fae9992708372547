package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// ReportSummary is a listing row without the full payload.
type ReportSummary struct {
	ID          string `json:"id"`
	GeneratedAt string `json:"generatedAt"`
	DefaultWeek int    `json:"defaultWeek"`
	SeasonLabel string `json:"seasonLabel"`
	Players     int    `json:"players"`
	Unresolved  int    `json:"unresolved"`
	Partial     bool   `json:"partial"`
}

// ReportArchive stores built reports as JSONB rows.
type ReportArchive struct {
	conn   *Connection
	logger zerolog.Logger
}

// NewReportArchive creates an archive on conn. Run the Migrator first.
func NewReportArchive(conn *Connection, log zerolog.Logger) *ReportArchive {
	return &ReportArchive{conn: conn, logger: logger.Component(log, "postgres.archive")}
}

// Save inserts the report. Saving the same report id twice keeps the first row.
func (a *ReportArchive) Save(ctx context.Context, report *arena.Report) error {
	row, err := encodeReport(report)
	if err != nil {
		return err
	}

	tag, err := a.conn.Exec(ctx, `
		INSERT INTO arena_reports (id, generated_at, default_week, season_label, players, unresolved, partial, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		row.id, report.GeneratedAt, report.DefaultWeek, report.SeasonLabel,
		report.Players, report.Unresolved, report.Partial, row.payload,
	)
	if err != nil {
		return fmt.Errorf("archive report %s: %w", report.ID, err)
	}

	a.logger.Debug().
		Str(logger.KeyReportID, report.ID).
		Int64("rows", tag.RowsAffected()).
		Msg("report archived")
	return nil
}

// Latest returns the most recently generated report.
func (a *ReportArchive) Latest(ctx context.Context) (*arena.Report, error) {
	var payload []byte
	err := a.conn.QueryRow(ctx,
		`SELECT payload FROM arena_reports ORDER BY generated_at DESC LIMIT 1`).Scan(&payload)
	if err != nil {
		if IsNoRows(err) {
			return nil, arena.ErrNotFound
		}
		return nil, fmt.Errorf("load latest report: %w", err)
	}
	return decodeReport(payload)
}

// Get returns one report by id.
func (a *ReportArchive) Get(ctx context.Context, id string) (*arena.Report, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: report id %q", arena.ErrInvalidInput, id)
	}

	var payload []byte
	err = a.conn.QueryRow(ctx, `SELECT payload FROM arena_reports WHERE id = $1`, rid).Scan(&payload)
	if err != nil {
		if IsNoRows(err) {
			return nil, arena.ErrNotFound
		}
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	return decodeReport(payload)
}

// List returns up to limit summaries, newest first.
func (a *ReportArchive) List(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := a.conn.Query(ctx, `
		SELECT id::text, to_char(generated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
		       default_week, season_label, players, unresolved, partial
		FROM arena_reports
		ORDER BY generated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.GeneratedAt, &s.DefaultWeek, &s.SeasonLabel, &s.Players, &s.Unresolved, &s.Partial); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ping checks the underlying connection.
func (a *ReportArchive) Ping(ctx context.Context) error {
	return a.conn.Ping(ctx)
}

type reportRow struct {
	id      uuid.UUID
	payload []byte
}

func encodeReport(report *arena.Report) (reportRow, error) {
	if report == nil {
		return reportRow{}, fmt.Errorf("%w: nil report", arena.ErrInvalidInput)
	}
	id, err := uuid.Parse(report.ID)
	if err != nil {
		return reportRow{}, fmt.Errorf("%w: report id %q", arena.ErrInvalidInput, report.ID)
	}
	if report.DefaultWeek <= 0 {
		return reportRow{}, fmt.Errorf("%w: report %s has week %d", arena.ErrInvalidWeek, report.ID, report.DefaultWeek)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return reportRow{}, fmt.Errorf("encode report %s: %w", report.ID, err)
	}
	return reportRow{id: id, payload: payload}, nil
}

func decodeReport(payload []byte) (*arena.Report, error) {
	var r arena.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
