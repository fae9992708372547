package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

const (
	defaultSnapshotLimit = 50
	maxSnapshotLimit     = 1000
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().Round(time.Second).String(),
		"version": s.config.Version,
	})
}

// handleReady pings the stores behind the service.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetReport handles GET /api/v1/arena/report.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeError(w, http.StatusNotImplemented, errors.New("reports are not configured"))
		return
	}
	report, err := s.deps.Reports.LatestOrBuild(r.Context())
	if err != nil {
		s.fail(w, r, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleRefreshReport handles POST /api/v1/arena/report/refresh. With
// ?wait=false the build runs in the background and 202 is returned.
func (s *Server) handleRefreshReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeError(w, http.StatusNotImplemented, errors.New("reports are not configured"))
		return
	}

	if r.URL.Query().Get("wait") == "false" {
		log := logger.FromContext(r.Context(), s.logger)
		go func() {
			if _, err := s.deps.Reports.Build(context.WithoutCancel(r.Context())); err != nil {
				log.Error().Err(err).Msg("background report build failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
		return
	}

	report, err := s.deps.Reports.Build(r.Context())
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

type snapshotResponse struct {
	DefaultWeek int                 `json:"defaultWeek"`
	FetchedAt   string              `json:"fetchedAt"`
	Total       int                 `json:"total"`
	Players     []arena.PlayerEntry `json:"players"`
}

// handleGetSnapshot handles GET /api/v1/arena/snapshot?limit=.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		writeError(w, http.StatusNotImplemented, errors.New("snapshots are not configured"))
		return
	}
	limit, err := queryInt(r, "limit", defaultSnapshotLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if limit <= 0 || limit > maxSnapshotLimit {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: limit must be between 1 and %d", arena.ErrInvalidInput, maxSnapshotLimit))
		return
	}

	snap, err := s.deps.Snapshots.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		DefaultWeek: snap.DefaultWeek,
		FetchedAt:   snap.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Total:       snap.Len(),
		Players:     snap.Top(limit),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// KUNGFU LOOKUP
// ══════════════════════════════════════════════════════════════════════════════

// handleGetKungfu handles GET /api/v1/kungfu?server=&name=. A player whose build
// cannot be determined is still a 200 with found=false.
func (s *Server) handleGetKungfu(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusNotImplemented, errors.New("kungfu lookup is not configured"))
		return
	}
	q := r.URL.Query()
	attr, err := s.deps.Resolver.ResolveName(r.Context(), q.Get("server"), q.Get("name"))
	if err != nil {
		s.fail(w, r, "kungfu", err)
		return
	}
	writeJSON(w, http.StatusOK, attr)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEASON WEEK
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSeasonWeek handles GET /api/v1/season/week?week=. Without week the
// default week of the current snapshot is labelled.
func (s *Server) handleGetSeasonWeek(w http.ResponseWriter, r *http.Request) {
	week, err := queryInt(r, "week", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if r.URL.Query().Has("week") && (week < 1 || week > 53) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: week must be between 1 and 53", arena.ErrInvalidWeek))
		return
	}

	if week == 0 {
		if s.deps.Snapshots == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: week is required", arena.ErrInvalidInput))
			return
		}
		snap, err := s.deps.Snapshots.Snapshot(r.Context())
		if err != nil {
			s.fail(w, r, "season", err)
			return
		}
		week = snap.DefaultWeek
	}

	sw := s.deps.Season.Compute(week, s.deps.SeasonStart, s.deps.Clock.Now())
	writeJSON(w, http.StatusOK, sw)
}

// fail logs err and writes it with the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context(), s.logger)
	ev := log.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		ev = log.Error()
	}
	ev.Err(err).Str("op", op).Int("status", status).Msg("request failed")
	writeError(w, status, err)
}
