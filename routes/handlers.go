package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/utils"
	"github.com/LilVoxy/social_metrics/database"
)

const (
	monthLayout     = "2006-01"
	defaultRunLimit = 20
	maxRunLimit     = 500
)

type handlers struct {
	reader *database.Reader
	logger *utils.ETLLogger
}

type errorResponse struct {
	Error string `json:"error"`
}

// PlatformsResponse is the body of GET /api/platforms.
type PlatformsResponse struct {
	Platforms []models.Dimension `json:"platforms"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Metrics []models.Dimension `json:"metrics"`
}

// FactsResponse is the body of GET /api/facts.
type FactsResponse struct {
	Facts []models.FactView `json:"facts"`
}

// RunsResponse is the body of GET /api/runs.
type RunsResponse struct {
	Runs []models.ETLRunLog `json:"runs"`
}

// TrendsResponse is the body of GET /api/trends.
type TrendsResponse struct {
	Trends []models.MetricTrend `json:"trends"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response: %v", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, store.ErrUnavailable) {
		code = http.StatusServiceUnavailable
	}
	h.logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	h.writeJSON(w, code, errorResponse{Error: http.StatusText(code)})
}

func (h *handlers) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.reader.Ping(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) platforms(w http.ResponseWriter, r *http.Request) {
	dims, err := h.reader.GetPlatforms(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PlatformsResponse{Platforms: nonNil(dims)})
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	dims, err := h.reader.GetMetrics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MetricsResponse{Metrics: nonNil(dims)})
}

func (h *handlers) facts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := database.FactFilter{
		Platform: query.Get("platform"),
		Metric:   query.Get("metric"),
	}

	var err error
	if filter.From, err = parseMonth(query.Get("from")); err != nil {
		h.badRequest(w, fmt.Sprintf("invalid from: %v", err))
		return
	}
	if filter.To, err = parseMonth(query.Get("to")); err != nil {
		h.badRequest(w, fmt.Sprintf("invalid to: %v", err))
		return
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		h.badRequest(w, "to is before from")
		return
	}

	facts, err := h.reader.GetFacts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FactsResponse{Facts: facts})
}

func (h *handlers) runs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	runs, err := h.reader.GetRecentRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RunsResponse{Runs: nonNil(runs)})
}

func (h *handlers) runState(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	state, err := h.reader.GetStateMonitor(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *handlers) runSummary(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	summary, err := h.reader.GetRunSummary(r.Context(), runID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if summary == nil {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) trends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.reader.GetTrends(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, TrendsResponse{Trends: nonNil(trends)})
}

// parseMonth accepts YYYY-MM; empty means no bound.
func parseMonth(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM, got %q", s)
	}
	return t, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultRunLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", s)
	}
	return min(n, maxRunLimit), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
