package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// ProgressHandler exposes read-only run progress endpoints.
type ProgressHandler struct {
	tracker *RunTracker
	logger  *zap.Logger
}

// NewProgressHandler wires the tracker and logger.
func NewProgressHandler(tracker *RunTracker, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{tracker: tracker, logger: logger}
}

// ListRuns handles GET /api/runs?status=&limit=. It returns {"runs": [...]},
// 400 for invalid filters, or 503 when no tracker is attached.
func (h *ProgressHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracker unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs := h.tracker.Runs(status)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /api/runs/{run_id}. It returns {"run": {...}}, 400 for
// malformed IDs, 404 for unknown runs, or 503 when no tracker is attached.
func (h *ProgressHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracker unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, ok := h.tracker.Run(runID)
	if !ok {
		h.logger.Debug("run not tracked", zap.Stringer("run_id", runID))
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func parseStatus(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", nil
	case "running":
		return RunRunning, nil
	case "done", "finished", "complete":
		return RunDone, nil
	default:
		return "", errors.New("invalid status")
	}
}
