package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// RunHandler handles ingestion run API requests
type RunHandler struct {
	orchestrator interfaces.IngestOrchestrator
	runStorage   interfaces.RunStorage
	logger       arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(orchestrator interfaces.IngestOrchestrator, runStorage interfaces.RunStorage, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		runStorage:   runStorage,
		logger:       logger,
	}
}

// startRunRequest is the optional POST body selecting a source subset
type startRunRequest struct {
	Sources []string `json:"sources,omitempty"`
}

// StartRunHandler triggers a new ingestion run in the background
// POST /api/runs {"sources": ["greenhouse-acme"]} -> 202 with the registered run
func (h *RunHandler) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	run, err := h.orchestrator.StartRun(r.Context(), interfaces.RunOptions{
		SourceNames: req.Sources,
		Trigger:     interfaces.TriggerManual,
	})
	switch {
	case errors.Is(err, interfaces.ErrRunInProgress):
		WriteError(w, http.StatusConflict, "An ingestion run is already in progress")
		return
	case errors.Is(err, interfaces.ErrNoRunnableSources):
		WriteError(w, http.StatusBadRequest, "No runnable sources: every requested source is disabled or suspended")
		return
	case err != nil:
		// Unknown source names are the caller's mistake; anything else is ours
		if strings.Contains(err.Error(), "unknown source") {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to start ingestion run")
		WriteError(w, http.StatusInternalServerError, "Failed to start ingestion run")
		return
	}

	h.logger.Info().
		Str("run_id", run.ID).
		Int64("seq", run.Seq).
		Strs("sources", run.SourceNames).
		Msg("Ingestion run started via API")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":  run.ID,
		"seq":     run.Seq,
		"status":  run.Status,
		"sources": run.SourceNames,
	})
}

// ListRunsHandler returns recent ingestion runs, newest first
// GET /api/runs?limit=20&offset=0
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := GetLimitOffset(r, 20, 100)

	// RunStorage lists newest-first with a count cap; offset pages within
	// that window
	runs, err := h.runStorage.ListRuns(ctx, limit+offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if offset < len(runs) {
		runs = runs[offset:]
	} else {
		runs = runs[:0]
	}

	activeID, active := h.orchestrator.ActiveRun()

	response := map[string]interface{}{
		"runs":   runs,
		"count":  len(runs),
		"limit":  limit,
		"offset": offset,
	}
	if active {
		response["active_run_id"] = activeID
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetRunHandler returns a single ingestion run by ID
// GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	// Extract run ID from path: /api/runs/{id}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}
	runID := pathParts[2]

	run, err := h.runStorage.GetRun(ctx, runID)
	if err != nil {
		h.logger.Debug().Err(err).Str("run_id", runID).Msg("Run lookup failed")
		WriteError(w, http.StatusNotFound, "Run not found")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}
