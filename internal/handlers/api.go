package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

type APIHandler struct {
	orchestrator interfaces.IngestOrchestrator
	scheduler    interfaces.SchedulerService
	logger       arbor.ILogger
}

func NewAPIHandler(orchestrator interfaces.IngestOrchestrator, scheduler interfaces.SchedulerService) *APIHandler {
	return &APIHandler{
		orchestrator: orchestrator,
		scheduler:    scheduler,
		logger:       common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status along with the run schedule and
// the ingestion run in flight, if any
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	response := map[string]interface{}{
		"status": "ok",
	}

	if h.scheduler != nil {
		response["schedule"] = h.scheduler.Status()
	}
	if h.orchestrator != nil {
		if runID, active := h.orchestrator.ActiveRun(); active {
			response["active_run_id"] = runID
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
