package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// SourceHandler handles source registry API requests
type SourceHandler struct {
	registry interfaces.SourceRegistry
	logger   arbor.ILogger
}

// NewSourceHandler creates a new source handler
func NewSourceHandler(registry interfaces.SourceRegistry, logger arbor.ILogger) *SourceHandler {
	return &SourceHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListSourcesHandler returns every configured source with its breaker state
// GET /api/sources
func (h *SourceHandler) ListSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	sources := h.registry.List()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

// GetSourceHandler returns one source's status by name
// GET /api/sources/{name}
func (h *SourceHandler) GetSourceHandler(w http.ResponseWriter, r *http.Request) {
	name := sourceNameFromPath(r.URL.Path)
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Source name is required")
		return
	}

	status, err := h.registry.Status(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Source not found: "+name)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// ResetBreakerHandler manually closes an open circuit breaker so the source
// rejoins the next run without waiting out the cooldown
// POST /api/sources/{name}/breaker/reset
func (h *SourceHandler) ResetBreakerHandler(w http.ResponseWriter, r *http.Request) {
	name := sourceNameFromPath(r.URL.Path)
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Source name is required")
		return
	}

	if err := h.registry.ResetBreaker(name); err != nil {
		WriteError(w, http.StatusNotFound, "Source not found: "+name)
		return
	}

	h.logger.Info().Str("source", name).Msg("Breaker reset via API")
	WriteSuccess(w, "Breaker reset for source "+name)
}

// sourceNameFromPath extracts the source name from /api/sources/{name}[/...]
func sourceNameFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
