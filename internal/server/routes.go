package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Ingestion runs
	mux.HandleFunc("/api/runs", s.handleRunsRoute)               // GET (list), POST (start)
	mux.HandleFunc("/api/runs/", s.app.RunHandler.GetRunHandler) // GET /{id}

	// API routes - Posting catalog
	mux.HandleFunc("/api/postings/stats", s.app.PostingHandler.StatsHandler)
	mux.HandleFunc("/api/postings", s.app.PostingHandler.ListPostingsHandler)
	mux.HandleFunc("/api/postings/", s.app.PostingHandler.GetPostingHandler) // GET /{id}

	// API routes - Source registry
	mux.HandleFunc("/api/sources", s.app.SourceHandler.ListSourcesHandler)
	mux.HandleFunc("/api/sources/", s.handleSourceRoutes) // GET /{name}, POST /{name}/breaker/reset

	// WebSocket event stream
	mux.HandleFunc("/api/events/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleRunsRoute routes /api/runs requests (list and start)
func (s *Server) handleRunsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.RunHandler.ListRunsHandler, s.app.RunHandler.StartRunHandler)
}

// handleSourceRoutes routes /api/sources/{name} requests
func (s *Server) handleSourceRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.SourceHandler.GetSourceHandler(w, r)
	case "POST":
		if RouteByPathSuffix(w, r, "/api/sources/", []PathSuffixRouter{
			{Suffix: "/breaker/reset", Handler: s.app.SourceHandler.ResetBreakerHandler},
		}) {
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
