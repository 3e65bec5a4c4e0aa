package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// PostingHandler handles catalog posting API requests
type PostingHandler struct {
	postingStorage interfaces.PostingStorage
	recordStorage  interfaces.SourceRecordStorage
	markdown       goldmark.Markdown
	logger         arbor.ILogger
}

// NewPostingHandler creates a new posting handler
func NewPostingHandler(postingStorage interfaces.PostingStorage, recordStorage interfaces.SourceRecordStorage, logger arbor.ILogger) *PostingHandler {
	return &PostingHandler{
		postingStorage: postingStorage,
		recordStorage:  recordStorage,
		// Descriptions are normalizer-produced markdown; GFM covers the
		// tables and strikethrough that job boards emit
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		logger: logger,
	}
}

// ListPostingsHandler returns canonical postings, most recently seen first
// GET /api/postings?status=active&company=acme&location=berlin&q=engineer&limit=50&offset=0
func (h *PostingHandler) ListPostingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	limit, offset := GetLimitOffset(r, 50, 200)

	// Consumers browse the live catalog by default; stale and removed
	// postings are opt-in via ?status=
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(models.PostingStatusActive)
	} else if status == "all" {
		status = ""
	}

	opts := &interfaces.ListOptions{
		Limit:    limit,
		Offset:   offset,
		Status:   status,
		Company:  r.URL.Query().Get("company"),
		Location: r.URL.Query().Get("location"),
		Source:   r.URL.Query().Get("source"),
		Search:   r.URL.Query().Get("q"),
	}

	postings, err := h.postingStorage.ListPostings(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list postings")
		WriteError(w, http.StatusInternalServerError, "Failed to list postings")
		return
	}

	totalCount, err := h.postingStorage.CountPostings(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count postings")
		totalCount = len(postings)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"postings":    postings,
		"count":       len(postings),
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// StatsHandler returns aggregate catalog counts by status and source
// GET /api/postings/stats
func (h *PostingHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.postingStorage.GetStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get posting stats")
		WriteError(w, http.StatusInternalServerError, "Failed to get posting stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// GetPostingHandler returns a single posting with its provenance records.
// With ?format=html the markdown description is rendered to HTML.
// GET /api/postings/{id}
func (h *PostingHandler) GetPostingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	// Extract posting ID from path: /api/postings/{id}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Posting ID is required")
		return
	}
	postingID := pathParts[2]

	posting, err := h.postingStorage.GetPosting(ctx, postingID)
	if err != nil {
		h.logger.Debug().Err(err).Str("posting_id", postingID).Msg("Posting lookup failed")
		WriteError(w, http.StatusNotFound, "Posting not found")
		return
	}

	records, err := h.recordStorage.GetByPosting(ctx, postingID)
	if err != nil {
		h.logger.Warn().Err(err).Str("posting_id", postingID).Msg("Failed to load source records")
		records = nil
	}

	response := map[string]interface{}{
		"posting": posting,
		"records": records,
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(posting.Description), &buf); err != nil {
			h.logger.Warn().Err(err).Str("posting_id", postingID).Msg("Markdown render failed")
		} else {
			response["description_html"] = buf.String()
		}
	}

	WriteJSON(w, http.StatusOK, response)
}
