package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// mockPostingStorage implements interfaces.PostingStorage for testing
type mockPostingStorage struct {
	getFunc   func(ctx context.Context, id string) (*models.Posting, error)
	listFunc  func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error)
	statsFunc func(ctx context.Context) (*models.PostingStats, error)
}

func (m *mockPostingStorage) GetPosting(ctx context.Context, id string) (*models.Posting, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, fmt.Errorf("posting not found: %s", id)
}

func (m *mockPostingStorage) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Posting, error) {
	return nil, nil
}

func (m *mockPostingStorage) GetActiveByCompanyLocation(ctx context.Context, companyKey, locationKey string) ([]*models.Posting, error) {
	return nil, nil
}

func (m *mockPostingStorage) SavePosting(ctx context.Context, posting *models.Posting) error {
	return nil
}

func (m *mockPostingStorage) ListPostings(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, opts)
	}
	return []*models.Posting{}, nil
}

func (m *mockPostingStorage) GetActivePostings(ctx context.Context) ([]*models.Posting, error) {
	return nil, nil
}

func (m *mockPostingStorage) CountPostings(ctx context.Context) (int, error) { return 0, nil }

func (m *mockPostingStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

func (m *mockPostingStorage) GetStats(ctx context.Context) (*models.PostingStats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return &models.PostingStats{}, nil
}

// mockRecordStorage implements interfaces.SourceRecordStorage for testing
type mockRecordStorage struct {
	byPostingFunc func(ctx context.Context, postingID string) ([]*models.SourceRecord, error)
}

func (m *mockRecordStorage) SaveSourceRecord(ctx context.Context, record *models.SourceRecord) error {
	return nil
}

func (m *mockRecordStorage) GetSourceRecord(ctx context.Context, id string) (*models.SourceRecord, error) {
	return nil, nil
}

func (m *mockRecordStorage) GetByPosting(ctx context.Context, postingID string) ([]*models.SourceRecord, error) {
	if m.byPostingFunc != nil {
		return m.byPostingFunc(ctx, postingID)
	}
	return []*models.SourceRecord{}, nil
}

func (m *mockRecordStorage) GetBySourceExternalID(ctx context.Context, sourceName, externalID string) (*models.SourceRecord, error) {
	return nil, nil
}

func (m *mockRecordStorage) CountByPosting(ctx context.Context, postingID string) (int, error) {
	return 0, nil
}

func (m *mockRecordStorage) CountRecords(ctx context.Context) (int, error) { return 0, nil }

func testPosting(id, title string) *models.Posting {
	return &models.Posting{
		ID:          id,
		Title:       title,
		Company:     "Acme Corp",
		Location:    "Berlin",
		Description: "Build distributed systems in Go.",
		Status:      models.PostingStatusActive,
		Sources:     []string{"greenhouse-acme"},
		LastSeenAt:  time.Now(),
	}
}

func TestListPostingsHandler_DefaultsToActive(t *testing.T) {
	var capturedOpts *interfaces.ListOptions
	storage := &mockPostingStorage{
		listFunc: func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error) {
			capturedOpts = opts
			return []*models.Posting{testPosting("post_1", "Go Engineer")}, nil
		},
	}

	handler := NewPostingHandler(storage, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings", nil)
	rec := httptest.NewRecorder()

	handler.ListPostingsHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedOpts.Status != "active" {
		t.Errorf("Expected default status filter 'active', got %q", capturedOpts.Status)
	}
	if capturedOpts.Limit != 50 {
		t.Errorf("Expected default limit 50, got %d", capturedOpts.Limit)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if int(response["count"].(float64)) != 1 {
		t.Errorf("Expected count 1, got %v", response["count"])
	}
}

func TestListPostingsHandler_Filters(t *testing.T) {
	var capturedOpts *interfaces.ListOptions
	storage := &mockPostingStorage{
		listFunc: func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error) {
			capturedOpts = opts
			return []*models.Posting{}, nil
		},
	}

	handler := NewPostingHandler(storage, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings?status=stale&company=acme&location=berlin&q=engineer&source=adzuna&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()

	handler.ListPostingsHandler(rec, req)

	if capturedOpts.Status != "stale" {
		t.Errorf("Expected status 'stale', got %q", capturedOpts.Status)
	}
	if capturedOpts.Company != "acme" {
		t.Errorf("Expected company 'acme', got %q", capturedOpts.Company)
	}
	if capturedOpts.Location != "berlin" {
		t.Errorf("Expected location 'berlin', got %q", capturedOpts.Location)
	}
	if capturedOpts.Search != "engineer" {
		t.Errorf("Expected search 'engineer', got %q", capturedOpts.Search)
	}
	if capturedOpts.Source != "adzuna" {
		t.Errorf("Expected source 'adzuna', got %q", capturedOpts.Source)
	}
	if capturedOpts.Limit != 10 || capturedOpts.Offset != 5 {
		t.Errorf("Expected limit 10 offset 5, got %d/%d", capturedOpts.Limit, capturedOpts.Offset)
	}
}

func TestListPostingsHandler_StatusAll(t *testing.T) {
	var capturedOpts *interfaces.ListOptions
	storage := &mockPostingStorage{
		listFunc: func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error) {
			capturedOpts = opts
			return []*models.Posting{}, nil
		},
	}

	handler := NewPostingHandler(storage, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings?status=all", nil)
	rec := httptest.NewRecorder()

	handler.ListPostingsHandler(rec, req)

	if capturedOpts.Status != "" {
		t.Errorf("Expected empty status filter for 'all', got %q", capturedOpts.Status)
	}
}

func TestStatsHandler(t *testing.T) {
	storage := &mockPostingStorage{
		statsFunc: func(ctx context.Context) (*models.PostingStats, error) {
			return &models.PostingStats{
				Total:    10,
				Active:   7,
				Stale:    3,
				BySource: map[string]int{"adzuna": 6, "greenhouse-acme": 4},
			}, nil
		},
	}

	handler := NewPostingHandler(storage, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings/stats", nil)
	rec := httptest.NewRecorder()

	handler.StatsHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var stats models.PostingStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Total != 10 || stats.Active != 7 {
		t.Errorf("Unexpected stats payload: %+v", stats)
	}
	if stats.BySource["adzuna"] != 6 {
		t.Errorf("Expected 6 adzuna postings, got %d", stats.BySource["adzuna"])
	}
}

func TestGetPostingHandler_WithRecords(t *testing.T) {
	storage := &mockPostingStorage{
		getFunc: func(ctx context.Context, id string) (*models.Posting, error) {
			return testPosting(id, "Platform Engineer"), nil
		},
	}
	records := &mockRecordStorage{
		byPostingFunc: func(ctx context.Context, postingID string) ([]*models.SourceRecord, error) {
			return []*models.SourceRecord{
				{ID: "src_1", PostingID: postingID, SourceName: "greenhouse-acme", SourceExternalID: "101"},
				{ID: "src_2", PostingID: postingID, SourceName: "adzuna", SourceExternalID: "adz-99"},
			}, nil
		},
	}

	handler := NewPostingHandler(storage, records, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings/post_42", nil)
	rec := httptest.NewRecorder()

	handler.GetPostingHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	posting := response["posting"].(map[string]interface{})
	if posting["id"] != "post_42" {
		t.Errorf("Expected posting id 'post_42', got %v", posting["id"])
	}

	recs := response["records"].([]interface{})
	if len(recs) != 2 {
		t.Fatalf("Expected 2 provenance records, got %d", len(recs))
	}

	if _, ok := response["description_html"]; ok {
		t.Error("Expected no HTML rendering without format=html")
	}
}

func TestGetPostingHandler_HTMLFormat(t *testing.T) {
	storage := &mockPostingStorage{
		getFunc: func(ctx context.Context, id string) (*models.Posting, error) {
			p := testPosting(id, "Platform Engineer")
			p.Description = "## About the role\n\n- Build pipelines\n- Own **reliability**"
			return p, nil
		},
	}

	handler := NewPostingHandler(storage, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings/post_42?format=html", nil)
	rec := httptest.NewRecorder()

	handler.GetPostingHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)

	html, ok := response["description_html"].(string)
	if !ok {
		t.Fatal("Expected description_html in response")
	}
	if !strings.Contains(html, "<h2") {
		t.Errorf("Expected rendered heading, got %q", html)
	}
	if !strings.Contains(html, "<li>") {
		t.Errorf("Expected rendered list items, got %q", html)
	}
	if !strings.Contains(html, "<strong>reliability</strong>") {
		t.Errorf("Expected rendered emphasis, got %q", html)
	}
}

func TestGetPostingHandler_NotFound(t *testing.T) {
	handler := NewPostingHandler(&mockPostingStorage{}, &mockRecordStorage{}, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/postings/post_missing", nil)
	rec := httptest.NewRecorder()

	handler.GetPostingHandler(rec, req)

	if rec.Code != 404 {
		t.Fatalf("Expected status 404, got %d", rec.Code)
	}
}
