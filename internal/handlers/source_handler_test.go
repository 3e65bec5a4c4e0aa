package handlers

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// mockRegistry implements interfaces.SourceRegistry for testing
type mockRegistry struct {
	listFunc   func() []*interfaces.SourceStatus
	statusFunc func(name string) (*interfaces.SourceStatus, error)
	resetFunc  func(name string) error
}

func (m *mockRegistry) Get(name string) (*models.SourceDefinition, error) { return nil, nil }

func (m *mockRegistry) List() []*interfaces.SourceStatus {
	if m.listFunc != nil {
		return m.listFunc()
	}
	return nil
}

func (m *mockRegistry) Status(name string) (*interfaces.SourceStatus, error) {
	if m.statusFunc != nil {
		return m.statusFunc(name)
	}
	return nil, fmt.Errorf("unknown source: %s", name)
}

func (m *mockRegistry) Runnable(names []string) ([]*models.SourceDefinition, []string, error) {
	return nil, nil, nil
}

func (m *mockRegistry) Adapter(name string) (interfaces.SourceAdapter, error) { return nil, nil }

func (m *mockRegistry) RecordSuccess(name string) {}

func (m *mockRegistry) RecordFailure(name string, err error) {}

func (m *mockRegistry) ResetBreaker(name string) error {
	if m.resetFunc != nil {
		return m.resetFunc(name)
	}
	return fmt.Errorf("unknown source: %s", name)
}

func sourceStatus(name string, breaker interfaces.BreakerState) *interfaces.SourceStatus {
	return &interfaces.SourceStatus{
		Definition: &models.SourceDefinition{
			Name:    name,
			Type:    models.SourceTypeGreenhouse,
			Enabled: true,
		},
		Breaker: breaker,
	}
}

func TestListSourcesHandler(t *testing.T) {
	registry := &mockRegistry{
		listFunc: func() []*interfaces.SourceStatus {
			return []*interfaces.SourceStatus{
				sourceStatus("adzuna", interfaces.BreakerClosed),
				sourceStatus("greenhouse-acme", interfaces.BreakerOpen),
			}
		},
	}

	handler := NewSourceHandler(registry, arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/sources", nil)
	rec := httptest.NewRecorder()

	handler.ListSourcesHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if int(response["count"].(float64)) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}

	sources := response["sources"].([]interface{})
	first := sources[0].(map[string]interface{})
	if first["breaker"] != "closed" {
		t.Errorf("Expected first source breaker 'closed', got %v", first["breaker"])
	}
}

func TestGetSourceHandler(t *testing.T) {
	registry := &mockRegistry{
		statusFunc: func(name string) (*interfaces.SourceStatus, error) {
			if name != "adzuna" {
				return nil, fmt.Errorf("unknown source: %s", name)
			}
			return sourceStatus(name, interfaces.BreakerClosed), nil
		},
	}

	handler := NewSourceHandler(registry, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.GetSourceHandler(rec, httptest.NewRequest("GET", "/api/sources/adzuna", nil))
	if rec.Code != 200 {
		t.Errorf("Expected status 200 for known source, got %d", rec.Code)
	}

	var status interfaces.SourceStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Definition.Name != "adzuna" {
		t.Errorf("Expected source name 'adzuna', got %q", status.Definition.Name)
	}

	rec = httptest.NewRecorder()
	handler.GetSourceHandler(rec, httptest.NewRequest("GET", "/api/sources/nope", nil))
	if rec.Code != 404 {
		t.Errorf("Expected status 404 for unknown source, got %d", rec.Code)
	}
}

func TestResetBreakerHandler(t *testing.T) {
	var resetName string
	registry := &mockRegistry{
		resetFunc: func(name string) error {
			if name != "adzuna" {
				return fmt.Errorf("unknown source: %s", name)
			}
			resetName = name
			return nil
		},
	}

	handler := NewSourceHandler(registry, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ResetBreakerHandler(rec, httptest.NewRequest("POST", "/api/sources/adzuna/breaker/reset", nil))
	if rec.Code != 200 {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if resetName != "adzuna" {
		t.Errorf("Expected registry reset for 'adzuna', got %q", resetName)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["status"] != "success" {
		t.Errorf("Expected success envelope, got %v", response)
	}

	rec = httptest.NewRecorder()
	handler.ResetBreakerHandler(rec, httptest.NewRequest("POST", "/api/sources/nope/breaker/reset", nil))
	if rec.Code != 404 {
		t.Errorf("Expected status 404 for unknown source, got %d", rec.Code)
	}
}
