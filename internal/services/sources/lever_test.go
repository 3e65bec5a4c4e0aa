package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

func leverTestDefinition(baseURL string) *models.SourceDefinition {
	return &models.SourceDefinition{
		Name:        "globex",
		Type:        models.SourceTypeLever,
		DisplayName: "Globex",
		Enabled:     true,
		BaseURL:     baseURL,
		Board:       "globex",
		RateLimit:   100,
	}
}

func TestLeverAdapter_FetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/globex", r.URL.Path)

		query := r.URL.Query()
		assert.Equal(t, "json", query.Get("mode"))
		assert.Equal(t, "0", query.Get("skip"))
		assert.Equal(t, "100", query.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "ab-12", "text": "Staff Engineer", "hostedUrl": "https://jobs.lever.co/globex/ab-12"},
			{"id": "cd-34", "text": "Data Engineer", "hostedUrl": "https://jobs.lever.co/globex/cd-34"}
		]`))
	}))
	defer server.Close()

	adapter := newLeverAdapter(leverTestDefinition(server.URL), newTestFetchClient(), arbor.NewLogger())

	page, err := adapter.FetchPage(context.Background(), models.QuerySpec{}, "")

	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Empty(t, page.NextCursor)

	record := page.Records[0]
	assert.Equal(t, "globex", record.SourceName)
	assert.Equal(t, models.SourceTypeLever, record.SourceType)
	assert.Equal(t, "ab-12", record.ExternalID)
	assert.Equal(t, "https://jobs.lever.co/globex/ab-12", record.URL)
	assert.Equal(t, "Globex", record.CompanyHint)
}

func TestLeverAdapter_FullPageAdvancesSkip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("skip"))

		postings := make([]string, leverPageSize)
		for i := range postings {
			postings[i] = fmt.Sprintf(`{"id": "p-%d", "text": "Role %d"}`, i, i)
		}
		fmt.Fprintf(w, "[%s]", strings.Join(postings, ","))
	}))
	defer server.Close()

	adapter := newLeverAdapter(leverTestDefinition(server.URL), newTestFetchClient(), arbor.NewLogger())

	page, err := adapter.FetchPage(context.Background(), models.QuerySpec{}, "200")

	require.NoError(t, err)
	assert.Len(t, page.Records, leverPageSize)
	assert.Equal(t, "300", page.NextCursor)
}

func TestLeverAdapter_InvalidCursor(t *testing.T) {
	adapter := newLeverAdapter(leverTestDefinition("http://localhost"), newTestFetchClient(), arbor.NewLogger())

	_, err := adapter.FetchPage(context.Background(), models.QuerySpec{}, "-10")

	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
}
