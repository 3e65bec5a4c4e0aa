package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

func newTestFetchClient() *fetchClient {
	cfg := &common.FetchConfig{
		UserAgent:      "test-agent/1.0",
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    1 << 20,
	}
	return newFetchClient(cfg, arbor.NewLogger())
}

func TestFetchClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "token abc", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 2}`))
	}))
	defer server.Close()

	client := newTestFetchClient()

	var result struct {
		Count int `json:"count"`
	}
	headers := map[string]string{"Authorization": "token abc"}
	err := client.getJSON(context.Background(), "test", server.URL, headers, &result)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
}

func TestFetchClient_GetJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := newTestFetchClient()

	var result map[string]interface{}
	err := client.getJSON(context.Background(), "test", server.URL, nil, &result)

	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
}

func TestFetchClient_GetHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		w.Write([]byte(`<html><body>jobs</body></html>`))
	}))
	defer server.Close()

	client := newTestFetchClient()

	body, err := client.getHTML(context.Background(), "test", server.URL, nil)

	require.NoError(t, err)
	assert.Contains(t, body, "jobs")
}

func TestFetchClient_RateLimitedCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestFetchClient()

	_, err := client.get(context.Background(), "test", server.URL, nil, "application/json")

	require.Error(t, err)
	require.True(t, models.IsTransient(err))

	var transient *models.TransientFetchError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusTooManyRequests, transient.StatusCode)
	assert.Equal(t, 7*time.Second, transient.RetryAfter)
}

func TestFetchClient_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestFetchClient()

	_, err := client.get(context.Background(), "test", server.URL, nil, "application/json")

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestFetchClient_AuthRejectedIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestFetchClient()

	_, err := client.get(context.Background(), "test", server.URL, nil, "application/json")

	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
}

func TestFetchClient_BodySizeCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer server.Close()

	cfg := &common.FetchConfig{
		UserAgent:      "test-agent/1.0",
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    64,
	}
	client := newFetchClient(cfg, arbor.NewLogger())

	body, err := client.get(context.Background(), "test", server.URL, nil, "text/html")

	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"garbage", "soon", 0},
		{"past http date", "Mon, 02 Jan 2006 15:04:05 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header))
		})
	}
}

func TestParseRetryAfter_FutureHTTPDate(t *testing.T) {
	future := time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)

	got := parseRetryAfter(future)

	assert.Greater(t, got, time.Minute)
	assert.LessOrEqual(t, got, 2*time.Minute)
}
