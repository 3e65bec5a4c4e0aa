package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// fetchClient wraps one shared http.Client with the behavior every HTTP
// adapter needs: user agent, response size cap, and classification of
// failures into the fetch taxonomy.
type fetchClient struct {
	client *http.Client
	cfg    *common.FetchConfig
	logger arbor.ILogger
}

func newFetchClient(cfg *common.FetchConfig, logger arbor.ILogger) *fetchClient {
	return &fetchClient{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// getJSON fetches url and decodes the JSON body into result
func (c *fetchClient) getJSON(ctx context.Context, source, url string, headers map[string]string, result interface{}) error {
	body, err := c.get(ctx, source, url, headers, "application/json")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &models.PermanentFetchError{
			Source: source,
			Reason: fmt.Sprintf("malformed response body: %v", err),
		}
	}

	return nil
}

// getHTML fetches url and returns the body as a string
func (c *fetchClient) getHTML(ctx context.Context, source, url string, headers map[string]string) (string, error) {
	body, err := c.get(ctx, source, url, headers, "text/html")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// get performs one GET request. Transport failures and non-2xx statuses are
// returned classified as Transient/PermanentFetchError.
func (c *fetchClient) get(ctx context.Context, source, url string, headers map[string]string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.PermanentFetchError{
			Source: source,
			Reason: fmt.Sprintf("invalid request: %v", err),
		}
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	c.logger.Trace().Str("source", source).Str("url", url).Msg("Fetching")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, models.ClassifyFetchError(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, models.ClassifyHTTPStatus(source, resp.StatusCode, retryAfter)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize))
	if err != nil {
		return nil, models.ClassifyFetchError(source, err)
	}

	return body, nil
}

// parseRetryAfter reads a Retry-After header in either seconds or HTTP-date
// form. Zero means the server gave no usable hint.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
