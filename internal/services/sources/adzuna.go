package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

const (
	// adzunaDefaultBaseURL includes the country segment; override base_url
	// for other markets, e.g. .../jobs/gb
	adzunaDefaultBaseURL = "https://api.adzuna.com/v1/api/jobs/us"
	adzunaPageSize       = 50
	adzunaDefaultRPS     = 1.0
)

// adzunaAdapter queries the Adzuna aggregator search API. The cursor is the
// 1-based page number.
type adzunaAdapter struct {
	def     *models.SourceDefinition
	client  *fetchClient
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newAdzunaAdapter(def *models.SourceDefinition, client *fetchClient, logger arbor.ILogger) *adzunaAdapter {
	return &adzunaAdapter{
		def:     def,
		client:  client,
		limiter: newLimiter(def, adzunaDefaultRPS),
		logger:  logger,
	}
}

func (a *adzunaAdapter) Name() string { return a.def.Name }

func (a *adzunaAdapter) Type() string { return models.SourceTypeAdzuna }

// adzunaEnvelope keeps result objects opaque; the normalizer owns their shape
type adzunaEnvelope struct {
	Results []json.RawMessage `json:"results"`
}

// adzunaRef is the slice of one result needed for record identity
type adzunaRef struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

func (a *adzunaAdapter) FetchPage(ctx context.Context, query models.QuerySpec, cursor string) (*interfaces.FetchPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}

	page := 1
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 1 {
			return nil, &models.PermanentFetchError{
				Source: a.def.Name,
				Reason: fmt.Sprintf("invalid page cursor %q", cursor),
			}
		}
		page = parsed
	}

	base := a.def.BaseURL
	if base == "" {
		base = adzunaDefaultBaseURL
	}

	params := url.Values{}
	params.Set("app_id", a.def.Auth.AppID)
	params.Set("app_key", a.def.Auth.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")
	if query.Keywords != "" {
		params.Set("what", query.Keywords)
	}
	if query.Location != "" {
		params.Set("where", query.Location)
	}

	reqURL := fmt.Sprintf("%s/search/%d?%s", strings.TrimRight(base, "/"), page, params.Encode())

	var envelope adzunaEnvelope
	if err := a.client.getJSON(ctx, a.def.Name, reqURL, nil, &envelope); err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(envelope.Results))
	for _, raw := range envelope.Results {
		var ref adzunaRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			a.logger.Warn().Str("source", a.def.Name).Err(err).Msg("Skipping unreadable result")
			continue
		}
		records = append(records, models.RawRecord{
			SourceName: a.def.Name,
			SourceType: models.SourceTypeAdzuna,
			ExternalID: ref.ID,
			URL:        ref.RedirectURL,
			Payload:    raw,
			FetchedAt:  fetchedAt,
		})
	}

	next := ""
	if len(envelope.Results) == adzunaPageSize {
		next = strconv.Itoa(page + 1)
	}

	return &interfaces.FetchPage{Records: records, NextCursor: next}, nil
}
