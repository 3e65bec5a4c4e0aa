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
	leverDefaultBaseURL = "https://api.lever.co/v0/postings"
	leverPageSize       = 100
	leverDefaultRPS     = 2.0
)

// leverAdapter fetches a Lever postings site. The cursor is the skip offset.
type leverAdapter struct {
	def     *models.SourceDefinition
	client  *fetchClient
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newLeverAdapter(def *models.SourceDefinition, client *fetchClient, logger arbor.ILogger) *leverAdapter {
	return &leverAdapter{
		def:     def,
		client:  client,
		limiter: newLimiter(def, leverDefaultRPS),
		logger:  logger,
	}
}

func (a *leverAdapter) Name() string { return a.def.Name }

func (a *leverAdapter) Type() string { return models.SourceTypeLever }

type leverRef struct {
	ID        string `json:"id"`
	HostedURL string `json:"hostedUrl"`
}

func (a *leverAdapter) FetchPage(ctx context.Context, _ models.QuerySpec, cursor string) (*interfaces.FetchPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}

	skip := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, &models.PermanentFetchError{
				Source: a.def.Name,
				Reason: fmt.Sprintf("invalid skip cursor %q", cursor),
			}
		}
		skip = parsed
	}

	base := a.def.BaseURL
	if base == "" {
		base = leverDefaultBaseURL
	}

	params := url.Values{}
	params.Set("mode", "json")
	params.Set("skip", strconv.Itoa(skip))
	params.Set("limit", strconv.Itoa(leverPageSize))

	reqURL := fmt.Sprintf("%s/%s?%s", strings.TrimRight(base, "/"), url.PathEscape(a.def.Board), params.Encode())

	// The postings endpoint returns a bare JSON array
	var postings []json.RawMessage
	if err := a.client.getJSON(ctx, a.def.Name, reqURL, nil, &postings); err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(postings))
	for _, raw := range postings {
		var ref leverRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			a.logger.Warn().Str("source", a.def.Name).Err(err).Msg("Skipping unreadable posting")
			continue
		}
		records = append(records, models.RawRecord{
			SourceName:  a.def.Name,
			SourceType:  models.SourceTypeLever,
			ExternalID:  ref.ID,
			URL:         ref.HostedURL,
			CompanyHint: a.def.CompanyName(),
			Payload:     raw,
			FetchedAt:   fetchedAt,
		})
	}

	next := ""
	if len(postings) == leverPageSize {
		next = strconv.Itoa(skip + leverPageSize)
	}

	return &interfaces.FetchPage{Records: records, NextCursor: next}, nil
}
