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
	greenhouseDefaultBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	greenhouseDefaultRPS     = 2.0
)

// greenhouseAdapter fetches a Greenhouse job board. The public board endpoint
// returns every open posting in one response, so there is never a next page.
type greenhouseAdapter struct {
	def     *models.SourceDefinition
	client  *fetchClient
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newGreenhouseAdapter(def *models.SourceDefinition, client *fetchClient, logger arbor.ILogger) *greenhouseAdapter {
	return &greenhouseAdapter{
		def:     def,
		client:  client,
		limiter: newLimiter(def, greenhouseDefaultRPS),
		logger:  logger,
	}
}

func (a *greenhouseAdapter) Name() string { return a.def.Name }

func (a *greenhouseAdapter) Type() string { return models.SourceTypeGreenhouse }

type greenhouseEnvelope struct {
	Jobs []json.RawMessage `json:"jobs"`
}

type greenhouseRef struct {
	ID          int64  `json:"id"`
	AbsoluteURL string `json:"absolute_url"`
}

func (a *greenhouseAdapter) FetchPage(ctx context.Context, _ models.QuerySpec, _ string) (*interfaces.FetchPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}

	base := a.def.BaseURL
	if base == "" {
		base = greenhouseDefaultBaseURL
	}

	reqURL := fmt.Sprintf("%s/%s/jobs?content=true", strings.TrimRight(base, "/"), url.PathEscape(a.def.Board))

	var envelope greenhouseEnvelope
	if err := a.client.getJSON(ctx, a.def.Name, reqURL, nil, &envelope); err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(envelope.Jobs))
	for _, raw := range envelope.Jobs {
		var ref greenhouseRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			a.logger.Warn().Str("source", a.def.Name).Err(err).Msg("Skipping unreadable job")
			continue
		}
		records = append(records, models.RawRecord{
			SourceName:  a.def.Name,
			SourceType:  models.SourceTypeGreenhouse,
			ExternalID:  strconv.FormatInt(ref.ID, 10),
			URL:         ref.AbsoluteURL,
			CompanyHint: a.def.CompanyName(),
			Payload:     raw,
			FetchedAt:   fetchedAt,
		})
	}

	return &interfaces.FetchPage{Records: records, NextCursor: ""}, nil
}
