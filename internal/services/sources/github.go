package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

const (
	githubPageSize   = 100
	githubDefaultRPS = 1.0
)

// githubAdapter reads open issues from a repository that runs its hiring
// through an issue tracker. The cursor is the page number reported by the
// API's pagination response.
type githubAdapter struct {
	def     *models.SourceDefinition
	client  *github.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

func newGitHubAdapter(def *models.SourceDefinition, logger arbor.ILogger) (*githubAdapter, error) {
	var httpClient *http.Client
	if def.Auth.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: def.Auth.Token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if def.BaseURL != "" {
		enterprise, err := client.WithEnterpriseURLs(def.BaseURL, def.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("source %q: invalid github base url: %w", def.Name, err)
		}
		client = enterprise
	}

	return &githubAdapter{
		def:     def,
		client:  client,
		limiter: newLimiter(def, githubDefaultRPS),
		logger:  logger,
	}, nil
}

func (a *githubAdapter) Name() string { return a.def.Name }

func (a *githubAdapter) Type() string { return models.SourceTypeGitHub }

// issueItem matches the payload shape the normalizer expects for github sources
type issueItem struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	HTMLURL   string   `json:"html_url"`
	Labels    []string `json:"labels"`
	CreatedAt string   `json:"created_at"`
}

func (a *githubAdapter) FetchPage(ctx context.Context, _ models.QuerySpec, cursor string) (*interfaces.FetchPage, error) {
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

	opts := &github.IssueListByRepoOptions{
		State:  "open",
		Labels: a.def.GitHub.Labels,
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: githubPageSize,
		},
	}

	issues, resp, err := a.client.Issues.ListByRepo(ctx, a.def.GitHub.Owner, a.def.GitHub.Repo, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyGitHubError(a.def.Name, err)
	}

	fetchedAt := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(issues))
	for _, issue := range issues {
		// The issues endpoint also returns pull requests
		if issue.IsPullRequest() {
			continue
		}

		labels := make([]string, 0, len(issue.Labels))
		for _, label := range issue.Labels {
			labels = append(labels, label.GetName())
		}

		item := issueItem{
			Number:    issue.GetNumber(),
			Title:     issue.GetTitle(),
			Body:      issue.GetBody(),
			HTMLURL:   issue.GetHTMLURL(),
			Labels:    labels,
			CreatedAt: issue.GetCreatedAt().Format(time.RFC3339),
		}

		payload, err := json.Marshal(item)
		if err != nil {
			a.logger.Warn().Str("source", a.def.Name).Err(err).Msg("Skipping unencodable issue")
			continue
		}

		records = append(records, models.RawRecord{
			SourceName:  a.def.Name,
			SourceType:  models.SourceTypeGitHub,
			ExternalID:  strconv.Itoa(item.Number),
			URL:         item.HTMLURL,
			CompanyHint: a.def.CompanyName(),
			Payload:     payload,
			FetchedAt:   fetchedAt,
		})
	}

	next := ""
	if resp != nil && resp.NextPage > 0 {
		next = strconv.Itoa(resp.NextPage)
	}

	return &interfaces.FetchPage{Records: records, NextCursor: next}, nil
}

// classifyGitHubError maps go-github error types onto the fetch taxonomy
func classifyGitHubError(source string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		retryAfter := time.Until(rateErr.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &models.TransientFetchError{
			Source:     source,
			StatusCode: http.StatusForbidden,
			RetryAfter: retryAfter,
			Err:        err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		var retryAfter time.Duration
		if abuseErr.RetryAfter != nil {
			retryAfter = *abuseErr.RetryAfter
		}
		return &models.TransientFetchError{
			Source:     source,
			StatusCode: http.StatusForbidden,
			RetryAfter: retryAfter,
			Err:        err,
		}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return models.ClassifyHTTPStatus(source, respErr.Response.StatusCode, 0)
	}

	return models.ClassifyFetchError(source, err)
}
