package interfaces

import (
	"context"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// FetchPage is one page of raw records plus the cursor for the following page
type FetchPage struct {
	Records    []models.RawRecord
	NextCursor string // Empty when the source is exhausted
}

// SourceAdapter fetches raw postings from one configured source. Adapters own
// their source's auth and pagination quirks; retry, rate limiting and breaker
// accounting happen in the layers above.
type SourceAdapter interface {
	// Name returns the configured source name
	Name() string

	// Type returns the adapter type constant
	Type() string

	// FetchPage retrieves one page of raw records. An empty cursor requests
	// the first page. Sources without server-side search ignore the query.
	FetchPage(ctx context.Context, query models.QuerySpec, cursor string) (*FetchPage, error)
}

// BreakerState is the circuit state of one source
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// SourceStatus is the registry's view of one source
type SourceStatus struct {
	Definition          *models.SourceDefinition `json:"definition"`
	Breaker             BreakerState             `json:"breaker"`
	ConsecutiveFailures int                      `json:"consecutive_failures"`
	OpenedAt            *time.Time               `json:"opened_at,omitempty"`
	CooldownUntil       *time.Time               `json:"cooldown_until,omitempty"`
	LastSuccessAt       *time.Time               `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time               `json:"last_failure_at,omitempty"`
	LastError           string                   `json:"last_error,omitempty"`
}

// SourceRegistry holds source definitions and their adapters. Definitions are
// loaded once at startup and read-only afterwards; only circuit breaker state
// mutates, guarded per source.
type SourceRegistry interface {
	// Get returns the definition for a registered source
	Get(name string) (*models.SourceDefinition, error)

	// List returns status for every registered source, ordered by name
	List() []*SourceStatus

	// Status returns status for one source
	Status(name string) (*SourceStatus, error)

	// Runnable filters the requested names (nil for all) down to enabled
	// sources whose breaker admits a fetch now. Skipped carries the names
	// excluded by an open breaker.
	Runnable(names []string) (runnable []*models.SourceDefinition, skipped []string, err error)

	// Adapter returns the fetch adapter for a registered source
	Adapter(name string) (SourceAdapter, error)

	// RecordSuccess closes the breaker accounting window after a successful fetch
	RecordSuccess(name string)

	// RecordFailure counts a failed fetch and trips the breaker on the threshold
	RecordFailure(name string, err error)

	// ResetBreaker manually closes an open breaker
	ResetBreaker(name string) error
}
