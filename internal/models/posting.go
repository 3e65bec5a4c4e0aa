package models

import (
	"time"
)

// PostingStatus represents the lifecycle state of a canonical posting
type PostingStatus string

const (
	PostingStatusActive  PostingStatus = "active"
	PostingStatusStale   PostingStatus = "stale"   // Not re-observed for the configured number of runs
	PostingStatusRemoved PostingStatus = "removed" // Operator-removed, kept for audit
)

// Posting represents one canonical, deduplicated job opening.
// Exactly one Posting exists per real-world opening known to the system;
// no two active Postings share a fingerprint. Provenance lives in
// SourceRecord rows that reference the Posting by ID.
type Posting struct {
	// Identity
	ID          string `json:"id"`                             // post_{uuid}
	Fingerprint string `json:"fingerprint" badgerhold:"index"` // Content hash of canonical title|company|location

	// Canonical content (description is markdown)
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`

	// Compensation, annualized by the normalizer
	CompensationMin      float64 `json:"compensation_min,omitempty"`
	CompensationMax      float64 `json:"compensation_max,omitempty"`
	CompensationCurrency string  `json:"compensation_currency,omitempty"`

	EmploymentType string `json:"employment_type,omitempty"`

	// Canonicalized match keys for near-duplicate candidate lookup
	CompanyKey  string `json:"company_key" badgerhold:"index"`
	LocationKey string `json:"location_key"`

	Status PostingStatus `json:"status" badgerhold:"index"`

	// Observation tracking
	PostedAt    time.Time `json:"posted_at"` // As reported by the source; zero when unknown
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	// Staleness bookkeeping. LastSeenRunSeq is the sequence number of the
	// last run that observed this posting; MissedRuns counts consecutive
	// completed runs where every participating provenance source succeeded
	// but none reported the posting.
	LastSeenRunSeq int64    `json:"last_seen_run_seq"`
	MissedRuns     int      `json:"missed_runs"`
	Sources        []string `json:"sources"` // Provenance source names, kept in sync with SourceRecords

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the posting participates in dedup candidacy
func (p *Posting) IsActive() bool {
	return p.Status == PostingStatusActive
}

// HasSource reports whether the posting already carries provenance from the named source
func (p *Posting) HasSource(name string) bool {
	for _, s := range p.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// AddSource records a provenance source name if not already present
func (p *Posting) AddSource(name string) {
	if !p.HasSource(name) {
		p.Sources = append(p.Sources, name)
	}
}

// PostingStats represents aggregate counts for the catalog
type PostingStats struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Stale       int            `json:"stale"`
	Removed     int            `json:"removed"`
	BySource    map[string]int `json:"by_source"`
	LastUpdated time.Time      `json:"last_updated"`
}
