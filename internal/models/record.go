package models

import (
	"encoding/json"
	"time"
)

// Employment type constants used by the normalizer's canonical schema
const (
	EmploymentFullTime   = "full_time"
	EmploymentPartTime   = "part_time"
	EmploymentContract   = "contract"
	EmploymentInternship = "internship"
	EmploymentTemporary  = "temporary"
)

// RawRecord is one opaque payload produced by a source adapter. The payload
// shape is source-specific; only the normalizer for that source type knows
// how to interpret it.
type RawRecord struct {
	SourceName  string          `json:"source_name"`  // Registry name of the emitting source
	SourceType  string          `json:"source_type"`  // Adapter type, selects the normalizer mapping
	ExternalID  string          `json:"external_id"`  // Source's own identifier when known at fetch time
	URL         string          `json:"url"`          // Posting URL when known at fetch time
	CompanyHint string          `json:"company_hint"` // Board's company name for single-company sources
	Payload     json.RawMessage `json:"payload"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// NormalizedPosting is the canonical-schema view of one raw record after
// normalization. It carries the source identity needed to build the
// provenance SourceRecord alongside the canonical fields.
type NormalizedPosting struct {
	Title                string    `json:"title"`
	Company              string    `json:"company"`
	Location             string    `json:"location"`
	Description          string    `json:"description"` // Markdown
	CompensationMin      float64   `json:"compensation_min"`
	CompensationMax      float64   `json:"compensation_max"`
	CompensationCurrency string    `json:"compensation_currency"`
	EmploymentType       string    `json:"employment_type"`
	PostedAt             time.Time `json:"posted_at"` // Zero when the source does not report one

	SourceName       string `json:"source_name"`
	SourceExternalID string `json:"source_external_id"`
	SourceURL        string `json:"source_url"`

	Raw []byte `json:"-"` // Snapshot of the raw payload for the SourceRecord
}

// HasCompensation reports whether the source provided any compensation signal
func (n *NormalizedPosting) HasCompensation() bool {
	return n.CompensationMin > 0 || n.CompensationMax > 0
}
