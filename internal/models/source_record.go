package models

import (
	"time"
)

// SourceRecord is the provenance link between one external source's view of a
// job and the canonical Posting it resolved to. A SourceRecord is never
// orphaned: merges re-point records to the surviving Posting in the same
// transaction that updates the postings.
type SourceRecord struct {
	ID               string    `json:"id"`                              // src_{uuid}
	PostingID        string    `json:"posting_id" badgerhold:"index"`   // Owning canonical posting
	SourceName       string    `json:"source_name" badgerhold:"index"`  // Registry name of the source
	SourceExternalID string    `json:"source_external_id"`              // The source's own identifier for the job
	SourceURL        string    `json:"source_url"`
	RawPayload       []byte    `json:"raw_payload,omitempty"`           // Snapshot of the raw record as fetched
	ObservedAt       time.Time `json:"observed_at"`
	CreatedAt        time.Time `json:"created_at"`
}
