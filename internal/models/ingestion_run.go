package models

import (
	"time"
)

// RunStatus represents the state of an ingestion run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
)

// SourceRunState represents a single source's fan-out state within a run
type SourceRunState string

const (
	SourceRunPending   SourceRunState = "pending"
	SourceRunFetching  SourceRunState = "fetching"
	SourceRunSucceeded SourceRunState = "succeeded"
	SourceRunFailed    SourceRunState = "failed"
)

// SourceRunStatus tracks one source's outcome within an ingestion run
type SourceRunStatus struct {
	State        SourceRunState `json:"state"`
	FetchedCount int            `json:"fetched_count"` // Raw records fetched
	NewCount     int            `json:"new_count"`     // Records that inserted a new posting
	MergedCount  int            `json:"merged_count"`  // Records merged into an existing posting
	DroppedCount int            `json:"dropped_count"` // Records dropped by normalization
	Error        string         `json:"error,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Terminal reports whether the source reached a terminal sub-state
func (s *SourceRunStatus) Terminal() bool {
	return s.State == SourceRunSucceeded || s.State == SourceRunFailed
}

// IngestionRun is the audit record for one pipeline run. It is created when
// the run starts, finalized once every source reaches a terminal sub-state or
// the run timeout fires, and never mutated after completion.
type IngestionRun struct {
	ID             string                      `json:"id"`                     // run_{uuid}
	Seq            int64                       `json:"seq" badgerhold:"index"` // Monotonic run sequence, drives staleness
	Status         RunStatus                   `json:"status" badgerhold:"index"`
	Trigger        string                      `json:"trigger"`        // schedule, manual or cli
	SourceNames    []string                    `json:"source_names"`   // Sources included in this run
	SkippedSources []string                    `json:"skipped_sources,omitempty"` // Excluded by an open circuit breaker
	PerSource      map[string]*SourceRunStatus `json:"per_source"`
	StartedAt      time.Time                   `json:"started_at"`
	CompletedAt    time.Time                   `json:"completed_at,omitempty"`

	// Aggregates, finalized at completion
	NewPostingsCount int `json:"new_postings_count"`
	MergedCount      int `json:"merged_count"`
	DroppedCount     int `json:"dropped_count"`
	StaleMarkedCount int `json:"stale_marked_count"`
}

// FailedSources returns the names of sources that ended in the failed state
func (r *IngestionRun) FailedSources() []string {
	var failed []string
	for name, st := range r.PerSource {
		if st.State == SourceRunFailed {
			failed = append(failed, name)
		}
	}
	return failed
}

// SucceededSources returns the names of sources that ended in the succeeded state
func (r *IngestionRun) SucceededSources() []string {
	var ok []string
	for name, st := range r.PerSource {
		if st.State == SourceRunSucceeded {
			ok = append(ok, name)
		}
	}
	return ok
}

// Summary produces the completion summary emitted to external collaborators
func (r *IngestionRun) Summary() *RunSummary {
	return &RunSummary{
		RunID:            r.ID,
		Seq:              r.Seq,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		NewPostingsCount: r.NewPostingsCount,
		MergedCount:      r.MergedCount,
		DroppedCount:     r.DroppedCount,
		StaleMarkedCount: r.StaleMarkedCount,
		PerSource:        r.PerSource,
	}
}

// RunSummary is the run completion event payload consumed by the external
// notification/analytics collaborators.
type RunSummary struct {
	RunID            string                      `json:"run_id"`
	Seq              int64                       `json:"seq"`
	StartedAt        time.Time                   `json:"started_at"`
	CompletedAt      time.Time                   `json:"completed_at"`
	NewPostingsCount int                         `json:"new_postings_count"`
	MergedCount      int                         `json:"merged_count"`
	DroppedCount     int                         `json:"dropped_count"`
	StaleMarkedCount int                         `json:"stale_marked_count"`
	PerSource        map[string]*SourceRunStatus `json:"per_source"`
}
