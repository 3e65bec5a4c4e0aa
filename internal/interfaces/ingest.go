package interfaces

import (
	"context"
	"errors"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// ErrRunInProgress is returned when a run is requested while another is active
var ErrRunInProgress = errors.New("ingestion run already in progress")

// ErrNoRunnableSources is returned when every requested source is disabled or
// suspended by an open circuit breaker
var ErrNoRunnableSources = errors.New("no runnable sources")

// Run trigger origins
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// RunOptions selects what an ingestion run covers
type RunOptions struct {
	SourceNames []string // Empty: all enabled sources
	Trigger     string
}

// IngestOrchestrator drives the ingestion run lifecycle. At most one run is
// active at a time; StartRun rejects overlapping requests with
// ErrRunInProgress rather than queueing them.
type IngestOrchestrator interface {
	// StartRun begins a run in the background and returns it once registered
	StartRun(ctx context.Context, opts RunOptions) (*models.IngestionRun, error)

	// RunOnce executes a run synchronously and returns the completed run
	RunOnce(ctx context.Context, opts RunOptions) (*models.IngestionRun, error)

	// ActiveRun returns the id of the run in flight, if any
	ActiveRun() (string, bool)

	// Stop cancels the active run, if any, and waits for it to finish
	Stop()
}
