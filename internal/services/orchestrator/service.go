package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/dedup"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/normalizer"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/sources"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/workers"
	"github.com/ternarybob/arbor"
)

// finalizeTimeout bounds the staleness pass and run persistence after the
// run context is already dead
const finalizeTimeout = 30 * time.Second

// Service drives ingestion runs: single-flight admission, bounded fan-out
// over the runnable sources, per-record normalize/fingerprint/resolve in the
// fetching worker, and run finalization (timeout marking, staleness pass,
// audit persistence, completion event). At most one run is active at a time.
type Service struct {
	ingest     *common.IngestConfig
	registry   interfaces.SourceRegistry
	normalizer *normalizer.Service
	dedup      *dedup.Service
	storage    interfaces.StorageManager
	events     interfaces.EventService
	retry      *sources.RetryPolicy
	logger     arbor.ILogger

	mu       sync.Mutex
	activeID string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewService creates a new run orchestrator
func NewService(cfg *common.Config, registry interfaces.SourceRegistry, norm *normalizer.Service, dedupSvc *dedup.Service, storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		ingest:     &cfg.Ingest,
		registry:   registry,
		normalizer: norm,
		dedup:      dedupSvc,
		storage:    storage,
		events:     events,
		retry:      sources.NewRetryPolicy(&cfg.Fetch),
		logger:     logger,
	}
}

// runExec wraps the live run so workers can report progress concurrently.
// Updates and their persistence happen under one lock, which keeps the
// stored run from regressing when two sources finish close together.
type runExec struct {
	mu   sync.Mutex
	run  *models.IngestionRun
	defs []*models.SourceDefinition
}

// update applies a mutation to the live run and persists the result
func (e *runExec) update(ctx context.Context, runs interfaces.RunStorage, logger arbor.ILogger, fn func(*models.IngestionRun)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.run)
	if err := runs.SaveRun(ctx, e.run); err != nil {
		logger.Warn().Err(err).Str("run_id", e.run.ID).Msg("Failed to persist run progress")
	}
}

// StartRun begins a run in the background and returns its registered state
func (s *Service) StartRun(ctx context.Context, opts interfaces.RunOptions) (*models.IngestionRun, error) {
	exec, runCtx, cancel, err := s.begin(context.Background(), ctx, opts)
	if err != nil {
		return nil, err
	}

	snapshot := copyRun(exec.run)

	common.SafeGo(s.logger, "ingestion-run-"+exec.run.ID, func() {
		defer s.release()
		s.execute(runCtx, cancel, exec)
	})

	return snapshot, nil
}

// RunOnce executes a run synchronously and returns the completed run
func (s *Service) RunOnce(ctx context.Context, opts interfaces.RunOptions) (*models.IngestionRun, error) {
	exec, runCtx, cancel, err := s.begin(ctx, ctx, opts)
	if err != nil {
		return nil, err
	}

	defer s.release()
	s.execute(runCtx, cancel, exec)
	return exec.run, nil
}

// ActiveRun returns the id of the run in flight, if any
func (s *Service) ActiveRun() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID, s.activeID != ""
}

// Stop cancels the active run, if any, and waits for it to finish
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// begin takes the single-flight lock, resolves the runnable sources,
// allocates the run sequence and registers the run. The run context derives
// from parent with the configured run timeout; opCtx covers the admission
// reads and writes only.
func (s *Service) begin(parent, opCtx context.Context, opts interfaces.RunOptions) (*runExec, context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		return nil, nil, nil, interfaces.ErrRunInProgress
	}

	runnable, skipped, err := s.registry.Runnable(opts.SourceNames)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(runnable) == 0 {
		return nil, nil, nil, interfaces.ErrNoRunnableSources
	}

	seq, err := s.storage.RunStorage().NextRunSeq(opCtx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to allocate run sequence: %w", err)
	}

	trigger := opts.Trigger
	if trigger == "" {
		trigger = interfaces.TriggerManual
	}

	run := &models.IngestionRun{
		ID:             common.NewRunID(),
		Seq:            seq,
		Status:         models.RunStatusRunning,
		Trigger:        trigger,
		SkippedSources: skipped,
		PerSource:      make(map[string]*models.SourceRunStatus, len(runnable)),
		StartedAt:      time.Now(),
	}
	for _, def := range runnable {
		run.SourceNames = append(run.SourceNames, def.Name)
		run.PerSource[def.Name] = &models.SourceRunStatus{State: models.SourceRunPending}
	}

	if err := s.storage.RunStorage().SaveRun(opCtx, run); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to register run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(parent, s.ingest.RunTimeout)

	s.activeID = run.ID
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info().
		Str("run_id", run.ID).
		Int64("seq", seq).
		Str("trigger", trigger).
		Int("sources", len(runnable)).
		Int("skipped", len(skipped)).
		Msg("Ingestion run starting")

	s.publish(interfaces.EventRunStarted, map[string]interface{}{
		"run_id":  run.ID,
		"seq":     seq,
		"trigger": trigger,
		"sources": run.SourceNames,
	})

	return &runExec{run: run, defs: runnable}, runCtx, cancel, nil
}

// release clears the single-flight lock
func (s *Service) release() {
	s.mu.Lock()
	close(s.done)
	s.activeID = ""
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
}

// execute fans the run's sources out over the worker pool and finalizes the
// run once every source reached a terminal sub-state or the run context died
func (s *Service) execute(runCtx context.Context, cancel context.CancelFunc, exec *runExec) {
	defer cancel()

	pool := workers.NewPool(runCtx, s.ingest.MaxConcurrentSources, s.logger)
	pool.Start()

	for _, def := range exec.defs {
		def := def
		if err := pool.Submit(func(ctx context.Context) error {
			s.processSource(ctx, exec, def)
			return nil
		}); err != nil {
			break
		}
	}
	pool.Wait()

	s.finalize(runCtx, exec)
}

// processSource runs one source to completion and records its terminal state
func (s *Service) processSource(ctx context.Context, exec *runExec, def *models.SourceDefinition) {
	started := time.Now()
	exec.update(ctx, s.storage.RunStorage(), s.logger, func(run *models.IngestionRun) {
		run.PerSource[def.Name].State = models.SourceRunFetching
	})

	status := &models.SourceRunStatus{State: models.SourceRunFetching}
	err := s.fetchSource(ctx, def, status, exec.run.Seq)
	status.Duration = time.Since(started)

	if err != nil {
		status.State = models.SourceRunFailed
		status.Error = failureLabel(err)
		if !errors.Is(err, context.Canceled) {
			s.registry.RecordFailure(def.Name, err)
		}
		s.logger.Warn().
			Err(err).
			Str("source", def.Name).
			Int("fetched", status.FetchedCount).
			Msg("Source fetch failed")
	} else {
		status.State = models.SourceRunSucceeded
		s.registry.RecordSuccess(def.Name)
		s.logger.Info().
			Str("source", def.Name).
			Int("fetched", status.FetchedCount).
			Int("new", status.NewCount).
			Int("merged", status.MergedCount).
			Int("dropped", status.DroppedCount).
			Str("duration", status.Duration.Round(time.Millisecond).String()).
			Msg("Source fetch complete")
	}

	exec.update(ctx, s.storage.RunStorage(), s.logger, func(run *models.IngestionRun) {
		run.PerSource[def.Name] = status
	})

	s.publish(interfaces.EventSourceCompleted, map[string]interface{}{
		"run_id":  exec.run.ID,
		"source":  def.Name,
		"state":   string(status.State),
		"fetched": status.FetchedCount,
		"new":     status.NewCount,
		"merged":  status.MergedCount,
		"dropped": status.DroppedCount,
		"error":   status.Error,
	})
}

// fetchSource walks every configured query page by page. The cursor advances
// only after a page's records are fully processed, and cancellation is
// checked between pages.
func (s *Service) fetchSource(ctx context.Context, def *models.SourceDefinition, status *models.SourceRunStatus, runSeq int64) error {
	adapter, err := s.registry.Adapter(def.Name)
	if err != nil {
		return err
	}

	maxPages := def.MaxPages
	if maxPages <= 0 {
		maxPages = s.ingest.MaxPagesPerSource
	}

	queries := def.Queries
	if len(queries) == 0 {
		queries = []models.QuerySpec{{}}
	}

	for _, query := range queries {
		cursor := ""
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			var fetched *interfaces.FetchPage
			err := s.retry.Execute(ctx, s.logger, def.Name, func() error {
				p, ferr := adapter.FetchPage(ctx, query, cursor)
				if ferr != nil {
					return ferr
				}
				fetched = p
				return nil
			})
			if err != nil {
				return err
			}

			status.FetchedCount += len(fetched.Records)
			for i := range fetched.Records {
				if err := s.processRecord(ctx, &fetched.Records[i], status, runSeq); err != nil {
					return err
				}
			}

			cursor = fetched.NextCursor
			if cursor == "" {
				break
			}
			if maxPages > 0 && page >= maxPages {
				s.logger.Debug().
					Str("source", def.Name).
					Int("pages", page).
					Msg("Page cap reached, stopping pagination")
				break
			}
		}
	}
	return nil
}

// processRecord runs one raw record through normalize and resolve. A
// normalization failure drops the record and keeps the source going; a
// resolve failure aborts the source.
func (s *Service) processRecord(ctx context.Context, raw *models.RawRecord, status *models.SourceRunStatus, runSeq int64) error {
	np, err := s.normalizer.Normalize(raw)
	if err != nil {
		var ne *models.NormalizationError
		if errors.As(err, &ne) {
			status.DroppedCount++
			s.logger.Debug().
				Str("source", raw.SourceName).
				Str("external_id", raw.ExternalID).
				Str("reason", ne.Reason).
				Msg("Record dropped by normalization")
			return nil
		}
		status.DroppedCount++
		s.logger.Warn().Err(err).Str("source", raw.SourceName).Msg("Unexpected normalization failure, record dropped")
		return nil
	}

	resolution, err := s.dedup.Resolve(ctx, np, runSeq)
	if err != nil {
		return fmt.Errorf("resolve failed for %s: %w", raw.SourceName, err)
	}

	switch resolution.Outcome {
	case dedup.OutcomeInsert:
		status.NewCount++
	default:
		status.MergedCount++
	}
	return nil
}

// finalize marks sources the timeout caught mid-flight, runs the staleness
// pass, persists the completed run and emits the completion summary. It runs
// under its own context because the run context is typically already dead
// when the run timed out.
func (s *Service) finalize(runCtx context.Context, exec *runExec) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	run := exec.run
	label := failureLabel(runCtx.Err())

	for name, status := range run.PerSource {
		if status.Terminal() {
			continue
		}
		status.State = models.SourceRunFailed
		if status.Error == "" {
			status.Error = label
		}
		s.logger.Warn().Str("source", name).Str("reason", status.Error).Msg("Source did not finish before the run ended")
	}

	for _, status := range run.PerSource {
		run.NewPostingsCount += status.NewCount
		run.MergedCount += status.MergedCount
		run.DroppedCount += status.DroppedCount
	}

	stale, err := s.dedup.MarkStale(ctx, run)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Staleness pass failed")
	}
	run.StaleMarkedCount = stale

	run.Status = models.RunStatusCompleted
	run.CompletedAt = time.Now()

	if err := s.storage.RunStorage().SaveRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist completed run")
	}

	if s.ingest.RunHistoryLimit > 0 {
		if pruned, err := s.storage.RunStorage().PruneRuns(ctx, s.ingest.RunHistoryLimit); err != nil {
			s.logger.Warn().Err(err).Msg("Run history pruning failed")
		} else if pruned > 0 {
			s.logger.Debug().Int("pruned", pruned).Msg("Old runs pruned")
		}
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int64("seq", run.Seq).
		Int("new", run.NewPostingsCount).
		Int("merged", run.MergedCount).
		Int("dropped", run.DroppedCount).
		Int("stale", run.StaleMarkedCount).
		Int("failed_sources", len(run.FailedSources())).
		Str("duration", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()).
		Msg("Ingestion run complete")

	s.publish(interfaces.EventRunCompleted, run.Summary())
}

// failureLabel maps context errors onto the run vocabulary
func failureLabel(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case err != nil:
		return err.Error()
	}
	return ""
}

func (s *Service) publish(eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Event publish failed")
	}
}

// copyRun snapshots a run for callers that outlive the registration lock
func copyRun(run *models.IngestionRun) *models.IngestionRun {
	dup := *run
	dup.SourceNames = append([]string(nil), run.SourceNames...)
	dup.SkippedSources = append([]string(nil), run.SkippedSources...)
	dup.PerSource = make(map[string]*models.SourceRunStatus, len(run.PerSource))
	for name, status := range run.PerSource {
		st := *status
		dup.PerSource[name] = &st
	}
	return &dup
}
