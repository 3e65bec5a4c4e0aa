package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
)

// Service drives scheduled ingestion runs off a cron expression. A fire
// triggers a background run through the orchestrator; when the previous run
// is still active the fire is skipped, not queued, so a slow run never
// stacks up followers.
type Service struct {
	cfg          *common.SchedulerConfig
	orchestrator interfaces.IngestOrchestrator
	events       interfaces.EventService
	cron         *cron.Cron
	entryID      cron.EntryID
	logger       arbor.ILogger

	mu        sync.Mutex
	running   bool
	lastRun   *time.Time
	lastError string
	inFlight  sync.WaitGroup
}

// NewService creates a new run scheduler
func NewService(cfg *common.SchedulerConfig, orchestrator interfaces.IngestOrchestrator, events interfaces.EventService, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		cfg:          cfg,
		orchestrator: orchestrator,
		events:       events,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start begins the cron loop using the configured schedule
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	if err := common.ValidateSchedule(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	id, err := s.cron.AddFunc(s.cfg.Schedule, s.trigger)
	if err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for an in-flight trigger to return.
// The active ingestion run itself is owned by the orchestrator and keeps
// running; shutdown cancels it separately.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.inFlight.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the schedule and its last/next fire times
func (s *Service) Status() *interfaces.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &interfaces.ScheduleStatus{
		Enabled:   s.cfg.Enabled,
		Schedule:  s.cfg.Schedule,
		IsRunning: s.running,
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// trigger fires one scheduled run
func (s *Service) trigger() {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	now := time.Now()
	s.publish(interfaces.EventRunTriggered, map[string]interface{}{
		"trigger": interfaces.TriggerSchedule,
		"at":      now.Format(time.RFC3339),
	})

	run, err := s.orchestrator.StartRun(context.Background(), interfaces.RunOptions{
		Trigger: interfaces.TriggerSchedule,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &now

	switch {
	case errors.Is(err, interfaces.ErrRunInProgress):
		s.lastError = ""
		s.logger.Warn().Msg("Previous run still active, skipping this fire")
	case errors.Is(err, interfaces.ErrNoRunnableSources):
		s.lastError = err.Error()
		s.logger.Warn().Msg("No runnable sources, skipping this fire")
	case err != nil:
		s.lastError = err.Error()
		s.logger.Error().Err(err).Msg("Scheduled run failed to start")
	default:
		s.lastError = ""
		s.logger.Info().
			Str("run_id", run.ID).
			Int64("seq", run.Seq).
			Msg("Scheduled run started")
	}
}

func (s *Service) publish(eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Event publish failed")
	}
}
