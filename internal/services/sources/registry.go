package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// breakerKeyPrefix namespaces breaker snapshots in the KV store
const breakerKeyPrefix = "breaker_"

// breakerSnapshot is the persisted slice of breaker state; it survives
// restarts so an open breaker stays open across a redeploy
type breakerSnapshot struct {
	State               interfaces.BreakerState `json:"state"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	OpenedAt            time.Time               `json:"opened_at,omitempty"`
	CooldownUntil       time.Time               `json:"cooldown_until,omitempty"`
}

// sourceState is one source's definition, adapter, and breaker state.
// The definition and adapter are read-only after construction; breaker
// fields are guarded by mu.
type sourceState struct {
	mu      sync.Mutex
	def     *models.SourceDefinition
	adapter interfaces.SourceAdapter

	breaker             interfaces.BreakerState
	consecutiveFailures int
	openedAt            time.Time
	cooldownUntil       time.Time
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastError           string
}

// Registry implements interfaces.SourceRegistry. Built once at startup from
// the loaded source definitions; the map itself never changes afterwards.
type Registry struct {
	sources   map[string]*sourceState
	names     []string // Sorted for stable listings
	threshold int
	cooldown  time.Duration
	kv        interfaces.KeyValueStorage
	events    interfaces.EventService
	logger    arbor.ILogger
}

// NewRegistry builds the registry from loaded definitions and their adapters.
// A nil kv disables breaker snapshot persistence.
func NewRegistry(cfg *common.SchedulerConfig, defs []*models.SourceDefinition, adapters map[string]interfaces.SourceAdapter, kv interfaces.KeyValueStorage, events interfaces.EventService, logger arbor.ILogger) (*Registry, error) {
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Hour
	}

	registry := &Registry{
		sources:   make(map[string]*sourceState, len(defs)),
		threshold: threshold,
		cooldown:  cooldown,
		kv:        kv,
		events:    events,
		logger:    logger,
	}

	for _, def := range defs {
		if _, exists := registry.sources[def.Name]; exists {
			return nil, fmt.Errorf("duplicate source name: %s", def.Name)
		}
		adapter, ok := adapters[def.Name]
		if !ok {
			return nil, fmt.Errorf("no adapter built for source: %s", def.Name)
		}
		registry.sources[def.Name] = &sourceState{
			def:     def,
			adapter: adapter,
			breaker: interfaces.BreakerClosed,
		}
		registry.names = append(registry.names, def.Name)
	}
	sort.Strings(registry.names)

	registry.restoreBreakers()

	logger.Info().
		Int("sources", len(registry.names)).
		Int("breaker_threshold", threshold).
		Msg("Source registry initialized")

	return registry, nil
}

// restoreBreakers reloads persisted breaker snapshots so an open breaker
// stays open across a restart. Snapshots for sources that no longer exist
// are ignored.
func (r *Registry) restoreBreakers() {
	if r.kv == nil {
		return
	}

	pairs, err := r.kv.ListByPrefix(context.Background(), breakerKeyPrefix)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load breaker snapshots")
		return
	}

	restored := 0
	for _, pair := range pairs {
		name := strings.TrimPrefix(pair.Key, breakerKeyPrefix)
		state, ok := r.sources[name]
		if !ok {
			continue
		}

		var snapshot breakerSnapshot
		if err := json.Unmarshal([]byte(pair.Value), &snapshot); err != nil {
			r.logger.Warn().Str("source", name).Err(err).Msg("Discarding unreadable breaker snapshot")
			continue
		}

		state.mu.Lock()
		state.breaker = snapshot.State
		state.consecutiveFailures = snapshot.ConsecutiveFailures
		state.openedAt = snapshot.OpenedAt
		state.cooldownUntil = snapshot.CooldownUntil
		state.mu.Unlock()

		if snapshot.State == interfaces.BreakerOpen {
			restored++
		}
	}

	if restored > 0 {
		r.logger.Info().Int("open_breakers", restored).Msg("Restored breaker state")
	}
}

// persistBreaker writes one source's breaker snapshot to the KV store
func (r *Registry) persistBreaker(name string, snapshot breakerSnapshot) {
	if r.kv == nil {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := r.kv.Set(context.Background(), breakerKeyPrefix+name, string(data)); err != nil {
		r.logger.Warn().Str("source", name).Err(err).Msg("Failed to persist breaker snapshot")
	}
}

// Get returns the definition for a registered source
func (r *Registry) Get(name string) (*models.SourceDefinition, error) {
	state, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return state.def, nil
}

// List returns status for every registered source, ordered by name
func (r *Registry) List() []*interfaces.SourceStatus {
	statuses := make([]*interfaces.SourceStatus, 0, len(r.names))
	for _, name := range r.names {
		state := r.sources[name]
		state.mu.Lock()
		statuses = append(statuses, state.statusLocked())
		state.mu.Unlock()
	}
	return statuses
}

// Status returns status for one source
func (r *Registry) Status(name string) (*interfaces.SourceStatus, error) {
	state, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.statusLocked(), nil
}

// Runnable filters the requested names (nil for all) down to enabled sources
// whose breaker admits a fetch now
func (r *Registry) Runnable(names []string) ([]*models.SourceDefinition, []string, error) {
	requested := names
	if len(requested) == 0 {
		requested = r.names
	}

	var runnable []*models.SourceDefinition
	var skipped []string
	now := time.Now()

	for _, name := range requested {
		state, ok := r.sources[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown source: %s", name)
		}
		if !state.def.Enabled {
			continue
		}

		state.mu.Lock()
		admits := state.breaker == interfaces.BreakerClosed || !now.Before(state.cooldownUntil)
		state.mu.Unlock()

		if admits {
			runnable = append(runnable, state.def)
		} else {
			skipped = append(skipped, name)
		}
	}

	return runnable, skipped, nil
}

// Adapter returns the fetch adapter for a registered source
func (r *Registry) Adapter(name string) (interfaces.SourceAdapter, error) {
	state, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return state.adapter, nil
}

// RecordSuccess resets the failure window after a successful fetch and closes
// an open breaker whose cooldown probe succeeded
func (r *Registry) RecordSuccess(name string) {
	state, ok := r.sources[name]
	if !ok {
		return
	}

	state.mu.Lock()
	state.consecutiveFailures = 0
	state.lastSuccessAt = time.Now()
	state.lastError = ""
	reopened := state.breaker == interfaces.BreakerOpen
	if reopened {
		state.breaker = interfaces.BreakerClosed
		state.openedAt = time.Time{}
		state.cooldownUntil = time.Time{}
	}
	snapshot := state.snapshotLocked()
	state.mu.Unlock()

	r.persistBreaker(name, snapshot)

	if reopened {
		r.logger.Info().Str("source", name).Msg("Circuit breaker closed after successful fetch")
		r.publish(interfaces.EventBreakerReset, map[string]interface{}{
			"source": name,
			"reason": "recovered",
		})
	}
}

// RecordFailure counts a failed fetch. Reaching the threshold opens the
// breaker; a failed cooldown probe extends the suspension.
func (r *Registry) RecordFailure(name string, err error) {
	state, ok := r.sources[name]
	if !ok {
		return
	}

	now := time.Now()
	message := ""
	if err != nil {
		message = err.Error()
	}

	state.mu.Lock()
	state.consecutiveFailures++
	state.lastFailureAt = now
	state.lastError = message

	tripped := false
	switch state.breaker {
	case interfaces.BreakerClosed:
		if state.consecutiveFailures >= r.threshold {
			state.breaker = interfaces.BreakerOpen
			state.openedAt = now
			state.cooldownUntil = now.Add(r.cooldown)
			tripped = true
		}
	case interfaces.BreakerOpen:
		// Probe failed; suspend for another cooldown window
		state.cooldownUntil = now.Add(r.cooldown)
	}
	failures := state.consecutiveFailures
	cooldownUntil := state.cooldownUntil
	snapshot := state.snapshotLocked()
	state.mu.Unlock()

	r.persistBreaker(name, snapshot)

	if tripped {
		r.logger.Warn().
			Str("source", name).
			Int("consecutive_failures", failures).
			Str("cooldown_until", cooldownUntil.Format(time.RFC3339)).
			Msg("Circuit breaker opened")
		r.publish(interfaces.EventBreakerOpened, map[string]interface{}{
			"source":               name,
			"consecutive_failures": failures,
			"cooldown_until":       cooldownUntil,
		})
	}
}

// ResetBreaker manually closes an open breaker and clears the failure window
func (r *Registry) ResetBreaker(name string) error {
	state, ok := r.sources[name]
	if !ok {
		return fmt.Errorf("unknown source: %s", name)
	}

	state.mu.Lock()
	state.breaker = interfaces.BreakerClosed
	state.consecutiveFailures = 0
	state.openedAt = time.Time{}
	state.cooldownUntil = time.Time{}
	state.lastError = ""
	snapshot := state.snapshotLocked()
	state.mu.Unlock()

	r.persistBreaker(name, snapshot)

	r.logger.Info().Str("source", name).Msg("Circuit breaker manually reset")
	r.publish(interfaces.EventBreakerReset, map[string]interface{}{
		"source": name,
		"reason": "manual",
	})

	return nil
}

func (r *Registry) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// snapshotLocked builds the persistable breaker snapshot. Caller holds mu.
func (s *sourceState) snapshotLocked() breakerSnapshot {
	return breakerSnapshot{
		State:               s.breaker,
		ConsecutiveFailures: s.consecutiveFailures,
		OpenedAt:            s.openedAt,
		CooldownUntil:       s.cooldownUntil,
	}
}

// statusLocked snapshots the breaker state. Caller holds mu.
func (s *sourceState) statusLocked() *interfaces.SourceStatus {
	status := &interfaces.SourceStatus{
		Definition:          s.def,
		Breaker:             s.breaker,
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
	}
	if !s.openedAt.IsZero() {
		t := s.openedAt
		status.OpenedAt = &t
	}
	if !s.cooldownUntil.IsZero() {
		t := s.cooldownUntil
		status.CooldownUntil = &t
	}
	if !s.lastSuccessAt.IsZero() {
		t := s.lastSuccessAt
		status.LastSuccessAt = &t
	}
	if !s.lastFailureAt.IsZero() {
		t := s.lastFailureAt
		status.LastFailureAt = &t
	}
	return status
}
