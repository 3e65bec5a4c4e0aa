package interfaces

import "time"

// ScheduleStatus represents the current status of the run schedule
type ScheduleStatus struct {
	Enabled   bool       `json:"enabled"`
	Schedule  string     `json:"schedule"`
	IsRunning bool       `json:"is_running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService manages cron-based run scheduling
type SchedulerService interface {
	// Start begins the cron loop using the configured schedule
	Start() error

	// Stop halts the scheduler and waits for the in-flight trigger to return
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// Status returns the schedule and its last/next fire times
	Status() *ScheduleStatus
}
