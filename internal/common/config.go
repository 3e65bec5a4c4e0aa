package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Ingest      IngestConfig    `toml:"ingest"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Fetch       FetchConfig     `toml:"fetch"`
	Sources     SourcesConfig   `toml:"sources"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// IngestConfig contains pipeline-level tuning for ingestion runs
type IngestConfig struct {
	MaxConcurrentSources int           `toml:"max_concurrent_sources"` // Worker pool size for source fan-out
	RunTimeout           time.Duration `toml:"run_timeout"`            // Global timeout for one ingestion run
	SimilarityThreshold  float64       `toml:"similarity_threshold"`   // Title token-overlap ratio for near-duplicate merge
	StaleAfterRuns       int           `toml:"stale_after_runs"`       // Consecutive missed runs before a posting goes stale
	MaxPagesPerSource    int           `toml:"max_pages_per_source"`   // Default page cap, overridable per source definition
	RunHistoryLimit      int           `toml:"run_history_limit"`      // Completed runs retained for the audit API
}

// SchedulerConfig controls the cron-driven run cadence and circuit breaking
type SchedulerConfig struct {
	Enabled          bool          `toml:"enabled"`
	Schedule         string        `toml:"schedule"`          // Cron schedule format (5-field)
	BreakerThreshold int           `toml:"breaker_threshold"` // Consecutive source failures before the breaker opens
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`  // Open-breaker suspension before the source is retried
}

// FetchConfig contains shared HTTP fetch behavior for all source adapters
type FetchConfig struct {
	UserAgent      string        `toml:"user_agent"`      // Default user agent string
	RequestTimeout time.Duration `toml:"request_timeout"` // HTTP request timeout
	MaxBodySize    int64         `toml:"max_body_size"`   // Maximum response body size in bytes
	MaxAttempts    int           `toml:"max_attempts"`    // Retry attempts for transient fetch errors
	BackoffBase    time.Duration `toml:"backoff_base"`    // Initial retry backoff, doubled per attempt
	RenderTimeout  time.Duration `toml:"render_timeout"`  // Headless page render timeout (render_js sources)
}

// SourcesConfig contains configuration for source definition files
type SourcesConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing source definition files (YAML)
	KeysDir        string `toml:"keys_dir"`        // Directory of TOML key files backing {key-name} references
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in ingestd.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",             // Info level for production (debug|info|warn|error)
			Format: "text",             // Human-readable text format (text|json)
			Output: []string{"stdout"}, // Console only unless "file" is added
		},
		Ingest: IngestConfig{
			MaxConcurrentSources: 4,                // Bounded fan-out across source adapters
			RunTimeout:           10 * time.Minute, // Sources still fetching at timeout are failed
			SimilarityThreshold:  0.8,              // Token-overlap ratio for near-duplicate titles
			StaleAfterRuns:       5,                // Missed runs before active -> stale
			MaxPagesPerSource:    10,               // Default pagination cap per source per run
			RunHistoryLimit:      200,              // Completed runs kept for the audit API
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			Schedule:         "0 */6 * * *", // Every 6 hours
			BreakerThreshold: 3,             // Consecutive failed runs before suspending a source
			BreakerCooldown:  1 * time.Hour, // Suspension window before the source is retried
		},
		Fetch: FetchConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			MaxAttempts:    3,
			BackoffBase:    500 * time.Millisecond,
			RenderTimeout:  20 * time.Second,
		},
		Sources: SourcesConfig{
			DefinitionsDir: "./sources", // Default directory for source definition files
			KeysDir:        "./keys",    // Secrets referenced as {key-name} in source definitions
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files. Priority system: CLI flags > Environment variables > Last config file > ... > First config file > Defaults
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: INGESTD_ENV, fallback: GO_ENV)
	if env := os.Getenv("INGESTD_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("INGESTD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("INGESTD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("INGESTD_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("INGESTD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("INGESTD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("INGESTD_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Ingest configuration
	if maxConcurrent := os.Getenv("INGESTD_MAX_CONCURRENT_SOURCES"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Ingest.MaxConcurrentSources = mc
		}
	}
	if runTimeout := os.Getenv("INGESTD_RUN_TIMEOUT"); runTimeout != "" {
		if rt, err := time.ParseDuration(runTimeout); err == nil {
			config.Ingest.RunTimeout = rt
		}
	}
	if threshold := os.Getenv("INGESTD_SIMILARITY_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Ingest.SimilarityThreshold = t
		}
	}
	if staleRuns := os.Getenv("INGESTD_STALE_AFTER_RUNS"); staleRuns != "" {
		if sr, err := strconv.Atoi(staleRuns); err == nil {
			config.Ingest.StaleAfterRuns = sr
		}
	}
	if maxPages := os.Getenv("INGESTD_MAX_PAGES_PER_SOURCE"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Ingest.MaxPagesPerSource = mp
		}
	}

	// Scheduler configuration
	if enabled := os.Getenv("INGESTD_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("INGESTD_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if breakerThreshold := os.Getenv("INGESTD_BREAKER_THRESHOLD"); breakerThreshold != "" {
		if bt, err := strconv.Atoi(breakerThreshold); err == nil {
			config.Scheduler.BreakerThreshold = bt
		}
	}
	if breakerCooldown := os.Getenv("INGESTD_BREAKER_COOLDOWN"); breakerCooldown != "" {
		if bc, err := time.ParseDuration(breakerCooldown); err == nil {
			config.Scheduler.BreakerCooldown = bc
		}
	}

	// Fetch configuration
	if userAgent := os.Getenv("INGESTD_FETCH_USER_AGENT"); userAgent != "" {
		config.Fetch.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("INGESTD_FETCH_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Fetch.RequestTimeout = rt
		}
	}
	if maxAttempts := os.Getenv("INGESTD_FETCH_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Fetch.MaxAttempts = ma
		}
	}
	if backoffBase := os.Getenv("INGESTD_FETCH_BACKOFF_BASE"); backoffBase != "" {
		if bb, err := time.ParseDuration(backoffBase); err == nil {
			config.Fetch.BackoffBase = bb
		}
	}

	// Sources configuration
	if sourcesDir := os.Getenv("INGESTD_SOURCES_DIR"); sourcesDir != "" {
		config.Sources.DefinitionsDir = sourcesDir
	}
	if keysDir := os.Getenv("INGESTD_KEYS_DIR"); keysDir != "" {
		config.Sources.KeysDir = keysDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, logLevel string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// Validate checks config values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage badger path is required")
	}
	if c.Ingest.MaxConcurrentSources < 1 {
		return fmt.Errorf("max_concurrent_sources must be at least 1, got %d", c.Ingest.MaxConcurrentSources)
	}
	if c.Ingest.SimilarityThreshold <= 0 || c.Ingest.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", c.Ingest.SimilarityThreshold)
	}
	if c.Ingest.StaleAfterRuns < 1 {
		return fmt.Errorf("stale_after_runs must be at least 1, got %d", c.Ingest.StaleAfterRuns)
	}
	if c.Ingest.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %v", c.Ingest.RunTimeout)
	}
	if c.Scheduler.BreakerThreshold < 1 {
		return fmt.Errorf("breaker_threshold must be at least 1, got %d", c.Scheduler.BreakerThreshold)
	}
	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler schedule: %w", err)
		}
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
