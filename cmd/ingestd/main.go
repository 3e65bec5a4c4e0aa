package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/app"
	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	logLevel     = flag.String("log-level", "", "Log level (overrides config)")
	runOnce      = flag.Bool("once", false, "Run one ingestion to completion and exit")
	onceSources  = flag.String("sources", "", "Comma-separated source names for -once (default: all enabled)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Ingestd version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Merge port flags (shorthand takes precedence)
	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("ingestd.toml"); err == nil {
			configFiles = append(configFiles, "ingestd.toml")
		} else if _, err := os.Stat("deployments/local/ingestd.toml"); err == nil {
			// Fallback for users running from the project root
			configFiles = append(configFiles, "deployments/local/ingestd.toml")
		}
	}

	// 1. Load configuration (defaults -> files -> env). {key-name}
	// replacement happens in app.New after the KV store is seeded.
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// 2. Apply command-line flag overrides (highest priority)
	common.ApplyFlagOverrides(config, finalPort, *serverHost, *logLevel)

	// 3. Initialize logger with final configuration
	logger = common.InitLogger(config)

	// 4. Print banner
	common.PrintBanner(common.GetVersion())

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	// Crash reports land next to the log files
	common.InstallCrashHandler(logsDir())
	defer common.RecoverWithCrashFile()

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	if *runOnce {
		os.Exit(runIngestOnce(application))
	}

	serve(application)
}

// serve runs the HTTP server and scheduler until interrupted
func serve(application *app.App) {
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	srv := server.New(application)

	// Start server in goroutine
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Fatal().Str("panic", fmt.Sprintf("%v", r)).Msg("Server goroutine panicked")
			}
		}()

		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Give goroutine a moment to start
	time.Sleep(100 * time.Millisecond)

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}

// runIngestOnce executes a single ingestion run synchronously and returns the
// process exit code: 0 when every source succeeded, 1 otherwise
func runIngestOnce(application *app.App) int {
	defer application.Close()

	var names []string
	if *onceSources != "" {
		for _, name := range strings.Split(*onceSources, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}
	}

	logger.Info().Strs("sources", names).Msg("Running one ingestion")

	run, err := application.Orchestrator.RunOnce(context.Background(), interfaces.RunOptions{
		Trigger:     interfaces.TriggerCLI,
		SourceNames: names,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Ingestion run failed to start")
		return 1
	}

	failed := run.FailedSources()
	logger.Info().
		Str("run_id", run.ID).
		Int64("seq", run.Seq).
		Int("new_postings", run.NewPostingsCount).
		Int("merged", run.MergedCount).
		Int("dropped", run.DroppedCount).
		Int("stale_marked", run.StaleMarkedCount).
		Strs("failed_sources", failed).
		Msg("Ingestion run complete")

	if len(failed) > 0 {
		return 1
	}
	return 0
}

// logsDir resolves the log directory next to the executable, matching where
// the file writer puts ingestd.log
func logsDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "logs"
	}
	return filepath.Join(filepath.Dir(execPath), "logs")
}
