package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/handlers"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/dedup"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/events"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/normalizer"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/orchestrator"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/scheduler"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/sources"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/transform"
	"github.com/moatasim-KT/career-copilot-sub004/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event bus
	EventService interfaces.EventService

	// Ingestion pipeline
	TransformService  *transform.Service
	NormalizerService *normalizer.Service
	DedupService      *dedup.Service
	SourceFactory     *sources.Factory
	SourceRegistry    *sources.Registry
	Orchestrator      *orchestrator.Service
	SchedulerService  interfaces.SchedulerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	RunHandler      *handlers.RunHandler
	PostingHandler  *handlers.PostingHandler
	SourceHandler   *handlers.SourceHandler
	WSHandler       *handlers.WebSocketHandler
	EventSubscriber *handlers.EventSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Int("sources", len(app.SourceRegistry.List())).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger) and seeds the KV store
func (a *App) initStorage() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	ctx := context.Background()

	// Load keys from files (API credentials, IMAP passwords). Must happen
	// before source definitions are loaded so {key-name} references resolve.
	if err := a.StorageManager.LoadKeysFromFiles(ctx, a.Config.Sources.KeysDir); err != nil {
		// Log warning but don't fail startup; sources without key
		// references still work
		a.Logger.Warn().Err(err).Msg("Failed to load keys from files")
	}

	// Perform {key-name} replacement in config after the KV store is seeded
	pairs, err := a.StorageManager.KeyValueStorage().ListByPrefix(ctx, "")
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch keys for config replacement, skipping replacement")
	} else if len(pairs) > 0 {
		kvMap := make(map[string]string, len(pairs))
		for _, pair := range pairs {
			kvMap[pair.Key] = pair.Value
		}
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key replacements to config")
		}
	}

	return nil
}

// initServices initializes the ingestion pipeline in dependency order:
// event bus, normalization, source registry, dedup, orchestrator, scheduler.
// The scheduler is constructed but not started; Start owns that so a -once
// invocation never races a cron fire.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	a.TransformService = transform.NewService(a.Logger)
	a.NormalizerService = normalizer.NewService(a.Logger, a.TransformService)

	// Load source definitions. A missing or empty directory leaves the
	// registry empty; the API stays serviceable and runs report no
	// runnable sources.
	kv := a.StorageManager.KeyValueStorage()
	loader := sources.NewLoader(kv, a.Logger)
	defs, err := loader.Load(context.Background(), a.Config.Sources.DefinitionsDir)
	if err != nil {
		a.Logger.Warn().Err(err).
			Str("dir", a.Config.Sources.DefinitionsDir).
			Msg("Failed to load source definitions")
		defs = nil
	}

	a.SourceFactory = sources.NewFactory(&a.Config.Fetch, a.Logger)
	adapters, err := a.SourceFactory.BuildAll(defs)
	if err != nil {
		return fmt.Errorf("failed to build source adapters: %w", err)
	}

	registry, err := sources.NewRegistry(&a.Config.Scheduler, defs, adapters, kv, a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create source registry: %w", err)
	}
	a.SourceRegistry = registry

	a.DedupService = dedup.NewService(a.StorageManager, &a.Config.Ingest, a.Logger)

	a.Orchestrator = orchestrator.NewService(
		a.Config,
		a.SourceRegistry,
		a.NormalizerService,
		a.DedupService,
		a.StorageManager,
		a.EventService,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(&a.Config.Scheduler, a.Orchestrator, a.EventService, a.Logger)

	return nil
}

// initHandlers initializes the HTTP handlers
func (a *App) initHandlers() error {
	a.RunHandler = handlers.NewRunHandler(a.Orchestrator, a.StorageManager.RunStorage(), a.Logger)
	a.PostingHandler = handlers.NewPostingHandler(
		a.StorageManager.PostingStorage(),
		a.StorageManager.SourceRecordStorage(),
		a.Logger,
	)
	a.SourceHandler = handlers.NewSourceHandler(a.SourceRegistry, a.Logger)
	a.APIHandler = handlers.NewAPIHandler(a.Orchestrator, a.SchedulerService)

	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger)

	return nil
}

// Start begins background work: the cron scheduler, when enabled
func (a *App) Start() error {
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close gracefully shuts down all application components in reverse
// dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	var firstErr error

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// Cancels the active run, if any, and waits for it to finish
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}

	if a.EventSubscriber != nil {
		a.EventSubscriber.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// Shuts down the shared headless browser, if one was started
	if a.SourceFactory != nil {
		a.SourceFactory.Close()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Storage close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return firstErr
}
