package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/backend"
	"moneta/internal/cache"
	"moneta/internal/cloud"
	"moneta/internal/config"
	"moneta/internal/log"
	"moneta/internal/services"
	"moneta/internal/storage"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	processorStopTimeout = 30 * time.Second
)

// App holds the wired services shared by every command.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Repo      *storage.SQLiteRepository
	Engine    *services.Engine
	Processor *services.SyncProcessor
	Settings  *services.SettingsService
	Expenses  *services.ExpenseService
	Caches    *cache.Manager

	// AMQP is nil when no broker is configured.
	AMQP *amqp.Client

	cleanup []func() error
}

// NewApp opens the local store, builds the configured cloud backend and
// wires the sync services on top of them. With a broker configured sync
// requests are announced over AMQP; otherwise the in-process processor is
// woken directly.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Caches: cache.NewManager()}

	repo, err := InitSQLite(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	app.Repo = repo
	app.cleanup = append(app.cleanup, repo.Close)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentCloud)).CreateBackend(ctx, bcfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	if res.Cleanup != nil {
		app.cleanup = append(app.cleanup, res.Cleanup)
	}

	gateway := cloud.NewGateway(res.Backend, logger.WithComponent(log.ComponentCloud))
	remote := cloud.NewRemote(res.Backend, res.Backend)
	app.Caches.Register("avatars", remote.AvatarCache())

	app.Engine = services.NewEngine(repo, gateway, remote, cfg.EngineConfig(), logger.WithComponent(log.ComponentSync))
	app.Processor = services.NewSyncProcessor(repo, app.Engine, cfg.ProcessorConfig(), logger.WithComponent(log.ComponentWorker))
	app.Expenses = services.NewExpenseService(repo)

	var notifier services.SyncNotifier = app.Processor
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, waking processor in-process", "error", err)
		} else {
			logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			app.AMQP = client
			app.cleanup = append(app.cleanup, client.Close)
			notifier = client
		}
	}
	app.Settings = services.NewSettingsService(repo, notifier, logger.WithComponent(log.ComponentSync))

	return app, nil
}

// StartBackground starts the processor loop and periodic cache cleanup.
func (a *App) StartBackground(ctx context.Context) error {
	if err := a.Processor.Start(ctx); err != nil {
		return fmt.Errorf("start sync processor: %w", err)
	}
	a.Caches.StartCleanup(ctx, cacheCleanupInterval)
	return nil
}

// Close stops background work and releases resources in reverse order.
func (a *App) Close() error {
	var errs []error
	if a.Processor != nil && a.Processor.IsRunning() {
		ctx, cancel := context.WithTimeout(context.Background(), processorStopTimeout)
		errs = append(errs, a.Processor.Stop(ctx))
		cancel()
	}
	if a.Caches != nil {
		a.Caches.Stop()
	}

	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanup = nil
	return errors.Join(errs...)
}
