package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"carbon-scribe/restoration-portal/internal/analysis"
	"carbon-scribe/restoration-portal/internal/config"
	"carbon-scribe/restoration-portal/internal/ledger"
	"carbon-scribe/restoration-portal/internal/middleware"
	"carbon-scribe/restoration-portal/internal/notifications"
	"carbon-scribe/restoration-portal/internal/notifications/websocket"
	"carbon-scribe/restoration-portal/internal/portal"
	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/internal/reports"
	"carbon-scribe/restoration-portal/internal/tokenization"
	"carbon-scribe/restoration-portal/pkg/identifier"
	"carbon-scribe/restoration-portal/pkg/random"
	"carbon-scribe/restoration-portal/pkg/schedule"
	"carbon-scribe/restoration-portal/pkg/storage"
)

// App holds the wired components of the portal.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Backend      storage.Backend
	Projects     *projects.Store
	Ledger       *ledger.Store
	Engine       *analysis.Engine
	Tokenization *tokenization.Service
	Portal       *portal.Service
	Reports      *reports.Service
	Reconciler   *ledger.Reconciler
	WebSocket    *websocket.Manager
	// Snapshots is nil when no snapshot schedule is configured.
	Snapshots    *reports.Snapshotter

	cancelRuns context.CancelFunc
}

// Options adjusts how New wires the components.
type Options struct {
	// Scheduler defaults to real timers.
	Scheduler schedule.Scheduler
	// Random overrides the source chosen from the analysis seed.
	Random random.Source
	// SkipRecovery leaves analyzing projects alone, for tools that share
	// storage with a running server.
	SkipRecovery bool
	// SNS and Uploads replace the AWS clients built from the aws section.
	SNS     notifications.SNSClient
	Uploads UploadClient
}

// UploadClient is the S3 API used for snapshot uploads.
type UploadClient = manager.UploadAPIClient

// NewLogger builds a zap logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// New opens storage and wires every component. Unless opts.SkipRecovery is
// set, interrupted analyses from a previous process are marked failed before
// New returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	logger.Info("Storage opened", zap.String("driver", cfg.Storage.Driver))

	a, err := wire(ctx, cfg, logger, backend, opts)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger, backend storage.Backend, opts Options) (*App, error) {
	rnd := opts.Random
	if rnd == nil {
		rnd = random.Default()
		if cfg.Analysis.Seed != 0 {
			rnd = random.NewSeeded(cfg.Analysis.Seed)
		}
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = schedule.NewReal()
	}
	ids := identifier.NewGenerator(rnd)

	projectStore, err := projects.NewStore(ctx, backend.Slot(projects.SlotName), logger)
	if err != nil {
		return nil, err
	}
	ledgerStore, err := ledger.NewStore(ctx, backend.Slot(ledger.SlotName), ids, logger)
	if err != nil {
		return nil, err
	}

	tokens := tokenization.NewService(projectStore, ledgerStore, ids, storage.NewIPFSClient(ids), logger)
	engine := analysis.NewEngine(projectStore, scheduler, rnd, logger,
		analysis.WithAssigner(tokens),
		analysis.WithConfig(analysis.Config{
			TickInterval: cfg.Analysis.TickInterval,
			Duration:     cfg.Analysis.Duration,
			MaxIncrement: cfg.Analysis.MaxIncrement,
		}))

	if !opts.SkipRecovery {
		n, err := engine.RecoverInterrupted(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover interrupted analyses: %w", err)
		}
		if n > 0 {
			logger.Warn("Marked interrupted analyses as failed", zap.Int("count", n))
		}
	}

	reportService := reports.NewService(projectStore, ledgerStore, logger)
	var snapshots *reports.Snapshotter
	if cfg.Reports.SnapshotSchedule != "" {
		sink, err := snapshotSink(ctx, cfg, opts.Uploads)
		if err != nil {
			return nil, fmt.Errorf("failed to set up report snapshots: %w", err)
		}
		snapshots = reports.NewSnapshotter(reportService, sink, cfg.Reports.SnapshotSchedule, logger)
	}

	sockets := websocket.NewManager(logger)
	events, err := publisher(ctx, cfg, sockets, opts.SNS, logger)
	if err != nil {
		sockets.Close()
		return nil, fmt.Errorf("failed to set up notifications: %w", err)
	}
	runCtx, cancelRuns := context.WithCancel(context.Background())
	portalService := portal.NewService(runCtx, projectStore, engine, tokens,
		notifications.NewService(events, logger), logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Backend:      backend,
		Projects:     projectStore,
		Ledger:       ledgerStore,
		Engine:       engine,
		Tokenization: tokens,
		Portal:       portalService,
		Reports:      reportService,
		Reconciler:   ledger.NewReconciler(ledgerStore, logger, cfg.Ledger.ReconcileSchedule),
		WebSocket:    sockets,
		Snapshots:    snapshots,
		cancelRuns:   cancelRuns,
	}, nil
}

// Router builds the HTTP router with middleware and all routes.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(a.Logger),
		middleware.RequestLogger(a.Logger),
	)
	if rl := a.Config.RateLimit; rl.Enabled {
		limiter := middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst, rl.IdleTTL)
		router.Use(middleware.RateLimit(limiter, a.Logger))
	}

	portalHandler := portal.NewHandler(a.Portal, a.WebSocket, a.Logger)
	portalHandler.RegisterHealth(router)

	api := router.Group("/api/v1")
	{
		portalHandler.RegisterRoutes(api)
		reports.NewHandler(a.Reports, a.Logger).RegisterRoutes(api)
	}
	return router
}

// StartBackground starts the ledger reconciler and, when configured, the
// report snapshots.
func (a *App) StartBackground() error {
	if err := a.Reconciler.Start(); err != nil {
		return err
	}
	if a.Snapshots != nil {
		if err := a.Snapshots.Start(); err != nil {
			a.Reconciler.Stop()
			return err
		}
	}
	return nil
}

// Close stops in-flight analyses and background jobs and releases storage.
func (a *App) Close() error {
	if n := a.Engine.CancelAll(); n > 0 {
		a.Logger.Info("Cancelled in-flight analyses", zap.Int("count", n))
	}
	a.cancelRuns()
	a.Reconciler.Stop()
	if a.Snapshots != nil {
		a.Snapshots.Stop()
	}
	a.WebSocket.Close()
	return a.Backend.Close()
}
