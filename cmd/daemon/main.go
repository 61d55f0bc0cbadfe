package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/hificlock/internal/activity"
	"github.com/genricoloni/hificlock/internal/api"
	"github.com/genricoloni/hificlock/internal/config"
	"github.com/genricoloni/hificlock/internal/coverart"
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/genricoloni/hificlock/internal/engine"
	"github.com/genricoloni/hificlock/internal/fetcher"
	"github.com/genricoloni/hificlock/internal/metrics"
	"github.com/genricoloni/hificlock/internal/monitor"
	"github.com/genricoloni/hificlock/internal/processor"
	"github.com/genricoloni/hificlock/internal/screen"
	"github.com/genricoloni/hificlock/internal/track"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions is the complete dependency graph of the daemon
var AppOptions = fx.Options(
	// Provide dependencies
	fx.Provide(
		config.Load,
		newLogger,
		metrics.New,
		newScreenResolution,
		fx.Annotate(processor.NewCoverProcessor, fx.As(new(domain.ImageProcessor))),
		newImageFetcher,
		newReleaseFinder,
		newCoverCache,
		newResolver,
		newAggregator,
		newActivityMachine,
		newSource,
		newSupervisor,
		newCoordinator,
		newEngine,
		api.NewBroker,
		newServer,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		AppOptions,
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	if err := app.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// newLogger creates a production zap logger at the configured level
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.Log.ZapLevel())
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	cfg.LogFields(logger)
	return logger, nil
}

func newScreenResolution(logger *zap.Logger, cfg *config.Config) *domain.ScreenResolution {
	return monitor.NewScreenResolution(logger, domain.ScreenResolution{
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
	})
}

func newImageFetcher(logger *zap.Logger, cfg *config.Config) domain.Fetcher {
	return fetcher.NewHTTPFetcher(logger, cfg.Cover.UserAgent)
}

func newReleaseFinder(logger *zap.Logger, cfg *config.Config) coverart.ReleaseFinder {
	return fetcher.NewMusicBrainz(logger, cfg.Cover.MusicBrainzURL, cfg.Cover.ArchiveURL, cfg.Cover.UserAgent)
}

func newCoverCache(logger *zap.Logger, cfg *config.Config) (*coverart.Cache, error) {
	return coverart.NewCache(logger, cfg.Cover.CacheDir)
}

func newResolver(
	logger *zap.Logger,
	cfg *config.Config,
	cache *coverart.Cache,
	finder coverart.ReleaseFinder,
	images domain.Fetcher,
	proc domain.ImageProcessor,
	m *metrics.Metrics,
) domain.CoverResolver {
	return coverart.NewResolver(logger, cache, finder, images, proc, coverart.Options{
		ReceiverDir:   cfg.Cover.ReceiverDir,
		DefaultPath:   cfg.Cover.DefaultPath,
		LookupTimeout: cfg.Cover.LookupTimeout,
		Metrics:       m,
	})
}

func newAggregator(logger *zap.Logger, cfg *config.Config) *track.Aggregator {
	return track.NewAggregator(logger, cfg.Cover.StreamFile)
}

func newActivityMachine(logger *zap.Logger, cfg *config.Config) *activity.Machine {
	return activity.NewMachine(logger, activity.NewFileStore(cfg.State.File))
}

func newSource(logger *zap.Logger, cfg *config.Config, m *metrics.Metrics) (domain.Source, error) {
	return monitor.NewSource(logger, monitor.SourceOptions{
		Mode:       cfg.Source.Mode,
		PipePath:   cfg.Source.PipePath,
		ReaderPath: cfg.Source.ReaderPath,
		Signature:  cfg.Source.Signature,
		Bus:        cfg.Source.DBusBus,
	}, m)
}

func newSupervisor(
	logger *zap.Logger,
	cfg *config.Config,
	src domain.Source,
	agg *track.Aggregator,
	machine *activity.Machine,
	resolver domain.CoverResolver,
	m *metrics.Metrics,
) *monitor.Supervisor {
	opts := monitor.Options{
		ReadTimeout: cfg.Source.ReadTimeout,
		RetryDelay:  cfg.Source.RetryDelay,
	}
	if cfg.Source.Mode != monitor.ModeMpris {
		opts.WatchPath = cfg.Source.PipePath
	}
	return monitor.NewSupervisor(logger, src, agg, machine, resolver, m, opts)
}

func newCoordinator(logger *zap.Logger, cfg *config.Config, machine *activity.Machine) *screen.Coordinator {
	return screen.NewCoordinator(logger, cfg.Screen.Cooldown, machine.State())
}

func newEngine(
	logger *zap.Logger,
	sup *monitor.Supervisor,
	coord *screen.Coordinator,
	agg *track.Aggregator,
	machine *activity.Machine,
	m *metrics.Metrics,
) *engine.Engine {
	return engine.NewEngine(logger, sup, coord, agg, machine, m)
}

func newServer(logger *zap.Logger, cfg *config.Config, e *engine.Engine, broker *api.Broker, m *metrics.Metrics) *api.Server {
	api.Attach(broker, e)
	return api.NewServer(logger, cfg.HTTP.Addr, e, broker, m.Handler())
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, e *engine.Engine, srv *api.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("hificlock daemon started")
			return e.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return e.Stop(ctx)
		},
	})
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
