package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ubi-pricer/internal/config"
	"ubi-pricer/internal/features"
	"ubi-pricer/internal/mockgen"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/risk"
	"ubi-pricer/internal/scheduler"
	"ubi-pricer/internal/service"
	"ubi-pricer/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) bounds() pricing.Bounds {
	p := a.Config.Pricing
	return pricing.Bounds{
		BasePremium: decimal.NewFromFloat(p.BasePremium),
		MinPremium:  decimal.NewFromFloat(p.MinPremium),
		MaxPremium:  decimal.NewFromFloat(p.MaxPremium),
		MinFactor:   p.MinFactor,
		MaxFactor:   p.MaxFactor,
	}
}

// newModel loads the risk model artifact. A missing artifact is tolerated:
// the engine can still reprice rows that carry model outputs, and fails with
// a clear error only when a fresh score is actually needed.
func (a *App) newModel() risk.Model {
	model, err := risk.Load(a.Config.Model.ArtifactsDir)
	if err != nil {
		if errors.Is(err, risk.ErrModelUnavailable) {
			a.Logger.Warn().Str("dir", a.Config.Model.ArtifactsDir).Msg("risk model artifact not found; scoring disabled")
		} else {
			a.Logger.Error().Err(err).Msg("failed to load risk model artifact")
		}
		return nil
	}
	return model
}

func (a *App) newEngine() (*pricing.Engine, error) {
	return pricing.NewEngine(a.newModel(), a.bounds(), a.Logger)
}

func (a *App) newAggregator() *features.Aggregator {
	return features.New(features.Options{
		Granularity:      a.Config.Granularity(),
		MinExposureMiles: a.Config.Pipeline.MinExposureMiles,
	}, a.Logger)
}

func (a *App) newPipeline() (*service.Pipeline, error) {
	engine, err := a.newEngine()
	if err != nil {
		return nil, err
	}
	return service.NewPipeline(a.newAggregator(), engine, a.Logger), nil
}

func (a *App) newGenerator(opts GenerateOptions) *mockgen.Generator {
	cfg := mockgen.DefaultConfig()
	if opts.Drivers > 0 {
		cfg.Drivers = opts.Drivers
	} else if a.Config.Generator.Drivers > 0 {
		cfg.Drivers = a.Config.Generator.Drivers
	}
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	} else {
		cfg.Seed = a.Config.Generator.Seed
	}
	cfg.ExtremeVariance = opts.ExtremeVariance || a.Config.Generator.ExtremeVariance

	start := time.Now().UTC().AddDate(0, -1, 0)
	return mockgen.New(cfg, start)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var rowStore storage.PricedRowStore
	var runStore storage.RunStore
	if store != nil {
		rowStore = store
		runStore = store
	}

	svcOpts := service.Options{
		SpoolDir:        a.Config.Pipeline.SpoolDir,
		ArchiveDir:      a.Config.Pipeline.ArchiveDir,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}
	if a.Config.Pipeline.GenerateOnEmpty {
		svcOpts.Generator = a.newGenerator(GenerateOptions{})
		svcOpts.GeneratorBatch = a.Config.Pipeline.GenerateBatch
		a.Logger.Info().
			Int("batch", svcOpts.GeneratorBatch).
			Msg("synthetic generation enabled for empty cycles")
	}

	svc := service.New(svcOpts, sched, pipeline, rowStore, runStore, a.Logger)

	a.Logger.Info().Msg("starting ingestion service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

// GenerateOptions configure synthetic batch generation.
type GenerateOptions struct {
	Count           int
	Drivers         int
	Seed            int64
	ExtremeVariance bool
	OutPath         string
}

// PipelineOptions configure a one-shot pipeline run.
type PipelineOptions struct {
	InputPath    string
	Generate     GenerateOptions
	FeaturesPath string
	PricedPath   string
	Persist      bool
}

// ExportOptions hold parameters for exporting stored premiums.
type ExportOptions struct {
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReportOptions configure the report command.
type ReportOptions struct {
	InputPath string
}
