// Package app wires the forecasting engine and its optional infrastructure
// (Postgres, Redis, object storage) from configuration.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/andresuchdata/autopo-py/forecast/internal/analytics"
	"github.com/andresuchdata/autopo-py/forecast/internal/cache"
	"github.com/andresuchdata/autopo-py/forecast/internal/calendar"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-py/forecast/internal/service"
	"github.com/andresuchdata/autopo-py/forecast/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config   *config.Config
	Calendar *calendar.Calendar
	Engine   *forecast.Engine
	DB       *postgres.DB
	Redis    *redis.Client
	Storage  storage.ObjectStorage
	RunStore pipeline.RunStore

	Recommendations *service.RecommendationService
	Forecasts       *service.ForecastService
}

// New builds the application. Postgres, Redis and remote storage are only
// connected when enabled; without them runs are tracked in memory, profiles
// are recomputed and exports are written below the data directory.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	cal, err := calendar.LoadOrDefault(cfg.Forecast.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load event calendar: %w", err)
	}
	a.Calendar = cal

	if cfg.Cache.Enabled {
		if a.Redis, err = cache.NewClient(cfg.Cache); err != nil {
			return nil, err
		}
		log.Info().Msg("redis cache enabled")
	}

	a.Engine, err = forecast.NewEngine(
		forecast.OptionsFromConfig(cfg.Forecast),
		cal,
		cache.NewProfileCache(a.Redis, cfg.Cache.ProfileTTLSeconds),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.connectStorage(); err != nil {
		a.Close()
		return nil, err
	}

	var flush pipeline.FlushFunc
	a.RunStore = pipeline.NewMemoryStore()
	if cfg.Database.Enabled {
		if a.DB, err = postgres.NewDB(&cfg.Database); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := a.DB.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}

		repo := postgres.NewRecommendationRepository(a.DB)
		a.RunStore = pipeline.NewRepository(a.DB.DB.DB)
		a.Recommendations = service.NewRecommendationService(
			repo,
			cache.NewRecommendationCache(a.Redis, cfg.Cache.RecommendationsTTLSeconds),
		)
		flush = analytics.NewRecommendationProcessor(repo).ProcessFile
		log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("database enabled")
	}

	orchestrator := pipeline.NewOrchestrator(a.RunStore, a.PipelineConfig(), flush)
	a.Forecasts = service.NewForecastService(a.Engine, orchestrator, a.Recommendations, a.Storage, cfg.Storage.ExportPrefix)

	return a, nil
}

func (a *App) connectStorage() error {
	if a.Config.Storage.Enabled {
		client, err := storage.NewMinioClient(a.Config.Storage)
		if err != nil {
			return err
		}
		a.Storage = client
		log.Info().Str("endpoint", a.Config.Storage.Endpoint).Str("bucket", a.Config.Storage.Bucket).Msg("object storage enabled")
		return nil
	}

	dir, err := storage.NewDirStorage(filepath.Join(a.Config.App.DataDir, "objects"))
	if err != nil {
		return err
	}
	a.Storage = dir
	return nil
}

// PipelineConfig applies the PIPELINE_* settings to the pipeline defaults.
func (a *App) PipelineConfig() pipeline.PipelineConfig {
	cfg := pipeline.DefaultPipelineConfig("demand_forecast")
	if a.Config.Pipeline.WorkerCount > 0 {
		cfg.WorkerCount = a.Config.Pipeline.WorkerCount
	}
	if a.Config.Pipeline.BatchSize > 0 {
		cfg.BatchSize = a.Config.Pipeline.BatchSize
	}
	if a.Config.Pipeline.OutputDir != "" {
		cfg.OutputDir = a.Config.Pipeline.OutputDir
	}
	if a.Config.Pipeline.RetryAttempts > 0 {
		cfg.RetryAttempts = a.Config.Pipeline.RetryAttempts
	}
	// Bad data or a model that cannot fit fails the same way every time.
	cfg.Permanent = forecast.IsProductError
	return cfg
}

// Close releases every connection that was opened.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
