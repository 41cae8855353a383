package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/formgrid/toolpack/config"
	"github.com/formgrid/toolpack/internal/adapters/exportrunner"
	"github.com/formgrid/toolpack/internal/data"
	"github.com/formgrid/toolpack/internal/observability/statsd"
	"github.com/formgrid/toolpack/internal/service"
	"github.com/formgrid/toolpack/internal/service/pipeline"
)

// ExportRunnerAdapterConfig contains configuration for the export runner.
type ExportRunnerAdapterConfig struct {
	Services ServiceContainer
	Logger   *slog.Logger
	Config   config.ExportRunnerConfig
	Metrics  statsd.Sink
}

// RunExportRunner starts the export runner worker pool.
func RunExportRunner(ctx context.Context, cfg ExportRunnerAdapterConfig) error {
	runner, err := exportrunner.NewRunner(exportrunner.RunnerOptions{
		Exports:      cfg.Services.Exports,
		Snapshots:    cfg.Services.Snapshots,
		Packager:     cfg.Services.Packager,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
		Concurrency:  cfg.Config.Concurrency,
		JobTimeout:   cfg.Config.JobTimeout,
		PollInterval: cfg.Config.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("create export runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run export runner: %w", runErr)
	}
	return nil
}

// ReaperAdapterConfig contains configuration for the reaper.
type ReaperAdapterConfig struct {
	DB       *sql.DB
	Packager *pipeline.Packager
	Logger   *slog.Logger
	Config   config.ReaperConfig
	Metrics  statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperAdapterConfig) error {
	repo := data.NewExportJobRepo(cfg.DB, data.RepoConfig{Logger: cfg.Logger})

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:     repo,
		Packager: cfg.Packager,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper service: %w", err)
	}

	return svc.Run(ctx)
}
