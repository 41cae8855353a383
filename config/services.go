package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeExportRunner runs the export job worker pool.
	ServiceModeExportRunner ServiceMode = "export-runner"
	// ServiceModeReaper runs the export job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeExportRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeExportRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, export-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ExportRunnerConfig contains export runner service configuration.
type ExportRunnerConfig struct {
	// Concurrency is the number of worker goroutines claiming export jobs.
	Concurrency int `env:"EXPORT_RUNNER_CONCURRENCY" envDefault:"2"`

	// JobTimeout is the per-job execution deadline. Jobs exceeding it are
	// marked failed and their working directory is removed.
	JobTimeout time.Duration `env:"EXPORT_JOB_TIMEOUT" envDefault:"2m"`

	// PollInterval is the fallback claim interval used when no LISTEN/NOTIFY
	// wakeup arrives.
	PollInterval time.Duration `env:"EXPORT_RUNNER_POLL_INTERVAL" envDefault:"5s"`

	// WorkRoot is the directory under which per-job working directories are staged.
	WorkRoot string `env:"EXPORT_WORK_ROOT" envDefault:"/var/lib/toolpack/work"`

	// PackageRoot is the directory where finished .tar.gz packages are written.
	PackageRoot string `env:"EXPORT_PACKAGE_ROOT" envDefault:"/var/lib/toolpack/packages"`
}

// Sanitize applies guardrails to export runner configuration values.
func (e *ExportRunnerConfig) Sanitize() {
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.JobTimeout < 10*time.Second {
		e.JobTimeout = 10 * time.Second
	}
	if e.PollInterval < time.Second {
		e.PollInterval = time.Second
	}
	e.WorkRoot = strings.TrimSpace(e.WorkRoot)
	e.PackageRoot = strings.TrimSpace(e.PackageRoot)
}

// ReaperConfig contains export job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// OverdueMaxAge is the maximum time an in_progress job may go without a
	// heartbeat before it is marked as failed. This catches jobs orphaned by
	// a crashed worker.
	OverdueMaxAge time.Duration `env:"REAPER_OVERDUE_MAX_AGE" envDefault:"10m"`

	// RetentionMaxAge is the maximum age for terminal jobs before deletion.
	// Deleting a job also removes its package archive.
	RetentionMaxAge time.Duration `env:"REAPER_RETENTION_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.OverdueMaxAge < 5*time.Minute {
		r.OverdueMaxAge = 5 * time.Minute
	}
	if r.RetentionMaxAge < 1*time.Hour {
		r.RetentionMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
