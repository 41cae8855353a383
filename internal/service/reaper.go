package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/formgrid/toolpack/config"
	"github.com/formgrid/toolpack/internal/core"
	obserrors "github.com/formgrid/toolpack/internal/observability/errors"
	"github.com/formgrid/toolpack/internal/observability/metrics"
	"github.com/formgrid/toolpack/internal/observability/statsd"
	"github.com/formgrid/toolpack/internal/service/pipeline"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo     core.ReaperRepository // Required: reaper repository
	Packager *pipeline.Packager    // Required: removes on-disk artifacts for reaped jobs
	Config   config.ReaperConfig   // Required: reaper configuration
	Logger   *slog.Logger          // Optional: structured logger
	Metrics  statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides export job cleanup operations.
//
// This service manages:
// - Failing in_progress jobs orphaned by a crashed worker.
// - Deleting terminal jobs past retention, along with their package archives.
// - Removing working directories with no live job behind them.
type ReaperService struct {
	repo     core.ReaperRepository
	packager *pipeline.Packager
	config   config.ReaperConfig
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	if opts.Packager == nil {
		return nil, errors.New("Packager is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"overdue_max_age", opts.Config.OverdueMaxAge,
			"retention_max_age", opts.Config.RetentionMaxAge,
		)
	}

	return &ReaperService{
		repo:     opts.Repo,
		packager: opts.Packager,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the cleanup loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				if isContextCancellation(err) {
					continue
				}
				// Continue running despite errors
			}
		}
	}
}

// runCleanup performs all cleanup operations.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = cleanupMetrics{}
	)

	steps := []cleanupStep{
		{
			fn:        s.failOverdueJobs,
			label:     "fail overdue jobs",
			count:     &metricsData.OverdueCount,
			metricErr: &metricsData.OverdueErr,
		},
		{
			fn:        s.deleteExpiredJobs,
			label:     "delete expired jobs",
			count:     &metricsData.ExpiredCount,
			metricErr: &metricsData.ExpiredErr,
		},
		{
			fn:        s.removeOrphanWorkDirs,
			label:     "remove orphan work dirs",
			count:     &metricsData.OrphanCount,
			metricErr: &metricsData.OrphanErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitCleanupMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	count     *int64
	metricErr *error
}

type cleanupStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeCleanupStep(
	ctx context.Context,
	fn cleanupFunc,
	label string,
) cleanupStepOutcome {
	count, err := fn(ctx)
	outcome := cleanupStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

// failOverdueJobs marks in_progress jobs whose last update is older than the
// configured max age as failed. Catches jobs orphaned by a crashed worker.
func (s *ReaperService) failOverdueJobs(ctx context.Context) (int64, error) {
	count, err := s.repo.FailOverdueJobs(ctx, s.config.OverdueMaxAge)
	if err != nil {
		return 0, err
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed overdue jobs",
			"count", count,
			"max_age", s.config.OverdueMaxAge,
		)
	}

	return count, nil
}

// deleteExpiredJobs deletes terminal jobs older than the retention window and
// removes their on-disk artifacts. Loops until no more rows are affected to
// handle large datasets in batches.
func (s *ReaperService) deleteExpiredJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		ids, err := s.repo.DeleteExpiredJobs(ctx, s.config.RetentionMaxAge, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += int64(len(ids))

		for _, id := range ids {
			if err := s.packager.RemoveArtifacts(id); err != nil && s.logger != nil {
				// The job row is already gone; leftover files are retried by
				// the orphan sweep on the next tick.
				s.logger.WarnContext(ctx, "failed to remove artifacts for expired job",
					"job_id", id, "error", err)
			}
		}

		if len(ids) == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired jobs",
			"count", totalCount,
			"max_age", s.config.RetentionMaxAge,
		)
	}

	return totalCount, nil
}

// removeOrphanWorkDirs removes working directories whose job is no longer
// live. Archives are left alone: a completed job may still own a valid
// package while its working directory lingers after a failed cleanup.
func (s *ReaperService) removeOrphanWorkDirs(ctx context.Context) (int64, error) {
	workDirs, err := s.packager.ListWorkDirs()
	if err != nil {
		return 0, err
	}
	if len(workDirs) == 0 {
		return 0, nil
	}

	liveIDs, err := s.repo.ListLiveJobIDs(ctx)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	var count int64
	for _, id := range workDirs {
		if live[id] {
			continue
		}
		if err := s.packager.RemoveWorkDir(id); err != nil {
			return count, err
		}
		count++

		if ctx.Err() != nil {
			return count, ctx.Err()
		}
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed orphan work dirs", "count", count)
	}

	return count, nil
}

type cleanupMetrics struct {
	OverdueCount int64
	OverdueErr   error
	ExpiredCount int64
	ExpiredErr   error
	OrphanCount  int64
	OrphanErr    error
	Elapsed      time.Duration
}

func (s *ReaperService) emitCleanupMetrics(m cleanupMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.OverdueCount + m.ExpiredCount + m.OrphanCount
	firstErr := firstError(m.OverdueErr, m.ExpiredErr, m.OrphanErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitCleanupOperationMetric("fail_overdue", m.OverdueCount, m.OverdueErr)
	s.emitCleanupOperationMetric("delete_expired", m.ExpiredCount, m.ExpiredErr)
	s.emitCleanupOperationMetric("remove_orphans", m.OrphanCount, m.OrphanErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
