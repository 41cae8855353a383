// Package exportrunner provides the worker pool that executes export jobs
// through their pipeline steps and packages the results.
package exportrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/formgrid/toolpack/internal/core"
	"github.com/formgrid/toolpack/internal/domain/model"
	obserrors "github.com/formgrid/toolpack/internal/observability/errors"
	"github.com/formgrid/toolpack/internal/observability/metrics"
	"github.com/formgrid/toolpack/internal/observability/statsd"
	"github.com/formgrid/toolpack/internal/service"
	"github.com/formgrid/toolpack/internal/service/pipeline"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions configures the export runner adapter.
type RunnerOptions struct {
	Exports   *service.ExportService
	Snapshots *core.SnapshotCacheService
	Packager  *pipeline.Packager
	Logger    *slog.Logger
	Metrics   statsd.Sink

	// Concurrency is the number of worker goroutines; defaults to 1.
	Concurrency int

	// JobTimeout bounds a single job's execution; defaults to 2m.
	JobTimeout time.Duration

	// PollInterval is the fallback claim interval when no notification
	// arrives; defaults to 5s.
	PollInterval time.Duration
}

// Runner claims pending export jobs and drives them through their pipeline.
type Runner struct {
	exports      *service.ExportService
	snapshots    *core.SnapshotCacheService
	packager     *pipeline.Packager
	logger       *slog.Logger
	metrics      statsd.Sink
	workers      int
	jobTimeout   time.Duration
	pollInterval time.Duration
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner constructs an export runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Exports == nil {
		return nil, errors.New("ExportService is required")
	}
	if opts.Snapshots == nil {
		return nil, errors.New("SnapshotCacheService is required")
	}
	if opts.Packager == nil {
		return nil, errors.New("Packager is required")
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &Runner{
		exports:      opts.Exports,
		snapshots:    opts.Snapshots,
		packager:     opts.Packager,
		logger:       resolveLogger(opts.Logger).With("component", "export_runner"),
		metrics:      opts.Metrics,
		workers:      workers,
		jobTimeout:   jobTimeout,
		pollInterval: pollInterval,
	}, nil
}

// MustNewRunner constructs an export runner and panics on error.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create export runner: %v", err))
	}
	return r
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting export runner",
		"workers", r.workers,
		"job_timeout", r.jobTimeout,
		"poll_interval", r.pollInterval,
	)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.workerLoop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	// Subscribe for new-job notifications
	unsub, notify := r.exports.Subscribe()
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.exports.ClaimNext(ctx)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForWork(ctx, notify) {
				return nil
			}
		default:
			if isContextErr(err) {
				return nil
			}
			return fmt.Errorf("claim next: %w", err)
		}
	}
	return ctx.Err()
}

// waitForWork blocks until a new-job notification arrives, the poll interval
// elapses, or the context is done. Returns false on shutdown.
func (r *Runner) waitForWork(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.ExportJob) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitExportLifecycle(r.metrics, metrics.ExportMetric{
			ToolType:   string(job.ToolType),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	outcome := r.executeJob(jobCtx, job)
	switch {
	case outcome.cancelled:
		r.finishCancelled(ctx, job)
		emit("cancelled", metrics.ResultCancelled, nil)
	case outcome.err != nil:
		r.finishFailed(ctx, job, outcome)
		emit("failed", metrics.ResultError, outcome.err)
	default:
		if _, err := r.exports.Complete(ctx, job.ID, outcome.packagePath); err != nil {
			r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
			emit("completed", metrics.ResultError, err)
			return
		}
		emit("completed", metrics.ResultSuccess, nil)
	}
}

// jobOutcome captures how a job's pipeline run ended.
type jobOutcome struct {
	packagePath string
	stepName    string
	cancelled   bool
	err         error
}

// executeJob runs the pipeline for one claimed job. A panic in a step is
// converted into a failure so one bad job cannot take down the worker pool.
func (r *Runner) executeJob(ctx context.Context, job *model.ExportJob) (outcome jobOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome.err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	strategy, err := r.exports.Strategy(job.ToolType)
	if err != nil {
		outcome.err = fmt.Errorf("resolve strategy: %w", err)
		return outcome
	}

	snapshot, err := r.snapshots.GetSnapshot(ctx, job.ToolID)
	if err != nil {
		outcome.err = fmt.Errorf("load tool snapshot: %w", err)
		return outcome
	}

	workDir, err := r.packager.Stage(job.ID)
	if err != nil {
		outcome.err = fmt.Errorf("stage working directory: %w", err)
		return outcome
	}

	stepCtx := &pipeline.StepContext{
		JobID:    job.ID,
		Snapshot: snapshot,
		WorkDir:  workDir,
		Logger:   r.logger.With("job_id", job.ID, "tool_id", job.ToolID),
	}

	for i, step := range strategy.Steps {
		// Cooperative cancellation checkpoint between steps.
		if r.cancelPending(ctx, job.ID) {
			outcome.cancelled = true
			return outcome
		}

		outcome.stepName = step.Name()
		stepStart := time.Now()
		if err := step.Run(ctx, stepCtx); err != nil {
			outcome.err = fmt.Errorf("step %q: %w", step.Name(), err)
			return outcome
		}
		metrics.EmitStepDuration(r.metrics, string(job.ToolType), step.Name(), time.Since(stepStart))

		if _, err := r.exports.StepCompleted(ctx, job.ID, nextStepName(strategy, i)); err != nil {
			outcome.err = fmt.Errorf("record step completion: %w", err)
			return outcome
		}
	}

	archivePath, err := r.packager.Finalize(ctx, job.ID)
	if err != nil {
		outcome.err = fmt.Errorf("finalize package: %w", err)
		return outcome
	}

	outcome.packagePath = archivePath
	return outcome
}

// cancelPending reports whether a cancellation was requested for the job.
// Lookup failures are logged and treated as not requested so a flaky read
// cannot abort a healthy job.
func (r *Runner) cancelPending(ctx context.Context, jobID string) bool {
	requested, err := r.exports.CancelRequested(ctx, jobID)
	if err != nil {
		if !isContextErr(err) {
			r.logger.WarnContext(ctx, "cancel check failed", "job_id", jobID, "error", err)
		}
		return false
	}
	return requested
}

func (r *Runner) finishCancelled(ctx context.Context, job *model.ExportJob) {
	if _, err := r.exports.MarkCancelled(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "mark cancelled error", "job_id", job.ID, "error", err)
	}
	r.packager.Rollback(ctx, job.ID)
}

func (r *Runner) finishFailed(ctx context.Context, job *model.ExportJob, outcome jobOutcome) {
	if _, err := r.exports.Fail(ctx, job.ID, outcome.err, service.ExportFailureDetails{
		StepName: outcome.stepName,
		Metadata: map[string]string{
			"component": "export_runner",
			"tool_id":   job.ToolID,
		},
	}); err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", job.ID,
			"error", err,
			"original_error", outcome.err,
			"error_class", obserrors.Classify(outcome.err),
		)
	}
	r.packager.Rollback(ctx, job.ID)
}

// nextStepName returns the name recorded as the job's current step after
// step i completes, which is the following step or empty for the last one.
func nextStepName(strategy *pipeline.Strategy, i int) string {
	if i+1 < len(strategy.Steps) {
		return strategy.Steps[i+1].Name()
	}
	return ""
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
