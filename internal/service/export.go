package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/formgrid/toolpack/internal/core"
	domainjob "github.com/formgrid/toolpack/internal/domain/job"
	"github.com/formgrid/toolpack/internal/domain/model"
	obserrors "github.com/formgrid/toolpack/internal/observability/errors"
	"github.com/formgrid/toolpack/internal/observability/notify"
	"github.com/formgrid/toolpack/internal/service/failurenotifier"
	"github.com/formgrid/toolpack/internal/service/pipeline"
)

// ErrPreflightFailed is returned by Start when a tool fails preflight. The
// accompanying PreflightResult carries the reasons for the caller.
var ErrPreflightFailed = errors.New("tool failed export preflight")

// ExportServiceOptions groups dependencies for ExportService.
type ExportServiceOptions struct {
	Repo            core.ExportJobRepository  // Required: export job store
	Preflight       *PreflightService         // Required: preflight validator
	Registry        *pipeline.Registry        // Required: export strategy registry
	Logger          *slog.Logger              // Optional: structured logger
	FailureNotifier *failurenotifier.Service  // Optional: failure notification fan-out
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// ExportService provides business logic for export job operations.
//
// This service manages:
// - Preflight-guarded job creation
// - Status polling and cancellation
// - The claim/transition lifecycle used by export runners
// - Pub/sub notification of job availability
// - Graceful shutdown of background listeners.
type ExportService struct {
	repo            core.ExportJobRepository
	preflight       *PreflightService
	registry        *pipeline.Registry
	notifier        domainjob.Notifier
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewExportService constructs a new ExportService.
func NewExportService(opts ExportServiceOptions) (*ExportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ExportJobRepository is required")
	}
	if opts.Preflight == nil {
		return nil, errors.New("PreflightService is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("strategy registry is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create export notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "export_service")
	}

	return &ExportService{
		repo:            opts.Repo,
		preflight:       opts.Preflight,
		registry:        opts.Registry,
		notifier:        notifier,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewExportService constructs a new ExportService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewExportService(opts ExportServiceOptions) *ExportService {
	svc, err := NewExportService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ExportService: %v", err))
	}
	return svc
}

// Start runs preflight and, if the tool is exportable, creates a pending
// export job and returns immediately. Execution happens asynchronously in
// an export runner; callers poll Get for progress. A failed preflight
// returns ErrPreflightFailed with the reasons and creates no job.
func (s *ExportService) Start(ctx context.Context, toolID string) (*model.ExportJob, *PreflightResult, error) {
	result, err := s.preflight.Validate(ctx, toolID)
	if err != nil {
		return nil, nil, fmt.Errorf("preflight tool %s: %w", toolID, err)
	}
	if !result.OK() {
		return nil, result, ErrPreflightFailed
	}

	strategy, err := s.registry.Strategy(result.Meta.ToolType)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve export strategy: %w", err)
	}

	job, err := s.repo.Create(ctx, &model.CreateExportJobRequest{
		ToolID:     toolID,
		ToolType:   result.Meta.ToolType,
		StepsTotal: strategy.StepsTotal(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create export job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "export job created",
			"job_id", job.ID,
			"tool_id", job.ToolID,
			"tool_type", job.ToolType,
			"steps_total", job.StepsTotal,
		)
	}

	return job, result, nil
}

// Get returns the polling status payload for a job.
func (s *ExportService) Get(ctx context.Context, jobID string) (*model.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get export job %s: %w", jobID, err)
	}
	return job.StatusResponse(), nil
}

// GetJob returns the full export job record.
func (s *ExportService) GetJob(ctx context.Context, jobID string) (*model.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get export job %s: %w", jobID, err)
	}
	return job, nil
}

// Cancel requests cancellation of a job. A pending job is cancelled
// outright; an in_progress job is flagged and its runner stops at the next
// between-steps checkpoint. Terminal jobs reject the request.
func (s *ExportService) Cancel(ctx context.Context, jobID string) (core.CancelOutcome, error) {
	outcome, err := s.repo.RequestCancel(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("cancel export job %s: %w", jobID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "export job cancellation",
			"job_id", jobID,
			"outcome", outcome,
		)
	}
	return outcome, nil
}

// ClaimNext atomically claims the oldest pending job for execution.
func (s *ExportService) ClaimNext(ctx context.Context) (*model.ExportJob, error) {
	job, err := s.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("claim next export job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "export job claimed",
			"job_id", job.ID,
			"tool_type", job.ToolType,
		)
	}
	return job, nil
}

// StepCompleted records completion of one pipeline step.
func (s *ExportService) StepCompleted(ctx context.Context, jobID, nextStepName string) (*model.ExportJob, error) {
	job, err := s.repo.IncrementStep(ctx, jobID, nextStepName)
	if err != nil {
		return nil, fmt.Errorf("increment step for job %s: %w", jobID, err)
	}
	return job, nil
}

// Complete transitions a job to completed with its final package path.
func (s *ExportService) Complete(ctx context.Context, jobID, packagePath string) (*model.ExportJob, error) {
	job, err := s.repo.Transition(ctx, jobID, model.ExportStatusCompleted, core.TransitionParams{
		PackagePath: &packagePath,
	})
	if err != nil {
		return nil, fmt.Errorf("complete export job %s: %w", jobID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "export job completed",
			"job_id", jobID,
			"package_path", packagePath,
		)
	}
	return job, nil
}

// ExportFailureDetails captures optional context for failure notifications.
type ExportFailureDetails struct {
	StepName   string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// Fail transitions a job to failed with the given error and notifies the
// registered failure sinks.
func (s *ExportService) Fail(ctx context.Context, jobID string, cause error, details ExportFailureDetails) (*model.ExportJob, error) {
	if cause == nil {
		return nil, errors.New("failure cause required")
	}

	errMsg := cause.Error()
	job, err := s.repo.Transition(ctx, jobID, model.ExportStatusFailed, core.TransitionParams{
		ErrorMessage: &errMsg,
	})
	if err != nil {
		return nil, fmt.Errorf("fail export job %s: %w", jobID, err)
	}

	if s.logger != nil {
		s.logger.ErrorContext(ctx, "export job failed",
			"job_id", jobID,
			"tool_id", job.ToolID,
			"step", details.StepName,
			"error", errMsg,
		)
	}

	if s.failureNotifier != nil {
		s.failureNotifier.NotifyExportFailure(ctx, buildExportFailurePayload(job, cause, details))
	}

	return job, nil
}

// MarkCancelled finalizes a cancellation honored by a runner checkpoint.
func (s *ExportService) MarkCancelled(ctx context.Context, jobID string) (*model.ExportJob, error) {
	job, err := s.repo.Transition(ctx, jobID, model.ExportStatusCancelled, core.TransitionParams{})
	if err != nil {
		return nil, fmt.Errorf("mark export job %s cancelled: %w", jobID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "export job cancelled", "job_id", jobID)
	}
	return job, nil
}

// CancelRequested reports whether a cancellation is pending. Runners call
// this between pipeline steps.
func (s *ExportService) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	requested, err := s.repo.CancelRequested(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("check cancel requested for job %s: %w", jobID, err)
	}
	return requested, nil
}

// Strategy resolves the export strategy for a tool type.
func (s *ExportService) Strategy(toolType model.ToolType) (*pipeline.Strategy, error) {
	return s.registry.Strategy(toolType)
}

// Stats returns counts of export jobs in each state.
func (s *ExportService) Stats(ctx context.Context) (*model.ExportStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get export stats: %w", err)
	}
	return stats, nil
}

// Subscribe creates a subscription for export job availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *ExportService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// StopAllListeners stops all active notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *ExportService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all export listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

func buildExportFailurePayload(job *model.ExportJob, cause error, details ExportFailureDetails) notify.ExportFailurePayload {
	payload := notify.ExportFailurePayload{
		JobID:      job.ID,
		ToolID:     job.ToolID,
		ToolType:   string(job.ToolType),
		StepName:   details.StepName,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   details.Metadata,
	}

	if payload.StepName == "" {
		payload.StepName = job.CurrentStepName
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}

	return payload
}
