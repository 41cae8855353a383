// Package core provides the service layer and port definitions for the
// toolpack export system.
package core

import (
	"context"
	"time"

	"github.com/formgrid/toolpack/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal
// architecture). Services depend on these interfaces, not on the concrete
// data-layer implementations.

// TransitionParams groups the terminal-state fields a transition may set.
// Exactly one of PackagePath / ErrorMessage may be non-nil, matching the
// record invariant.
type TransitionParams struct {
	PackagePath  *string
	ErrorMessage *string
}

// CancelOutcome describes what a cancellation request actually did.
type CancelOutcome string

const (
	// CancelOutcomeCancelled means the job was pending and is now cancelled.
	CancelOutcomeCancelled CancelOutcome = "cancelled"
	// CancelOutcomeRequested means a running worker will honor the request
	// at its next between-steps checkpoint.
	CancelOutcomeRequested CancelOutcome = "requested"
)

// ExportJobRepository defines the interface for export job persistence.
// All writes are single-row atomic updates guarded by status predicates, so
// concurrent pollers always observe a consistent record.
type ExportJobRepository interface {
	Create(ctx context.Context, req *model.CreateExportJobRequest) (*model.ExportJob, error)
	GetByID(ctx context.Context, id string) (*model.ExportJob, error)
	// ClaimNext atomically moves the oldest pending job to in_progress and
	// returns it; model.ErrNoJobsAvailable when the queue is empty.
	ClaimNext(ctx context.Context) (*model.ExportJob, error)
	// Transition applies a status change per the state machine; illegal
	// changes fail with ErrInvalidTransition.
	Transition(ctx context.Context, id string, status model.ExportStatus, params TransitionParams) (*model.ExportJob, error)
	// IncrementStep bumps steps_completed and records the step name in one
	// atomic write. Only legal while in_progress.
	IncrementStep(ctx context.Context, id, stepName string) (*model.ExportJob, error)
	// RequestCancel cancels a pending job outright or flags a running one.
	RequestCancel(ctx context.Context, id string) (CancelOutcome, error)
	// CancelRequested reports whether a cancellation is pending for the job.
	CancelRequested(ctx context.Context, id string) (bool, error)
	WaitForNotification(ctx context.Context) error
	Stats(ctx context.Context) (*model.ExportStats, error)
}

// ToolRepository is the read-only tool snapshot accessor. The export core
// never writes tool data.
type ToolRepository interface {
	GetMeta(ctx context.Context, toolID string) (*model.ToolMeta, error)
	GetSnapshot(ctx context.Context, toolID string) (*model.ToolSnapshot, error)
}

// ReaperRepository defines the cleanup operations used by the reaper service.
type ReaperRepository interface {
	// FailOverdueJobs fails in_progress jobs whose updated_at is older than
	// the cutoff (a crashed or wedged worker) and returns the count.
	FailOverdueJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	// DeleteExpiredJobs removes terminal jobs past the retention window and
	// returns their ids so package artifacts can be removed as well.
	DeleteExpiredJobs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
	// ListLiveJobIDs returns ids of all non-terminal jobs, used to detect
	// orphaned working directories.
	ListLiveJobIDs(ctx context.Context) ([]string, error)
}

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value with the given key and TTL. TTL 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key; nil if the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key; true if it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
