package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/formgrid/toolpack/internal/core"
	"github.com/formgrid/toolpack/internal/data/pgxutil"
	"github.com/formgrid/toolpack/internal/domain/model"
)

// SQL used by ClaimNext to atomically claim the oldest pending job.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM export_jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE export_jobs j
  SET
    status = 'in_progress',
    started_at = COALESCE(j.started_at, $1),
    updated_at = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.tool_id, j.tool_type, j.status, j.steps_total, j.steps_completed, j.current_step_name, j.package_path, j.error_message, j.cancel_requested, j.started_at, j.completed_at, j.failed_at, j.cancelled_at, j.created_at, j.updated_at`

// ClaimNext atomically moves the oldest pending export job to in_progress
// and returns it. SKIP LOCKED keeps concurrent runners from claiming the
// same row. Returns model.ErrNoJobsAvailable when the queue is empty.
func (r *ExportJobRepo) ClaimNext(ctx context.Context) (*model.ExportJob, error) {
	var job *model.ExportJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now().UTC()

			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, currentTime, currentTime)
			if qerr != nil {
				return fmt.Errorf("claim export job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectExportJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim export job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Transition moves a job to a terminal status. Each target status has its
// own guarded UPDATE so partial writes are impossible: the status predicate
// and the terminal fields change in one statement or not at all.
func (r *ExportJobRepo) Transition(
	ctx context.Context,
	id string,
	status model.ExportStatus,
	params core.TransitionParams,
) (*model.ExportJob, error) {
	query, args, err := r.transitionQuery(id, status, params)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, query, args...)
	job, scanErr := scanExportJobFromRow(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, r.explainTransitionFailure(ctx, id, status)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("transition export job to %s: %w", status, scanErr)
	}
	return job, nil
}

func (r *ExportJobRepo) transitionQuery(
	id string,
	status model.ExportStatus,
	params core.TransitionParams,
) (string, []any, error) {
	currentTime := r.timeProvider.Now().UTC()

	switch status {
	case model.ExportStatusCompleted:
		if params.PackagePath == nil || params.ErrorMessage != nil {
			return "", nil, errors.New("completing a job requires a package path and no error message")
		}
		return `
			UPDATE export_jobs
			SET status = 'completed',
			    package_path = $2,
			    current_step_name = '',
			    completed_at = $3,
			    updated_at = $3
			WHERE id = $1 AND status = 'in_progress'
			RETURNING ` + exportJobColumns, []any{id, *params.PackagePath, currentTime}, nil

	case model.ExportStatusFailed:
		if params.ErrorMessage == nil || params.PackagePath != nil {
			return "", nil, errors.New("failing a job requires an error message and no package path")
		}
		return `
			UPDATE export_jobs
			SET status = 'failed',
			    error_message = $2,
			    failed_at = $3,
			    updated_at = $3
			WHERE id = $1 AND status = 'in_progress'
			RETURNING ` + exportJobColumns, []any{id, *params.ErrorMessage, currentTime}, nil

	case model.ExportStatusCancelled:
		if params.PackagePath != nil || params.ErrorMessage != nil {
			return "", nil, errors.New("cancelling a job takes no terminal fields")
		}
		return `
			UPDATE export_jobs
			SET status = 'cancelled',
			    cancelled_at = $2,
			    updated_at = $2
			WHERE id = $1 AND status IN ('pending', 'in_progress')
			RETURNING ` + exportJobColumns, []any{id, currentTime}, nil

	default:
		return "", nil, fmt.Errorf("%w: cannot transition to %s", ErrInvalidTransition, status)
	}
}

// explainTransitionFailure re-reads the row after a zero-row UPDATE to
// distinguish a missing job from an illegal status change.
func (r *ExportJobRepo) explainTransitionFailure(ctx context.Context, id string, target model.ExportStatus) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExportJobNotFound) {
			return ErrExportJobNotFound
		}
		return fmt.Errorf("re-check export job after transition attempt: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, target)
}

// IncrementStep records completion of one pipeline step: bumps
// steps_completed and stores the name of the step now running, atomically.
// The steps_completed < steps_total guard enforces the counter invariant
// even if a runner calls this once too often.
func (r *ExportJobRepo) IncrementStep(ctx context.Context, id, stepName string) (*model.ExportJob, error) {
	currentTime := r.timeProvider.Now().UTC()

	row := r.DB.QueryRowContext(ctx, `
		UPDATE export_jobs
		SET steps_completed = steps_completed + 1,
		    current_step_name = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'in_progress'
		  AND steps_completed < steps_total
		RETURNING `+exportJobColumns, id, stepName, currentTime)

	job, err := scanExportJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainIncrementFailure(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("increment export step: %w", err)
	}
	return job, nil
}

func (r *ExportJobRepo) explainIncrementFailure(ctx context.Context, id string) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExportJobNotFound) {
			return ErrExportJobNotFound
		}
		return fmt.Errorf("re-check export job after step increment: %w", err)
	}
	if job.Status != model.ExportStatusInProgress {
		return fmt.Errorf("%w: step increment on %s job", ErrInvalidTransition, job.Status)
	}
	return ErrStepOverflow
}

// RequestCancel cancels a pending job outright, or flags an in_progress job
// so the runner stops at its next between-steps checkpoint. Terminal jobs
// reject the request with ErrInvalidTransition.
func (r *ExportJobRepo) RequestCancel(ctx context.Context, id string) (core.CancelOutcome, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = 'cancelled',
		    cancelled_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return "", fmt.Errorf("cancel pending export job: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr != nil {
		return "", fmt.Errorf("cancel rows affected: %w", raErr)
	} else if affected > 0 {
		return core.CancelOutcomeCancelled, nil
	}

	res, err = r.DB.ExecContext(ctx, `
		UPDATE export_jobs
		SET cancel_requested = TRUE,
		    updated_at = $2
		WHERE id = $1 AND status = 'in_progress'
	`, id, currentTime)
	if err != nil {
		return "", fmt.Errorf("request export job cancellation: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr != nil {
		return "", fmt.Errorf("cancel request rows affected: %w", raErr)
	} else if affected > 0 {
		return core.CancelOutcomeRequested, nil
	}

	job, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, ErrExportJobNotFound) {
			return "", ErrExportJobNotFound
		}
		return "", fmt.Errorf("re-check export job after cancel attempt: %w", getErr)
	}
	return "", fmt.Errorf("%w: cancel on %s job", ErrInvalidTransition, job.Status)
}

// CancelRequested reports whether a cancellation is pending for the job.
// Runners poll this between pipeline steps.
func (r *ExportJobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT cancel_requested FROM export_jobs WHERE id = $1
	`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrExportJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check cancel requested: %w", err)
	}
	return requested, nil
}

// WaitForNotification blocks until a PostgreSQL notification indicates new
// export jobs are available, or the context is cancelled.
func (r *ExportJobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{exportJobChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", exportJobChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
