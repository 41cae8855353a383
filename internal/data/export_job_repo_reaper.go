package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/formgrid/toolpack/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 2000 is reserved for toolpack reaper operations.
const (
	advisoryLockReaperMajor       = 2000
	advisoryLockReaperFailOverdue = 1 // minor key for FailOverdueJobs
	advisoryLockReaperDelete      = 2 // minor key for DeleteExpiredJobs
)

// FailOverdueJobs fails in_progress jobs whose updated_at is older than the
// cutoff. A healthy runner touches updated_at on every step increment, so a
// stale row means the worker crashed or wedged mid-pipeline. Uses advisory
// locks so concurrent reaper instances do not conflict.
func (r *ExportJobRepo) FailOverdueJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailOverdue).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-olderThan)

			res, err := tx.ExecContext(ctx, `
				UPDATE export_jobs
				SET status = 'failed',
					error_message = 'export timed out',
					failed_at = $1,
					updated_at = $1
				WHERE status = 'in_progress'
				  AND updated_at < $2
			`, currentTime.UTC(), cutoffTime.UTC())
			if err != nil {
				return fmt.Errorf("fail overdue export jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteExpiredJobs removes terminal jobs past the retention window, up to
// limit rows per call to prevent long locks and I/O spikes. Returns the
// deleted ids so the caller can remove package artifacts for them.
func (r *ExportJobRepo) DeleteExpiredJobs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("delete batch limit must be positive, got %d", limit)
	}

	var deleted []string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-olderThan).UTC()

			rows, err := tx.QueryContext(ctx, `
				DELETE FROM export_jobs
				WHERE id IN (
					SELECT id FROM export_jobs
					WHERE status IN ('completed', 'failed', 'cancelled')
					  AND COALESCE(completed_at, failed_at, cancelled_at, updated_at) < $1
					ORDER BY COALESCE(completed_at, failed_at, cancelled_at, updated_at)
					LIMIT $2
				)
				RETURNING id
			`, cutoffTime, limit)
			if err != nil {
				return fmt.Errorf("delete expired export jobs: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan deleted export job id: %w", scanErr)
				}
				deleted = append(deleted, id)
			}
			return rows.Err()
		},
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ListLiveJobIDs returns ids of all non-terminal export jobs. The reaper
// treats working directories that map to no live job as orphans.
func (r *ExportJobRepo) ListLiveJobIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM export_jobs
		WHERE status IN ('pending', 'in_progress')
	`)
	if err != nil {
		return nil, fmt.Errorf("list live export jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan live export job id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
