package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/formgrid/toolpack/internal/data/pgxutil"
	"github.com/formgrid/toolpack/internal/domain/model"
)

// exportJobChannel is the LISTEN/NOTIFY channel signalled on job creation.
const exportJobChannel = "export_job_added"

// RepoConfig holds configuration options for the export job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// ExportJobRepo provides database operations for export job management.
type ExportJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewExportJobRepo creates a new ExportJobRepo instance with the given
// database connection and configuration.
func NewExportJobRepo(db *sql.DB, cfg RepoConfig) *ExportJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ExportJobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const exportJobColumns = `
  id,
  tool_id,
  tool_type,
  status,
  steps_total,
  steps_completed,
  current_step_name,
  package_path,
  error_message,
  cancel_requested,
  started_at,
  completed_at,
  failed_at,
  cancelled_at,
  created_at,
  updated_at
`

// Create inserts a new pending export job and signals listening runners via
// pg_notify within the same transaction, so the wakeup never races the commit.
func (r *ExportJobRepo) Create(ctx context.Context, req *model.CreateExportJobRequest) (*model.ExportJob, error) {
	if req == nil {
		return nil, errors.New("create export job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var job *model.ExportJob
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				INSERT INTO export_jobs(tool_id, tool_type, status, steps_total)
				VALUES ($1, $2, 'pending', $3)
				RETURNING `+exportJobColumns, req.ToolID, req.ToolType, req.StepsTotal)
			if err != nil {
				return fmt.Errorf("insert export job: %w", err)
			}
			job, err = collectExportJobFromRows(rows)
			rows.Close()
			if err != nil {
				return fmt.Errorf("collect export job: %w", err)
			}

			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, exportJobChannel, job.ID); notifyErr != nil {
				return fmt.Errorf("send export job notification: %w", notifyErr)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// GetByID retrieves an export job by its ID.
func (r *ExportJobRepo) GetByID(ctx context.Context, id string) (*model.ExportJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+exportJobColumns+`
		FROM export_jobs
		WHERE id = $1
	`, id)

	job, err := scanExportJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExportJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

// Stats returns counts of export jobs in each state.
func (r *ExportJobRepo) Stats(ctx context.Context) (*model.ExportStats, error) {
	var s model.ExportStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')     AS pending,
    count(*) FILTER (WHERE status = 'in_progress') AS in_progress,
    count(*) FILTER (WHERE status = 'completed')   AS completed,
    count(*) FILTER (WHERE status = 'failed')      AS failed,
    count(*) FILTER (WHERE status = 'cancelled')   AS cancelled
  FROM export_jobs
  `).Scan(
		&s.Pending,
		&s.InProgress,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("get export stats: %w", err)
	}
	return &s, nil
}

// collectExportJobFromRows collects a single export job from pgx rows.
func collectExportJobFromRows(rows pgx.Rows) (*model.ExportJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanExportJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type exportJobRowScanner interface {
	Scan(dest ...any) error
}

type exportJobRowData struct {
	currentStepName, packagePath, errorMessage  sql.NullString
	startedAt, completedAt, failedAt, cancelled sql.NullTime
}

func (d *exportJobRowData) scanInto(scanner exportJobRowScanner, job *model.ExportJob) error {
	return scanner.Scan(
		&job.ID,
		&job.ToolID,
		&job.ToolType,
		&job.Status,
		&job.StepsTotal,
		&job.StepsCompleted,
		&d.currentStepName,
		&d.packagePath,
		&d.errorMessage,
		&job.CancelRequested,
		&d.startedAt,
		&d.completedAt,
		&d.failedAt,
		&d.cancelled,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *exportJobRowData) apply(job *model.ExportJob) {
	job.CurrentStepName = d.currentStepName.String
	job.PackagePath = cloneNullableString(d.packagePath)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.FailedAt = cloneNullableTime(d.failedAt)
	job.CancelledAt = cloneNullableTime(d.cancelled)
}

func scanExportJobFromRow(scanner exportJobRowScanner) (*model.ExportJob, error) {
	job := &model.ExportJob{}
	var data exportJobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
