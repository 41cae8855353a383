package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgrid/toolpack/internal/core"
	"github.com/formgrid/toolpack/internal/domain/model"
	"github.com/formgrid/toolpack/internal/testutil"
)

// insertTestTool creates a published parent tool so export job rows satisfy
// the tool_id foreign key.
func insertTestTool(t *testing.T, db *sql.DB) string {
	t.Helper()

	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO tools (name, tool_type, status, schema, published_at)
		VALUES ('Integration Form', 'forms', 'published', '{"fields": []}'::jsonb, now())
		RETURNING id
	`).Scan(&id)
	require.NoError(t, err)
	return id
}

func newExportRequest(toolID string) *model.CreateExportJobRequest {
	return &model.CreateExportJobRequest{
		ToolID:     toolID,
		ToolType:   model.ToolTypeForms,
		StepsTotal: 4,
	}
}

// TestExportJobRepo_Integration_CreateAndClaimFIFO verifies that pending jobs
// are claimed oldest first.
func TestExportJobRepo_Integration_CreateAndClaimFIFO(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		var created []string
		for range 3 {
			job, err := repo.Create(context.Background(), newExportRequest(toolID))
			require.NoError(t, err)
			assert.Equal(t, model.ExportStatusPending, job.Status)
			assert.Equal(t, 0, job.StepsCompleted)
			created = append(created, job.ID)
		}

		for _, wantID := range created {
			claimed, err := repo.ClaimNext(context.Background())
			require.NoError(t, err)
			assert.Equal(t, wantID, claimed.ID)
			assert.Equal(t, model.ExportStatusInProgress, claimed.Status)
			assert.NotNil(t, claimed.StartedAt)
		}

		_, err := repo.ClaimNext(context.Background())
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

// TestExportJobRepo_Integration_Lifecycle walks a job from creation through
// step increments to completion, then checks the terminal state is immutable.
func TestExportJobRepo_Integration_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		job, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)

		claimed, err := repo.ClaimNext(context.Background())
		require.NoError(t, err)
		require.Equal(t, job.ID, claimed.ID)

		stepped, err := repo.IncrementStep(context.Background(), job.ID, "bundle static assets")
		require.NoError(t, err)
		assert.Equal(t, 1, stepped.StepsCompleted)
		assert.Equal(t, "bundle static assets", stepped.CurrentStepName)

		stepped, err = repo.IncrementStep(context.Background(), job.ID, "generate deployment boilerplate")
		require.NoError(t, err)
		assert.Equal(t, 2, stepped.StepsCompleted)

		done, err := repo.Transition(context.Background(), job.ID, model.ExportStatusCompleted, core.TransitionParams{
			PackagePath: testutil.StringPtr("/var/lib/toolpack/packages/" + job.ID + ".tar.gz"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusCompleted, done.Status)
		require.NotNil(t, done.PackagePath)
		assert.Contains(t, *done.PackagePath, job.ID)
		assert.NotNil(t, done.CompletedAt)
		assert.Empty(t, done.CurrentStepName)

		// Terminal jobs reject further writes.
		_, err = repo.Transition(context.Background(), job.ID, model.ExportStatusCancelled, core.TransitionParams{})
		require.ErrorIs(t, err, ErrInvalidTransition)

		_, err = repo.IncrementStep(context.Background(), job.ID, "late step")
		require.ErrorIs(t, err, ErrInvalidTransition)

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusCompleted, fetched.Status)
	})
}

// TestExportJobRepo_Integration_FailTransition stores the failure cause on
// the record.
func TestExportJobRepo_Integration_FailTransition(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		job, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)

		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		failed, err := repo.Transition(context.Background(), job.ID, model.ExportStatusFailed, core.TransitionParams{
			ErrorMessage: testutil.StringPtr("serialize schema and theme: disk full"),
		})
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusFailed, failed.Status)
		require.NotNil(t, failed.ErrorMessage)
		assert.Contains(t, *failed.ErrorMessage, "disk full")
		assert.NotNil(t, failed.FailedAt)
		assert.Nil(t, failed.PackagePath)
	})
}

// TestExportJobRepo_Integration_TransitionGuards covers parameter validation
// and missing rows.
func TestExportJobRepo_Integration_TransitionGuards(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		job, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)
		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		// Completion requires a package path.
		_, err = repo.Transition(context.Background(), job.ID, model.ExportStatusCompleted, core.TransitionParams{})
		require.ErrorContains(t, err, "package path")

		// Failure requires a cause.
		_, err = repo.Transition(context.Background(), job.ID, model.ExportStatusFailed, core.TransitionParams{})
		require.ErrorContains(t, err, "error message")

		// Non-terminal targets are not reachable through Transition.
		_, err = repo.Transition(context.Background(), job.ID, model.ExportStatusPending, core.TransitionParams{})
		require.ErrorIs(t, err, ErrInvalidTransition)

		// Unknown job ids surface as not found, not as an illegal transition.
		_, err = repo.Transition(context.Background(), "00000000-0000-4000-8000-000000000000", model.ExportStatusCancelled, core.TransitionParams{})
		require.ErrorIs(t, err, ErrExportJobNotFound)

		_, err = repo.GetByID(context.Background(), "00000000-0000-4000-8000-000000000000")
		require.ErrorIs(t, err, ErrExportJobNotFound)
	})
}

// TestExportJobRepo_Integration_RequestCancel checks both cancellation paths:
// pending jobs cancel immediately, running jobs get a cooperative flag.
func TestExportJobRepo_Integration_RequestCancel(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		pending, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)

		outcome, err := repo.RequestCancel(context.Background(), pending.ID)
		require.NoError(t, err)
		assert.Equal(t, core.CancelOutcomeCancelled, outcome)

		cancelled, err := repo.GetByID(context.Background(), pending.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)

		running, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)
		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		outcome, err = repo.RequestCancel(context.Background(), running.ID)
		require.NoError(t, err)
		assert.Equal(t, core.CancelOutcomeRequested, outcome)

		requested, err := repo.CancelRequested(context.Background(), running.ID)
		require.NoError(t, err)
		assert.True(t, requested)

		// The runner acknowledges the flag with a cancelled transition.
		_, err = repo.Transition(context.Background(), running.ID, model.ExportStatusCancelled, core.TransitionParams{})
		require.NoError(t, err)

		// Cancelling a terminal job is rejected.
		_, err = repo.RequestCancel(context.Background(), running.ID)
		require.ErrorIs(t, err, ErrInvalidTransition)

		_, err = repo.RequestCancel(context.Background(), "00000000-0000-4000-8000-000000000000")
		require.ErrorIs(t, err, ErrExportJobNotFound)
	})
}

// TestExportJobRepo_Integration_StepOverflow checks the steps_completed
// counter cannot pass steps_total.
func TestExportJobRepo_Integration_StepOverflow(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		req := newExportRequest(toolID)
		req.StepsTotal = 1
		job, err := repo.Create(context.Background(), req)
		require.NoError(t, err)

		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		_, err = repo.IncrementStep(context.Background(), job.ID, "validate package checklist")
		require.NoError(t, err)

		_, err = repo.IncrementStep(context.Background(), job.ID, "validate package checklist")
		require.ErrorIs(t, err, ErrStepOverflow)
	})
}

// TestExportJobRepo_Integration_ConcurrentClaim races two claimers over a
// single pending job.
func TestExportJobRepo_Integration_ConcurrentClaim(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		job, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)

		results := make(chan *model.ExportJob, 2)
		claimErrs := make(chan error, 2)

		for range 2 {
			go func() {
				claimed, claimErr := repo.ClaimNext(context.Background())
				if claimErr != nil {
					claimErrs <- claimErr
				} else {
					results <- claimed
				}
			}()
		}

		var successCount, emptyCount int
		for range 2 {
			select {
			case claimed := <-results:
				successCount++
				assert.Equal(t, job.ID, claimed.ID)
			case claimErr := <-claimErrs:
				emptyCount++
				assert.ErrorIs(t, claimErr, model.ErrNoJobsAvailable)
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for concurrent claims")
			}
		}

		assert.Equal(t, 1, successCount)
		assert.Equal(t, 1, emptyCount)
	})
}

// TestExportJobRepo_Integration_Stats counts jobs per status.
func TestExportJobRepo_Integration_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewExportJobRepo(db, RepoConfig{})
		toolID := insertTestTool(t, db)

		var ids []string
		for range 4 {
			job, err := repo.Create(context.Background(), newExportRequest(toolID))
			require.NoError(t, err)
			ids = append(ids, job.ID)
		}

		// ids[0] completes, ids[1] fails, ids[2] stays running, ids[3] stays pending.
		for range 3 {
			_, err := repo.ClaimNext(context.Background())
			require.NoError(t, err)
		}
		_, err := repo.Transition(context.Background(), ids[0], model.ExportStatusCompleted, core.TransitionParams{
			PackagePath: testutil.StringPtr("/tmp/" + ids[0] + ".tar.gz"),
		})
		require.NoError(t, err)
		_, err = repo.Transition(context.Background(), ids[1], model.ExportStatusFailed, core.TransitionParams{
			ErrorMessage: testutil.StringPtr("boom"),
		})
		require.NoError(t, err)

		stats, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.InProgress)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 0, stats.Cancelled)
	})
}

// TestExportJobRepo_Integration_FailOverdueJobs reaps wedged runners by
// updated_at age.
func TestExportJobRepo_Integration_FailOverdueJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportJobRepo(db, RepoConfig{TimeProvider: timeProvider})
		toolID := insertTestTool(t, db)

		stale, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)
		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		// A second job claimed after the clock advances stays healthy.
		timeProvider.AddTime(10 * time.Minute)
		fresh, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)
		_, err = repo.ClaimNext(context.Background())
		require.NoError(t, err)

		failedCount, err := repo.FailOverdueJobs(context.Background(), 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), failedCount)

		reaped, err := repo.GetByID(context.Background(), stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusFailed, reaped.Status)
		require.NotNil(t, reaped.ErrorMessage)
		assert.Equal(t, "export timed out", *reaped.ErrorMessage)

		alive, err := repo.GetByID(context.Background(), fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusInProgress, alive.Status)
	})
}

// TestExportJobRepo_Integration_DeleteExpiredJobs removes terminal jobs past
// retention, in batches.
func TestExportJobRepo_Integration_DeleteExpiredJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportJobRepo(db, RepoConfig{TimeProvider: timeProvider})
		toolID := insertTestTool(t, db)

		var terminal []string
		for range 3 {
			job, err := repo.Create(context.Background(), newExportRequest(toolID))
			require.NoError(t, err)
			_, err = repo.ClaimNext(context.Background())
			require.NoError(t, err)
			_, err = repo.Transition(context.Background(), job.ID, model.ExportStatusFailed, core.TransitionParams{
				ErrorMessage: testutil.StringPtr("old failure"),
			})
			require.NoError(t, err)
			terminal = append(terminal, job.ID)
		}

		// One live job must survive every sweep.
		live, err := repo.Create(context.Background(), newExportRequest(toolID))
		require.NoError(t, err)

		_, err = repo.DeleteExpiredJobs(context.Background(), time.Hour, 0)
		require.ErrorContains(t, err, "limit must be positive")

		timeProvider.AddTime(48 * time.Hour)

		deleted, err := repo.DeleteExpiredJobs(context.Background(), 24*time.Hour, 2)
		require.NoError(t, err)
		assert.Len(t, deleted, 2)

		deleted, err = repo.DeleteExpiredJobs(context.Background(), 24*time.Hour, 2)
		require.NoError(t, err)
		assert.Len(t, deleted, 1)

		for _, id := range terminal {
			_, getErr := repo.GetByID(context.Background(), id)
			assert.ErrorIs(t, getErr, ErrExportJobNotFound)
		}

		liveIDs, err := repo.ListLiveJobIDs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{live.ID}, liveIDs)
	})
}
