package exportrunner

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/formgrid/toolpack/internal/core"
	"github.com/formgrid/toolpack/internal/domain/model"
	"github.com/formgrid/toolpack/internal/mocks"
	"github.com/formgrid/toolpack/internal/service"
	"github.com/formgrid/toolpack/internal/service/pipeline"
)

type stubNotifier struct{}

func (stubNotifier) Subscribe() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (stubNotifier) StopAll() {}

type runnerFixture struct {
	runner   *Runner
	repo     *mocks.MockExportJobRepository
	tools    *mocks.MockToolRepository
	packager *pipeline.Packager
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	return newRunnerFixtureWithRegistry(t, pipeline.MustNewDefaultRegistry())
}

func newRunnerFixtureWithRegistry(t *testing.T, registry *pipeline.Registry) *runnerFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportJobRepository(ctrl)
	tools := mocks.NewMockToolRepository(ctrl)

	preflight, err := service.NewPreflightService(service.PreflightServiceOptions{
		Tools:    tools,
		Registry: registry,
	})
	require.NoError(t, err)

	exports := service.MustNewExportService(service.ExportServiceOptions{
		Repo:      repo,
		Preflight: preflight,
		Registry:  registry,
		Notifier:  stubNotifier{},
	})

	packager, err := pipeline.NewPackager(pipeline.PackagerOptions{
		WorkRoot:    t.TempDir(),
		PackageRoot: t.TempDir(),
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	require.NoError(t, err)

	runner := MustNewRunner(RunnerOptions{
		Exports: exports,
		Snapshots: core.NewSnapshotCacheService(core.SnapshotCacheServiceOptions{
			Tools: tools,
		}),
		Packager: packager,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})

	return &runnerFixture{
		runner:   runner,
		repo:     repo,
		tools:    tools,
		packager: packager,
	}
}

func formsJob() *model.ExportJob {
	return &model.ExportJob{
		ID:         "7f9c6f2a-3e62-4f58-9d3a-0c2d4f6a8b1c",
		ToolID:     "d2a1b3c4-5e6f-4a7b-8c9d-0e1f2a3b4c5d",
		ToolType:   model.ToolTypeForms,
		Status:     model.ExportStatusInProgress,
		StepsTotal: 4,
		CreatedAt:  time.Now(),
	}
}

func formsSnapshot(job *model.ExportJob) *model.ToolSnapshot {
	return &model.ToolSnapshot{
		ToolID:   job.ToolID,
		Name:     "Customer Intake",
		ToolType: model.ToolTypeForms,
		Schema: json.RawMessage(
			`{"fields":[{"id":"name","type":"text"},{"id":"logo","type":"image","src":"https://cdn.example.com/logo.png"}]}`,
		),
		Theme:       json.RawMessage(`{"primary":"#336699"}`),
		Submissions: []json.RawMessage{json.RawMessage(`{"name":"Ada"}`)},
		PublishedAt: time.Now().Add(-time.Hour),
	}
}

func archiveEntryNames(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
	return names
}

func TestRunner_processJob_completesFormsExport(t *testing.T) {
	fx := newRunnerFixture(t)
	job := formsJob()

	fx.tools.EXPECT().GetSnapshot(gomock.Any(), job.ToolID).Return(formsSnapshot(job), nil)
	fx.repo.EXPECT().CancelRequested(gomock.Any(), job.ID).Return(false, nil).Times(4)
	fx.repo.EXPECT().IncrementStep(gomock.Any(), job.ID, gomock.Any()).Return(job, nil).Times(4)

	var packagePath string
	fx.repo.EXPECT().
		Transition(gomock.Any(), job.ID, model.ExportStatusCompleted, gomock.Any()).
		DoAndReturn(func(
			_ context.Context,
			_ string,
			_ model.ExportStatus,
			params core.TransitionParams,
		) (*model.ExportJob, error) {
			require.NotNil(t, params.PackagePath)
			packagePath = *params.PackagePath
			return job, nil
		})

	fx.runner.processJob(context.Background(), job)

	require.NotEmpty(t, packagePath)
	require.FileExists(t, packagePath)

	names := archiveEntryNames(t, packagePath)
	for _, want := range pipeline.RequiredFiles(model.ToolTypeForms) {
		assert.Contains(t, names, want)
	}

	// The working directory must be gone once the package is written.
	assert.NoDirExists(t, fx.packager.WorkDirFor(job.ID))
}

func TestRunner_processJob_failsWhenSnapshotUnavailable(t *testing.T) {
	fx := newRunnerFixture(t)
	job := formsJob()

	fx.tools.EXPECT().GetSnapshot(gomock.Any(), job.ToolID).Return(nil, errors.New("tool vanished"))

	fx.repo.EXPECT().
		Transition(gomock.Any(), job.ID, model.ExportStatusFailed, gomock.Any()).
		DoAndReturn(func(
			_ context.Context,
			_ string,
			_ model.ExportStatus,
			params core.TransitionParams,
		) (*model.ExportJob, error) {
			require.NotNil(t, params.ErrorMessage)
			assert.Contains(t, *params.ErrorMessage, "tool vanished")
			return job, nil
		})

	fx.runner.processJob(context.Background(), job)

	assert.NoDirExists(t, fx.packager.WorkDirFor(job.ID))
}

// writeMarkerStep is a pipeline step that drops a small file into the
// working directory, standing in for a real serialization step.
func writeMarkerStep(name string) pipeline.Step {
	return pipeline.StepFunc{
		StepName: name,
		Fn: func(_ context.Context, sc *pipeline.StepContext) error {
			return os.WriteFile(filepath.Join(sc.WorkDir, name+".json"), []byte(`{}`), 0o600)
		},
	}
}

func TestRunner_processJob_failsMidPipeline(t *testing.T) {
	registry, err := pipeline.NewRegistry(&pipeline.Strategy{
		ToolType: model.ToolTypeForms,
		Steps: []pipeline.Step{
			writeMarkerStep("schema"),
			writeMarkerStep("assets"),
			pipeline.StepFunc{
				StepName: "generate deployment boilerplate",
				Fn: func(context.Context, *pipeline.StepContext) error {
					return errors.New("template render failed")
				},
			},
			writeMarkerStep("checklist"),
		},
	})
	require.NoError(t, err)

	fx := newRunnerFixtureWithRegistry(t, registry)
	job := formsJob()

	fx.tools.EXPECT().GetSnapshot(gomock.Any(), job.ToolID).Return(formsSnapshot(job), nil)
	// Checkpoints run before steps one through three; step three never
	// completes, so exactly two step increments are recorded.
	fx.repo.EXPECT().CancelRequested(gomock.Any(), job.ID).Return(false, nil).Times(3)
	fx.repo.EXPECT().IncrementStep(gomock.Any(), job.ID, gomock.Any()).Return(job, nil).Times(2)

	fx.repo.EXPECT().
		Transition(gomock.Any(), job.ID, model.ExportStatusFailed, gomock.Any()).
		DoAndReturn(func(
			_ context.Context,
			_ string,
			_ model.ExportStatus,
			params core.TransitionParams,
		) (*model.ExportJob, error) {
			require.NotNil(t, params.ErrorMessage)
			assert.Contains(t, *params.ErrorMessage, "generate deployment boilerplate")
			assert.Contains(t, *params.ErrorMessage, "template render failed")
			assert.Nil(t, params.PackagePath)
			return job, nil
		})

	fx.runner.processJob(context.Background(), job)

	// The partial working directory must be rolled back.
	assert.NoDirExists(t, fx.packager.WorkDirFor(job.ID))
}

func TestRunner_processJob_concurrentSameToolExports(t *testing.T) {
	fx := newRunnerFixture(t)

	jobA := formsJob()
	jobB := formsJob()
	jobB.ID = "5c8e1d0a-9b47-4c36-8f2e-6a1d3b5c7e9f"
	jobs := []*model.ExportJob{jobA, jobB}

	fx.tools.EXPECT().GetSnapshot(gomock.Any(), jobA.ToolID).Return(formsSnapshot(jobA), nil).Times(2)

	var mu sync.Mutex
	paths := make(map[string]string, len(jobs))
	for _, job := range jobs {
		fx.repo.EXPECT().CancelRequested(gomock.Any(), job.ID).Return(false, nil).Times(4)
		fx.repo.EXPECT().IncrementStep(gomock.Any(), job.ID, gomock.Any()).Return(job, nil).Times(4)
		fx.repo.EXPECT().
			Transition(gomock.Any(), job.ID, model.ExportStatusCompleted, gomock.Any()).
			DoAndReturn(func(
				_ context.Context,
				id string,
				_ model.ExportStatus,
				params core.TransitionParams,
			) (*model.ExportJob, error) {
				require.NotNil(t, params.PackagePath)
				mu.Lock()
				paths[id] = *params.PackagePath
				mu.Unlock()
				return job, nil
			})
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(j *model.ExportJob) {
			defer wg.Done()
			fx.runner.processJob(context.Background(), j)
		}(job)
	}
	wg.Wait()

	require.Len(t, paths, 2)
	require.NotEqual(t, paths[jobA.ID], paths[jobB.ID])
	assert.NotEqual(t, fx.packager.WorkDirFor(jobA.ID), fx.packager.WorkDirFor(jobB.ID))

	// Each job must yield its own complete, independently valid archive.
	for _, job := range jobs {
		require.FileExists(t, paths[job.ID])
		names := archiveEntryNames(t, paths[job.ID])
		for _, want := range pipeline.RequiredFiles(model.ToolTypeForms) {
			assert.Contains(t, names, want)
		}
		assert.NoDirExists(t, fx.packager.WorkDirFor(job.ID))
	}
}

func TestRunner_processJob_honoursCancellationCheckpoint(t *testing.T) {
	fx := newRunnerFixture(t)
	job := formsJob()

	fx.tools.EXPECT().GetSnapshot(gomock.Any(), job.ToolID).Return(formsSnapshot(job), nil)
	// First between-steps checkpoint reports a pending cancellation.
	fx.repo.EXPECT().CancelRequested(gomock.Any(), job.ID).Return(true, nil)
	fx.repo.EXPECT().
		Transition(gomock.Any(), job.ID, model.ExportStatusCancelled, gomock.Any()).
		Return(job, nil)

	fx.runner.processJob(context.Background(), job)

	// No steps ran and the staging area was rolled back.
	assert.NoDirExists(t, fx.packager.WorkDirFor(job.ID))
}

func TestRunner_processJob_recoversFromStepPanic(t *testing.T) {
	fx := newRunnerFixture(t)
	job := formsJob()

	// A snapshot with a nil schema makes the serialize step blow up only if
	// it dereferences blindly; it should instead error, but a panic anywhere
	// in the pipeline must still land the job in failed.
	fx.tools.EXPECT().GetSnapshot(gomock.Any(), job.ToolID).DoAndReturn(
		func(context.Context, string) (*model.ToolSnapshot, error) {
			panic("snapshot cache corrupted")
		})

	fx.repo.EXPECT().
		Transition(gomock.Any(), job.ID, model.ExportStatusFailed, gomock.Any()).
		DoAndReturn(func(
			_ context.Context,
			_ string,
			_ model.ExportStatus,
			params core.TransitionParams,
		) (*model.ExportJob, error) {
			require.NotNil(t, params.ErrorMessage)
			assert.Contains(t, *params.ErrorMessage, "panic")
			return job, nil
		})

	fx.runner.processJob(context.Background(), job)
}

func TestNewRunner_validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExportService is required")
}
