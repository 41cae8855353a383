package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPackager(t *testing.T) *Packager {
	t.Helper()
	root := t.TempDir()
	p, err := NewPackager(PackagerOptions{
		WorkRoot:    filepath.Join(root, "work"),
		PackageRoot: filepath.Join(root, "packages"),
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	require.NoError(t, err)
	return p
}

func TestNewPackagerValidation(t *testing.T) {
	_, err := NewPackager(PackagerOptions{PackageRoot: "/tmp/pkg"})
	require.ErrorContains(t, err, "work root")

	_, err = NewPackager(PackagerOptions{WorkRoot: "/tmp/work", PackageRoot: "  "})
	require.ErrorContains(t, err, "package root")
}

func TestPackagerStageAndFinalize(t *testing.T) {
	p := newTestPackager(t)
	ctx := context.Background()

	workDir, err := p.Stage("job-1")
	require.NoError(t, err)
	assert.Equal(t, p.WorkDirFor("job-1"), workDir)

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "schema.json"), []byte(`{"a":1}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "assets", "assets.json"), []byte(`{}`), 0o644))

	archivePath, err := p.Finalize(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1.tar.gz", filepath.Base(archivePath))

	// Staging directory is gone once the archive is written.
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr))

	names := readArchiveEntries(t, archivePath)
	assert.Contains(t, names, "schema.json")
	assert.Contains(t, names, "assets/assets.json")
}

func readArchiveEntries(t *testing.T, archivePath string) []string {
	t.Helper()
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // read-only handle

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, readErr := tr.Next()
		if readErr == io.EOF {
			break
		}
		require.NoError(t, readErr)
		names = append(names, hdr.Name)
	}
	return names
}

func TestPackagerRollback(t *testing.T) {
	p := newTestPackager(t)
	ctx := context.Background()

	workDir, err := p.Stage("job-2")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "partial.json"), []byte(`{}`), 0o644))

	p.Rollback(ctx, "job-2")
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr))

	// Idempotent on an already-clean job.
	p.Rollback(ctx, "job-2")
}

func TestPackagerRemoveArtifacts(t *testing.T) {
	p := newTestPackager(t)
	ctx := context.Background()

	workDir, err := p.Stage("job-3")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "schema.json"), []byte(`{}`), 0o644))

	archivePath, err := p.Finalize(ctx, "job-3")
	require.NoError(t, err)

	require.NoError(t, p.RemoveArtifacts("job-3"))
	_, statErr := os.Stat(archivePath)
	assert.True(t, os.IsNotExist(statErr))

	// Removing a job with no artifacts is not an error.
	require.NoError(t, p.RemoveArtifacts("job-3"))
}

func TestPackagerRemoveWorkDirKeepsArchive(t *testing.T) {
	p := newTestPackager(t)
	ctx := context.Background()

	workDir, err := p.Stage("job-4")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "schema.json"), []byte(`{}`), 0o644))
	archivePath, err := p.Finalize(ctx, "job-4")
	require.NoError(t, err)

	// Simulate an orphaned working directory next to a valid package.
	_, err = p.Stage("job-4")
	require.NoError(t, err)

	require.NoError(t, p.RemoveWorkDir("job-4"))
	_, statErr := os.Stat(p.WorkDirFor("job-4"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(archivePath)
	assert.NoError(t, statErr)
}

func TestPackagerListWorkDirs(t *testing.T) {
	p := newTestPackager(t)

	ids, err := p.ListWorkDirs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = p.Stage("job-a")
	require.NoError(t, err)
	_, err = p.Stage("job-b")
	require.NoError(t, err)

	ids, err = p.ListWorkDirs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job-a", "job-b"}, ids)
}
