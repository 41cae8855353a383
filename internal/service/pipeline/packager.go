package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Packager owns the working-directory lifecycle around a pipeline run: it
// stages a directory per job, archives it into the final package on
// success, and removes everything on any failure path.
type Packager struct {
	workRoot    string
	packageRoot string
	logger      *slog.Logger
}

// PackagerOptions groups dependencies for the Packager.
type PackagerOptions struct {
	WorkRoot    string // Required: root under which per-job working directories are created
	PackageRoot string // Required: root under which final archives are written
	Logger      *slog.Logger
}

// NewPackager validates the roots and constructs a Packager.
func NewPackager(opts PackagerOptions) (*Packager, error) {
	workRoot := strings.TrimSpace(opts.WorkRoot)
	packageRoot := strings.TrimSpace(opts.PackageRoot)
	if workRoot == "" {
		return nil, errors.New("work root is required")
	}
	if packageRoot == "" {
		return nil, errors.New("package root is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "packager")
	}

	return &Packager{
		workRoot:    workRoot,
		packageRoot: packageRoot,
		logger:      logger,
	}, nil
}

// WorkDirFor returns the working directory path for a job without creating it.
func (p *Packager) WorkDirFor(jobID string) string {
	return filepath.Join(p.workRoot, jobID)
}

// archivePathFor returns the final archive path for a job.
func (p *Packager) archivePathFor(jobID string) string {
	return filepath.Join(p.packageRoot, jobID+".tar.gz")
}

// Stage creates the job's private working directory. Naming it by job id
// keeps concurrent exports of the same tool fully isolated from each other.
func (p *Packager) Stage(jobID string) (string, error) {
	dir := p.WorkDirFor(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}
	return dir, nil
}

// Finalize compresses the populated working directory into a gzip tarball,
// removes the working directory, and returns the archive path. It must be
// the last action of a successful pipeline run.
func (p *Packager) Finalize(ctx context.Context, jobID string) (string, error) {
	workDir := p.WorkDirFor(jobID)
	archivePath := p.archivePathFor(jobID)

	if err := os.MkdirAll(p.packageRoot, 0o755); err != nil {
		return "", fmt.Errorf("create package root: %w", err)
	}

	if err := writeTarGz(workDir, archivePath); err != nil {
		// A partial archive is useless; remove it so a retry starts clean.
		if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.WarnContext(ctx, "failed to remove partial archive",
				"job_id", jobID, "path", archivePath, "error", rmErr)
		}
		return "", fmt.Errorf("archive working directory: %w", err)
	}

	if err := os.RemoveAll(workDir); err != nil {
		// The package is valid; a leftover staging directory is only noise.
		p.logger.WarnContext(ctx, "failed to remove working directory after packaging",
			"job_id", jobID, "path", workDir, "error", err)
	}

	p.logger.InfoContext(ctx, "export package written",
		"job_id", jobID, "path", archivePath)
	return archivePath, nil
}

// Rollback removes the job's working directory and any partially written
// archive. It never returns an error: cleanup failures are logged so they
// cannot mask the failure that triggered the rollback. Idempotent.
func (p *Packager) Rollback(ctx context.Context, jobID string) {
	workDir := p.WorkDirFor(jobID)
	if err := os.RemoveAll(workDir); err != nil {
		p.logger.ErrorContext(ctx, "rollback: failed to remove working directory",
			"job_id", jobID, "path", workDir, "error", err)
	}

	archivePath := p.archivePathFor(jobID)
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.ErrorContext(ctx, "rollback: failed to remove partial archive",
			"job_id", jobID, "path", archivePath, "error", err)
	}
}

// RemoveArtifacts deletes the final archive for a job, used by retention
// cleanup once a terminal job expires. Unlike Rollback it reports errors.
func (p *Packager) RemoveArtifacts(jobID string) error {
	if err := os.RemoveAll(p.WorkDirFor(jobID)); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}
	if err := os.Remove(p.archivePathFor(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

// RemoveWorkDir deletes only the working directory for a job, leaving any
// archive in place. Used by the orphan sweep, where a completed job may
// still own a valid package.
func (p *Packager) RemoveWorkDir(jobID string) error {
	if err := os.RemoveAll(p.WorkDirFor(jobID)); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}
	return nil
}

// ListWorkDirs returns the job ids of all working directories currently on
// disk, used by the reaper to detect orphans.
func (p *Packager) ListWorkDirs() ([]string, error) {
	entries, err := os.ReadDir(p.workRoot)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read work root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// writeTarGz archives the contents of dir (not the directory itself) into a
// gzip-compressed tarball at dest.
func writeTarGz(dir, dest string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}

		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = filepath.ToSlash(rel)

		if writeErr := tw.WriteHeader(hdr); writeErr != nil {
			return writeErr
		}
		if d.IsDir() {
			return nil
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		_, copyErr := io.Copy(tw, f)
		closeErr := f.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	})
	if walkErr != nil {
		return fmt.Errorf("walk working directory: %w", walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}
