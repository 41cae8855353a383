// Package httpx provides HTTP handlers and utilities for the toolpack export API.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/formgrid/toolpack/internal/data"
	"github.com/formgrid/toolpack/internal/domain/model"
	"github.com/formgrid/toolpack/internal/service"
)

// ExportHandlers provides HTTP handlers for export job operations.
type ExportHandlers struct {
	Svc *service.ExportService
}

// exportStartResponse is the payload returned when an export job is created.
type exportStartResponse struct {
	JobID      string             `json:"job_id"`
	ToolID     string             `json:"tool_id"`
	ToolType   model.ToolType     `json:"tool_type"`
	Status     model.ExportStatus `json:"status"`
	StepsTotal int                `json:"steps_total"`
}

// Start handles HTTP requests to start an export for a tool. Preflight runs
// first; a rejected tool produces no job and the reasons are returned to the
// caller.
func (h *ExportHandlers) Start(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("toolID")
	if _, err := uuid.Parse(toolID); err != nil {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_tool_id", Err: errors.New("tool id must be a valid uuid")},
		)
		return
	}

	job, preflight, err := h.Svc.Start(r.Context(), toolID)
	if errors.Is(err, service.ErrPreflightFailed) {
		if preflight.ToolMissing {
			WriteError(
				w,
				ErrorParams{Code: http.StatusNotFound, ErrCode: "tool_not_found", Err: errors.New("tool not found")},
			)
			return
		}
		WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "preflight_failed",
			"reasons": preflight.Reasons,
		})
		return
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "export_start_failed", Err: errors.New("failed to start export")})
		return
	}

	WriteJSON(w, http.StatusCreated, exportStartResponse{
		JobID:      job.ID,
		ToolID:     job.ToolID,
		ToolType:   job.ToolType,
		Status:     job.Status,
		StepsTotal: job.StepsTotal,
	})
}

// GetStatus handles HTTP requests to poll the status of an export job.
func (h *ExportHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	status, err := h.Svc.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, data.ErrExportJobNotFound) {
			WriteError(
				w,
				ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("export job not found")},
			)
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_status_failed", Err: errors.New("failed to get export status")})
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Cancel handles HTTP requests to cancel an export job. A pending job is
// cancelled outright; an in_progress job stops at its runner's next
// between-steps checkpoint. Terminal jobs answer 409.
func (h *ExportHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	outcome, err := h.Svc.Cancel(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrExportJobNotFound):
			WriteError(
				w,
				ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("export job not found")},
			)
		case errors.Is(err, data.ErrInvalidTransition):
			WriteError(
				w,
				ErrorParams{Code: http.StatusConflict, ErrCode: "job_already_finished", Err: errors.New("job is already in a terminal state")},
			)
		default:
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "cancel_failed", Err: errors.New("failed to cancel export")})
		}
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// Download handles HTTP requests to download the finished export archive.
// Only completed jobs have a package; everything else answers 409.
func (h *ExportHandlers) Download(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	job, err := h.Svc.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, data.ErrExportJobNotFound) {
			WriteError(
				w,
				ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("export job not found")},
			)
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "download_failed", Err: errors.New("failed to load export job")})
		return
	}

	if job.Status != model.ExportStatusCompleted || job.PackagePath == nil {
		WriteError(
			w,
			ErrorParams{Code: http.StatusConflict, ErrCode: "export_not_ready", Err: fmt.Errorf("export is %s, package is only available once completed", job.Status)},
		)
		return
	}

	f, err := os.Open(*job.PackagePath)
	if err != nil {
		if os.IsNotExist(err) {
			// Completed row with no archive on disk means retention cleanup
			// raced the request or the volume was rotated underneath us.
			WriteError(
				w,
				ErrorParams{Code: http.StatusGone, ErrCode: "package_expired", Err: errors.New("export package is no longer available")},
			)
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "download_failed", Err: errors.New("failed to open export package")})
		return
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "download_failed", Err: errors.New("failed to stat export package")})
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFilename(job)))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func downloadFilename(job *model.ExportJob) string {
	return fmt.Sprintf("%s-export-%s.tar.gz", job.ToolType, job.ID)
}

// Stats handles HTTP requests for counts of export jobs per state.
func (h *ExportHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: errors.New("failed to get export stats")})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
