// Package model defines the core data types for the toolpack export system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ToolType identifies which export strategy applies to a tool.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ToolType string

// ExportStatus represents the current status of an export job.
type ExportStatus string

const (
	// ToolTypeForms is a published form with schema, theme, and submissions.
	ToolTypeForms ToolType = "forms"
	// ToolTypeWorkflows is a multi-step workflow definition.
	ToolTypeWorkflows ToolType = "workflows"
	// ToolTypeThemes is a standalone theme package.
	ToolTypeThemes ToolType = "themes"

	// ExportStatusPending indicates a job is waiting to be dispatched.
	ExportStatusPending ExportStatus = "pending"
	// ExportStatusInProgress indicates a job's pipeline is running.
	ExportStatusInProgress ExportStatus = "in_progress"
	// ExportStatusCompleted indicates the package was written successfully.
	ExportStatusCompleted ExportStatus = "completed"
	// ExportStatusFailed indicates a step failed and the job rolled back.
	ExportStatusFailed ExportStatus = "failed"
	// ExportStatusCancelled indicates the job was cancelled before finishing.
	ExportStatusCancelled ExportStatus = "cancelled"
)

// ErrNoJobsAvailable is returned when no pending export jobs can be claimed.
var ErrNoJobsAvailable = errors.New("no export jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for ToolType to allow env parsing.
func (t *ToolType) UnmarshalText(text []byte) error {
	v := ToolType(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*t = v
		return nil
	}
	return fmt.Errorf("invalid ToolType: %q", v)
}

// Valid returns true if the ToolType is one of the closed set.
func (t ToolType) Valid() bool {
	return t == ToolTypeForms || t == ToolTypeWorkflows || t == ToolTypeThemes
}

// Valid returns true if the ExportStatus is valid.
func (s ExportStatus) Valid() bool {
	switch s {
	case ExportStatusPending, ExportStatusInProgress, ExportStatusCompleted,
		ExportStatusFailed, ExportStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once no further transitions are allowed.
func (s ExportStatus) Terminal() bool {
	return s == ExportStatusCompleted || s == ExportStatusFailed || s == ExportStatusCancelled
}

// CanTransition reports whether moving from s to next is a legal status change.
// The progress self-transition (in_progress -> in_progress) is legal so step
// updates share the same guard as full transitions.
func (s ExportStatus) CanTransition(next ExportStatus) bool {
	switch s {
	case ExportStatusPending:
		return next == ExportStatusInProgress || next == ExportStatusCancelled
	case ExportStatusInProgress:
		return next == ExportStatusInProgress ||
			next == ExportStatusCompleted ||
			next == ExportStatusFailed ||
			next == ExportStatusCancelled
	default:
		return false
	}
}

// ExportJob is one attempt to package a tool into a deployable archive.
//
// Invariants maintained by the job store:
//   - PackagePath and ErrorMessage are mutually exclusive, both unset while
//     the job is non-terminal.
//   - StepsCompleted only increases and never exceeds StepsTotal.
//   - Terminal records are immutable apart from cleanup bookkeeping.
type ExportJob struct {
	ID              string       `json:"id"                          db:"id"`
	ToolID          string       `json:"tool_id"                     db:"tool_id"`
	ToolType        ToolType     `json:"tool_type"                   db:"tool_type"`
	Status          ExportStatus `json:"status"                      db:"status"`
	StepsTotal      int          `json:"steps_total"                 db:"steps_total"`
	StepsCompleted  int          `json:"steps_completed"             db:"steps_completed"`
	CurrentStepName string       `json:"current_step_name,omitempty" db:"current_step_name"`
	PackagePath     *string      `json:"package_path,omitempty"      db:"package_path"`
	ErrorMessage    *string      `json:"error_message,omitempty"     db:"error_message"`
	CancelRequested bool         `json:"cancel_requested"            db:"cancel_requested"`
	StartedAt       *time.Time   `json:"started_at,omitempty"        db:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"      db:"completed_at"`
	FailedAt        *time.Time   `json:"failed_at,omitempty"         db:"failed_at"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"      db:"cancelled_at"`
	CreatedAt       time.Time    `json:"created_at"                  db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"                  db:"updated_at"`
}

// CreateExportJobRequest represents a request to create a new export job.
type CreateExportJobRequest struct {
	ToolID     string   `json:"tool_id"`
	ToolType   ToolType `json:"tool_type"`
	StepsTotal int      `json:"steps_total"`
}

// Validate validates the CreateExportJobRequest fields.
func (r *CreateExportJobRequest) Validate() error {
	if strings.TrimSpace(r.ToolID) == "" {
		return errors.New("tool id is required")
	}
	if !r.ToolType.Valid() {
		return errors.New("invalid tool type")
	}
	if r.StepsTotal <= 0 {
		return errors.New("steps total must be positive")
	}
	return nil
}

// ExportStats represents counts of export jobs in each state.
type ExportStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// ExportStatusResponse is the polling payload for a single export job.
type ExportStatusResponse struct {
	JobID           string       `json:"job_id"`
	ToolID          string       `json:"tool_id"`
	ToolType        ToolType     `json:"tool_type"`
	Status          ExportStatus `json:"status"`
	StepsCompleted  int          `json:"steps_completed"`
	StepsTotal      int          `json:"steps_total"`
	CurrentStepName string       `json:"current_step_name,omitempty"`
	PackagePath     *string      `json:"package_path,omitempty"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// StatusResponse maps an ExportJob to its polling representation.
func (j *ExportJob) StatusResponse() *ExportStatusResponse {
	return &ExportStatusResponse{
		JobID:           j.ID,
		ToolID:          j.ToolID,
		ToolType:        j.ToolType,
		Status:          j.Status,
		StepsCompleted:  j.StepsCompleted,
		StepsTotal:      j.StepsTotal,
		CurrentStepName: j.CurrentStepName,
		PackagePath:     j.PackagePath,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}
