package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ExportStatus
		to   ExportStatus
		want bool
	}{
		{name: "pending to in_progress", from: ExportStatusPending, to: ExportStatusInProgress, want: true},
		{name: "pending to cancelled", from: ExportStatusPending, to: ExportStatusCancelled, want: true},
		{name: "pending to completed skips execution", from: ExportStatusPending, to: ExportStatusCompleted, want: false},
		{name: "pending to failed skips execution", from: ExportStatusPending, to: ExportStatusFailed, want: false},
		{name: "in_progress to completed", from: ExportStatusInProgress, to: ExportStatusCompleted, want: true},
		{name: "in_progress to failed", from: ExportStatusInProgress, to: ExportStatusFailed, want: true},
		{name: "in_progress to cancelled", from: ExportStatusInProgress, to: ExportStatusCancelled, want: true},
		{name: "in_progress step update self transition", from: ExportStatusInProgress, to: ExportStatusInProgress, want: true},
		{name: "in_progress back to pending", from: ExportStatusInProgress, to: ExportStatusPending, want: false},
		{name: "completed is immutable", from: ExportStatusCompleted, to: ExportStatusCancelled, want: false},
		{name: "failed is immutable", from: ExportStatusFailed, to: ExportStatusInProgress, want: false},
		{name: "cancelled is immutable", from: ExportStatusCancelled, to: ExportStatusInProgress, want: false},
		{name: "cancelled cannot re-cancel", from: ExportStatusCancelled, to: ExportStatusCancelled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestExportStatusTerminal(t *testing.T) {
	assert.False(t, ExportStatusPending.Terminal())
	assert.False(t, ExportStatusInProgress.Terminal())
	assert.True(t, ExportStatusCompleted.Terminal())
	assert.True(t, ExportStatusFailed.Terminal())
	assert.True(t, ExportStatusCancelled.Terminal())
}

func TestExportStatusValid(t *testing.T) {
	for _, s := range []ExportStatus{
		ExportStatusPending, ExportStatusInProgress, ExportStatusCompleted,
		ExportStatusFailed, ExportStatusCancelled,
	} {
		assert.True(t, s.Valid(), "status %q should be valid", s)
	}
	assert.False(t, ExportStatus("queued").Valid())
	assert.False(t, ExportStatus("").Valid())
}

func TestToolTypeUnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ToolType
		wantErr bool
	}{
		{name: "forms", input: "forms", want: ToolTypeForms},
		{name: "workflows", input: "workflows", want: ToolTypeWorkflows},
		{name: "themes", input: "themes", want: ToolTypeThemes},
		{name: "uppercase normalized", input: "FORMS", want: ToolTypeForms},
		{name: "surrounding whitespace trimmed", input: "  themes ", want: ToolTypeThemes},
		{name: "unknown type", input: "surveys", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ToolType
			err := got.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateExportJobRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateExportJobRequest
		wantErr string
	}{
		{
			name: "valid request",
			req:  CreateExportJobRequest{ToolID: "tool-1", ToolType: ToolTypeForms, StepsTotal: 4},
		},
		{
			name:    "missing tool id",
			req:     CreateExportJobRequest{ToolType: ToolTypeForms, StepsTotal: 4},
			wantErr: "tool id is required",
		},
		{
			name:    "whitespace tool id",
			req:     CreateExportJobRequest{ToolID: "   ", ToolType: ToolTypeForms, StepsTotal: 4},
			wantErr: "tool id is required",
		},
		{
			name:    "invalid tool type",
			req:     CreateExportJobRequest{ToolID: "tool-1", ToolType: "surveys", StepsTotal: 4},
			wantErr: "invalid tool type",
		},
		{
			name:    "zero steps",
			req:     CreateExportJobRequest{ToolID: "tool-1", ToolType: ToolTypeThemes},
			wantErr: "steps total must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExportJobStatusResponse(t *testing.T) {
	now := time.Now()
	pkg := "/var/packages/job-1.tar.gz"
	job := &ExportJob{
		ID:              "job-1",
		ToolID:          "tool-1",
		ToolType:        ToolTypeForms,
		Status:          ExportStatusCompleted,
		StepsTotal:      4,
		StepsCompleted:  4,
		CurrentStepName: "",
		PackagePath:     &pkg,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	resp := job.StatusResponse()
	require.NotNil(t, resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "tool-1", resp.ToolID)
	assert.Equal(t, ToolTypeForms, resp.ToolType)
	assert.Equal(t, ExportStatusCompleted, resp.Status)
	assert.Equal(t, 4, resp.StepsTotal)
	assert.Equal(t, 4, resp.StepsCompleted)
	require.NotNil(t, resp.PackagePath)
	assert.Equal(t, pkg, *resp.PackagePath)
	assert.Nil(t, resp.ErrorMessage)
}
