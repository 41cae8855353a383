// Package notify defines the export failure notification contract.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
)

// ExportFailurePayload captures the canonical data we emit for export failure notifications.
type ExportFailurePayload struct {
	JobID      string
	ToolID     string
	ToolName   string
	ToolType   string
	StepName   string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming export failure notifications.
type Sink interface {
	SendExportFailure(ctx context.Context, payload ExportFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload ExportFailurePayload) error

// SendExportFailure implements the Sink interface.
func (f SinkFunc) SendExportFailure(ctx context.Context, payload ExportFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
