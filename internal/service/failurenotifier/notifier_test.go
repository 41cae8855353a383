package failurenotifier

import (
	"context"
	"errors"
	"testing"

	"github.com/formgrid/toolpack/internal/observability/notify"
)

func TestServiceNotifyExportFailure(t *testing.T) {
	ctx := context.Background()

	var received []notify.ExportFailurePayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.ExportFailurePayload) error {
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	svc.NotifyExportFailure(ctx, notify.ExportFailurePayload{
		JobID:    "123",
		ToolType: "forms",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestServiceLogsErrors(t *testing.T) {
	// Ensure we don't panic when sink returns an error.
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(ctx context.Context, payload notify.ExportFailurePayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	svc.NotifyExportFailure(context.Background(), notify.ExportFailurePayload{JobID: "123"})
}
