// Package metrics emits standardised export lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/formgrid/toolpack/internal/observability/errors"
	"github.com/formgrid/toolpack/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultNoop      = "noop"
)

// ExportMetric captures details about an export lifecycle event for metric emission.
type ExportMetric struct {
	ToolType   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitExportLifecycle emits standardised export lifecycle metrics.
func EmitExportLifecycle(sink statsd.Sink, in ExportMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"tool_type":  in.ToolType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("export.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("export.duration", in.Duration, CloneTags(tags))
	}
}

// EmitStepDuration records how long a single pipeline step took.
func EmitStepDuration(sink statsd.Sink, toolType, stepName string, d time.Duration) {
	if sink == nil || d <= 0 {
		return
	}
	sink.Timing("export.step.duration", d, map[string]string{
		"tool_type": toolType,
		"step":      stepName,
	})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty maps.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
