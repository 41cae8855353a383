// Package errors provides error classification helpers for observability tagging.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/formgrid/toolpack/internal/data"
	"github.com/formgrid/toolpack/internal/domain/model"
)

// wellKnown pins stable class names for the errors dashboards alert on, so
// renaming a Go type never breaks a metric series.
var wellKnown = []struct {
	target error
	class  string
}{
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{data.ErrExportJobNotFound, "job_not_found"},
	{data.ErrToolNotFound, "tool_not_found"},
	{data.ErrInvalidTransition, "invalid_transition"},
	{data.ErrStepOverflow, "step_overflow"},
	{model.ErrNoJobsAvailable, "no_jobs_available"},
}

// Classify returns a normalized error class suitable for tagging metrics and
// logs. Known export errors map to fixed names; anything else falls back to
// the innermost error's type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for _, known := range wellKnown {
		if goerrors.Is(err, known.target) {
			return known.class
		}
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
