package data

import "errors"

var (
	// ErrExportJobNotFound is returned when an export job is not found.
	ErrExportJobNotFound = errors.New("export job not found")
	// ErrToolNotFound is returned when a tool is not found.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidTransition is returned when a status change violates the
	// export job state machine (e.g., mutating a terminal job). This is a
	// programming-error class, never surfaced to end users as-is.
	ErrInvalidTransition = errors.New("invalid export job status transition")
	// ErrStepOverflow is returned when a step increment would exceed steps_total.
	ErrStepOverflow = errors.New("steps completed would exceed steps total")
)
