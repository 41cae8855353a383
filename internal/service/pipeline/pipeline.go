// Package pipeline implements the per-tool-type export step sequences.
// A Strategy is a fixed, ordered list of steps that transform a tool
// snapshot into files in a job-scoped working directory. Strategies are
// stateless and shared across jobs; all mutable state lives in the
// StepContext of one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/formgrid/toolpack/internal/domain/model"
)

// StepContext carries the per-job state a step operates on. One context is
// built per job run and threaded through every step in order.
type StepContext struct {
	JobID    string
	Snapshot *model.ToolSnapshot
	WorkDir  string
	Logger   *slog.Logger
}

// Step is a single unit of export work. Run must be side-effect free
// outside the working directory.
type Step interface {
	Name() string
	Run(ctx context.Context, sc *StepContext) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, sc *StepContext) error
}

// Name returns the step's human-readable label.
func (s StepFunc) Name() string { return s.StepName }

// Run executes the wrapped function.
func (s StepFunc) Run(ctx context.Context, sc *StepContext) error {
	if s.Fn == nil {
		return errors.New("step function not set")
	}
	return s.Fn(ctx, sc)
}

// Strategy is the ordered step sequence for one tool type. Immutable after
// construction.
type Strategy struct {
	ToolType model.ToolType
	Steps    []Step
}

// StepsTotal returns the number of steps in the strategy.
func (s *Strategy) StepsTotal() int {
	return len(s.Steps)
}

// Registry holds the export strategy for each supported tool type. Built
// once at process start and treated as read-only afterwards.
type Registry struct {
	strategies map[model.ToolType]*Strategy
}

// NewRegistry constructs a registry from the given strategies.
func NewRegistry(strategies ...*Strategy) (*Registry, error) {
	m := make(map[model.ToolType]*Strategy, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return nil, errors.New("nil strategy")
		}
		if !s.ToolType.Valid() {
			return nil, fmt.Errorf("invalid strategy tool type: %s", s.ToolType)
		}
		if len(s.Steps) == 0 {
			return nil, fmt.Errorf("strategy for %s has no steps", s.ToolType)
		}
		if _, dup := m[s.ToolType]; dup {
			return nil, fmt.Errorf("duplicate strategy for %s", s.ToolType)
		}
		m[s.ToolType] = s
	}
	return &Registry{strategies: m}, nil
}

// MustNewDefaultRegistry builds the standard registry covering all tool
// types, panicking on construction errors. For use at process start.
func MustNewDefaultRegistry() *Registry {
	reg, err := NewRegistry(
		FormsStrategy(),
		WorkflowsStrategy(),
		ThemesStrategy(),
	)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast during startup
		panic(fmt.Sprintf("failed to build export strategy registry: %v", err))
	}
	return reg
}

// Strategy returns the strategy for the given tool type, or an error if the
// type has no registered step sequence.
func (r *Registry) Strategy(toolType model.ToolType) (*Strategy, error) {
	s, ok := r.strategies[toolType]
	if !ok {
		return nil, fmt.Errorf("no export strategy for tool type %q", toolType)
	}
	return s, nil
}

// Has reports whether a strategy exists for the tool type.
func (r *Registry) Has(toolType model.ToolType) bool {
	_, ok := r.strategies[toolType]
	return ok
}
