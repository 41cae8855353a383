package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/formgrid/toolpack/internal/core"
	"github.com/formgrid/toolpack/internal/data"
	"github.com/formgrid/toolpack/internal/domain/model"
	"github.com/formgrid/toolpack/internal/service/pipeline"
)

// PreflightResult is the outcome of validating a tool for export. An empty
// Reasons list means the tool is exportable; Meta is set only in that case.
// ToolMissing distinguishes an unknown tool from one that exists but is not
// exportable, so the HTTP layer can answer 404 instead of 400.
type PreflightResult struct {
	Reasons     []string        `json:"reasons,omitempty"`
	ToolMissing bool            `json:"-"`
	Meta        *model.ToolMeta `json:"-"`
}

// OK reports whether the tool passed every preflight check.
func (r *PreflightResult) OK() bool {
	return len(r.Reasons) == 0
}

// schemaCheck is a structural requirement evaluated against the tool's
// published schema with a JMESPath expression.
type schemaCheck struct {
	expr   string
	reason string
	verify func(result any) bool
}

// schemaChecks lists the structural prerequisites per tool type. These catch
// tools whose schema was persisted by an older authoring version and would
// fail deep inside the pipeline otherwise.
var schemaChecks = map[model.ToolType][]schemaCheck{
	model.ToolTypeForms: {
		{
			expr:   "fields",
			reason: "form schema has no fields array",
			verify: nonEmptyArray,
		},
	},
	model.ToolTypeWorkflows: {
		{
			expr:   "steps",
			reason: "workflow definition has no steps array",
			verify: nonEmptyArray,
		},
	},
}

func nonEmptyArray(result any) bool {
	arr, ok := result.([]any)
	return ok && len(arr) > 0
}

// PreflightServiceOptions groups dependencies for PreflightService.
type PreflightServiceOptions struct {
	Tools    core.ToolRepository // Required: read-only tool accessor
	Registry *pipeline.Registry  // Required: export strategy registry
	Logger   *slog.Logger        // Optional: structured logger
}

// PreflightService validates that a tool can be exported before any job
// state is created. Side-effect free; a failed preflight never produces a
// job record.
type PreflightService struct {
	tools    core.ToolRepository
	registry *pipeline.Registry
	logger   *slog.Logger
}

// NewPreflightService constructs a PreflightService.
func NewPreflightService(opts PreflightServiceOptions) (*PreflightService, error) {
	if opts.Tools == nil {
		return nil, errors.New("ToolRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("strategy registry is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "preflight")
	}

	return &PreflightService{
		tools:    opts.Tools,
		registry: opts.Registry,
		logger:   logger,
	}, nil
}

// Validate checks a tool against every exportability requirement and
// returns the accumulated human-readable failure reasons. Only
// infrastructure failures surface as an error.
func (s *PreflightService) Validate(ctx context.Context, toolID string) (*PreflightResult, error) {
	meta, err := s.tools.GetMeta(ctx, toolID)
	if errors.Is(err, data.ErrToolNotFound) {
		return &PreflightResult{
			Reasons:     []string{fmt.Sprintf("tool %s not found", toolID)},
			ToolMissing: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tool meta: %w", err)
	}

	var reasons []string

	if meta.Status != model.ToolStatusPublished {
		reasons = append(reasons, fmt.Sprintf("tool is %s, only published tools can be exported", meta.Status))
	}
	if !meta.HasSchema {
		reasons = append(reasons, "tool has no persisted schema")
	}
	if !meta.ToolType.Valid() || !s.registry.Has(meta.ToolType) {
		reasons = append(reasons, fmt.Sprintf("unsupported tool type %q", meta.ToolType))
	} else if !pipeline.HasTemplateSet(meta.ToolType) {
		reasons = append(reasons, fmt.Sprintf("no boilerplate template set for tool type %q", meta.ToolType))
	}

	// Structural schema checks only make sense once the basics hold.
	if len(reasons) == 0 {
		schemaReasons, schemaErr := s.validateSchemaShape(ctx, toolID, meta.ToolType)
		if schemaErr != nil {
			return nil, schemaErr
		}
		reasons = append(reasons, schemaReasons...)
	}

	if len(reasons) > 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "preflight rejected tool",
				"tool_id", toolID,
				"reasons", reasons,
			)
		}
		return &PreflightResult{Reasons: reasons}, nil
	}

	return &PreflightResult{Meta: meta}, nil
}

func (s *PreflightService) validateSchemaShape(ctx context.Context, toolID string, toolType model.ToolType) ([]string, error) {
	checks := schemaChecks[toolType]
	if len(checks) == 0 {
		return nil, nil
	}

	snap, err := s.tools.GetSnapshot(ctx, toolID)
	if errors.Is(err, data.ErrToolNotFound) {
		// Raced with an unpublish between GetMeta and here.
		return []string{"tool is no longer published"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tool snapshot: %w", err)
	}

	var decoded any
	if unmarshalErr := json.Unmarshal(snap.Schema, &decoded); unmarshalErr != nil {
		return []string{"tool schema is not valid JSON"}, nil
	}

	var reasons []string
	for _, check := range checks {
		result, searchErr := jmespath.Search(check.expr, decoded)
		if searchErr != nil || !check.verify(result) {
			reasons = append(reasons, check.reason)
		}
	}
	return reasons, nil
}
