package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names written by the serialize steps. The checklist step and the
// boilerplate templates both reference these, so they live in one place.
const (
	SchemaFileName      = "schema.json"
	ThemeFileName       = "theme.json"
	SubmissionsFileName = "submissions.json"
	WorkflowFileName    = "workflow.json"
)

const workDirFileMode = 0o644

// SerializeFormStep writes the published schema, theme, and collected
// submissions of a forms tool into the working directory.
func SerializeFormStep() Step {
	return StepFunc{
		StepName: "serialize schema and theme",
		Fn: func(ctx context.Context, sc *StepContext) error {
			if len(sc.Snapshot.Schema) == 0 {
				return errors.New("tool snapshot has no schema")
			}

			if err := writeJSONFile(sc.WorkDir, SchemaFileName, sc.Snapshot.Schema); err != nil {
				return err
			}

			theme := sc.Snapshot.Theme
			if len(theme) == 0 {
				theme = json.RawMessage(`{}`)
			}
			if err := writeJSONFile(sc.WorkDir, ThemeFileName, theme); err != nil {
				return err
			}

			subs := sc.Snapshot.Submissions
			if subs == nil {
				subs = []json.RawMessage{}
			}
			encoded, err := json.MarshalIndent(subs, "", "  ")
			if err != nil {
				return fmt.Errorf("encode submissions: %w", err)
			}
			if err := os.WriteFile(filepath.Join(sc.WorkDir, SubmissionsFileName), encoded, workDirFileMode); err != nil {
				return fmt.Errorf("write %s: %w", SubmissionsFileName, err)
			}

			sc.Logger.DebugContext(ctx, "serialized form snapshot",
				"job_id", sc.JobID,
				"submissions", len(subs),
			)
			return nil
		},
	}
}

// SerializeWorkflowStep writes the workflow definition of a workflows tool.
func SerializeWorkflowStep() Step {
	return StepFunc{
		StepName: "serialize workflow definition",
		Fn: func(ctx context.Context, sc *StepContext) error {
			if len(sc.Snapshot.Schema) == 0 {
				return errors.New("tool snapshot has no workflow definition")
			}
			return writeJSONFile(sc.WorkDir, WorkflowFileName, sc.Snapshot.Schema)
		},
	}
}

// SerializeThemeStep writes the theme package of a themes tool.
func SerializeThemeStep() Step {
	return StepFunc{
		StepName: "serialize theme package",
		Fn: func(ctx context.Context, sc *StepContext) error {
			theme := sc.Snapshot.Theme
			if len(theme) == 0 {
				// A standalone theme tool keeps its payload in the schema column.
				theme = sc.Snapshot.Schema
			}
			if len(theme) == 0 {
				return errors.New("tool snapshot has no theme payload")
			}
			return writeJSONFile(sc.WorkDir, ThemeFileName, theme)
		},
	}
}

// writeJSONFile pretty-prints raw JSON into the working directory so the
// exported package is diffable by hand.
func writeJSONFile(dir, name string, raw json.RawMessage) error {
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return fmt.Errorf("invalid JSON for %s: %w", name, err)
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), pretty, workDirFileMode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
