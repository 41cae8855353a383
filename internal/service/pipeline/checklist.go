package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/formgrid/toolpack/internal/domain/model"
)

// requiredFiles is the per-tool-type checklist the assembled working
// directory must satisfy before packaging. Every entry must exist and be
// non-empty.
var requiredFiles = map[model.ToolType][]string{
	model.ToolTypeForms: {
		SchemaFileName,
		ThemeFileName,
		SubmissionsFileName,
		filepath.Join(AssetDirName, AssetManifestFileName),
		ManifestFileName,
		DockerfileFileName,
		ComposeFileName,
		ReadmeFileName,
		DockerignoreFileName,
	},
	model.ToolTypeWorkflows: {
		WorkflowFileName,
		ManifestFileName,
		DockerfileFileName,
		ComposeFileName,
		ReadmeFileName,
		DockerignoreFileName,
	},
	model.ToolTypeThemes: {
		ThemeFileName,
		filepath.Join(AssetDirName, AssetManifestFileName),
		ManifestFileName,
		DockerfileFileName,
		ComposeFileName,
		ReadmeFileName,
		DockerignoreFileName,
	},
}

// RequiredFiles returns the checklist for a tool type. The returned slice
// must not be mutated.
func RequiredFiles(toolType model.ToolType) []string {
	return requiredFiles[toolType]
}

// ValidateChecklistStep verifies the assembled working directory contains
// every file the tool type's package requires. Running last, it turns a
// silent pipeline bug (a step that forgot to write a file) into an explicit
// failure before anything is archived.
func ValidateChecklistStep() Step {
	return StepFunc{
		StepName: "validate package checklist",
		Fn: func(ctx context.Context, sc *StepContext) error {
			checklist := requiredFiles[sc.Snapshot.ToolType]
			if len(checklist) == 0 {
				return fmt.Errorf("no package checklist for tool type %q", sc.Snapshot.ToolType)
			}

			var missing []string
			for _, name := range checklist {
				info, err := os.Stat(filepath.Join(sc.WorkDir, name))
				if err != nil || info.IsDir() || info.Size() == 0 {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("package checklist failed, missing or empty: %s", strings.Join(missing, ", "))
			}

			sc.Logger.DebugContext(ctx, "package checklist passed",
				"job_id", sc.JobID,
				"files_checked", len(checklist),
			)
			return nil
		},
	}
}
