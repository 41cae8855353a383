package pipeline

import "github.com/formgrid/toolpack/internal/domain/model"

// FormsStrategy is the canonical forms export sequence: serialize the
// published schema and theme, inventory static assets, render deployment
// boilerplate, then validate the assembled directory.
func FormsStrategy() *Strategy {
	return &Strategy{
		ToolType: model.ToolTypeForms,
		Steps: []Step{
			SerializeFormStep(),
			BundleAssetsStep(),
			GenerateBoilerplateStep(),
			ValidateChecklistStep(),
		},
	}
}

// WorkflowsStrategy exports a workflow definition. Workflows reference no
// static assets, so there is no bundling step.
func WorkflowsStrategy() *Strategy {
	return &Strategy{
		ToolType: model.ToolTypeWorkflows,
		Steps: []Step{
			SerializeWorkflowStep(),
			GenerateBoilerplateStep(),
			ValidateChecklistStep(),
		},
	}
}

// ThemesStrategy exports a standalone theme package.
func ThemesStrategy() *Strategy {
	return &Strategy{
		ToolType: model.ToolTypeThemes,
		Steps: []Step{
			SerializeThemeStep(),
			BundleAssetsStep(),
			GenerateBoilerplateStep(),
			ValidateChecklistStep(),
		},
	}
}
