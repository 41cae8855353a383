package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgrid/toolpack/internal/domain/model"
)

func newTestStepContext(t *testing.T, toolType model.ToolType) *StepContext {
	t.Helper()
	return &StepContext{
		JobID: "job-test",
		Snapshot: &model.ToolSnapshot{
			ToolID:   "tool-test",
			Name:     "Contact Us",
			ToolType: toolType,
			Schema: json.RawMessage(`{
				"title": "Contact Us",
				"fields": [{"id": "name", "type": "text"}]
			}`),
			Theme:       json.RawMessage(`{"primaryColor": "#2d6cdf"}`),
			Submissions: []json.RawMessage{json.RawMessage(`{"name": "Ada"}`)},
			PublishedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		},
		WorkDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}

func readWorkFile(t *testing.T, sc *StepContext, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(sc.WorkDir, name))
	require.NoError(t, err)
	return b
}

func TestDefaultRegistryStrategies(t *testing.T) {
	reg := MustNewDefaultRegistry()

	tests := []struct {
		toolType  model.ToolType
		wantSteps int
	}{
		{toolType: model.ToolTypeForms, wantSteps: 4},
		{toolType: model.ToolTypeWorkflows, wantSteps: 3},
		{toolType: model.ToolTypeThemes, wantSteps: 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.toolType), func(t *testing.T) {
			require.True(t, reg.Has(tt.toolType))
			strategy, err := reg.Strategy(tt.toolType)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSteps, strategy.StepsTotal())
			assert.Equal(t, tt.toolType, strategy.ToolType)
		})
	}

	_, err := reg.Strategy(model.ToolType("surveys"))
	require.Error(t, err)
	assert.False(t, reg.Has(model.ToolType("surveys")))
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(nil)
	require.Error(t, err)

	_, err = NewRegistry(&Strategy{ToolType: "bogus", Steps: []Step{SerializeFormStep()}})
	require.ErrorContains(t, err, "invalid strategy tool type")

	_, err = NewRegistry(&Strategy{ToolType: model.ToolTypeForms})
	require.ErrorContains(t, err, "no steps")

	_, err = NewRegistry(FormsStrategy(), FormsStrategy())
	require.ErrorContains(t, err, "duplicate strategy")
}

func TestSerializeFormStep(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)

	require.NoError(t, SerializeFormStep().Run(context.Background(), sc))

	schema := readWorkFile(t, sc, SchemaFileName)
	assert.Contains(t, string(schema), `"Contact Us"`)

	theme := readWorkFile(t, sc, ThemeFileName)
	assert.Contains(t, string(theme), "primaryColor")

	var subs []map[string]any
	require.NoError(t, json.Unmarshal(readWorkFile(t, sc, SubmissionsFileName), &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "Ada", subs[0]["name"])
}

func TestSerializeFormStepDefaults(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)
	sc.Snapshot.Theme = nil
	sc.Snapshot.Submissions = nil

	require.NoError(t, SerializeFormStep().Run(context.Background(), sc))

	assert.JSONEq(t, `{}`, string(readWorkFile(t, sc, ThemeFileName)))
	assert.JSONEq(t, `[]`, string(readWorkFile(t, sc, SubmissionsFileName)))
}

func TestSerializeFormStepRequiresSchema(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)
	sc.Snapshot.Schema = nil

	err := SerializeFormStep().Run(context.Background(), sc)
	require.ErrorContains(t, err, "no schema")
}

func TestSerializeWorkflowStep(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeWorkflows)
	sc.Snapshot.Schema = json.RawMessage(`{"steps": [{"id": "collect-details"}]}`)

	require.NoError(t, SerializeWorkflowStep().Run(context.Background(), sc))
	assert.Contains(t, string(readWorkFile(t, sc, WorkflowFileName)), "collect-details")
}

func TestSerializeThemeStepFallsBackToSchema(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeThemes)
	sc.Snapshot.Theme = nil
	sc.Snapshot.Schema = json.RawMessage(`{"tokens": {"color.primary": "#cc0000"}}`)

	require.NoError(t, SerializeThemeStep().Run(context.Background(), sc))
	assert.Contains(t, string(readWorkFile(t, sc, ThemeFileName)), "color.primary")

	sc.Snapshot.Schema = nil
	err := SerializeThemeStep().Run(context.Background(), sc)
	require.ErrorContains(t, err, "no theme payload")
}

func TestBundleAssetsStep(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)
	sc.Snapshot.Schema = json.RawMessage(`{
		"logo": "/static/logo.png",
		"font": "https://fonts.cdn.example.com/inter.woff2",
		"label": "not an asset"
	}`)
	sc.Snapshot.Theme = json.RawMessage(`{"background": "https://fonts.cdn.example.com/bg.svg"}`)

	require.NoError(t, BundleAssetsStep().Run(context.Background(), sc))

	var manifest AssetManifest
	raw := readWorkFile(t, sc, filepath.Join(AssetDirName, AssetManifestFileName))
	require.NoError(t, json.Unmarshal(raw, &manifest))

	require.Len(t, manifest.Assets, 3)
	assert.False(t, manifest.LocalOnly)
	require.Contains(t, manifest.ByDomain, "example.com")
	assert.Len(t, manifest.ByDomain["example.com"], 2)

	var local *AssetRef
	for i := range manifest.Assets {
		if manifest.Assets[i].URL == "/static/logo.png" {
			local = &manifest.Assets[i]
		}
	}
	require.NotNil(t, local)
	assert.True(t, local.Local)
	assert.Empty(t, local.Domain)
}

func TestBundleAssetsStepLocalOnly(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)
	sc.Snapshot.Schema = json.RawMessage(`{"fields": [{"id": "name"}]}`)
	sc.Snapshot.Theme = nil

	require.NoError(t, BundleAssetsStep().Run(context.Background(), sc))

	var manifest AssetManifest
	raw := readWorkFile(t, sc, filepath.Join(AssetDirName, AssetManifestFileName))
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Empty(t, manifest.Assets)
	assert.True(t, manifest.LocalOnly)
	assert.Empty(t, manifest.ByDomain)
}

func TestGenerateBoilerplateStep(t *testing.T) {
	for _, toolType := range []model.ToolType{model.ToolTypeForms, model.ToolTypeWorkflows, model.ToolTypeThemes} {
		t.Run(string(toolType), func(t *testing.T) {
			sc := newTestStepContext(t, toolType)
			sc.Snapshot.ToolType = toolType

			require.NoError(t, GenerateBoilerplateStep().Run(context.Background(), sc))

			for _, name := range []string{
				ManifestFileName, DockerfileFileName, ComposeFileName,
				ReadmeFileName, DockerignoreFileName,
			} {
				info, err := os.Stat(filepath.Join(sc.WorkDir, name))
				require.NoError(t, err, "expected %s to be rendered", name)
				assert.Positive(t, info.Size(), "expected %s to be non-empty", name)
			}

			readme := readWorkFile(t, sc, ReadmeFileName)
			assert.Contains(t, string(readme), "Contact Us")
		})
	}
}

func TestHasTemplateSet(t *testing.T) {
	assert.True(t, HasTemplateSet(model.ToolTypeForms))
	assert.True(t, HasTemplateSet(model.ToolTypeWorkflows))
	assert.True(t, HasTemplateSet(model.ToolTypeThemes))
	assert.False(t, HasTemplateSet(model.ToolType("surveys")))
}

func TestValidateChecklistStep(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)

	ctx := context.Background()
	require.NoError(t, SerializeFormStep().Run(ctx, sc))
	require.NoError(t, BundleAssetsStep().Run(ctx, sc))
	require.NoError(t, GenerateBoilerplateStep().Run(ctx, sc))
	require.NoError(t, ValidateChecklistStep().Run(ctx, sc))
}

func TestValidateChecklistStepReportsMissingFiles(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)

	ctx := context.Background()
	require.NoError(t, SerializeFormStep().Run(ctx, sc))
	require.NoError(t, BundleAssetsStep().Run(ctx, sc))
	require.NoError(t, GenerateBoilerplateStep().Run(ctx, sc))

	require.NoError(t, os.Remove(filepath.Join(sc.WorkDir, DockerfileFileName)))
	require.NoError(t, os.WriteFile(filepath.Join(sc.WorkDir, SchemaFileName), nil, 0o644))

	err := ValidateChecklistStep().Run(ctx, sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), DockerfileFileName)
	assert.Contains(t, err.Error(), SchemaFileName)
}

func TestValidateChecklistStepUnknownToolType(t *testing.T) {
	sc := newTestStepContext(t, model.ToolTypeForms)
	sc.Snapshot.ToolType = "surveys"

	err := ValidateChecklistStep().Run(context.Background(), sc)
	require.ErrorContains(t, err, "no package checklist")
}

func TestStrategiesSatisfyTheirOwnChecklists(t *testing.T) {
	reg := MustNewDefaultRegistry()

	for _, toolType := range []model.ToolType{model.ToolTypeForms, model.ToolTypeWorkflows, model.ToolTypeThemes} {
		t.Run(string(toolType), func(t *testing.T) {
			sc := newTestStepContext(t, toolType)
			sc.Snapshot.ToolType = toolType

			strategy, err := reg.Strategy(toolType)
			require.NoError(t, err)

			for _, step := range strategy.Steps {
				require.NoError(t, step.Run(context.Background(), sc), "step %q", step.Name())
			}

			for _, name := range RequiredFiles(toolType) {
				_, statErr := os.Stat(filepath.Join(sc.WorkDir, name))
				assert.NoError(t, statErr, "checklist file %s", name)
			}
		})
	}
}

func TestStepFuncWithoutFn(t *testing.T) {
	step := StepFunc{StepName: "empty"}
	assert.Equal(t, "empty", step.Name())
	require.Error(t, step.Run(context.Background(), nil))
}
