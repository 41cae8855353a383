package pipeline

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/formgrid/toolpack/internal/domain/model"
)

//go:embed templates
var templatesFS embed.FS

// Boilerplate file names emitted into every export package. The template
// source files carry a .tmpl suffix; ".dockerignore" is stored as
// "dockerignore.tmpl" because embed skips dotfiles.
const (
	ManifestFileName     = "package.json"
	DockerfileFileName   = "Dockerfile"
	ComposeFileName      = "docker-compose.yml"
	ReadmeFileName       = "README.md"
	DockerignoreFileName = ".dockerignore"
)

// templateOutputName maps a template source name to the file it renders.
func templateOutputName(src string) string {
	name := strings.TrimSuffix(src, ".tmpl")
	if name == "dockerignore" {
		return DockerignoreFileName
	}
	return name
}

// BoilerplateData is the context handed to every boilerplate template.
type BoilerplateData struct {
	ToolID      string
	ToolName    string
	ToolType    string
	PublishedAt string
	GeneratedAt string
}

// HasTemplateSet reports whether a boilerplate template set exists for the
// tool type. Preflight uses this so a missing set is caught before any job
// state is created.
func HasTemplateSet(toolType model.ToolType) bool {
	entries, err := templatesFS.ReadDir("templates/" + string(toolType))
	return err == nil && len(entries) > 0
}

// GenerateBoilerplateStep renders the deployment boilerplate for the tool
// type into the working directory: dependency manifest, container build
// file, compose file, README, and ignore file.
func GenerateBoilerplateStep() Step {
	return StepFunc{
		StepName: "generate deployment boilerplate",
		Fn: func(ctx context.Context, sc *StepContext) error {
			data := BoilerplateData{
				ToolID:      sc.Snapshot.ToolID,
				ToolName:    sc.Snapshot.Name,
				ToolType:    string(sc.Snapshot.ToolType),
				PublishedAt: sc.Snapshot.PublishedAt.UTC().Format(time.RFC3339),
				GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			}

			dir := "templates/" + string(sc.Snapshot.ToolType)
			entries, err := templatesFS.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("boilerplate template set for %s: %w", sc.Snapshot.ToolType, err)
			}

			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
					continue
				}
				if renderErr := renderTemplate(templatesFS, dir, entry.Name(), sc.WorkDir, data); renderErr != nil {
					return renderErr
				}
			}

			sc.Logger.DebugContext(ctx, "generated deployment boilerplate",
				"job_id", sc.JobID,
				"tool_type", sc.Snapshot.ToolType,
			)
			return nil
		},
	}
}

func renderTemplate(fsys fs.FS, dir, name, workDir string, data BoilerplateData) error {
	raw, err := fs.ReadFile(fsys, dir+"/"+name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}

	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render template %s: %w", name, err)
	}

	out := filepath.Join(workDir, templateOutputName(name))
	if err := os.WriteFile(out, buf.Bytes(), workDirFileMode); err != nil {
		return fmt.Errorf("write %s: %w", templateOutputName(name), err)
	}
	return nil
}
