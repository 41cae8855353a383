package model

import (
	"encoding/json"
	"time"
)

// ToolStatus represents the publication state of a tool.
type ToolStatus string

const (
	// ToolStatusDraft indicates a tool that has never been published.
	ToolStatusDraft ToolStatus = "draft"
	// ToolStatusPublished indicates a tool with a persisted published schema.
	ToolStatusPublished ToolStatus = "published"
	// ToolStatusArchived indicates a tool that was retired by its owner.
	ToolStatusArchived ToolStatus = "archived"
)

// ToolMeta is the lightweight tool record used by preflight checks.
type ToolMeta struct {
	ID          string     `json:"id"           db:"id"`
	Name        string     `json:"name"         db:"name"`
	ToolType    ToolType   `json:"tool_type"    db:"tool_type"`
	Status      ToolStatus `json:"status"       db:"status"`
	HasSchema   bool       `json:"has_schema"   db:"has_schema"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
}

// Exportable returns true when the tool is in a state the export pipeline accepts.
func (m *ToolMeta) Exportable() bool {
	return m.Status == ToolStatusPublished && m.HasSchema
}

// ToolSnapshot is the read-only view of a tool consumed by the export pipeline:
// the published schema and theme plus any collected submissions. It is fetched
// once per job at pipeline start and never written back.
type ToolSnapshot struct {
	ToolID      string            `json:"tool_id"`
	Name        string            `json:"name"`
	ToolType    ToolType          `json:"tool_type"`
	Schema      json.RawMessage   `json:"schema"`
	Theme       json.RawMessage   `json:"theme,omitempty"`
	Submissions []json.RawMessage `json:"submissions,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}
