package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formgrid/toolpack/internal/domain/model"
)

// ToolRepo provides read-only database access to tools and their
// submissions. The export service never mutates tool data.
type ToolRepo struct {
	DB *sql.DB
}

// NewToolRepo creates a new ToolRepo instance with the given database connection.
func NewToolRepo(db *sql.DB) *ToolRepo {
	return &ToolRepo{DB: db}
}

// GetMeta returns the lightweight tool record used by preflight checks.
func (r *ToolRepo) GetMeta(ctx context.Context, toolID string) (*model.ToolMeta, error) {
	var (
		meta        model.ToolMeta
		publishedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, tool_type, status, schema IS NOT NULL AS has_schema, published_at
		FROM tools
		WHERE id = $1
	`, toolID).Scan(
		&meta.ID,
		&meta.Name,
		&meta.ToolType,
		&meta.Status,
		&meta.HasSchema,
		&publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrToolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool meta: %w", err)
	}
	meta.PublishedAt = cloneNullableTime(publishedAt)
	return &meta, nil
}

// GetSnapshot loads the full export view of a tool: published schema, theme,
// and collected submissions ordered oldest first. Only published tools with
// a schema have a snapshot; anything else reports ErrToolNotFound so callers
// cannot export a draft by accident.
func (r *ToolRepo) GetSnapshot(ctx context.Context, toolID string) (*model.ToolSnapshot, error) {
	var (
		snap        model.ToolSnapshot
		schema      []byte
		theme       []byte
		publishedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, tool_type, schema, theme, published_at
		FROM tools
		WHERE id = $1
		  AND status = 'published'
		  AND schema IS NOT NULL
	`, toolID).Scan(
		&snap.ToolID,
		&snap.Name,
		&snap.ToolType,
		&schema,
		&theme,
		&publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrToolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool snapshot: %w", err)
	}

	// Rows published before the publish timestamp was recorded may carry a
	// NULL published_at; treat those as an unknown (zero) publish time.
	if publishedAt.Valid {
		snap.PublishedAt = publishedAt.Time.UTC()
	}

	snap.Schema = cloneRawJSON(schema)
	if len(theme) > 0 {
		snap.Theme = cloneRawJSON(theme)
	}

	subs, err := r.listSubmissions(ctx, toolID)
	if err != nil {
		return nil, err
	}
	snap.Submissions = subs

	return &snap, nil
}

func (r *ToolRepo) listSubmissions(ctx context.Context, toolID string) ([]json.RawMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT payload
		FROM tool_submissions
		WHERE tool_id = $1
		ORDER BY created_at ASC
	`, toolID)
	if err != nil {
		return nil, fmt.Errorf("list tool submissions: %w", err)
	}
	defer rows.Close()

	var subs []json.RawMessage
	for rows.Next() {
		var payload []byte
		if scanErr := rows.Scan(&payload); scanErr != nil {
			return nil, fmt.Errorf("scan tool submission: %w", scanErr)
		}
		subs = append(subs, cloneRawJSON(payload))
	}
	return subs, rows.Err()
}

func cloneRawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}
