package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgrid/toolpack/internal/domain/model"
	"github.com/formgrid/toolpack/internal/testutil"
)

type toolRow struct {
	name     string
	toolType string
	status   string
	schema   *string
	theme    *string
}

func insertTool(t *testing.T, db *sql.DB, row toolRow) string {
	t.Helper()

	var publishedAt *time.Time
	if row.status == "published" {
		publishedAt = testutil.TimePtr(testutil.TestTime())
	}

	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO tools (name, tool_type, status, schema, theme, published_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6)
		RETURNING id
	`, row.name, row.toolType, row.status, row.schema, row.theme, publishedAt).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertSubmissionRow(t *testing.T, db *sql.DB, toolID, payload string, createdAt time.Time) {
	t.Helper()

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO tool_submissions (tool_id, payload, created_at)
		VALUES ($1, $2::jsonb, $3)
	`, toolID, payload, createdAt)
	require.NoError(t, err)
}

func TestToolRepo_Integration_GetMeta(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewToolRepo(db)

		published := insertTool(t, db, toolRow{
			name:     "Contact Us",
			toolType: "forms",
			status:   "published",
			schema:   testutil.StringPtr(`{"fields": [{"name": "email"}]}`),
		})
		draft := insertTool(t, db, toolRow{
			name:     "Draft Survey",
			toolType: "forms",
			status:   "draft",
		})

		meta, err := repo.GetMeta(context.Background(), published)
		require.NoError(t, err)
		assert.Equal(t, "Contact Us", meta.Name)
		assert.Equal(t, model.ToolTypeForms, meta.ToolType)
		assert.True(t, meta.HasSchema)
		assert.NotNil(t, meta.PublishedAt)
		assert.True(t, meta.Exportable())

		meta, err = repo.GetMeta(context.Background(), draft)
		require.NoError(t, err)
		assert.False(t, meta.HasSchema)
		assert.Nil(t, meta.PublishedAt)
		assert.False(t, meta.Exportable())

		_, err = repo.GetMeta(context.Background(), "00000000-0000-4000-8000-000000000000")
		require.ErrorIs(t, err, ErrToolNotFound)
	})
}

func TestToolRepo_Integration_GetSnapshot(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewToolRepo(db)

		toolID := insertTool(t, db, toolRow{
			name:     "Contact Us",
			toolType: "forms",
			status:   "published",
			schema:   testutil.StringPtr(`{"fields": [{"name": "email"}]}`),
			theme:    testutil.StringPtr(`{"primary_color": "#204ecf"}`),
		})

		// Submissions must come back oldest first.
		base := testutil.TestTime()
		insertSubmissionRow(t, db, toolID, `{"email": "second@example.com"}`, base.Add(time.Minute))
		insertSubmissionRow(t, db, toolID, `{"email": "first@example.com"}`, base)

		snap, err := repo.GetSnapshot(context.Background(), toolID)
		require.NoError(t, err)
		assert.Equal(t, toolID, snap.ToolID)
		assert.Equal(t, "Contact Us", snap.Name)
		assert.JSONEq(t, `{"fields": [{"name": "email"}]}`, string(snap.Schema))
		assert.JSONEq(t, `{"primary_color": "#204ecf"}`, string(snap.Theme))

		require.Len(t, snap.Submissions, 2)
		var first map[string]string
		require.NoError(t, json.Unmarshal(snap.Submissions[0], &first))
		assert.Equal(t, "first@example.com", first["email"])
	})
}

// Rows published before the publish timestamp was tracked have a NULL
// published_at and must still export.
func TestToolRepo_Integration_GetSnapshotNullPublishedAt(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewToolRepo(db)

		var id string
		err := db.QueryRowContext(context.Background(), `
			INSERT INTO tools (name, tool_type, status, schema)
			VALUES ('Legacy Form', 'forms', 'published', '{"fields": []}'::jsonb)
			RETURNING id
		`).Scan(&id)
		require.NoError(t, err)

		snap, err := repo.GetSnapshot(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Legacy Form", snap.Name)
		assert.True(t, snap.PublishedAt.IsZero())
	})
}

func TestToolRepo_Integration_GetSnapshotExcludesUnexportable(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewToolRepo(db)

		draft := insertTool(t, db, toolRow{
			name:     "Draft Survey",
			toolType: "forms",
			status:   "draft",
			schema:   testutil.StringPtr(`{"fields": []}`),
		})
		noSchema := insertTool(t, db, toolRow{
			name:     "Empty Form",
			toolType: "forms",
			status:   "published",
		})

		_, err := repo.GetSnapshot(context.Background(), draft)
		require.ErrorIs(t, err, ErrToolNotFound)

		_, err = repo.GetSnapshot(context.Background(), noSchema)
		require.ErrorIs(t, err, ErrToolNotFound)

		_, err = repo.GetSnapshot(context.Background(), "00000000-0000-4000-8000-000000000000")
		require.ErrorIs(t, err, ErrToolNotFound)
	})
}
