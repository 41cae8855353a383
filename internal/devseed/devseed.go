// Package devseed populates a development database with sample tools and
// submissions so export flows can be exercised without a running form builder.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// toolSeed describes one sample tool. IDs are fixed so repeated startups
// update the same rows instead of piling up duplicates.
type toolSeed struct {
	id        string
	name      string
	toolType  string
	status    string
	schema    string
	theme     string
	published bool
}

// submissionSeed attaches sample submission payloads to a seeded tool.
type submissionSeed struct {
	id      string
	toolID  string
	payload string
}

// Seed upserts the development fixtures. Safe to run on every startup.
func Seed(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	failures := 0
	for _, tool := range defaultToolSeeds() {
		if err := upsertTool(ctx, db, tool); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed tool", "name", tool.name, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded tool", "name", tool.name, "tool_type", tool.toolType)
		}
	}

	for _, sub := range defaultSubmissionSeeds() {
		if err := insertSubmission(ctx, db, sub); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed submission", "tool_id", sub.toolID, "error", err)
			}
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func upsertTool(ctx context.Context, db *sql.DB, tool toolSeed) error {
	const q = `
		INSERT INTO tools (id, name, tool_type, status, schema, theme, published_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::jsonb, NULLIF($6, '')::jsonb,
		        CASE WHEN $7 THEN now() ELSE NULL END)
		ON CONFLICT (id) DO UPDATE SET
			name         = EXCLUDED.name,
			tool_type    = EXCLUDED.tool_type,
			status       = EXCLUDED.status,
			schema       = EXCLUDED.schema,
			theme        = EXCLUDED.theme,
			published_at = COALESCE(tools.published_at, EXCLUDED.published_at),
			updated_at   = now()
	`
	if _, err := db.ExecContext(ctx, q,
		tool.id, tool.name, tool.toolType, tool.status,
		tool.schema, tool.theme, tool.published,
	); err != nil {
		return fmt.Errorf("upsert tool %q: %w", tool.name, err)
	}
	return nil
}

func insertSubmission(ctx context.Context, db *sql.DB, sub submissionSeed) error {
	const q = `
		INSERT INTO tool_submissions (id, tool_id, payload)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, q, sub.id, sub.toolID, sub.payload); err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.id, err)
	}
	return nil
}

const (
	seedContactFormID    = "11111111-1111-4111-8111-111111111111"
	seedFeedbackFormID   = "22222222-2222-4222-8222-222222222222"
	seedOnboardingFlowID = "33333333-3333-4333-8333-333333333333"
	seedBrandThemeID     = "44444444-4444-4444-8444-444444444444"
	seedDraftSurveyID    = "55555555-5555-4555-8555-555555555555"
)

func defaultToolSeeds() []toolSeed {
	return []toolSeed{
		{
			id:       seedContactFormID,
			name:     "contact-us",
			toolType: "forms",
			status:   "published",
			schema: `{
				"title": "Contact Us",
				"fields": [
					{"id": "name", "type": "text", "label": "Name", "required": true},
					{"id": "email", "type": "email", "label": "Email", "required": true},
					{"id": "message", "type": "textarea", "label": "Message"}
				]
			}`,
			theme:     `{"primaryColor": "#2d6cdf", "font": "Inter"}`,
			published: true,
		},
		{
			id:       seedFeedbackFormID,
			name:     "product-feedback",
			toolType: "forms",
			status:   "published",
			schema: `{
				"title": "Product Feedback",
				"fields": [
					{"id": "rating", "type": "select", "label": "Rating", "options": ["1", "2", "3", "4", "5"]},
					{"id": "comments", "type": "textarea", "label": "Comments"}
				]
			}`,
			published: true,
		},
		{
			id:       seedOnboardingFlowID,
			name:     "customer-onboarding",
			toolType: "workflows",
			status:   "published",
			schema: `{
				"title": "Customer Onboarding",
				"steps": [
					{"id": "collect-details", "next": "verify-email"},
					{"id": "verify-email", "next": "provision"},
					{"id": "provision", "next": null}
				]
			}`,
			published: true,
		},
		{
			id:        seedBrandThemeID,
			name:      "brand-default",
			toolType:  "themes",
			status:    "published",
			schema:    `{"title": "Brand Default", "tokens": {"color.primary": "#cc0000", "radius.base": "6px"}}`,
			theme:     `{"preview": true}`,
			published: true,
		},
		{
			// Draft tool stays unexportable. Useful for exercising preflight rejections.
			id:       seedDraftSurveyID,
			name:     "draft-survey",
			toolType: "forms",
			status:   "draft",
			schema:   `{"title": "Draft Survey", "fields": []}`,
		},
	}
}

func defaultSubmissionSeeds() []submissionSeed {
	return []submissionSeed{
		{
			id:      "aaaaaaa1-0000-4000-8000-000000000001",
			toolID:  seedContactFormID,
			payload: `{"name": "Ada Lovelace", "email": "ada@example.com", "message": "Love the builder."}`,
		},
		{
			id:      "aaaaaaa1-0000-4000-8000-000000000002",
			toolID:  seedContactFormID,
			payload: `{"name": "Grace Hopper", "email": "grace@example.com", "message": "Export worked great."}`,
		},
		{
			id:      "aaaaaaa2-0000-4000-8000-000000000001",
			toolID:  seedFeedbackFormID,
			payload: `{"rating": "5", "comments": "Fast and easy."}`,
		},
	}
}
