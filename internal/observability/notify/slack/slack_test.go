package slack

import (
	"strings"
	"testing"
	"time"

	"github.com/formgrid/toolpack/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.ExportFailurePayload{
		JobID:      "123",
		ToolID:     "tool-1",
		ToolName:   "Contact Us",
		ToolType:   "forms",
		StepName:   "bundle static assets",
		Error:      "boom",
		ErrorClass: "test_error",
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Export failure alert", "123", "forms", "tool-1", "Contact Us", "bundle static assets", "boom", "test_error"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageToolLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:    "https://hooks.slack.com/services/test",
		ToolURLPrefix: "https://app.formgrid.local/tools",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.ExportFailurePayload{
		ToolID: "tool-123",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	expected := "<https://app.formgrid.local/tools/tool-123|tool-123>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected tool link %q in text: %s", expected, text)
	}
}

func TestFormatMessageEscapesToolName(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.ExportFailurePayload{
		ToolID:   "tool-123",
		ToolName: "test & <form>",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	if !strings.Contains(text, "test &amp; &lt;form&gt;") {
		t.Fatalf("expected escaped tool name, got: %s", text)
	}
}

func TestFormatToolValuePermutations(t *testing.T) {
	tcs := []struct {
		name   string
		toolID string
		tool   string
		prefix string
		want   string
	}{
		{
			name:   "id with link",
			toolID: "tool-1",
			prefix: "https://app.example/tools",
			want:   "<https://app.example/tools/tool-1|tool-1>",
		},
		{
			name:   "name only",
			tool:   "Contact Us",
			prefix: "https://app.example/tools",
			want:   "Contact Us",
		},
		{
			name:   "id and name with link",
			toolID: "tool-2",
			tool:   "Contact Us",
			prefix: "https://app.example/tools",
			want:   "<https://app.example/tools/tool-2|Contact Us> (tool-2)",
		},
		{
			name:   "id and name without link",
			toolID: "tool-3",
			tool:   "Contact Us",
			prefix: "not a url",
			want:   "Contact Us (tool-3)",
		},
		{
			name:   "empty inputs",
			want:   "",
			tool:   "",
			prefix: "https://app.example/tools",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:    "https://hooks.slack.com/services/test",
				ToolURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatToolValue(tc.toolID, tc.tool)
			if got != tc.want {
				t.Fatalf("formatToolValue(%q,%q) = %q, want %q", tc.toolID, tc.tool, got, tc.want)
			}
		})
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
