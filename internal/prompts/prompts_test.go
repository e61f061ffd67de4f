package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	if result == nil || len(result.Messages) != 1 {
		t.Fatalf("expected one message, got %+v", result)
	}
	msg := result.Messages[0]
	if msg.Role != mcp.RoleUser {
		t.Errorf("role = %q, want user", msg.Role)
	}
	tc, ok := msg.Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", msg.Content)
	}
	return tc.Text
}

func TestStartPrompt_WithTask(t *testing.T) {
	p := NewStartPrompt()
	if p.Definition().Name != "sparc-start" {
		t.Errorf("name = %q", p.Definition().Name)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"task": "  Build a rate limiter  "}
	result, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Description != "Start SPARC workflow: Build a rate limiter" {
		t.Errorf("description = %q", result.Description)
	}
	text := promptText(t, result)
	for _, want := range []string{"task='Build a rate limiter'", "sparc_run", "sparc_execute_phase"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt should contain %q:\n%s", want, text)
		}
	}
}

func TestStartPrompt_WithoutTask(t *testing.T) {
	result, err := NewStartPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if text := promptText(t, result); !strings.Contains(text, "Ask me to describe the task") {
		t.Errorf("prompt should ask for a task:\n%s", text)
	}
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()

	result, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if text := promptText(t, result); !strings.Contains(text, "sparc_list_sessions") {
		t.Errorf("without an id the prompt should list sessions:\n%s", text)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"session_id": "sparc-123"}
	result, err = p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if text := promptText(t, result); !strings.Contains(text, "session_id='sparc-123'") {
		t.Errorf("prompt should name the session:\n%s", text)
	}
}
