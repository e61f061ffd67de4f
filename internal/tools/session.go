package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/state"
)

// SessionTool handles the sparc_session MCP tool.
type SessionTool struct {
	store state.Manager
}

// NewSessionTool creates a SessionTool.
func NewSessionTool(store state.Manager) *SessionTool {
	return &SessionTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *SessionTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_session",
		mcp.WithDescription(
			"Show a stored SPARC session: its task, status, artifacts and every recorded phase result.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID to show"),
		),
	)
}

// Handle processes the sparc_session tool call.
func (t *SessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := requiredString(req, "session_id")
	if errRes != nil {
		return errRes, nil
	}

	session, err := t.store.LoadSession(ctx, id)
	if err != nil {
		return domainResult("loading session", err)
	}
	results, err := t.store.PhaseResults(ctx, id)
	if err != nil {
		return domainResult("loading phase results", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session `%s`\n\n", session.SessionID)
	fmt.Fprintf(&b, "**Task**: %s\n", session.Task)
	if status, ok := session.Metadata["status"].(string); ok {
		fmt.Fprintf(&b, "**Status**: %s\n", status)
	}
	fmt.Fprintf(&b, "**Created**: %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Updated**: %s\n", session.UpdatedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "\n## Phase results (%d)\n\n", len(results))
	if len(results) == 0 {
		b.WriteString("_No phases recorded yet._\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "%d. **%s**", i+1, r.Phase)
		if r.NextPhase != "" {
			fmt.Fprintf(&b, " → %s", r.NextPhase)
		}
		if reason, failed := r.Failed(); failed {
			fmt.Fprintf(&b, " (failed: %s)", reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Artifacts\n\n")
	block, err := jsonBlock(session.Artifacts)
	if err != nil {
		return nil, err
	}
	b.WriteString(block)
	return mcp.NewToolResultText(b.String()), nil
}
