package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/state"
)

// maxListLimit caps the limit argument of sparc_list_sessions.
const maxListLimit = 100

// ListSessionsTool handles the sparc_list_sessions MCP tool.
// Without a query it lists recent sessions; with one it runs a full-text
// search over session tasks.
type ListSessionsTool struct {
	store state.Manager
}

// NewListSessionsTool creates a ListSessionsTool.
func NewListSessionsTool(store state.Manager) *ListSessionsTool {
	return &ListSessionsTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *ListSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_list_sessions",
		mcp.WithDescription(
			"List stored SPARC sessions, newest first. "+
				"Pass a query to search session tasks instead.",
		),
		mcp.WithString("query",
			mcp.Description("Full-text search over session tasks (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max sessions to return (default: %d, max: %d)", state.DefaultListLimit, maxListLimit)),
		),
	)
}

// Handle processes the sparc_list_sessions tool call.
func (t *ListSessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", state.DefaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := strings.TrimSpace(req.GetString("query", ""))

	var (
		sessions []state.Summary
		err      error
	)
	if query != "" {
		sessions, err = t.store.SearchSessions(ctx, query, limit)
	} else {
		sessions, err = t.store.ListSessions(ctx, limit)
	}
	if err != nil {
		return domainResult("listing sessions", err)
	}

	if len(sessions) == 0 {
		if query != "" {
			return mcp.NewToolResultText(fmt.Sprintf("No sessions match %q.", query)), nil
		}
		return mcp.NewToolResultText("No sessions stored yet. Start one with `sparc_run`."), nil
	}

	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "# Sessions matching %q (%d)\n\n", query, len(sessions))
	} else {
		fmt.Fprintf(&b, "# Recent sessions (%d)\n\n", len(sessions))
	}
	b.WriteString("| Session | Task | Phases | Updated |\n")
	b.WriteString("|---------|------|--------|---------|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| `%s` | %s | %d | %s |\n",
			s.SessionID, tableCell(s.Task), s.PhaseCount, s.UpdatedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// tableCell flattens text for a markdown table row.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}
