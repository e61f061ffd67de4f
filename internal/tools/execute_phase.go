package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExecutePhaseTool handles the sparc_execute_phase MCP tool.
// It runs one phase against a stored session and records the result.
type ExecutePhaseTool struct {
	workflow Workflow
}

// NewExecutePhaseTool creates an ExecutePhaseTool.
func NewExecutePhaseTool(workflow Workflow) *ExecutePhaseTool {
	return &ExecutePhaseTool{workflow: workflow}
}

// Definition returns the MCP tool definition for registration.
func (t *ExecutePhaseTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_execute_phase",
		mcp.WithDescription(
			"Run a single SPARC phase for an existing session. "+
				"Earlier phase results of the session are passed to the handler, "+
				"so a failed phase can be retried without re-running the whole workflow.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID returned by sparc_run"),
		),
		mcp.WithString("phase",
			mcp.Required(),
			mcp.Description("Phase to run: specification, pseudocode, architecture, refinement or completion"),
		),
	)
}

// Handle processes the sparc_execute_phase tool call.
func (t *ExecutePhaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errRes := requiredString(req, "session_id")
	if errRes != nil {
		return errRes, nil
	}
	phase, errRes := parsePhase(req)
	if errRes != nil {
		return errRes, nil
	}

	res, err := t.workflow.ExecutePhase(ctx, sessionID, phase)
	if err != nil {
		return domainResult("executing phase", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ✅ Phase %s completed\n\n", res.Phase)
	fmt.Fprintf(&b, "**Session**: `%s`\n", sessionID)
	if res.NextPhase != "" {
		fmt.Fprintf(&b, "**Suggested next phase**: %s\n", res.NextPhase)
	}
	b.WriteString("\n## Artifacts\n\n")
	block, err := jsonBlock(res.Artifacts)
	if err != nil {
		return nil, err
	}
	b.WriteString(block)
	return mcp.NewToolResultText(b.String()), nil
}
