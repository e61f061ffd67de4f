package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// RunTool handles the sparc_run MCP tool.
// It executes the full workflow for a task and reports every phase.
type RunTool struct {
	workflow Workflow
}

// NewRunTool creates a RunTool.
func NewRunTool(workflow Workflow) *RunTool {
	return &RunTool{workflow: workflow}
}

// Definition returns the MCP tool definition for registration.
func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_run",
		mcp.WithDescription(
			"Run the full SPARC workflow (specification, pseudocode, architecture, "+
				"refinement, completion) for a development task. "+
				"The run is persisted as a session; use sparc_session to inspect it later.",
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Description of the development task"),
		),
	)
}

// Handle processes the sparc_run tool call.
func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, errRes := requiredString(req, "task")
	if errRes != nil {
		return errRes, nil
	}

	result, err := t.workflow.Execute(ctx, task)
	if err != nil {
		if errors.Is(err, sparc.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("running workflow: %w", err)
	}

	body, err := formatWorkflow(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(body), nil
}

func formatWorkflow(r sparc.WorkflowResult) (string, error) {
	var b strings.Builder
	if r.Success {
		b.WriteString("# ✅ SPARC workflow completed\n\n")
	} else {
		b.WriteString("# ❌ SPARC workflow failed\n\n")
	}
	fmt.Fprintf(&b, "**Task**: %s\n", r.Task)
	fmt.Fprintf(&b, "**Session**: `%s`\n", r.SessionID)
	if phases := r.PhaseNames(); len(phases) > 0 {
		fmt.Fprintf(&b, "**Phases**: %s\n", phaseList(phases))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "**Error**: %s\n", r.Error)
	}

	if len(r.Metadata) > 0 {
		b.WriteString("\n## Metrics\n\n")
		block, err := jsonBlock(r.Metadata)
		if err != nil {
			return "", err
		}
		b.WriteString(block)
	}
	if len(r.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n\n")
		block, err := jsonBlock(r.Artifacts)
		if err != nil {
			return "", err
		}
		b.WriteString(block)
	}
	if !r.Success && r.SessionID != "" {
		fmt.Fprintf(&b, "\nRetry a single phase with `sparc_execute_phase` and session_id `%s`.\n", r.SessionID)
	}
	return b.String(), nil
}
