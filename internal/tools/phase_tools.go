package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/toolreg"
)

// PhaseToolsTool handles the sparc_phase_tools MCP tool.
type PhaseToolsTool struct {
	registry *toolreg.Registry
}

// NewPhaseToolsTool creates a PhaseToolsTool.
func NewPhaseToolsTool(registry *toolreg.Registry) *PhaseToolsTool {
	return &PhaseToolsTool{registry: registry}
}

// Definition returns the MCP tool definition for registration.
func (t *PhaseToolsTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_phase_tools",
		mcp.WithDescription(
			"List the tools a SPARC phase may use with their permissions, and the tools it forbids. "+
				"Pass a tool name to check whether that single tool is allowed.",
		),
		mcp.WithString("phase",
			mcp.Required(),
			mcp.Description("Phase name, e.g. specification"),
		),
		mcp.WithString("tool",
			mcp.Description("Tool name to check (optional)"),
		),
	)
}

// Handle processes the sparc_phase_tools tool call.
func (t *PhaseToolsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phase, errRes := parsePhase(req)
	if errRes != nil {
		return errRes, nil
	}

	if tool := strings.TrimSpace(req.GetString("tool", "")); tool != "" {
		if err := t.registry.Check(phase, tool); err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("❌ %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("✅ `%s` is allowed in the %s phase (permission: %s)",
			tool, phase, t.registry.Permission(phase, tool))), nil
	}

	cfg := t.registry.Config(phase)
	allowed := t.registry.ForPhase(phase)

	var b strings.Builder
	fmt.Fprintf(&b, "# Tools for the %s phase\n\n", phase)
	if cfg.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", cfg.Description)
	}

	if len(allowed) == 0 {
		b.WriteString("No allow-list: every tool that is not forbidden may be used.\n")
	} else {
		b.WriteString("| Tool | Permission |\n")
		b.WriteString("|------|------------|\n")
		for _, tool := range allowed {
			fmt.Fprintf(&b, "| `%s` | %s |\n", tool.Name, tool.Permission)
		}
	}

	if len(cfg.ForbiddenTools) > 0 {
		b.WriteString("\n**Forbidden**: ")
		quoted := make([]string, len(cfg.ForbiddenTools))
		for i, f := range cfg.ForbiddenTools {
			quoted[i] = "`" + f + "`"
		}
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
