// Package tools implements the MCP tool handlers that expose SPARC
// orchestration to an MCP host.
//
// Each tool receives its dependencies through its constructor and
// returns a handler compatible with mcp-go's CallToolRequest signature.
// One file per tool.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Workflow runs SPARC workflows; *orchestration.Orchestrator satisfies it.
type Workflow interface {
	Execute(ctx context.Context, task string) (sparc.WorkflowResult, error)
	ExecutePhase(ctx context.Context, sessionID string, phase sparc.Phase) (sparc.PhaseResult, error)
}

// domainResult maps a domain error to an MCP result. Storage failures
// are infrastructure errors and are returned as Go errors; every other
// kind is something the caller can fix and becomes a tool error.
func domainResult(op string, err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, sparc.ErrStorage) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err)), nil
}

// jsonBlock renders v as an indented fenced JSON block.
func jsonBlock(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling result: %w", err)
	}
	return "```json\n" + string(data) + "\n```\n", nil
}

func requiredString(req mcp.CallToolRequest, name string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(name, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("'%s' is required", name))
	}
	return v, nil
}

func parsePhase(req mcp.CallToolRequest) (sparc.Phase, *mcp.CallToolResult) {
	raw, errRes := requiredString(req, "phase")
	if errRes != nil {
		return "", errRes
	}
	phase := sparc.Phase(strings.ToLower(raw))
	if err := sparc.ValidatePhase(phase); err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return phase, nil
}

func phaseList(phases []sparc.Phase) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return strings.Join(names, " → ")
}

// intArg extracts an integer argument, returning defaultVal when the key
// is missing or not a number (JSON numbers decode as float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
