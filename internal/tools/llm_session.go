package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/llm"
)

// LLM session actions.
const (
	actionCreate   = "create"
	actionChat     = "chat"
	actionHistory  = "history"
	actionFork     = "fork"
	actionRevert   = "revert"
	actionMetadata = "metadata"
)

var llmSessionActions = []string{actionCreate, actionChat, actionHistory, actionFork, actionRevert, actionMetadata}

// LLMSessionTool handles the sparc_llm_session MCP tool.
// It exposes the provider's conversation sessions directly so a host
// can hold a multi-turn exchange outside a workflow run.
type LLMSessionTool struct {
	provider llm.Provider
}

// NewLLMSessionTool creates an LLMSessionTool.
func NewLLMSessionTool(provider llm.Provider) *LLMSessionTool {
	return &LLMSessionTool{provider: provider}
}

// Definition returns the MCP tool definition for registration.
func (t *LLMSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("sparc_llm_session",
		mcp.WithDescription(
			"Manage LLM conversation sessions. Actions: "+
				"create (start a session), chat (send a prompt to a session), "+
				"history (show the transcript), fork (branch a session), "+
				"revert (drop the last N exchanges) and metadata.",
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to perform"),
			mcp.Enum(llmSessionActions...),
		),
		mcp.WithString("session_id",
			mcp.Description("Session ID (required for every action except create)"),
		),
		mcp.WithString("prompt",
			mcp.Description("Prompt to send (chat)"),
		),
		mcp.WithString("name",
			mcp.Description("Name of the fork (fork, optional)"),
		),
		mcp.WithNumber("steps",
			mcp.Description("Exchanges to drop (revert, default: 1)"),
		),
	)
}

// Handle processes the sparc_llm_session tool call.
func (t *LLMSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, errRes := requiredString(req, "action")
	if errRes != nil {
		return errRes, nil
	}

	if action == actionCreate {
		id, err := t.provider.CreateSession(ctx)
		if err != nil {
			return domainResult("creating session", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Created LLM session `%s`.", id)), nil
	}

	if !validAction(action) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"unknown action %q: must be one of: %s", action, strings.Join(llmSessionActions, ", "),
		)), nil
	}
	id, errRes := requiredString(req, "session_id")
	if errRes != nil {
		return errRes, nil
	}

	switch action {
	case actionChat:
		prompt, errRes := requiredString(req, "prompt")
		if errRes != nil {
			return errRes, nil
		}
		resp, err := t.provider.CompleteChatWithSession(ctx, id, prompt)
		if err != nil {
			return domainResult("chat", err)
		}
		return mcp.NewToolResultText(resp.Content), nil

	case actionHistory:
		h, err := t.provider.GetSessionHistory(ctx, id)
		if err != nil {
			return domainResult("loading history", err)
		}
		if len(h.Messages) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("Session `%s` has no messages yet.", id)), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# History of `%s` (%d messages)\n\n", h.SessionID, len(h.Messages))
		for _, m := range h.Messages {
			fmt.Fprintf(&b, "**%s**: %s\n\n", m.Role, m.Content)
		}
		return mcp.NewToolResultText(b.String()), nil

	case actionFork:
		forked, err := t.provider.ForkSession(ctx, id, strings.TrimSpace(req.GetString("name", "")))
		if err != nil {
			return domainResult("forking session", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Forked `%s` into `%s`.", id, forked)), nil

	case actionRevert:
		steps := intArg(req, "steps", 1)
		if steps < 1 {
			return mcp.NewToolResultError("'steps' must be at least 1"), nil
		}
		if err := t.provider.RevertSession(ctx, id, steps); err != nil {
			return domainResult("reverting session", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reverted `%s` by %d exchange(s).", id, steps)), nil

	default: // actionMetadata
		md, err := t.provider.GetSessionMetadata(ctx, id)
		if err != nil {
			return domainResult("loading metadata", err)
		}
		block, err := jsonBlock(md)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(block), nil
	}
}

func validAction(action string) bool {
	for _, a := range llmSessionActions {
		if a == action {
			return true
		}
	}
	return false
}
