package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the sparc-status MCP prompt.
// It instructs the AI to present a stored session, or the recent ones.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("sparc-status",
		mcp.WithPromptDescription(
			"Check the status of a SPARC session, or list recent sessions when no ID is given.",
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session to inspect (optional)"),
		),
	)
}

// Handle processes the sparc-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := ""
	if args := req.Params.Arguments; args != nil {
		id = strings.TrimSpace(args["session_id"])
	}

	text := "Please run `sparc_list_sessions` and show me my recent SPARC sessions.\n\n" +
		"Then ask me which one to open, and show it with `sparc_session`."
	if id != "" {
		text = fmt.Sprintf("Please run `sparc_session` with session_id='%s'.\n\n"+
			"Then:\n"+
			"1. Show which phases completed and which failed\n"+
			"2. Give me a brief summary of each phase's artifacts\n"+
			"3. Tell me what I should do next", id)
	}

	return &mcp.GetPromptResult{
		Description: "SPARC session status",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
