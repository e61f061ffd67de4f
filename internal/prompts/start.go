// Package prompts implements MCP prompt handlers for SPARC workflows.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the sparc-start MCP prompt.
// It guides the AI to run the SPARC workflow for a task and walk the
// user through the results.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("sparc-start",
		mcp.WithPromptDescription(
			"Start a SPARC workflow for a development task. "+
				"Runs specification, pseudocode, architecture, refinement and completion, "+
				"then summarizes what each phase produced.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("The development task to plan"),
		),
	)
}

// Handle processes the sparc-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := ""
	if args := req.Params.Arguments; args != nil {
		task = strings.TrimSpace(args["task"])
	}

	if task == "" {
		return &mcp.GetPromptResult{
			Description: "Start a SPARC workflow",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.NewTextContent(
						"I want to plan a development task with the SPARC workflow.\n\n" +
							"Please:\n" +
							"1. Ask me to describe the task in a few sentences\n" +
							"2. Run `sparc_run` with my description as the task\n" +
							"3. Summarize each completed phase and point out anything that failed",
					),
				},
			},
		}, nil
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start SPARC workflow: %s", task),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Plan this development task with the SPARC workflow:\n\n> %s\n\n"+
						"Please:\n"+
						"1. Run `sparc_run` with task='%s'\n"+
						"2. Summarize the requirements, the architecture and the refinement notes\n"+
						"3. If a phase failed, use `sparc_phase_tools` to check its configuration and "+
						"`sparc_execute_phase` to retry it on the same session\n"+
						"4. Finish with the completion summary and the session ID so I can come back to it",
					task, task,
				)),
			},
		},
	}, nil
}
