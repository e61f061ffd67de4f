package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/HendryAvila/zenyth/internal/cli"
	"github.com/HendryAvila/zenyth/internal/sparc"
)

// CLIRunner is the subset of *cli.Runner the provider needs.
type CLIRunner interface {
	Run(ctx context.Context, prompt string, opts cli.Options) (*cli.Result, error)
	Stream(ctx context.Context, prompt string, opts cli.Options) (<-chan cli.Event, error)
}

// CLIProvider drives the command-line AI tool. Each call is a fresh
// process; sessions are replayed as a transcript in the prompt.
type CLIProvider struct {
	runner   CLIRunner
	model    string
	sessions *SessionBook
}

// NewCLIProvider creates a provider over runner.
func NewCLIProvider(runner CLIRunner, model string) *CLIProvider {
	return &CLIProvider{runner: runner, model: model, sessions: NewSessionBook("cli-session")}
}

func (p *CLIProvider) options(opts []Option) cli.Options {
	req := BuildRequest(opts...)
	model := req.Model
	if model == "" {
		model = p.model
	}
	return cli.Options{Model: model, SystemPrompt: req.System}
}

func resultMetadata(res *cli.Result) sparc.Artifacts {
	return sparc.Artifacts{
		"model":             res.Model,
		"cli_session_id":    res.SessionID,
		"prompt_tokens":     res.Usage.InputTokens,
		"completion_tokens": res.Usage.OutputTokens,
		"cost_usd":          res.CostUSD,
	}
}

func (p *CLIProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	resp, err := p.CompleteChat(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (p *CLIProvider) CompleteChat(ctx context.Context, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	res, err := p.runner.Run(ctx, prompt, p.options(opts))
	if err != nil {
		return sparc.LLMResponse{}, fmt.Errorf("llm/cli: %w", err)
	}
	return sparc.LLMResponse{Content: res.Text, Metadata: resultMetadata(res)}, nil
}

func (p *CLIProvider) CreateSession(ctx context.Context) (string, error) {
	return p.sessions.Create(), nil
}

func (p *CLIProvider) CompleteChatWithSession(ctx context.Context, sessionID, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	history, err := p.sessions.Messages(sessionID)
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	user := Message{Role: "user", Content: prompt}
	res, err := p.runner.Run(ctx, FormatTranscript(append(history, user)), p.options(opts))
	if err != nil {
		return sparc.LLMResponse{}, fmt.Errorf("llm/cli: %w", err)
	}
	if err := p.sessions.Append(sessionID, user, Message{Role: "assistant", Content: res.Text}); err != nil {
		return sparc.LLMResponse{}, err
	}
	meta := resultMetadata(res)
	meta["session_id"] = sessionID
	return sparc.LLMResponse{Content: res.Text, Metadata: meta}, nil
}

func (p *CLIProvider) GetSessionHistory(ctx context.Context, sessionID string) (History, error) {
	return p.sessions.History(sessionID)
}

func (p *CLIProvider) ForkSession(ctx context.Context, sessionID, name string) (string, error) {
	return p.sessions.Fork(sessionID, name)
}

func (p *CLIProvider) RevertSession(ctx context.Context, sessionID string, steps int) error {
	return p.sessions.Revert(sessionID, steps)
}

func (p *CLIProvider) GetSessionMetadata(ctx context.Context, sessionID string) (SessionMetadata, error) {
	return p.sessions.Metadata(sessionID)
}

// StreamChat yields text events as chunks.
func (p *CLIProvider) StreamChat(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	events, err := p.runner.Stream(ctx, prompt, p.options(opts))
	if err != nil {
		return nil, fmt.Errorf("llm/cli: %w", err)
	}
	index := 0
	next := func() (sparc.LLMResponse, error) {
		for ev := range events {
			switch ev.Type {
			case cli.EventText:
				out := sparc.LLMResponse{Content: ev.Content, Metadata: sparc.Artifacts{"chunk_index": index}}
				index++
				return out, nil
			case cli.EventError:
				return sparc.LLMResponse{}, fmt.Errorf("llm/cli: %w", ev.Err)
			}
		}
		return sparc.LLMResponse{}, io.EOF
	}
	return NewStream(next, drainEvents(events)), nil
}

// drainEvents lets an abandoned stream's runner goroutine finish.
type drainEvents <-chan cli.Event

func (d drainEvents) Close() error {
	go func() {
		for range d {
		}
	}()
	return nil
}

// FormatTranscript renders messages as a single prompt. A lone user
// message is passed through unchanged.
func FormatTranscript(messages []Message) string {
	if len(messages) == 1 && messages[0].Role == "user" {
		return messages[0].Content
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(roleLabel(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case "system":
		return "System"
	case "assistant":
		return "Assistant"
	case "user":
		return "User"
	default:
		if role == "" {
			return "User"
		}
		return strings.ToUpper(role[:1]) + role[1:]
	}
}
