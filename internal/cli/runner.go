// Package cli runs a command-line AI tool in print mode and parses its
// line-delimited JSON output (stream-json) into events and results.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Minute
	DefaultBinary  = "claude"
)

var (
	// ErrTimeout is returned when the process exceeds Runner.Timeout.
	ErrTimeout = errors.New("cli: process timed out")
	// ErrStart is returned when the process cannot be spawned.
	ErrStart = errors.New("cli: failed to start process")
)

// ExitError reports a non-zero exit, or a result the tool flagged as an error.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("cli: process exited with code %d", e.Code)
	}
	return fmt.Sprintf("cli: process exited with code %d: %s", e.Code, msg)
}

// Options tune a single invocation.
type Options struct {
	Model        string
	SystemPrompt string
	// Continue resumes the most recent conversation in WorkDir.
	Continue bool
}

// Runner spawns the tool. The zero value is not usable; call NewRunner.
type Runner struct {
	Binary    string
	Timeout   time.Duration
	WorkDir   string
	ExtraArgs []string
}

// NewRunner creates a runner with the default binary and timeout.
func NewRunner() *Runner {
	return &Runner{Binary: DefaultBinary, Timeout: DefaultTimeout}
}

// Args builds the command line for prompt.
func (r *Runner) Args(prompt string, opts Options) []string {
	args := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	if opts.Continue {
		args = append(args, "--continue")
	}
	return append(args, r.ExtraArgs...)
}

// Stream starts the tool and emits events until it exits. The channel
// is closed after a terminal event (EventResult or EventError), or
// early if ctx is cancelled.
func (r *Runner) Stream(ctx context.Context, prompt string, opts Options) (<-chan Event, error) {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(timeoutCtx, binary, r.Args(prompt, opts)...)
	cmd.Dir = r.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrStart, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrStart, binary, err)
	}

	events := make(chan Event)
	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(events)
		defer cancel()

		stderrCh := make(chan string, 1)
		go func() {
			var b strings.Builder
			sc := bufio.NewScanner(stderr)
			for sc.Scan() {
				b.WriteString(sc.Text())
				b.WriteString("\n")
			}
			stderrCh <- b.String()
		}()

		var (
			state  parseState
			result *Result
			text   strings.Builder
		)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			for _, ev := range state.parseLine(line) {
				switch ev.Type {
				case EventResult:
					result = ev.Result
					continue
				case EventText:
					text.WriteString(ev.Content)
				}
				if !send(ev) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			// Drain so the child does not block on a full pipe.
			_, _ = io.Copy(io.Discard, stdout)
			<-stderrCh
			_ = cmd.Wait()
			if ctx.Err() == nil {
				send(Event{Type: EventError, Err: fmt.Errorf("cli: reading output: %w", err)})
			}
			return
		}

		stderrContent := <-stderrCh
		waitErr := cmd.Wait()

		if ctx.Err() != nil {
			return
		}
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			send(Event{Type: EventError, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)})
			return
		}
		if waitErr != nil {
			code := -1
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				code = exitErr.ExitCode()
			}
			if stderrContent == "" {
				stderrContent = waitErr.Error()
			}
			send(Event{Type: EventError, Err: &ExitError{Code: code, Stderr: stderrContent}})
			return
		}
		if result == nil {
			result = &Result{SessionID: state.sessionID, Model: state.model}
		}
		if result.Text == "" {
			result.Text = text.String()
		}
		if result.IsError {
			send(Event{Type: EventError, Err: &ExitError{Code: 0, Stderr: result.Text}})
			return
		}
		send(Event{Type: EventResult, Result: result})
	}()

	return events, nil
}

// Run executes the tool and waits for the final result.
func (r *Runner) Run(ctx context.Context, prompt string, opts Options) (*Result, error) {
	events, err := r.Stream(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch ev.Type {
		case EventResult:
			return ev.Result, nil
		case EventError:
			return nil, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("cli: output ended without a result")
}

// --- stream-json parsing ---

// cliEvent is one line of stream-json output.
type cliEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Model     string          `json:"model,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	CostUSD   float64         `json:"total_cost_usd,omitempty"`
	Duration  int64           `json:"duration_ms,omitempty"`
	Usage     *cliUsage       `json:"usage,omitempty"`
}

type cliUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type cliMessage struct {
	Model   string            `json:"model,omitempty"`
	Content []cliContentBlock `json:"content"`
}

type cliContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// parseState carries values from the init event to the final result.
type parseState struct {
	sessionID string
	model     string
}

func (s *parseState) parseLine(line []byte) []Event {
	var event cliEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return nil
	}

	switch event.Type {
	case "system":
		if event.Subtype == "init" {
			s.sessionID = event.SessionID
			s.model = event.Model
			return []Event{{Type: EventInit, SessionID: event.SessionID, Model: event.Model}}
		}
		return nil
	case "assistant":
		return s.parseAssistantEvent(event)
	case "result":
		res := &Result{
			Text:       event.Result,
			SessionID:  event.SessionID,
			Model:      s.model,
			CostUSD:    event.CostUSD,
			DurationMS: event.Duration,
			IsError:    event.IsError || strings.HasPrefix(event.Subtype, "error"),
		}
		if res.SessionID == "" {
			res.SessionID = s.sessionID
		}
		if event.Usage != nil {
			res.Usage = Usage{InputTokens: event.Usage.InputTokens, OutputTokens: event.Usage.OutputTokens}
		}
		return []Event{{Type: EventResult, Result: res}}
	default:
		return nil
	}
}

// parseAssistantEvent emits the message's blocks in order. Adjacent text
// blocks are merged into one EventText.
func (s *parseState) parseAssistantEvent(event cliEvent) []Event {
	if event.Message == nil {
		return nil
	}
	var msg cliMessage
	if err := json.Unmarshal(event.Message, &msg); err != nil {
		return nil
	}
	if s.model == "" && msg.Model != "" {
		s.model = msg.Model
	}

	var (
		events []Event
		text   strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			events = append(events, Event{Type: EventText, Content: text.String()})
			text.Reset()
		}
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			flush()
			events = append(events, Event{Type: EventToolCall, ToolName: block.Name, ToolInput: block.Input})
		}
	}
	flush()
	return events
}
