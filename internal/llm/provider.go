// Package llm defines the provider abstraction the orchestrator talks to
// and ships three implementations: an OpenAI-compatible HTTP client, a
// wrapper over the command-line AI tool, and a scripted mock.
//
// Every provider supports local conversation sessions (create, fork,
// revert, history) so phases can hold multi-turn exchanges regardless of
// whether the backend itself is stateful.
package llm

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Provider is the LLM contract used by phase handlers and MCP tools.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
	CompleteChat(ctx context.Context, prompt string, opts ...Option) (sparc.LLMResponse, error)
	CreateSession(ctx context.Context) (string, error)
	CompleteChatWithSession(ctx context.Context, sessionID, prompt string, opts ...Option) (sparc.LLMResponse, error)
	GetSessionHistory(ctx context.Context, sessionID string) (History, error)
	ForkSession(ctx context.Context, sessionID, name string) (string, error)
	RevertSession(ctx context.Context, sessionID string, steps int) error
	GetSessionMetadata(ctx context.Context, sessionID string) (SessionMetadata, error)
	StreamChat(ctx context.Context, prompt string, opts ...Option) (*Stream, error)
}

// --- Request options ---

// Request collects per-call settings.
type Request struct {
	Model       string   `json:"model,omitempty"`
	System      string   `json:"system,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Option mutates a Request.
type Option func(*Request)

func WithModel(model string) Option { return func(r *Request) { r.Model = model } }
func WithSystem(system string) Option { return func(r *Request) { r.System = system } }
func WithMaxTokens(n int) Option { return func(r *Request) { r.MaxTokens = n } }
func WithTemperature(t float64) Option { return func(r *Request) { r.Temperature = &t } }

// BuildRequest applies opts to an empty Request.
func BuildRequest(opts ...Option) Request {
	var r Request
	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

// --- Conversation types ---

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the transcript of a session.
type History struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// SessionMetadata describes a session.
type SessionMetadata struct {
	SessionID    string    `json:"session_id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- Streaming ---

// Stream yields response chunks. Next returns io.EOF once the stream is
// exhausted; Close releases the underlying resource and is idempotent.
type Stream struct {
	next    func() (sparc.LLMResponse, error)
	closer  io.Closer
	content strings.Builder
	done    bool
	closed  bool
}

// NewStream wraps a chunk iterator. closer may be nil.
func NewStream(next func() (sparc.LLMResponse, error), closer io.Closer) *Stream {
	return &Stream{next: next, closer: closer}
}

// StreamFromChunks builds a stream that replays fixed chunks.
func StreamFromChunks(chunks []sparc.LLMResponse) *Stream {
	i := 0
	return NewStream(func() (sparc.LLMResponse, error) {
		if i >= len(chunks) {
			return sparc.LLMResponse{}, io.EOF
		}
		c := chunks[i]
		i++
		return c, nil
	}, nil)
}

// Next returns the next chunk, or io.EOF.
func (s *Stream) Next() (sparc.LLMResponse, error) {
	if s.done {
		return sparc.LLMResponse{}, io.EOF
	}
	chunk, err := s.next()
	if err != nil {
		s.done = true
		if err == io.EOF {
			_ = s.Close()
		}
		return sparc.LLMResponse{}, err
	}
	s.content.WriteString(chunk.Content)
	return chunk, nil
}

// Content is everything received so far.
func (s *Stream) Content() string { return s.content.String() }

// Close releases the stream.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Collect drains s and returns the concatenated content.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	for {
		_, err := s.Next()
		if err == io.EOF {
			return s.Content(), nil
		}
		if err != nil {
			return s.Content(), err
		}
	}
}
