package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ErrMockConfigured is returned by a MockProvider built with ShouldRaise.
var ErrMockConfigured = errors.New("mock LLM configured to raise errors for testing")

// MockProvider replays scripted responses in a cycle. It is safe for
// concurrent use and records every prompt it sees.
type MockProvider struct {
	mu          sync.Mutex
	responses   []string
	shouldRaise bool
	callCount   int
	prompts     []string
	lastRequest Request
}

// NewMockProvider fails on an empty responses list unless shouldRaise is set.
func NewMockProvider(responses []string, shouldRaise bool) (*MockProvider, error) {
	if len(responses) == 0 && !shouldRaise {
		return nil, errors.New("responses list cannot be empty unless should_raise is true")
	}
	return &MockProvider{responses: append([]string(nil), responses...), shouldRaise: shouldRaise}, nil
}

// CallCount is the number of calls that advanced the cycle.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns a copy of every prompt received.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// LastRequest returns the options of the most recent call.
func (m *MockProvider) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

func (m *MockProvider) next(prompt string, opts []Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldRaise {
		return "", ErrMockConfigured
	}
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.lastRequest = BuildRequest(opts...)
	return m.responses[(m.callCount-1)%len(m.responses)], nil
}

func (m *MockProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return m.next(prompt, opts)
}

func (m *MockProvider) CompleteChat(ctx context.Context, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	content, err := m.next(prompt, opts)
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	return sparc.LLMResponse{Content: content, Metadata: sparc.Artifacts{"mock": true}}, nil
}

func (m *MockProvider) CreateSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	return fmt.Sprintf("mock-session-%d", m.callCount), nil
}

func (m *MockProvider) CompleteChatWithSession(ctx context.Context, sessionID, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	content, err := m.next(prompt, opts)
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	return sparc.LLMResponse{Content: content, Metadata: sparc.Artifacts{"session_id": sessionID, "mock": true}}, nil
}

// GetSessionHistory reports every prompt as a user message.
func (m *MockProvider) GetSessionHistory(ctx context.Context, sessionID string) (History, error) {
	prompts := m.Prompts()
	msgs := make([]Message, len(prompts))
	for i, p := range prompts {
		msgs[i] = Message{Role: "user", Content: p}
	}
	return History{SessionID: sessionID, Messages: msgs}, nil
}

func (m *MockProvider) ForkSession(ctx context.Context, sessionID, name string) (string, error) {
	return ForkID(sessionID, name), nil
}

func (m *MockProvider) RevertSession(ctx context.Context, sessionID string, steps int) error {
	return nil
}

func (m *MockProvider) GetSessionMetadata(ctx context.Context, sessionID string) (SessionMetadata, error) {
	return SessionMetadata{SessionID: sessionID, MessageCount: len(m.Prompts())}, nil
}

// StreamChat splits the next response into words, keeping the space
// after every word but the last.
func (m *MockProvider) StreamChat(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	content, err := m.next(prompt, opts)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(content)
	chunks := make([]sparc.LLMResponse, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		chunks[i] = sparc.LLMResponse{Content: w, Metadata: sparc.Artifacts{"chunk_index": i, "mock": true}}
	}
	return StreamFromChunks(chunks), nil
}
