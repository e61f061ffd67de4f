package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ProviderError is a non-200 response from an HTTP backend.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports an HTTP 429.
func (e *ProviderError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPProvider talks to any OpenAI-compatible chat completions API.
type HTTPProvider struct {
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
	sessions *SessionBook
}

// NewHTTPProvider creates a provider. The base URL's trailing slash is trimmed.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   client,
		sessions: NewSessionBook("http-session"),
	}
}

// BaseURL returns the normalized base URL.
func (p *HTTPProvider) BaseURL() string { return p.baseURL }

// chatURL resolves the completions endpoint for the base URL.
func (p *HTTPProvider) chatURL() string {
	base := p.baseURL
	switch {
	case strings.HasSuffix(base, "/chat/completions"):
		return base
	case strings.HasSuffix(base, "/v1"):
		return base + "/chat/completions"
	default:
		return base + "/v1/chat/completions"
	}
}

// --- Wire format ---

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type chatChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *HTTPProvider) buildRequest(messages []Message, req Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	wire := chatRequest{Model: model, MaxTokens: req.MaxTokens, Temperature: req.Temperature, Stream: stream}
	if req.System != "" {
		wire.Messages = append(wire.Messages, Message{Role: "system", Content: req.System})
	}
	wire.Messages = append(wire.Messages, messages...)
	return wire
}

func (p *HTTPProvider) do(ctx context.Context, wire chatRequest) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("llm/http: marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm/http: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if wire.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm/http: sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readProviderError(resp)
	}
	return resp, nil
}

// readProviderError parses {"error":{"type","message"}} and falls back
// to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Type: wire.Error.Type, Message: wire.Error.Message}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func (p *HTTPProvider) complete(ctx context.Context, messages []Message, opts []Option) (sparc.LLMResponse, error) {
	resp, err := p.do(ctx, p.buildRequest(messages, BuildRequest(opts...), false))
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	defer resp.Body.Close()

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return sparc.LLMResponse{}, fmt.Errorf("llm/http: decoding response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return sparc.LLMResponse{}, fmt.Errorf("llm/http: response has no choices")
	}

	meta := sparc.Artifacts{
		"id":            wire.ID,
		"model":         wire.Model,
		"finish_reason": wire.Choices[0].FinishReason,
	}
	if wire.Usage != nil {
		meta["prompt_tokens"] = wire.Usage.PromptTokens
		meta["completion_tokens"] = wire.Usage.CompletionTokens
	}
	return sparc.LLMResponse{Content: wire.Choices[0].Message.Content, Metadata: meta}, nil
}

// --- Provider ---

func (p *HTTPProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	resp, err := p.CompleteChat(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (p *HTTPProvider) CompleteChat(ctx context.Context, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	return p.complete(ctx, []Message{{Role: "user", Content: prompt}}, opts)
}

func (p *HTTPProvider) CreateSession(ctx context.Context) (string, error) {
	return p.sessions.Create(), nil
}

// CompleteChatWithSession sends the full transcript plus prompt and
// records both turns on success.
func (p *HTTPProvider) CompleteChatWithSession(ctx context.Context, sessionID, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	history, err := p.sessions.Messages(sessionID)
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	user := Message{Role: "user", Content: prompt}
	resp, err := p.complete(ctx, append(history, user), opts)
	if err != nil {
		return sparc.LLMResponse{}, err
	}
	if err := p.sessions.Append(sessionID, user, Message{Role: "assistant", Content: resp.Content}); err != nil {
		return sparc.LLMResponse{}, err
	}
	resp.Metadata["session_id"] = sessionID
	return resp, nil
}

func (p *HTTPProvider) GetSessionHistory(ctx context.Context, sessionID string) (History, error) {
	return p.sessions.History(sessionID)
}

func (p *HTTPProvider) ForkSession(ctx context.Context, sessionID, name string) (string, error) {
	return p.sessions.Fork(sessionID, name)
}

func (p *HTTPProvider) RevertSession(ctx context.Context, sessionID string, steps int) error {
	return p.sessions.Revert(sessionID, steps)
}

func (p *HTTPProvider) GetSessionMetadata(ctx context.Context, sessionID string) (SessionMetadata, error) {
	return p.sessions.Metadata(sessionID)
}

// StreamChat opens an SSE stream. The stream ends at "data: [DONE]" or EOF.
func (p *HTTPProvider) StreamChat(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	resp, err := p.do(ctx, p.buildRequest([]Message{{Role: "user", Content: prompt}}, BuildRequest(opts...), true))
	if err != nil {
		return nil, err
	}

	scanner := NewSSEScanner(resp.Body)
	index := 0
	next := func() (sparc.LLMResponse, error) {
		for scanner.Next() {
			ev := scanner.Event()
			if ev.Data == "[DONE]" {
				return sparc.LLMResponse{}, io.EOF
			}
			var chunk chatChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return sparc.LLMResponse{}, fmt.Errorf("llm/http: parsing stream chunk: %w", err)
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			out := sparc.LLMResponse{
				Content:  chunk.Choices[0].Delta.Content,
				Metadata: sparc.Artifacts{"chunk_index": index, "model": chunk.Model},
			}
			index++
			return out, nil
		}
		if err := scanner.Err(); err != nil {
			return sparc.LLMResponse{}, fmt.Errorf("llm/http: reading stream: %w", err)
		}
		return sparc.LLMResponse{}, io.EOF
	}
	return NewStream(next, resp.Body), nil
}
