package cli

import "encoding/json"

// EventType discriminates Event.
type EventType string

const (
	EventInit     EventType = "init"
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is one item of a streamed run.
type Event struct {
	Type      EventType
	Content   string
	SessionID string
	Model     string
	ToolName  string
	ToolInput json.RawMessage
	Result    *Result
	Err       error
}

// Usage is the token accounting reported by the tool.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the final outcome of a run.
type Result struct {
	Text       string  `json:"text"`
	SessionID  string  `json:"session_id,omitempty"`
	Model      string  `json:"model,omitempty"`
	Usage      Usage   `json:"usage"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
}
