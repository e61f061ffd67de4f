package llm

import (
	"context"
	"sync/atomic"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Counting wraps a Provider and counts model round-trips. Session
// bookkeeping calls (history, fork, revert, metadata) are not counted.
type Counting struct {
	Provider
	calls atomic.Int64
}

// NewCounting wraps p.
func NewCounting(p Provider) *Counting {
	return &Counting{Provider: p}
}

// Calls returns the number of counted calls so far.
func (c *Counting) Calls() int64 { return c.calls.Load() }

func (c *Counting) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	c.calls.Add(1)
	return c.Provider.Generate(ctx, prompt, opts...)
}

func (c *Counting) CompleteChat(ctx context.Context, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	c.calls.Add(1)
	return c.Provider.CompleteChat(ctx, prompt, opts...)
}

func (c *Counting) CompleteChatWithSession(ctx context.Context, sessionID, prompt string, opts ...Option) (sparc.LLMResponse, error) {
	c.calls.Add(1)
	return c.Provider.CompleteChatWithSession(ctx, sessionID, prompt, opts...)
}

func (c *Counting) StreamChat(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	c.calls.Add(1)
	return c.Provider.StreamChat(ctx, prompt, opts...)
}
