package phases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ─── LLM-backed phases ──────────────────────────────────────────────────────

// LLMHandler runs a phase by prompting a provider with the phase
// instructions, the task and every prior artifact. The reply is stored
// as "<phase>_document".
type LLMHandler struct {
	Phase    sparc.Phase
	Provider llm.Provider
	Config   phaseconfig.PhaseConfig
	Next     sparc.Phase
}

// NewRefinementHandler prompts for refinement and moves on to completion.
func NewRefinementHandler(p llm.Provider, cfg phaseconfig.PhaseConfig) *LLMHandler {
	return &LLMHandler{Phase: sparc.PhaseRefinement, Provider: p, Config: cfg, Next: sparc.PhaseCompletion}
}

// NewCompletionHandler prompts for completion; it ends the workflow.
func NewCompletionHandler(p llm.Provider, cfg phaseconfig.PhaseConfig) *LLMHandler {
	return &LLMHandler{Phase: sparc.PhaseCompletion, Provider: p, Config: cfg}
}

// DocumentKey is the artifact key the handler writes.
func (h *LLMHandler) DocumentKey() string { return string(h.Phase) + "_document" }

func (h *LLMHandler) ValidatePrerequisites(pc sparc.PhaseContext) error {
	if h.Provider == nil {
		return prerequisitesNotMet(h.Phase, "no LLM provider configured")
	}
	if strings.TrimSpace(pc.TaskDescription) == "" {
		return prerequisitesNotMet(h.Phase, "task description required")
	}
	return nil
}

func (h *LLMHandler) Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error) {
	if err := h.ValidatePrerequisites(pc); err != nil {
		return sparc.PhaseResult{}, err
	}

	prompt, err := BuildPrompt(h.Config, pc)
	if err != nil {
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}
	resp, err := h.Provider.CompleteChat(ctx, prompt)
	if err != nil {
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(errors.New("empty response from LLM"))
	}

	meta := sparc.Artifacts{
		"session_id":   pc.SessionID,
		"prompt_chars": len(prompt),
	}
	for k, v := range resp.Metadata {
		meta["llm_"+k] = v
	}
	artifacts := sparc.Artifacts{h.DocumentKey(): resp.Content}
	return sparc.NewPhaseResult(h.Phase, artifacts, h.Next, meta), nil
}

// BuildPrompt assembles the phase prompt: instructions, the expected
// deliverables, the task and the prior artifacts as indented JSON.
func BuildPrompt(cfg phaseconfig.PhaseConfig, pc sparc.PhaseContext) (string, error) {
	var b strings.Builder
	if instr := strings.TrimSpace(cfg.Instructions); instr != "" {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	if len(cfg.RequiredArtifacts) > 0 {
		b.WriteString("## Deliverables\n")
		for _, a := range cfg.RequiredArtifacts {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Task\n%s\n", strings.TrimSpace(pc.TaskDescription))

	if len(pc.GlobalArtifacts) > 0 {
		b.WriteString("\n## Prior phase artifacts\n```json\n")
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pc.GlobalArtifacts); err != nil {
			return "", fmt.Errorf("encoding prior artifacts: %w", err)
		}
		b.WriteString("```\n")
	}
	return b.String(), nil
}
