// Package sparc holds the core domain types for SPARC workflows.
//
// SPARC is a five-phase methodology (Specification, Pseudocode,
// Architecture, Refinement, Completion). Each phase handler receives a
// PhaseContext and returns a PhaseResult; the orchestrator threads the
// results through a SessionContext that is persisted between phases.
//
// Types here are value types. Maps are cloned on every copy so a
// PhaseResult handed to one component cannot be mutated by another.
package sparc

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// --- Phase enum ---

// Phase identifies a stage of the SPARC workflow.
type Phase string

const (
	PhaseSpecification Phase = "specification"
	PhasePseudocode    Phase = "pseudocode"
	PhaseArchitecture  Phase = "architecture"
	PhaseRefinement    Phase = "refinement"
	PhaseCompletion    Phase = "completion"
	PhaseValidation    Phase = "validation"
	PhaseIntegration   Phase = "integration"
)

// validPhases is the set of recognized phases.
var validPhases = map[Phase]bool{
	PhaseSpecification: true,
	PhasePseudocode:    true,
	PhaseArchitecture:  true,
	PhaseRefinement:    true,
	PhaseCompletion:    true,
	PhaseValidation:    true,
	PhaseIntegration:   true,
}

// WorkflowOrder is the canonical order in which a full run visits phases.
// Validation and integration are recognized but not part of the default run.
var WorkflowOrder = []Phase{
	PhaseSpecification,
	PhasePseudocode,
	PhaseArchitecture,
	PhaseRefinement,
	PhaseCompletion,
}

// ValidatePhase returns an error if the phase is not recognized.
func ValidatePhase(p Phase) error {
	if !validPhases[p] {
		return fmt.Errorf("invalid phase %q: must be one of: %s", p, strings.Join(phaseNames(), ", "))
	}
	return nil
}

// AllPhases returns every recognized phase in declaration order.
func AllPhases() []Phase {
	return []Phase{
		PhaseSpecification, PhasePseudocode, PhaseArchitecture,
		PhaseRefinement, PhaseCompletion, PhaseValidation, PhaseIntegration,
	}
}

func phaseNames() []string {
	all := AllPhases()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = string(p)
	}
	return names
}

// NextInOrder returns the phase after p in WorkflowOrder, or "" when p
// is the last phase or not part of the order.
func NextInOrder(p Phase) Phase {
	for i, candidate := range WorkflowOrder {
		if candidate == p && i+1 < len(WorkflowOrder) {
			return WorkflowOrder[i+1]
		}
	}
	return ""
}

// --- Transition trigger enum ---

// TransitionTrigger describes why a workflow moved between phases.
type TransitionTrigger string

const (
	TriggerComplete       TransitionTrigger = "complete"
	TriggerIncomplete     TransitionTrigger = "incomplete"
	TriggerNeedsRevision  TransitionTrigger = "needs_revision"
	TriggerBlocked        TransitionTrigger = "blocked"
	TriggerManualOverride TransitionTrigger = "manual_override"
)

// --- Tool permission enum ---

// ToolPermission is the access level a phase grants a tool.
type ToolPermission string

const (
	PermissionReadOnly ToolPermission = "read_only"
	PermissionWrite    ToolPermission = "write"
	PermissionExecute  ToolPermission = "execute"
	PermissionNone     ToolPermission = "none"
)

var validPermissions = map[ToolPermission]bool{
	PermissionReadOnly: true,
	PermissionWrite:    true,
	PermissionExecute:  true,
	PermissionNone:     true,
}

// ValidatePermission returns an error if the permission is not recognized.
func ValidatePermission(p ToolPermission) error {
	if !validPermissions[p] {
		return fmt.Errorf("invalid tool permission %q: must be one of: read_only, write, execute, none", p)
	}
	return nil
}

// --- Artifacts ---

// Artifacts is the free-form payload a phase produces.
type Artifacts map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (a Artifacts) Clone() Artifacts {
	out := make(Artifacts, len(a))
	maps.Copy(out, a)
	return out
}

// Map returns the nested artifact stored under key when it is a map.
func (a Artifacts) Map(key string) (map[string]any, bool) {
	switch v := a[key].(type) {
	case map[string]any:
		return v, true
	case Artifacts:
		return v, true
	default:
		return nil, false
	}
}

// --- Phase context / result ---

// PhaseContext is the input to a phase handler.
type PhaseContext struct {
	SessionID       string        `json:"session_id"`
	TaskDescription string        `json:"task_description"`
	PreviousPhases  []PhaseResult `json:"previous_phases,omitempty"`
	GlobalArtifacts Artifacts     `json:"global_artifacts,omitempty"`
	AllowedTools    []string      `json:"allowed_tools,omitempty"`
}

// PhaseResult is the output of a phase handler.
// An empty NextPhase means the workflow has no successor to suggest.
type PhaseResult struct {
	Phase     Phase     `json:"phase"`
	Artifacts Artifacts `json:"artifacts"`
	NextPhase Phase     `json:"next_phase,omitempty"`
	Metadata  Artifacts `json:"metadata"`
}

// NewPhaseResult builds a result with non-nil maps.
func NewPhaseResult(phase Phase, artifacts Artifacts, next Phase, metadata Artifacts) PhaseResult {
	return PhaseResult{
		Phase:     phase,
		Artifacts: artifacts.Clone(),
		NextPhase: next,
		Metadata:  metadata.Clone(),
	}
}

// String renders a short summary used in logs and tool output.
func (r PhaseResult) String() string {
	next := string(r.NextPhase)
	if next == "" {
		next = "none"
	}
	return fmt.Sprintf("PhaseResult(phase=%s, artifacts=%d, next=%s)", r.Phase, len(r.Artifacts), next)
}

// Failed reports whether the handler recorded an error in its metadata.
func (r PhaseResult) Failed() (string, bool) {
	msg, ok := r.Metadata["error"].(string)
	return msg, ok && msg != ""
}

// --- Session ---

// SessionContext is the persisted state of one workflow run.
// Treat it as immutable: use the With* helpers to derive updated copies.
type SessionContext struct {
	SessionID string    `json:"session_id"`
	Task      string    `json:"task"`
	Artifacts Artifacts `json:"artifacts"`
	Metadata  Artifacts `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionContext creates a session stamped with the current time.
func NewSessionContext(id, task string) SessionContext {
	now := timeNow().UTC()
	return SessionContext{
		SessionID: id,
		Task:      task,
		Artifacts: Artifacts{},
		Metadata:  Artifacts{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose maps are independent of the receiver.
func (s SessionContext) Clone() SessionContext {
	s.Artifacts = s.Artifacts.Clone()
	s.Metadata = s.Metadata.Clone()
	return s
}

// WithArtifact returns a copy with key set in Artifacts.
func (s SessionContext) WithArtifact(key string, value any) SessionContext {
	out := s.Clone()
	out.Artifacts[key] = value
	out.UpdatedAt = timeNow().UTC()
	return out
}

// WithMetadata returns a copy with key set in Metadata.
func (s SessionContext) WithMetadata(key string, value any) SessionContext {
	out := s.Clone()
	out.Metadata[key] = value
	out.UpdatedAt = timeNow().UTC()
	return out
}

// --- Workflow result ---

// WorkflowResult is the outcome of a full orchestrated run.
type WorkflowResult struct {
	Success         bool          `json:"success"`
	Task            string        `json:"task"`
	SessionID       string        `json:"session_id,omitempty"`
	PhasesCompleted []PhaseResult `json:"phases_completed"`
	Artifacts       Artifacts     `json:"artifacts"`
	Error           string        `json:"error,omitempty"`
	Metadata        Artifacts     `json:"metadata"`
}

// String renders a short summary of the run.
func (w WorkflowResult) String() string {
	status := "success"
	if !w.Success {
		status = "failed"
	}
	s := fmt.Sprintf("WorkflowResult(%s, task=%q, phases=%d)", status, w.Task, len(w.PhasesCompleted))
	if w.Error != "" {
		s += ": " + w.Error
	}
	return s
}

// PhaseNames lists the completed phases in run order.
func (w WorkflowResult) PhaseNames() []Phase {
	out := make([]Phase, len(w.PhasesCompleted))
	for i, r := range w.PhasesCompleted {
		out[i] = r.Phase
	}
	return out
}

// --- LLM response ---

// LLMResponse is a completion returned by an LLM provider.
type LLMResponse struct {
	Content  string    `json:"content"`
	Metadata Artifacts `json:"metadata,omitempty"`
}
