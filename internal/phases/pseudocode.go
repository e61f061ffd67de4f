package phases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HendryAvila/zenyth/internal/sparc"
	"github.com/HendryAvila/zenyth/internal/validation"
)

// ─── Pseudocode phase ───────────────────────────────────────────────────────

const (
	minStepCount         = 3
	maxStepCount         = 20
	overviewStepPreview  = 3
	minTaskLengthStrict  = 10
	structureFocusCutoff = 3

	// DefaultMaxSteps is reported in pseudocode metadata.
	DefaultMaxSteps = 10
	// DefaultComplexityThreshold separates low from medium complexity.
	DefaultComplexityThreshold = 0.5
)

// Algorithm complexity levels.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Verbosity controls how much detail the pseudocode generator emits.
type Verbosity string

const (
	VerbosityConcise  Verbosity = "concise"
	VerbosityStandard Verbosity = "standard"
	VerbosityVerbose  Verbosity = "verbose"
)

// AlgorithmAnalysis is the analyzer's breakdown of a task.
type AlgorithmAnalysis struct {
	LogicalSteps   []string `json:"logical_steps"`
	DataStructures []string `json:"data_structures"`
	ControlFlow    []string `json:"control_flow"`
	Complexity     string   `json:"complexity_estimate"`
}

// PseudocodeDocument is the generator's output.
type PseudocodeDocument struct {
	Overview                 string
	Analysis                 AlgorithmAnalysis
	StepByStepLogic          []string
	NextPhaseRecommendations []string
}

// AlgorithmAnalyzer extracts algorithmic structure from a task.
type AlgorithmAnalyzer interface {
	Analyze(ctx context.Context, task string, global sparc.Artifacts) (AlgorithmAnalysis, error)
}

// PseudocodeGenerator renders a pseudocode document.
type PseudocodeGenerator interface {
	Generate(ctx context.Context, task string, analysis AlgorithmAnalysis, sessionID string) (PseudocodeDocument, error)
}

// BasicAlgorithmAnalyzer identifies steps, structures and control flow
// from task keywords. Global artifacts may set "complexity" (high adds an
// optimization step), "scale" (large adds Cache and Queue) and
// "flow_type" (parallel adds parallel-execution).
type BasicAlgorithmAnalyzer struct {
	ComplexityThreshold float64
	IncludeEdgeCases    bool
}

// NewBasicAlgorithmAnalyzer returns an analyzer with default settings.
func NewBasicAlgorithmAnalyzer() BasicAlgorithmAnalyzer {
	return BasicAlgorithmAnalyzer{ComplexityThreshold: DefaultComplexityThreshold, IncludeEdgeCases: true}
}

func (a BasicAlgorithmAnalyzer) Analyze(_ context.Context, task string, global sparc.Artifacts) (AlgorithmAnalysis, error) {
	lower := strings.ToLower(task)
	steps := a.logicalSteps(lower, global)
	structures := a.dataStructures(lower, global)
	flows := a.controlFlow(lower, global)
	return AlgorithmAnalysis{
		LogicalSteps:   steps,
		DataStructures: structures,
		ControlFlow:    flows,
		Complexity:     a.estimate(steps, structures, flows),
	}, nil
}

func (a BasicAlgorithmAnalyzer) logicalSteps(task string, global sparc.Artifacts) []string {
	var steps []string
	if containsAny(task, "authenticate", "login") {
		steps = append(steps, "User login validation", "Check authentication status")
	}
	if containsAny(task, "api", "endpoint") {
		steps = append(steps, "Parse request parameters", "Validate input data")
	}
	if containsAny(task, "database", "data") {
		steps = append(steps, "Connect to database", "Execute query", "Process results")
	}
	if strings.Contains(task, "user") {
		steps = append(steps, "Identify user requirements", "Handle user input")
	}
	if a.IncludeEdgeCases {
		steps = append(steps, "Handle error conditions", "Validate edge cases")
	}
	if global["complexity"] == "high" {
		steps = append(steps, "Advanced algorithm optimization")
	}
	if len(steps) < minStepCount {
		steps = append(steps, "Initialize system", "Process main logic", "Return results")
	}
	if len(steps) > maxStepCount {
		steps = steps[:maxStepCount]
	}
	return steps
}

func (a BasicAlgorithmAnalyzer) dataStructures(task string, global sparc.Artifacts) []string {
	var out []string
	if strings.Contains(task, "user") {
		out = append(out, "User")
	}
	if containsAny(task, "list", "collection") {
		out = append(out, "List")
	}
	if containsAny(task, "map", "dictionary") {
		out = append(out, "Dictionary")
	}
	if strings.Contains(task, "api") {
		out = append(out, "Request", "Response")
	}
	if strings.Contains(task, "database") {
		out = append(out, "Connection", "ResultSet")
	}
	if global["scale"] == "large" {
		out = append(out, "Cache", "Queue")
	}
	if a.IncludeEdgeCases {
		out = append(out, "ErrorHandler")
	}
	if len(out) == 0 {
		return []string{"Object", "Collection"}
	}
	return out
}

func (a BasicAlgorithmAnalyzer) controlFlow(task string, global sparc.Artifacts) []string {
	var out []string
	if containsAny(task, "if", "condition") {
		out = append(out, "conditional")
	}
	if containsAny(task, "loop", "iterate", "each") {
		out = append(out, "iteration")
	}
	if containsAny(task, "error", "exception") {
		out = append(out, "exception-handling")
	}
	if containsAny(task, "validate", "check") {
		out = append(out, "validation")
	}
	if global["flow_type"] == "parallel" {
		out = append(out, "parallel-execution")
	}
	if a.IncludeEdgeCases {
		out = append(out, "error-recovery")
	}
	if len(out) == 0 {
		return []string{"sequential"}
	}
	return out
}

// estimate weighs steps 0.1, structures 0.2 and flows 0.3.
func (a BasicAlgorithmAnalyzer) estimate(steps, structures, flows []string) string {
	threshold := a.ComplexityThreshold
	if threshold <= 0 {
		threshold = DefaultComplexityThreshold
	}
	score := float64(len(steps))*0.1 + float64(len(structures))*0.2 + float64(len(flows))*0.3
	switch {
	case score < threshold:
		return ComplexityLow
	case score < threshold*2:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// BasicPseudocodeGenerator renders markdown pseudocode.
type BasicPseudocodeGenerator struct {
	Verbosity       Verbosity
	IncludeComments bool
}

// NewBasicPseudocodeGenerator returns a standard-verbosity generator
// with comments.
func NewBasicPseudocodeGenerator() BasicPseudocodeGenerator {
	return BasicPseudocodeGenerator{Verbosity: VerbosityStandard, IncludeComments: true}
}

func (g BasicPseudocodeGenerator) Generate(_ context.Context, task string, a AlgorithmAnalysis, _ string) (PseudocodeDocument, error) {
	return PseudocodeDocument{
		Overview:                 g.overview(task, a),
		Analysis:                 a,
		StepByStepLogic:          g.logic(a),
		NextPhaseRecommendations: g.recommendations(a),
	}, nil
}

func (g BasicPseudocodeGenerator) overview(task string, a AlgorithmAnalysis) string {
	lines := []string{
		"## Pseudocode Overview for: " + task,
		"",
		"**Complexity Assessment**: " + titleCase(a.Complexity),
		fmt.Sprintf("**Logical Steps**: %d identified", len(a.LogicalSteps)),
		fmt.Sprintf("**Data Structures**: %d required", len(a.DataStructures)),
		"**Control Flow**: " + strings.Join(a.ControlFlow, ", "),
	}
	if g.Verbosity == VerbosityVerbose {
		preview := a.LogicalSteps
		more := ""
		if len(preview) > overviewStepPreview {
			preview = preview[:overviewStepPreview]
			more = "..."
		}
		lines = append(lines,
			"",
			"**Key Components**:",
			"- Steps: "+strings.Join(preview, ", ")+more,
			"- Structures: "+strings.Join(a.DataStructures, ", "),
		)
	}
	return strings.Join(lines, "\n")
}

func (g BasicPseudocodeGenerator) logic(a AlgorithmAnalysis) []string {
	var out []string
	if g.IncludeComments {
		out = append(out, "// Main Algorithm Logic")
	}
	for i, step := range a.LogicalSteps {
		if g.Verbosity == VerbosityConcise {
			out = append(out, fmt.Sprintf("%d. %s", i+1, step))
			continue
		}
		out = append(out, fmt.Sprintf("STEP %d: %s", i+1, step))
		if g.IncludeComments {
			out = append(out, "   // Implementation: "+strings.ToLower(step))
		}
	}
	if g.Verbosity == VerbosityVerbose && len(a.DataStructures) > 0 {
		out = append(out, "", "// Data Structure Initialization")
		for _, s := range a.DataStructures {
			out = append(out, fmt.Sprintf("DECLARE %s_instance AS %s", strings.ToLower(s), s))
		}
	}
	if g.IncludeComments && len(a.ControlFlow) > 0 {
		out = append(out, "", "// Control Flow: "+strings.Join(a.ControlFlow, ", "))
	}
	return out
}

func (g BasicPseudocodeGenerator) recommendations(a AlgorithmAnalysis) []string {
	recs := []string{"Proceed to Architecture phase for system design"}
	if g.IncludeComments {
		recs[0] = "Proceed to Architecture phase for comprehensive system design"
	}
	switch a.Complexity {
	case ComplexityHigh:
		recs = append(recs,
			"Consider breaking down into smaller components",
			"Plan for modular architecture design",
			"Review pseudocode for optimization opportunities",
		)
	case ComplexityLow:
		recs = append(recs, "Simple architecture should suffice")
	}
	if len(a.DataStructures) > structureFocusCutoff {
		recs = append(recs, "Focus on data flow and structure relationships")
	}
	for _, f := range a.ControlFlow {
		if f == "exception-handling" {
			recs = append(recs, "Include error handling in architecture design")
			break
		}
	}
	return recs
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// PseudocodeHandler runs the pseudocode phase. IncludeErrorHandling
// also enables the strict task length check and the blank-line
// document layout.
type PseudocodeHandler struct {
	Analyzer             AlgorithmAnalyzer
	Generator            PseudocodeGenerator
	MaxSteps             int
	IncludeErrorHandling bool

	executions int
}

// NewPseudocodeHandler returns a handler with the basic strategies.
func NewPseudocodeHandler() *PseudocodeHandler {
	return &PseudocodeHandler{
		Analyzer:             NewBasicAlgorithmAnalyzer(),
		Generator:            NewBasicPseudocodeGenerator(),
		MaxSteps:             DefaultMaxSteps,
		IncludeErrorHandling: true,
	}
}

func (h *PseudocodeHandler) ValidatePrerequisites(pc sparc.PhaseContext) error {
	const field = "task_description"
	var res validation.Result
	if e := validation.Required(pc.TaskDescription, field); e != nil {
		res.Append(e)
		return res.Err()
	}
	if e := validation.NotEmpty(pc.TaskDescription, field); e != nil {
		res.Append(e)
		return res.Err()
	}
	if h.IncludeErrorHandling {
		res.Append(validation.MinLength(pc.TaskDescription, field, minTaskLengthStrict))
	}
	return res.Err()
}

func (h *PseudocodeHandler) Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error) {
	h.executions++
	if err := h.ValidatePrerequisites(pc); err != nil {
		return sparc.PhaseResult{}, err
	}

	analysis, err := h.Analyzer.Analyze(ctx, pc.TaskDescription, pc.GlobalArtifacts)
	if err != nil {
		slog.Error("pseudocode analysis failed", "session", pc.SessionID, "error", err)
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}
	doc, err := h.Generator.Generate(ctx, pc.TaskDescription, analysis, pc.SessionID)
	if err != nil {
		slog.Error("pseudocode generation failed", "session", pc.SessionID, "error", err)
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}

	meta := sparc.Artifacts{
		"session_id":             pc.SessionID,
		"execution_count":        h.executions,
		"max_steps_configured":   h.MaxSteps,
		"error_handling_enabled": h.IncludeErrorHandling,
		"complexity_estimate":    analysis.Complexity,
		"step_count":             len(analysis.LogicalSteps),
	}
	artifacts := sparc.Artifacts{"pseudocode_document": h.serialize(doc)}
	return sparc.NewPhaseResult(sparc.PhasePseudocode, artifacts, sparc.PhaseArchitecture, meta), nil
}

func (h *PseudocodeHandler) serialize(doc PseudocodeDocument) string {
	sections := []string{doc.Overview, "", "## Step-by-Step Logic"}
	sections = append(sections, doc.StepByStepLogic...)
	sections = append(sections, "", "## Next Phase Recommendations")
	for _, r := range doc.NextPhaseRecommendations {
		sections = append(sections, "- "+r)
	}
	sep := "\n"
	if h.IncludeErrorHandling {
		sep = "\n\n"
	}
	return strings.Join(sections, sep)
}
