package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ─── Specification phase ────────────────────────────────────────────────────

const (
	simpleTaskThreshold   = 20
	moderateTaskThreshold = 100

	// DefaultMinTaskLength is the shortest trimmed task the specification
	// phase accepts.
	DefaultMinTaskLength = 3
)

// Task complexity levels produced by the requirements analyzer.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// RequirementsAnalysis is the analyzer's breakdown of a task.
type RequirementsAnalysis struct {
	FunctionalRequirements    []string          `json:"functional_requirements"`
	NonFunctionalRequirements map[string]string `json:"non_functional_requirements"`
	Constraints               []string          `json:"constraints"`
	Assumptions               []string          `json:"assumptions"`
	Complexity                string            `json:"complexity_assessment"`
}

// SpecificationDocument is the generator's output.
type SpecificationDocument struct {
	Overview                 string
	Analysis                 RequirementsAnalysis
	SuccessCriteria          []string
	NextPhaseRecommendations []string
}

// RequirementsAnalyzer extracts requirements from a task.
type RequirementsAnalyzer interface {
	Analyze(ctx context.Context, task string, global sparc.Artifacts) (RequirementsAnalysis, error)
}

// SpecificationGenerator renders a specification document.
type SpecificationGenerator interface {
	Generate(ctx context.Context, task string, analysis RequirementsAnalysis, sessionID string) (SpecificationDocument, error)
}

// BasicRequirementsAnalyzer produces a fixed requirements skeleton and
// grades complexity by task length.
type BasicRequirementsAnalyzer struct{}

func (BasicRequirementsAnalyzer) Analyze(_ context.Context, task string, global sparc.Artifacts) (RequirementsAnalysis, error) {
	constraints := []string{
		"Must follow SOLID principles",
		"Code quality standards must be maintained",
		"Comprehensive testing required",
	}
	if _, ok := global["existing_system"]; ok {
		constraints = append(constraints, "Must integrate with existing system architecture")
	}
	if _, ok := global["performance_requirements"]; ok {
		constraints = append(constraints, "Must meet specified performance requirements")
	}

	return RequirementsAnalysis{
		FunctionalRequirements: []string{
			"Implement core functionality: " + task,
			"Ensure proper error handling and validation",
			"Provide appropriate user feedback mechanisms",
			"Follow established coding patterns and standards",
		},
		NonFunctionalRequirements: map[string]string{
			"performance":     "Standard response times and throughput",
			"security":        "Appropriate security measures for task scope",
			"maintainability": "Clean, documented, testable code",
			"scalability":     "Design should accommodate reasonable growth",
		},
		Constraints: constraints,
		Assumptions: []string{
			"Standard development environment available",
			"Access to necessary tools and libraries",
			"Reasonable time and resource constraints",
		},
		Complexity: TaskComplexity(task),
	}, nil
}

// TaskComplexity grades a task by its trimmed length.
func TaskComplexity(task string) string {
	switch n := len(strings.TrimSpace(task)); {
	case n < simpleTaskThreshold:
		return ComplexitySimple
	case n < moderateTaskThreshold:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// BasicSpecificationGenerator renders a markdown overview.
type BasicSpecificationGenerator struct {
	IncludeDetailedAnalysis bool
}

func (g BasicSpecificationGenerator) Generate(_ context.Context, task string, a RequirementsAnalysis, sessionID string) (SpecificationDocument, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Specification for: %s\n\n", task)
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "Task: %s\nSession: %s\nComplexity: %s\n\n", task, sessionID, a.Complexity)
	b.WriteString("This specification provides a comprehensive analysis of requirements and\n")
	b.WriteString("establishes the foundation for subsequent SPARC phases.\n")

	if g.IncludeDetailedAnalysis {
		b.WriteString("\n\n## Detailed Analysis\n")
		fmt.Fprintf(&b, "Functional Requirements: %d identified\n", len(a.FunctionalRequirements))
		fmt.Fprintf(&b, "Non-Functional Requirements: %d categories\n", len(a.NonFunctionalRequirements))
		fmt.Fprintf(&b, "Constraints: %d identified\n", len(a.Constraints))
		fmt.Fprintf(&b, "Assumptions: %d documented\n", len(a.Assumptions))
	}

	recs := []string{
		"Proceed directly to architecture phase",
		"Consider simplified implementation approach",
		"Plan for standard refinement and completion phases",
	}
	if a.Complexity == ComplexityComplex {
		recs = []string{
			"Proceed to pseudocode phase for algorithm design",
			"Consider architecture phase for system design",
			"Plan for iterative refinement approach",
		}
	}

	return SpecificationDocument{
		Overview: b.String(),
		Analysis: a,
		SuccessCriteria: []string{
			"All functional requirements implemented and tested",
			"Non-functional requirements met according to specifications",
			"Code quality standards achieved with comprehensive documentation",
			"All constraints and assumptions validated",
			"Task completion verified: " + task,
		},
		NextPhaseRecommendations: recs,
	}, nil
}

// SpecificationHandler runs the specification phase.
type SpecificationHandler struct {
	Analyzer      RequirementsAnalyzer
	Generator     SpecificationGenerator
	MinTaskLength int
}

// NewSpecificationHandler returns a handler with the basic strategies.
func NewSpecificationHandler() *SpecificationHandler {
	return &SpecificationHandler{
		Analyzer:      BasicRequirementsAnalyzer{},
		Generator:     BasicSpecificationGenerator{IncludeDetailedAnalysis: true},
		MinTaskLength: DefaultMinTaskLength,
	}
}

func (h *SpecificationHandler) ValidatePrerequisites(pc sparc.PhaseContext) error {
	minLen := h.MinTaskLength
	if minLen <= 0 {
		minLen = DefaultMinTaskLength
	}
	if n := len(strings.TrimSpace(pc.TaskDescription)); n < minLen {
		return prerequisitesNotMet(sparc.PhaseSpecification,
			fmt.Sprintf("task must be at least %d characters, got %d", minLen, n))
	}
	return nil
}

func (h *SpecificationHandler) Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error) {
	if err := h.ValidatePrerequisites(pc); err != nil {
		return sparc.PhaseResult{}, err
	}

	analysis, err := h.Analyzer.Analyze(ctx, pc.TaskDescription, pc.GlobalArtifacts)
	if err != nil {
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}
	doc, err := h.Generator.Generate(ctx, pc.TaskDescription, analysis, pc.SessionID)
	if err != nil {
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(err)
	}

	contracts, models := deriveInterfaces(pc.TaskDescription)
	artifacts := sparc.Artifacts{
		"specification_document":      doc.Overview,
		"functional_requirements":     analysis.FunctionalRequirements,
		"requirements":                analysis.FunctionalRequirements,
		"non_functional_requirements": analysis.NonFunctionalRequirements,
		"constraints":                 analysis.Constraints,
		"assumptions":                 analysis.Assumptions,
		"success_criteria":            doc.SuccessCriteria,
		"next_phase_recommendations":  doc.NextPhaseRecommendations,
		"task_analysis": map[string]any{
			"original_task":         pc.TaskDescription,
			"complexity_assessment": analysis.Complexity,
			"context_considered":    len(pc.GlobalArtifacts) > 0,
		},
		"api_contracts": contracts,
		"data_models":   models,
	}
	if len(pc.GlobalArtifacts) > 0 {
		artifacts["context_analysis"] = map[string]any{
			"global_artifacts_count": len(pc.GlobalArtifacts),
			"previous_phases_count":  len(pc.PreviousPhases),
		}
	}

	meta := sparc.Artifacts{
		"session_id":         pc.SessionID,
		"phase_duration":     "coordination_completed",
		"requirements_count": len(analysis.FunctionalRequirements),
		"complexity":         analysis.Complexity,
		"strategies_used": map[string]any{
			"analyzer":  strategyName(h.Analyzer),
			"generator": strategyName(h.Generator),
		},
	}

	next := sparc.PhaseArchitecture
	if analysis.Complexity == ComplexityComplex {
		next = sparc.PhasePseudocode
	}
	return sparc.NewPhaseResult(sparc.PhaseSpecification, artifacts, next, meta), nil
}

// strategyName is the bare type name of a strategy value.
func strategyName(v any) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// --- Interface extraction ---

// interfaceRule maps task keywords to the API contracts and data models
// they imply.
type interfaceRule struct {
	keywords  []string
	contracts []string
	models    []string
}

var interfaceRules = []interfaceRule{
	{
		keywords:  []string{"auth", "login"},
		contracts: []string{"POST /auth/login", "POST /auth/logout"},
		models:    []string{"Credential", "Session"},
	},
	{
		keywords:  []string{"user", "account", "profile"},
		contracts: []string{"GET /users/{id}", "POST /users", "PUT /users/{id}"},
		models:    []string{"User"},
	},
	{
		keywords:  []string{"api", "endpoint", "rest", "http"},
		contracts: []string{"GET /health"},
	},
	{
		keywords: []string{"database", "data", "store", "persist"},
		models:   []string{"Record"},
	},
	{
		keywords:  []string{"order", "cart", "checkout"},
		contracts: []string{"POST /orders", "GET /orders/{id}"},
		models:    []string{"Order"},
	},
	{
		keywords:  []string{"product", "catalog", "inventory"},
		contracts: []string{"GET /products", "GET /products/{id}"},
		models:    []string{"Product"},
	},
}

// deriveInterfaces returns the API contracts and data models implied by
// the task's vocabulary. Both lists are non-nil.
func deriveInterfaces(task string) (contracts, models []string) {
	lower := strings.ToLower(task)
	contracts, models = []string{}, []string{}
	for _, r := range interfaceRules {
		if containsAny(lower, r.keywords...) {
			contracts = append(contracts, r.contracts...)
			models = append(models, r.models...)
		}
	}
	return contracts, models
}
