package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ─── Architecture phase ─────────────────────────────────────────────────────

const (
	minMicroserviceAPIs       = 2
	highComplexityThreshold   = 0.8
	performanceMultiplier     = 2
	minMicroserviceCount      = 2
	fallbackComponent         = "Application Core"
	DefaultMaxDiagramElements = 8
	DefaultMinComponents      = 1
	DefaultComponentThreshold = 2
)

// SystemAnalysis is the designer's output. Relationships are written
// "Source->Target".
type SystemAnalysis struct {
	Components      []string `json:"components"`
	Relationships   []string `json:"relationships"`
	ComplexityScore float64  `json:"complexity_score"`
	DesignStrategy  string   `json:"design_strategy"`
}

// Diagram is a rendered component diagram.
type Diagram struct {
	Type     string         `json:"diagram_type"`
	Content  string         `json:"diagram_content"`
	Metadata map[string]any `json:"diagram_metadata"`
}

func (d Diagram) artifact() map[string]any {
	return map[string]any{
		"diagram_type":     d.Type,
		"diagram_content":  d.Content,
		"diagram_metadata": d.Metadata,
	}
}

// SystemDesigner identifies components from prior artifacts.
type SystemDesigner interface {
	Analyze(ctx context.Context, task string, global sparc.Artifacts) (SystemAnalysis, error)
}

// ArchitectureDiagrammer renders a system analysis.
type ArchitectureDiagrammer interface {
	Generate(ctx context.Context, task string, analysis SystemAnalysis, sessionID string) (Diagram, error)
}

// BasicSystemDesigner derives components from the specification's API
// contracts and data models.
type BasicSystemDesigner struct {
	IncludeCaching        bool
	PreferMicroservices   bool
	MinComponentThreshold int
}

// NewBasicSystemDesigner returns a monolithic designer with caching.
func NewBasicSystemDesigner() BasicSystemDesigner {
	return BasicSystemDesigner{IncludeCaching: true, MinComponentThreshold: DefaultComponentThreshold}
}

func (d BasicSystemDesigner) Analyze(_ context.Context, task string, global sparc.Artifacts) (SystemAnalysis, error) {
	spec, _ := global.Map(string(sparc.PhaseSpecification))
	contracts := stringList(spec["api_contracts"])
	models := stringList(spec["data_models"])

	var components, rels []string
	has := func(name string) bool { return slices.Contains(components, name) }

	if len(contracts) > 0 {
		if d.PreferMicroservices && len(contracts) > minMicroserviceAPIs {
			components = append(components, "API Gateway", "User Service", "Auth Service")
			rels = append(rels, "API Gateway->User Service", "API Gateway->Auth Service")
		} else {
			components = append(components, "API Gateway", "API Service")
			rels = append(rels, "API Gateway->API Service")
		}
	}
	if len(models) > 0 {
		components = append(components, "Database")
		switch {
		case has("API Service"):
			rels = append(rels, "API Service->Database")
		case has("User Service"):
			rels = append(rels, "User Service->Database", "Auth Service->Database")
		}
	}
	if d.IncludeCaching && len(components) >= d.MinComponentThreshold && len(contracts) > 0 {
		components = append(components, "Cache Layer")
		if has("API Service") {
			rels = append(rels, "API Service->Cache Layer")
		} else {
			rels = append(rels, "API Gateway->Cache Layer")
		}
	}
	if len(components) == 0 && present(spec["requirements"]) {
		components = append(components, fallbackComponent)
	}

	score := float64(len(components))*0.1 + float64(len(rels))*0.15
	strategy := "monolithic"
	if d.PreferMicroservices {
		score *= 1.2
		strategy = "microservices"
	}
	score = min(score, 1.0)

	slog.Debug("system design identified components", "count", len(components), "strategy", strategy)
	return SystemAnalysis{
		Components:      components,
		Relationships:   rels,
		ComplexityScore: score,
		DesignStrategy:  strategy,
	}, nil
}

// MermaidDiagrammer renders a mermaid "graph TD" component diagram.
// With IncludeMetadata off, node labels keep only their first word.
type MermaidDiagrammer struct {
	IncludeMetadata bool
	MaxComponents   int
}

// NewMermaidDiagrammer returns a diagrammer with metadata enabled.
func NewMermaidDiagrammer() MermaidDiagrammer {
	return MermaidDiagrammer{IncludeMetadata: true, MaxComponents: DefaultMaxDiagramElements}
}

func (m MermaidDiagrammer) Generate(_ context.Context, _ string, a SystemAnalysis, sessionID string) (Diagram, error) {
	limit := m.MaxComponents
	if limit <= 0 {
		limit = DefaultMaxDiagramElements
	}
	components := a.Components
	if len(components) > limit {
		slog.Warn("limiting diagram components", "limit", limit, "components", len(components))
		components = components[:limit]
	}

	meta := map[string]any{"tool": "mermaid", "session_id": sessionID}
	if m.IncludeMetadata {
		meta["component_count"] = len(components)
		meta["relationship_count"] = len(a.Relationships)
		meta["max_components_limit"] = limit
	}
	return Diagram{Type: "component", Content: m.render(components, a.Relationships), Metadata: meta}, nil
}

func (m MermaidDiagrammer) render(components, rels []string) string {
	lines := []string{"```mermaid", "graph TD"}
	ids := make(map[string]string, len(components))
	for i, c := range components {
		id := fmt.Sprintf("C%d", i+1)
		ids[c] = id
		label := c
		if !m.IncludeMetadata {
			if fields := strings.Fields(c); len(fields) > 0 {
				label = fields[0]
			}
		}
		lines = append(lines, fmt.Sprintf("    %s[%s]", id, label))
	}
	for _, r := range rels {
		src, dst, ok := strings.Cut(r, "->")
		if !ok {
			continue
		}
		srcID, dstID := ids[strings.TrimSpace(src)], ids[strings.TrimSpace(dst)]
		if srcID != "" && dstID != "" {
			lines = append(lines, fmt.Sprintf("    %s --> %s", srcID, dstID))
		}
	}
	lines = append(lines, "```")
	return strings.Join(lines, "\n")
}

// ArchitectureHandler runs the architecture phase. Failures come back
// as a result with metadata["error"] set, paired with a
// phase-execution error.
type ArchitectureHandler struct {
	Designer                   SystemDesigner
	Diagrammer                 ArchitectureDiagrammer
	MinComponents              int
	IncludePerformanceAnalysis bool
	TrackDesignPatterns        bool
}

// NewArchitectureHandler returns a handler with the basic strategies.
func NewArchitectureHandler() *ArchitectureHandler {
	return &ArchitectureHandler{
		Designer:            NewBasicSystemDesigner(),
		Diagrammer:          NewMermaidDiagrammer(),
		MinComponents:       DefaultMinComponents,
		TrackDesignPatterns: true,
	}
}

func (h *ArchitectureHandler) minComponents() int {
	if h.MinComponents <= 0 {
		return DefaultMinComponents
	}
	return h.MinComponents
}

// ValidatePrerequisites requires a specification artifact carrying
// requirements, API contracts or data models.
func (h *ArchitectureHandler) ValidatePrerequisites(pc sparc.PhaseContext) error {
	spec, ok := pc.GlobalArtifacts.Map(string(sparc.PhaseSpecification))
	if !ok || len(spec) == 0 {
		return prerequisitesNotMet(sparc.PhaseArchitecture, "no specification artifacts found")
	}
	if !present(spec["requirements"]) && !present(spec["api_contracts"]) && !present(spec["data_models"]) {
		return prerequisitesNotMet(sparc.PhaseArchitecture, "specification lacks sufficient detail")
	}
	return nil
}

func (h *ArchitectureHandler) fail(msg string, cause error) (sparc.PhaseResult, error) {
	if cause == nil {
		cause = errors.New(msg)
	}
	res := sparc.NewPhaseResult(sparc.PhaseArchitecture, nil, "", sparc.Artifacts{"error": msg})
	return res, sparc.PhaseExecutionFailed(cause)
}

func (h *ArchitectureHandler) Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error) {
	if err := h.ValidatePrerequisites(pc); err != nil {
		slog.Warn("architecture prerequisites not met", "session", pc.SessionID, "error", err)
		return h.fail("Prerequisites not met", err)
	}
	if strings.TrimSpace(pc.TaskDescription) == "" {
		return h.fail("Task description required", nil)
	}

	analysis, err := h.Designer.Analyze(ctx, pc.TaskDescription, pc.GlobalArtifacts)
	if err != nil {
		slog.Error("architecture design failed", "session", pc.SessionID, "error", err)
		return h.fail("Execution failed", err)
	}
	minComp := h.minComponents()
	if n := len(analysis.Components); n < minComp {
		return h.fail(fmt.Sprintf("Insufficient components: %d < %d", n, minComp), nil)
	}
	diagram, err := h.Diagrammer.Generate(ctx, pc.TaskDescription, analysis, pc.SessionID)
	if err != nil {
		slog.Error("architecture diagram failed", "session", pc.SessionID, "error", err)
		return h.fail("Execution failed", err)
	}

	artifacts := sparc.Artifacts{
		"architecture_document": map[string]any{
			"system_overview":         pc.TaskDescription,
			"components":              analysis.Components,
			"component_relationships": analysis.Relationships,
			"complexity_assessment":   analysis.ComplexityScore,
			"design_strategy":         analysis.DesignStrategy,
		},
		"component_diagram": diagram.artifact(),
		"design_decisions": map[string]any{
			"component_count":          len(analysis.Components),
			"min_components_threshold": minComp,
		},
	}
	if h.IncludePerformanceAnalysis {
		artifacts["performance_analysis"] = h.performance(analysis)
	}
	if h.TrackDesignPatterns {
		artifacts["design_patterns"] = h.patterns(analysis)
	}

	meta := sparc.Artifacts{
		"session_id":                   pc.SessionID,
		"min_components":               minComp,
		"include_performance_analysis": h.IncludePerformanceAnalysis,
		"track_design_patterns":        h.TrackDesignPatterns,
		"components_identified":        len(analysis.Components),
		"complexity_score":             analysis.ComplexityScore,
	}

	next := sparc.PhaseRefinement
	if analysis.ComplexityScore > highComplexityThreshold || len(analysis.Components) > minComp*3 {
		next = sparc.PhasePseudocode
	}
	return sparc.NewPhaseResult(sparc.PhaseArchitecture, artifacts, next, meta), nil
}

func (h *ArchitectureHandler) performance(a SystemAnalysis) map[string]any {
	if len(a.Components) >= h.minComponents()*performanceMultiplier {
		return map[string]any{
			"scalability_considerations": "High component count requires load balancing",
			"potential_bottlenecks":      []string{"Database connections", "Inter-service communication"},
			"caching_strategy":           "Multi-level caching recommended",
		}
	}
	return map[string]any{
		"scalability_considerations": "Simple architecture with standard scaling",
		"potential_bottlenecks":      []string{"Database queries", "API rate limits"},
		"caching_strategy":           "Application-level caching sufficient",
	}
}

func (h *ArchitectureHandler) patterns(a SystemAnalysis) []string {
	patterns := []string{}
	if len(a.Components) < h.minComponents() {
		return patterns
	}
	var gateway, cache bool
	services := 0
	for _, c := range a.Components {
		lower := strings.ToLower(c)
		gateway = gateway || strings.Contains(lower, "gateway")
		cache = cache || strings.Contains(lower, "cache")
		if strings.Contains(lower, "service") {
			services++
		}
	}
	if gateway {
		patterns = append(patterns, "API Gateway")
	}
	if cache {
		patterns = append(patterns, "Caching")
	}
	if services >= minMicroserviceCount {
		patterns = append(patterns, "Microservices")
	}
	return patterns
}
