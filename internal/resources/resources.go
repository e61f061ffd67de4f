// Package resources implements MCP resource handlers for SPARC.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (sparc://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/orchestration"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
)

// ConfigSource provides the phase configs in effect; *toolreg.Registry
// satisfies it.
type ConfigSource interface {
	Configs() phaseconfig.Set
}

// MetricsSource provides orchestration metrics.
type MetricsSource interface {
	Metrics() orchestration.Metrics
}

// Handler manages SPARC resource endpoints.
type Handler struct {
	configs ConfigSource
	metrics MetricsSource
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(configs ConfigSource, metrics MetricsSource) *Handler {
	return &Handler{configs: configs, metrics: metrics}
}

// PhasesResource returns the MCP resource definition for phase configs.
func (h *Handler) PhasesResource() mcp.Resource {
	return mcp.NewResource(
		"sparc://phases",
		"SPARC Phase Configs",
		mcp.WithResourceDescription("Configuration of every SPARC phase: instructions, tools, timeouts and retries"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandlePhases returns the phase configs currently in effect as JSON.
func (h *Handler) HandlePhases(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.configs.Configs())
}

// MetricsResource returns the MCP resource definition for run metrics.
func (h *Handler) MetricsResource() mcp.Resource {
	return mcp.NewResource(
		"sparc://metrics",
		"SPARC Metrics",
		mcp.WithResourceDescription("Workflow runs, failures, retries, LLM calls and time spent per phase since the server started"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleMetrics returns the orchestration metrics as JSON.
func (h *Handler) HandleMetrics(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.metrics.Metrics())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
