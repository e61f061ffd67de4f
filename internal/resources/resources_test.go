package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/zenyth/internal/orchestration"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/sparc"
)

type staticConfigs phaseconfig.Set

func (s staticConfigs) Configs() phaseconfig.Set { return phaseconfig.Set(s) }

type staticMetrics orchestration.Metrics

func (m staticMetrics) Metrics() orchestration.Metrics { return orchestration.Metrics(m) }

func read(t *testing.T, handle func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string) string {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	contents, err := handle(context.Background(), req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T", contents[0])
	}
	if tc.URI != uri || tc.MIMEType != "application/json" {
		t.Errorf("uri/mime = %q/%q", tc.URI, tc.MIMEType)
	}
	return tc.Text
}

func TestHandlePhases(t *testing.T) {
	set, err := phaseconfig.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	h := NewHandler(staticConfigs(set), staticMetrics{})
	if h.PhasesResource().URI != "sparc://phases" {
		t.Errorf("uri = %q", h.PhasesResource().URI)
	}

	var got map[string]phaseconfig.PhaseConfig
	if err := json.Unmarshal([]byte(read(t, h.HandlePhases, "sparc://phases")), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, p := range sparc.WorkflowOrder {
		cfg, ok := got[string(p)]
		if !ok {
			t.Errorf("phase %s missing", p)
			continue
		}
		if cfg.Name != p {
			t.Errorf("phase %s has name %q", p, cfg.Name)
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	h := NewHandler(staticConfigs{}, staticMetrics{
		Runs:      3,
		Failures:  1,
		PhaseRuns: map[sparc.Phase]int{sparc.PhaseSpecification: 3},
		LLMCalls:  6,
	})

	var got struct {
		Runs      int            `json:"runs"`
		Failures  int            `json:"failures"`
		PhaseRuns map[string]int `json:"phase_runs"`
		LLMCalls  int64          `json:"llm_calls"`
	}
	if err := json.Unmarshal([]byte(read(t, h.HandleMetrics, "sparc://metrics")), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Runs != 3 || got.Failures != 1 || got.LLMCalls != 6 || got.PhaseRuns["specification"] != 3 {
		t.Errorf("metrics = %+v", got)
	}
}
