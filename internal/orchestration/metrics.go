package orchestration

import (
	"maps"
	"sync"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// RunMetrics describes one workflow or single-phase run.
type RunMetrics struct {
	PhaseDurations map[sparc.Phase]time.Duration `json:"-"`
	PhaseVisits    map[sparc.Phase]int           `json:"phase_visits"`
	Retries        int                           `json:"retries"`
	LLMCalls       int64                         `json:"llm_calls"`
	Steps          int                           `json:"steps"`
	Total          time.Duration                 `json:"-"`
}

func newRunMetrics() *RunMetrics {
	return &RunMetrics{
		PhaseDurations: make(map[sparc.Phase]time.Duration),
		PhaseVisits:    make(map[sparc.Phase]int),
	}
}

// artifacts renders the metrics for WorkflowResult.Metadata. Durations
// are milliseconds.
func (m *RunMetrics) artifacts() sparc.Artifacts {
	durations := make(map[string]int64, len(m.PhaseDurations))
	for p, d := range m.PhaseDurations {
		durations[string(p)] = d.Milliseconds()
	}
	return sparc.Artifacts{
		"phase_durations_ms": durations,
		"total_duration_ms":  m.Total.Milliseconds(),
		"retries":            m.Retries,
		"llm_calls":          m.LLMCalls,
		"steps":              m.Steps,
	}
}

// Metrics aggregates every run an Orchestrator has performed.
type Metrics struct {
	Runs           int                           `json:"runs"`
	Failures       int                           `json:"failures"`
	PhaseRuns      map[sparc.Phase]int           `json:"phase_runs"`
	PhaseDurations map[sparc.Phase]time.Duration `json:"phase_durations"`
	Retries        int                           `json:"retries"`
	LLMCalls       int64                         `json:"llm_calls"`
}

type metricsRecorder struct {
	mu sync.Mutex
	m  Metrics
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{m: Metrics{
		PhaseRuns:      make(map[sparc.Phase]int),
		PhaseDurations: make(map[sparc.Phase]time.Duration),
	}}
}

// record folds run into the totals. Only workflow runs count toward
// Runs and Failures.
func (r *metricsRecorder) record(run *RunMetrics, workflow, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if workflow {
		r.m.Runs++
		if failed {
			r.m.Failures++
		}
	}
	for p, n := range run.PhaseVisits {
		r.m.PhaseRuns[p] += n
	}
	for p, d := range run.PhaseDurations {
		r.m.PhaseDurations[p] += d
	}
	r.m.Retries += run.Retries
	r.m.LLMCalls += run.LLMCalls
}

func (r *metricsRecorder) snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.m
	out.PhaseRuns = maps.Clone(r.m.PhaseRuns)
	out.PhaseDurations = maps.Clone(r.m.PhaseDurations)
	return out
}
