package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/phases"
	"github.com/HendryAvila/zenyth/internal/sparc"
	"github.com/HendryAvila/zenyth/internal/state"
	"github.com/HendryAvila/zenyth/internal/toolreg"
)

func init() {
	timeNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	var n atomic.Int64
	newSessionID = func() string { return fmt.Sprintf("sparc-test-%d", n.Add(1)) }
}

// fakeHandler returns a fixed suggestion, or err while failures remain.
type fakeHandler struct {
	phase    sparc.Phase
	next     sparc.Phase
	err      error
	failures int
	calls    *atomic.Int64
	block    bool
}

func (h *fakeHandler) ValidatePrerequisites(sparc.PhaseContext) error { return nil }

func (h *fakeHandler) Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error) {
	n := h.calls.Add(1)
	if h.block {
		<-ctx.Done()
		return sparc.PhaseResult{}, sparc.PhaseExecutionFailed(ctx.Err())
	}
	if h.err != nil && (h.failures == 0 || int(n) <= h.failures) {
		return sparc.PhaseResult{}, h.err
	}
	return sparc.NewPhaseResult(h.phase, sparc.Artifacts{"seen_artifacts": len(pc.GlobalArtifacts)}, h.next, nil), nil
}

type fakeSpec struct {
	phase sparc.Phase
	h     *fakeHandler
}

func fakeRegistry(specs ...fakeSpec) RegistryBuilder {
	return func(llm.Provider, phaseconfig.Set) *Registry {
		r := NewRegistry()
		for _, s := range specs {
			h := s.h
			r.Register(s.phase, func() (phases.Handler, error) { return h, nil })
		}
		return r
	}
}

func handler(phase, next sparc.Phase) *fakeHandler {
	return &fakeHandler{phase: phase, next: next, calls: new(atomic.Int64)}
}

func newMock(t *testing.T, raise bool, responses ...string) *llm.MockProvider {
	t.Helper()
	m, err := llm.NewMockProvider(responses, raise)
	if err != nil {
		t.Fatalf("NewMockProvider: %v", err)
	}
	return m
}

func defaultTools(t *testing.T) *toolreg.Registry {
	t.Helper()
	set, err := phaseconfig.Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	return toolreg.New(set)
}

func retries(n int) *int { return &n }

func newOrchestrator(t *testing.T, p llm.Provider, store state.Manager, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(p, defaultTools(t), store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// ─── Registry ───────────────────────────────────────────────────────────────

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first := handler(sparc.PhaseArchitecture, "")
	r.Register(sparc.PhaseArchitecture, func() (phases.Handler, error) { return first, nil })
	r.Register(sparc.PhaseSpecification, func() (phases.Handler, error) { return handler(sparc.PhaseSpecification, ""), nil })

	second := handler(sparc.PhaseArchitecture, sparc.PhaseCompletion)
	r.Register(sparc.PhaseArchitecture, func() (phases.Handler, error) { return second, nil })

	got := r.Phases()
	if len(got) != 2 || got[0] != sparc.PhaseArchitecture || got[1] != sparc.PhaseSpecification {
		t.Errorf("Phases() = %v", got)
	}
	h, err := r.Handler(sparc.PhaseArchitecture)
	if err != nil {
		t.Fatal(err)
	}
	if h != second {
		t.Error("re-registration should replace the factory")
	}
}

func TestRegistry_UnknownPhase(t *testing.T) {
	_, err := NewRegistry().Handler(sparc.PhaseValidation)
	var nr *HandlerNotRegisteredError
	if !errors.As(err, &nr) {
		t.Fatalf("err = %v, want *HandlerNotRegisteredError", err)
	}
	if nr.Phase != sparc.PhaseValidation {
		t.Errorf("Phase = %s", nr.Phase)
	}
	if err.Error() != "no handler registered for phase: validation" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestRegistry_FactoryFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(sparc.PhaseRefinement, func() (phases.Handler, error) { return nil, errors.New("boom") })
	r.Register(sparc.PhaseCompletion, func() (phases.Handler, error) { return nil, nil })

	_, err := r.Handler(sparc.PhaseRefinement)
	if err == nil || err.Error() != "factory failed for phase refinement: boom" {
		t.Errorf("err = %v", err)
	}
	if _, err := r.Handler(sparc.PhaseCompletion); err == nil {
		t.Error("nil handler should be an error")
	}
}

func TestDefaultRegistry_WorkflowPhases(t *testing.T) {
	r := DefaultRegistry(newMock(t, false, "x"), phaseconfig.Set{})
	got := r.Phases()
	if len(got) != len(sparc.WorkflowOrder) {
		t.Fatalf("Phases() = %v", got)
	}
	for i, p := range sparc.WorkflowOrder {
		if got[i] != p {
			t.Errorf("Phases()[%d] = %s, want %s", i, got[i], p)
		}
		if _, err := r.Handler(p); err != nil {
			t.Errorf("Handler(%s): %v", p, err)
		}
	}
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	mock := newMock(t, false, "x")
	tools := defaultTools(t)
	store := state.NewMemoryStore()

	tests := []struct {
		name  string
		p     llm.Provider
		tools *toolreg.Registry
		store state.Manager
	}{
		{"no provider", nil, tools, store},
		{"no tools", mock, nil, store},
		{"no store", mock, tools, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p, tt.tools, tt.store)
			if err == nil || err.Error() != "all dependencies must be provided for orchestration" {
				t.Errorf("err = %v", err)
			}
		})
	}
}

// ─── Execute ────────────────────────────────────────────────────────────────

func TestExecute_FullWorkflow(t *testing.T) {
	mock := newMock(t, false, "refined plan", "final summary")
	store := state.NewMemoryStore()
	o := newOrchestrator(t, mock, store)
	ctx := context.Background()

	res, err := o.Execute(ctx, "Build a todo list REST API")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("workflow failed: %s", res.Error)
	}

	names := res.PhaseNames()
	if names[0] != sparc.PhaseSpecification || names[len(names)-1] != sparc.PhaseCompletion {
		t.Errorf("phases = %v", names)
	}
	seen := map[sparc.Phase]bool{}
	for _, p := range names {
		if seen[p] {
			t.Errorf("phase %s ran twice", p)
		}
		seen[p] = true
	}
	for _, p := range []sparc.Phase{sparc.PhaseArchitecture, sparc.PhaseRefinement} {
		if !seen[p] {
			t.Errorf("phase %s did not run: %v", p, names)
		}
	}

	completion, ok := res.Artifacts.Map(string(sparc.PhaseCompletion))
	if !ok || completion["completion_document"] != "final summary" {
		t.Errorf("completion artifacts = %v", res.Artifacts[string(sparc.PhaseCompletion)])
	}
	if res.Metadata["llm_calls"] != int64(2) {
		t.Errorf("llm_calls = %v, want 2", res.Metadata["llm_calls"])
	}
	if res.Metadata["session_id"] != res.SessionID || !strings.HasPrefix(res.SessionID, "sparc-") {
		t.Errorf("session id = %q / %v", res.SessionID, res.Metadata["session_id"])
	}

	stored, err := store.LoadSession(ctx, res.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Metadata["status"] != StatusCompleted {
		t.Errorf("status = %v", stored.Metadata["status"])
	}
	results, _ := store.PhaseResults(ctx, res.SessionID)
	if len(results) != len(res.PhasesCompleted) {
		t.Errorf("stored %d results, ran %d phases", len(results), len(res.PhasesCompleted))
	}

	m := o.Metrics()
	if m.Runs != 1 || m.Failures != 0 || m.LLMCalls != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.PhaseRuns[sparc.PhaseSpecification] != 1 {
		t.Errorf("specification runs = %d", m.PhaseRuns[sparc.PhaseSpecification])
	}
}

func TestExecute_RejectsEmptyTask(t *testing.T) {
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore())
	for _, task := range []string{"", "   "} {
		res, err := o.Execute(context.Background(), task)
		if !errors.Is(err, sparc.ErrValidation) {
			t.Errorf("Execute(%q) err = %v, want validation", task, err)
		}
		if res.Success {
			t.Errorf("Execute(%q) reported success", task)
		}
	}
}

func TestExecute_FallsForwardFromVisitedPhase(t *testing.T) {
	spec := handler(sparc.PhaseSpecification, sparc.PhaseArchitecture)
	arch := handler(sparc.PhaseArchitecture, sparc.PhaseSpecification)
	ref := handler(sparc.PhaseRefinement, "")
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore(), WithRegistry(fakeRegistry(
		fakeSpec{sparc.PhaseSpecification, spec},
		fakeSpec{sparc.PhaseArchitecture, arch},
		fakeSpec{sparc.PhaseRefinement, ref},
	)))

	res, err := o.Execute(context.Background(), "task")
	if err != nil || !res.Success {
		t.Fatalf("Execute: %v / %s", err, res.Error)
	}
	got := res.PhaseNames()
	want := []sparc.Phase{sparc.PhaseSpecification, sparc.PhaseArchitecture, sparc.PhaseRefinement}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
	if spec.calls.Load() != 1 {
		t.Errorf("specification ran %d times", spec.calls.Load())
	}
}

func TestExecute_StopsAtUnregisteredPhase(t *testing.T) {
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore(), WithRegistry(fakeRegistry(
		fakeSpec{sparc.PhaseSpecification, handler(sparc.PhaseSpecification, sparc.PhaseValidation)},
	)))
	res, err := o.Execute(context.Background(), "task")
	if err != nil || !res.Success {
		t.Fatalf("Execute: %v / %s", err, res.Error)
	}
	if len(res.PhasesCompleted) != 1 {
		t.Errorf("phases = %v", res.PhaseNames())
	}
}

func TestExecute_StepLimit(t *testing.T) {
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore(),
		WithMaxPhaseVisits(2), WithMaxSteps(3),
		WithRegistry(fakeRegistry(
			fakeSpec{sparc.PhaseSpecification, handler(sparc.PhaseSpecification, sparc.PhaseArchitecture)},
			fakeSpec{sparc.PhaseArchitecture, handler(sparc.PhaseArchitecture, sparc.PhaseSpecification)},
		)))

	res, err := o.Execute(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected step limit failure")
	}
	if res.Error != "architecture phase failed: step limit of 3 reached" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Metadata["failure_phase"] != "architecture" || res.Metadata["steps"] != 3 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	flaky := handler(sparc.PhaseSpecification, "")
	flaky.err = sparc.PhaseExecutionFailed(errors.New("transient"))
	flaky.failures = 2

	tools := toolreg.New(phaseconfig.Set{
		sparc.PhaseSpecification: {Name: sparc.PhaseSpecification, MaxRetries: retries(2)},
	})
	o, err := New(newMock(t, false, "x"), tools, state.NewMemoryStore(),
		WithRegistry(fakeRegistry(fakeSpec{sparc.PhaseSpecification, flaky})))
	if err != nil {
		t.Fatal(err)
	}

	res, err := o.Execute(context.Background(), "task")
	if err != nil || !res.Success {
		t.Fatalf("Execute: %v / %s", err, res.Error)
	}
	if flaky.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls.Load())
	}
	if res.Metadata["retries"] != 2 {
		t.Errorf("retries = %v", res.Metadata["retries"])
	}
}

func TestExecute_ValidationErrorsAreNotRetried(t *testing.T) {
	bad := handler(sparc.PhaseSpecification, "")
	bad.err = sparc.NewError(sparc.KindValidation, "prerequisites not met for specification phase", "", nil)
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore(),
		WithRegistry(fakeRegistry(fakeSpec{sparc.PhaseSpecification, bad})))

	res, _ := o.Execute(context.Background(), "task")
	if res.Success {
		t.Fatal("expected failure")
	}
	if bad.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", bad.calls.Load())
	}
	if !strings.HasPrefix(res.Error, "specification phase failed: ") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestExecute_PhaseTimeout(t *testing.T) {
	slow := handler(sparc.PhaseSpecification, "")
	slow.block = true
	tools := toolreg.New(phaseconfig.Set{
		sparc.PhaseSpecification: {Name: sparc.PhaseSpecification, TimeoutSeconds: 1, MaxRetries: retries(0)},
	})
	o, _ := New(newMock(t, false, "x"), tools, state.NewMemoryStore(),
		WithRegistry(fakeRegistry(fakeSpec{sparc.PhaseSpecification, slow})))

	res, err := o.Execute(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !strings.Contains(res.Error, "deadline exceeded") {
		t.Errorf("result = %s", res)
	}
}

func TestExecute_LLMFailureRecordsFailurePhase(t *testing.T) {
	store := state.NewMemoryStore()
	o := newOrchestrator(t, newMock(t, true), store)
	ctx := context.Background()

	res, err := o.Execute(ctx, "Build a todo list REST API")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Metadata["failure_phase"] != string(sparc.PhaseRefinement) {
		t.Errorf("failure_phase = %v", res.Metadata["failure_phase"])
	}
	if !strings.HasPrefix(res.Error, "refinement phase failed: ") || !strings.Contains(res.Error, llm.ErrMockConfigured.Error()) {
		t.Errorf("Error = %q", res.Error)
	}
	// Refinement allows one retry.
	if res.Metadata["llm_calls"] != int64(2) {
		t.Errorf("llm_calls = %v", res.Metadata["llm_calls"])
	}

	stored, _ := store.LoadSession(ctx, res.SessionID)
	if stored.Metadata["status"] != StatusFailed {
		t.Errorf("status = %v", stored.Metadata["status"])
	}
	if _, ok := stored.Artifacts[string(sparc.PhaseSpecification)]; !ok {
		t.Error("completed phases should be persisted before the failure")
	}
	if m := o.Metrics(); m.Failures != 1 {
		t.Errorf("Failures = %d", m.Failures)
	}
}

// ─── ExecutePhase ───────────────────────────────────────────────────────────

func TestExecutePhase_OnStoredSession(t *testing.T) {
	store := state.NewMemoryStore()
	o := newOrchestrator(t, newMock(t, false, "a", "b", "c"), store)
	ctx := context.Background()

	run, err := o.Execute(ctx, "Build a todo list REST API")
	if err != nil || !run.Success {
		t.Fatalf("Execute: %v / %s", err, run.Error)
	}

	res, err := o.ExecutePhase(ctx, run.SessionID, sparc.PhaseRefinement)
	if err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}
	if res.Phase != sparc.PhaseRefinement || res.Artifacts["refinement_document"] == "" {
		t.Errorf("result = %s", res)
	}
	results, _ := store.PhaseResults(ctx, run.SessionID)
	if len(results) != len(run.PhasesCompleted)+1 {
		t.Errorf("stored results = %d", len(results))
	}
}

func TestExecutePhase_Errors(t *testing.T) {
	o := newOrchestrator(t, newMock(t, false, "x"), state.NewMemoryStore())
	ctx := context.Background()

	if _, err := o.ExecutePhase(ctx, "missing", sparc.PhaseSpecification); !errors.Is(err, sparc.ErrSessionNotFound) {
		t.Errorf("missing session err = %v", err)
	}
	if _, err := o.ExecutePhase(ctx, "any", sparc.Phase("bogus")); !errors.Is(err, sparc.ErrValidation) {
		t.Errorf("bogus phase err = %v", err)
	}
}

func TestExecutePhase_UnregisteredPhase(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	_ = store.SaveSession(ctx, sparc.NewSessionContext("s1", "task"))
	o := newOrchestrator(t, newMock(t, false, "x"), store)

	_, err := o.ExecutePhase(ctx, "s1", sparc.PhaseIntegration)
	var nr *HandlerNotRegisteredError
	if !errors.As(err, &nr) {
		t.Errorf("err = %v, want *HandlerNotRegisteredError", err)
	}
}
