package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/phases"
	"github.com/HendryAvila/zenyth/internal/sparc"
	"github.com/HendryAvila/zenyth/internal/state"
	"github.com/HendryAvila/zenyth/internal/toolreg"
	"github.com/HendryAvila/zenyth/internal/validation"
)

const (
	// DefaultMaxPhaseVisits is how many times one run may enter a phase.
	DefaultMaxPhaseVisits = 1

	// DefaultMaxSteps bounds the number of phase executions in one run.
	DefaultMaxSteps = 20
)

// Session status values stored in session metadata.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// timeNow and newSessionID are package-level variables for testability.
var (
	timeNow      = time.Now
	newSessionID = func() string { return "sparc-" + uuid.NewString() }
)

// Orchestrator runs SPARC workflows. It is safe for concurrent use;
// each run gets its own handlers and instrumented provider.
type Orchestrator struct {
	provider  llm.Provider
	tools     *toolreg.Registry
	store     state.Manager
	build     RegistryBuilder
	maxVisits int
	maxSteps  int
	logger    *slog.Logger
	metrics   *metricsRecorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry replaces DefaultRegistry as the per-run registry source.
func WithRegistry(b RegistryBuilder) Option {
	return func(o *Orchestrator) { o.build = b }
}

// WithMaxPhaseVisits sets how often a phase may run within one workflow.
func WithMaxPhaseVisits(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxVisits = n
		}
	}
}

// WithMaxSteps sets the phase execution limit of one workflow.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator. Every dependency is required.
func New(provider llm.Provider, tools *toolreg.Registry, store state.Manager, opts ...Option) (*Orchestrator, error) {
	if provider == nil || tools == nil || store == nil {
		return nil, errors.New("all dependencies must be provided for orchestration")
	}
	o := &Orchestrator{
		provider:  provider,
		tools:     tools,
		store:     store,
		build:     DefaultRegistry,
		maxVisits: DefaultMaxPhaseVisits,
		maxSteps:  DefaultMaxSteps,
		logger:    slog.Default(),
		metrics:   newMetricsRecorder(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Metrics returns totals over every run so far.
func (o *Orchestrator) Metrics() Metrics {
	return o.metrics.snapshot()
}

// run is the per-execution state shared by Execute and ExecutePhase.
type run struct {
	registry *Registry
	counter  *llm.Counting
	configs  phaseconfig.Set
	metrics  *RunMetrics
}

func (o *Orchestrator) newRun() *run {
	counter := llm.NewCounting(o.provider)
	configs := o.tools.Configs()
	return &run{
		registry: o.build(counter, configs),
		counter:  counter,
		configs:  configs,
		metrics:  newRunMetrics(),
	}
}

// ─── Workflow ───────────────────────────────────────────────────────────────

// Execute runs the workflow for task from the specification phase.
//
// A failing phase ends the run with Success=false; the returned error
// is reserved for an invalid task and for storage failures.
func (o *Orchestrator) Execute(ctx context.Context, task string) (sparc.WorkflowResult, error) {
	var v validation.Result
	v.Append(validation.Required(task, "task"))
	if v.Valid() {
		v.Append(validation.NotEmpty(task, "task"))
	}
	if err := v.Err(); err != nil {
		return sparc.WorkflowResult{Task: task, Error: err.Error()}, err
	}

	started := timeNow()
	r := o.newRun()
	session := sparc.NewSessionContext(newSessionID(), task).WithMetadata("status", StatusRunning)
	if err := o.store.SaveSession(ctx, session); err != nil {
		return sparc.WorkflowResult{Task: task, Error: err.Error()}, err
	}
	log := o.logger.With("session_id", session.SessionID)
	log.Info("workflow started", "task_chars", len(task))

	result := sparc.WorkflowResult{Task: task, SessionID: session.SessionID}
	visits := make(map[sparc.Phase]int)
	current := sparc.PhaseSpecification
	var failure error

	for current != "" && r.registry.Has(current) {
		if r.metrics.Steps >= o.maxSteps {
			failure = fmt.Errorf("%s phase failed: step limit of %d reached", current, o.maxSteps)
			result.Metadata = sparc.Artifacts{"failure_phase": string(current)}
			break
		}
		r.metrics.Steps++

		res, err := o.runPhase(ctx, r, session, result.PhasesCompleted, current)
		visits[current]++
		if err != nil {
			failure = fmt.Errorf("%s phase failed: %w", current, err)
			result.Metadata = sparc.Artifacts{"failure_phase": string(current)}
			log.Warn("phase failed", "phase", current, "error", err)
			break
		}

		result.PhasesCompleted = append(result.PhasesCompleted, res)
		session = session.WithArtifact(string(current), res.Artifacts)
		session = session.WithMetadata("phases_completed", phaseNames(result.PhasesCompleted))
		if err := o.persist(ctx, session, res); err != nil {
			return o.finish(r, result, session, started, err), err
		}
		log.Info("phase completed", "phase", current, "next", res.NextPhase)

		current = o.nextPhase(current, res.NextPhase, visits)
	}

	result = o.finish(r, result, session, started, failure)
	status := StatusCompleted
	if failure != nil {
		status = StatusFailed
	}
	session = session.WithMetadata("status", status)
	if failure != nil {
		session = session.WithMetadata("error", failure.Error())
	}
	if err := o.store.SaveSession(ctx, session); err != nil {
		return result, err
	}
	log.Info("workflow finished", "status", status, "phases", len(result.PhasesCompleted))
	return result, nil
}

// nextPhase follows the suggestion unless that phase has used its
// visits, in which case it falls forward in WorkflowOrder from current.
func (o *Orchestrator) nextPhase(current, suggested sparc.Phase, visits map[sparc.Phase]int) sparc.Phase {
	if suggested == "" {
		return ""
	}
	if visits[suggested] < o.maxVisits {
		return suggested
	}
	for p := sparc.NextInOrder(current); p != ""; p = sparc.NextInOrder(p) {
		if visits[p] < o.maxVisits {
			return p
		}
	}
	return ""
}

func (o *Orchestrator) finish(r *run, result sparc.WorkflowResult, session sparc.SessionContext, started time.Time, failure error) sparc.WorkflowResult {
	r.metrics.LLMCalls = r.counter.Calls()
	r.metrics.Total = timeNow().Sub(started)

	meta := r.metrics.artifacts()
	meta["session_id"] = session.SessionID
	for k, v := range result.Metadata {
		meta[k] = v
	}
	result.Metadata = meta
	result.Artifacts = session.Artifacts.Clone()
	result.Success = failure == nil
	if failure != nil {
		result.Error = failure.Error()
	}
	o.metrics.record(r.metrics, true, failure != nil)
	return result
}

// ─── Single phase ───────────────────────────────────────────────────────────

// ExecutePhase runs one phase against a stored session, using the
// session's artifacts and recorded results as context. The result is
// persisted like a workflow step.
func (o *Orchestrator) ExecutePhase(ctx context.Context, sessionID string, phase sparc.Phase) (sparc.PhaseResult, error) {
	if err := sparc.ValidatePhase(phase); err != nil {
		return sparc.PhaseResult{}, sparc.NewError(sparc.KindValidation, err.Error(), "", err)
	}
	session, err := o.store.LoadSession(ctx, sessionID)
	if err != nil {
		return sparc.PhaseResult{}, err
	}
	previous, err := o.store.PhaseResults(ctx, sessionID)
	if err != nil {
		return sparc.PhaseResult{}, err
	}

	r := o.newRun()
	defer func() {
		r.metrics.LLMCalls = r.counter.Calls()
		o.metrics.record(r.metrics, false, false)
	}()

	res, err := o.runPhase(ctx, r, session, previous, phase)
	if err != nil {
		return res, fmt.Errorf("%s phase failed: %w", phase, err)
	}
	session = session.WithArtifact(string(phase), res.Artifacts)
	if err := o.persist(ctx, session, res); err != nil {
		return res, err
	}
	return res, nil
}

// ─── Phase execution ────────────────────────────────────────────────────────

// runPhase resolves a handler and runs it with the phase's timeout,
// retrying failures up to the phase's retry budget. Validation errors
// and a finished context are not retried.
func (o *Orchestrator) runPhase(ctx context.Context, r *run, session sparc.SessionContext, previous []sparc.PhaseResult, phase sparc.Phase) (sparc.PhaseResult, error) {
	handler, err := r.registry.Handler(phase)
	if err != nil {
		return sparc.PhaseResult{}, err
	}
	cfg := r.configs.Get(phase)
	pc := sparc.PhaseContext{
		SessionID:       session.SessionID,
		TaskDescription: session.Task,
		PreviousPhases:  previous,
		GlobalArtifacts: session.Artifacts.Clone(),
		AllowedTools:    o.tools.Names(phase),
	}

	started := timeNow()
	defer func() {
		r.metrics.PhaseDurations[phase] += timeNow().Sub(started)
		r.metrics.PhaseVisits[phase]++
	}()

	attempts := cfg.Retries() + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			r.metrics.Retries++
			o.logger.Debug("retrying phase", "phase", phase, "attempt", attempt, "error", lastErr)
		}
		res, err := o.attempt(ctx, handler, pc, cfg.Timeout())
		if err == nil {
			if msg, failed := res.Failed(); failed {
				err = errors.New(msg)
			}
		}
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, sparc.ErrValidation) || ctx.Err() != nil {
			break
		}
	}
	return sparc.PhaseResult{}, lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, h phases.Handler, pc sparc.PhaseContext, timeout time.Duration) (sparc.PhaseResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.Execute(ctx, pc)
}

func (o *Orchestrator) persist(ctx context.Context, session sparc.SessionContext, res sparc.PhaseResult) error {
	if err := o.store.SaveSession(ctx, session); err != nil {
		return err
	}
	return o.store.AppendPhaseResult(ctx, session.SessionID, res)
}

func phaseNames(results []sparc.PhaseResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if !slices.Contains(names, string(r.Phase)) {
			names = append(names, string(r.Phase))
		}
	}
	return names
}
