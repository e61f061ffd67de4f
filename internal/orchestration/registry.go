// Package orchestration drives a SPARC workflow: it resolves a handler
// for each phase, runs it with the phase's timeout and retry budget,
// persists the session after every step and follows the handlers'
// next-phase suggestions until the workflow ends.
package orchestration

import (
	"fmt"
	"sync"

	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/phases"
	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Factory creates a fresh handler for one run of a phase.
type Factory func() (phases.Handler, error)

// HandlerNotRegisteredError is returned by Registry.Handler for a phase
// with no factory.
type HandlerNotRegisteredError struct {
	Phase sparc.Phase
}

func (e *HandlerNotRegisteredError) Error() string {
	return fmt.Sprintf("no handler registered for phase: %s", e.Phase)
}

// Registry maps phases to handler factories. Phases keep the order of
// their first registration.
type Registry struct {
	mu        sync.RWMutex
	order     []sparc.Phase
	factories map[sparc.Phase]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[sparc.Phase]Factory)}
}

// Register sets the factory for phase, replacing any earlier one.
func (r *Registry) Register(phase sparc.Phase, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[phase]; !ok {
		r.order = append(r.order, phase)
	}
	r.factories[phase] = f
}

// Has reports whether phase has a factory.
func (r *Registry) Has(phase sparc.Phase) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[phase]
	return ok
}

// Handler builds a handler for phase.
func (r *Registry) Handler(phase sparc.Phase) (phases.Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[phase]
	r.mu.RUnlock()
	if !ok {
		return nil, &HandlerNotRegisteredError{Phase: phase}
	}

	h, err := f()
	if err != nil {
		return nil, fmt.Errorf("factory failed for phase %s: %w", phase, err)
	}
	if h == nil {
		return nil, fmt.Errorf("factory failed for phase %s: nil handler", phase)
	}
	return h, nil
}

// Phases lists registered phases in registration order.
func (r *Registry) Phases() []sparc.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sparc.Phase, len(r.order))
	copy(out, r.order)
	return out
}

// RegistryBuilder creates the registry for one workflow run. The
// provider it receives is the run's instrumented provider.
type RegistryBuilder func(provider llm.Provider, configs phaseconfig.Set) *Registry

// DefaultRegistry registers the five workflow phases. Specification,
// pseudocode and architecture are rule-based; refinement and completion
// prompt the provider with their phase config.
func DefaultRegistry(provider llm.Provider, configs phaseconfig.Set) *Registry {
	r := NewRegistry()
	r.Register(sparc.PhaseSpecification, func() (phases.Handler, error) {
		return phases.NewSpecificationHandler(), nil
	})
	r.Register(sparc.PhasePseudocode, func() (phases.Handler, error) {
		return phases.NewPseudocodeHandler(), nil
	})
	r.Register(sparc.PhaseArchitecture, func() (phases.Handler, error) {
		return phases.NewArchitectureHandler(), nil
	})
	r.Register(sparc.PhaseRefinement, func() (phases.Handler, error) {
		return phases.NewRefinementHandler(provider, configs.Get(sparc.PhaseRefinement)), nil
	})
	r.Register(sparc.PhaseCompletion, func() (phases.Handler, error) {
		return phases.NewCompletionHandler(provider, configs.Get(sparc.PhaseCompletion)), nil
	})
	return r
}
