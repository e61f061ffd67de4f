// Package phases implements the SPARC phase handlers.
//
// Each handler turns a PhaseContext into a PhaseResult. The
// specification, pseudocode and architecture handlers are deterministic
// and built from two pluggable strategies (an analyzer and a
// generator). Refinement and completion delegate to an LLM provider.
package phases

import (
	"context"
	"strings"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Handler executes one SPARC phase.
type Handler interface {
	// Execute runs the phase. Handlers may return a non-empty result
	// alongside an error so callers can inspect metadata["error"].
	Execute(ctx context.Context, pc sparc.PhaseContext) (sparc.PhaseResult, error)

	// ValidatePrerequisites reports whether pc is a valid input.
	ValidatePrerequisites(pc sparc.PhaseContext) error
}

func prerequisitesNotMet(phase sparc.Phase, details string) error {
	return sparc.NewError(sparc.KindValidation, "prerequisites not met for "+string(phase)+" phase", details, nil)
}

// stringList reads a list artifact regardless of whether it came
// straight from a handler ([]string) or back from JSON ([]any).
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// present reports whether an artifact value is non-empty.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case sparc.Artifacts:
		return len(x) > 0
	case bool:
		return x
	default:
		return true
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
