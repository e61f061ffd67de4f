package sparc

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	timeNow = func() time.Time { return fixedTime }
}

func TestValidatePhase(t *testing.T) {
	for _, p := range AllPhases() {
		if err := ValidatePhase(p); err != nil {
			t.Errorf("ValidatePhase(%q) unexpected error: %v", p, err)
		}
	}
	if err := ValidatePhase("deployment"); err == nil {
		t.Error("ValidatePhase(deployment) should fail")
	}
}

func TestNextInOrder(t *testing.T) {
	tests := []struct {
		in   Phase
		want Phase
	}{
		{PhaseSpecification, PhasePseudocode},
		{PhasePseudocode, PhaseArchitecture},
		{PhaseArchitecture, PhaseRefinement},
		{PhaseRefinement, PhaseCompletion},
		{PhaseCompletion, ""},
		{PhaseValidation, ""},
	}
	for _, tt := range tests {
		if got := NextInOrder(tt.in); got != tt.want {
			t.Errorf("NextInOrder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePermission(t *testing.T) {
	if err := ValidatePermission(PermissionWrite); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePermission("admin"); err == nil {
		t.Error("ValidatePermission(admin) should fail")
	}
}

func TestNewPhaseResult_ClonesMaps(t *testing.T) {
	arts := Artifacts{"doc": "x"}
	r := NewPhaseResult(PhaseSpecification, arts, PhaseArchitecture, nil)

	arts["doc"] = "mutated"
	if r.Artifacts["doc"] != "x" {
		t.Error("result artifacts should not alias the input map")
	}
	if r.Metadata == nil {
		t.Error("metadata should default to an empty map")
	}
}

func TestPhaseResult_String(t *testing.T) {
	r := NewPhaseResult(PhasePseudocode, Artifacts{"a": 1}, "", nil)
	s := r.String()
	if !strings.Contains(s, "pseudocode") {
		t.Errorf("String() = %q, should contain phase name", s)
	}
	if !strings.Contains(s, "next=none") {
		t.Errorf("String() = %q, should show next=none", s)
	}
}

func TestPhaseResult_Failed(t *testing.T) {
	ok := NewPhaseResult(PhaseArchitecture, nil, PhaseRefinement, nil)
	if _, failed := ok.Failed(); failed {
		t.Error("result without error metadata should not be failed")
	}
	bad := NewPhaseResult(PhaseArchitecture, nil, "", Artifacts{"error": "Prerequisites not met"})
	msg, failed := bad.Failed()
	if !failed || msg != "Prerequisites not met" {
		t.Errorf("Failed() = (%q, %v), want (Prerequisites not met, true)", msg, failed)
	}
}

func TestSessionContext_WithArtifactIsCopyOnWrite(t *testing.T) {
	s := NewSessionContext("s-1", "build a thing")
	if !s.CreatedAt.Equal(fixedTime) {
		t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, fixedTime)
	}

	s2 := s.WithArtifact("specification", Artifacts{"requirements": []string{"r"}})
	if _, ok := s.Artifacts["specification"]; ok {
		t.Error("original session should not see the new artifact")
	}
	if _, ok := s2.Artifacts["specification"]; !ok {
		t.Error("derived session should carry the new artifact")
	}

	s3 := s2.WithMetadata("status", "running")
	if _, ok := s2.Metadata["status"]; ok {
		t.Error("WithMetadata should not mutate the receiver")
	}
	if s3.Metadata["status"] != "running" {
		t.Error("derived session should carry the metadata")
	}
}

func TestArtifacts_Map(t *testing.T) {
	a := Artifacts{
		"plain":  map[string]any{"k": "v"},
		"typed":  Artifacts{"k": "v"},
		"scalar": 3,
	}
	if _, ok := a.Map("plain"); !ok {
		t.Error("Map(plain) should succeed")
	}
	if _, ok := a.Map("typed"); !ok {
		t.Error("Map(typed) should succeed")
	}
	if _, ok := a.Map("scalar"); ok {
		t.Error("Map(scalar) should fail")
	}
	if _, ok := a.Map("missing"); ok {
		t.Error("Map(missing) should fail")
	}
}

func TestWorkflowResult_String(t *testing.T) {
	ok := WorkflowResult{Success: true, Task: "t", PhasesCompleted: []PhaseResult{{Phase: PhaseSpecification}}}
	if !strings.Contains(ok.String(), "success") {
		t.Errorf("String() = %q, should report success", ok.String())
	}
	if got := ok.PhaseNames(); len(got) != 1 || got[0] != PhaseSpecification {
		t.Errorf("PhaseNames() = %v", got)
	}

	bad := WorkflowResult{Task: "t", Error: "specification phase failed: boom"}
	if !strings.Contains(bad.String(), "boom") {
		t.Errorf("String() = %q, should include error", bad.String())
	}
}

func TestError_MessageAndDetails(t *testing.T) {
	e := NewError(KindStorage, "save failed", "disk full", nil)
	if e.Error() != "save failed: disk full" {
		t.Errorf("Error() = %q", e.Error())
	}
	e2 := NewError(KindStorage, "save failed", "", nil)
	if e2.Error() != "save failed" {
		t.Errorf("Error() = %q", e2.Error())
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("no rows")
	err := fmt.Errorf("loading: %w", NewError(KindSessionNotFound, "session not found", "abc", cause))

	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("errors.Is should match the session-not-found sentinel")
	}
	if errors.Is(err, ErrStorage) {
		t.Error("errors.Is should not match a different kind")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if KindOf(err) != KindSessionNotFound {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain) should be empty")
	}
}

func TestPhaseExecutionFailed(t *testing.T) {
	cause := errors.New("analyzer exploded")
	err := PhaseExecutionFailed(cause)
	if !errors.Is(err, ErrPhaseExecution) {
		t.Error("should match phase execution sentinel")
	}
	if !strings.HasPrefix(err.Error(), "phase execution failed") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to cause")
	}
}
