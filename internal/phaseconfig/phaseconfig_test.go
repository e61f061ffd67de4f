package phaseconfig

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

func TestDefaults_CoverWorkflowPhases(t *testing.T) {
	set, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	for _, p := range sparc.WorkflowOrder {
		c, ok := set[p]
		if !ok {
			t.Errorf("missing default config for %s", p)
			continue
		}
		if strings.TrimSpace(c.Instructions) == "" {
			t.Errorf("%s: instructions should not be empty", p)
		}
	}
	got := set.Phases()
	if len(got) != len(sparc.WorkflowOrder) || got[0] != sparc.PhaseSpecification {
		t.Errorf("Phases() = %v", got)
	}
}

func TestDefaults_Specification(t *testing.T) {
	set, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	c := set.Get(sparc.PhaseSpecification)

	if c.Timeout() != 30*time.Minute {
		t.Errorf("Timeout = %v, want 30m", c.Timeout())
	}
	if c.Retries() != 2 {
		t.Errorf("Retries = %d, want 2", c.Retries())
	}
	if len(c.AllowedTools) != 9 {
		t.Errorf("allowed tools = %d, want 9", len(c.AllowedTools))
	}
	if c.ToolPermissions["write_memory"] != sparc.PermissionWrite {
		t.Errorf("write_memory permission = %q", c.ToolPermissions["write_memory"])
	}
	if c.ValidationRules["min_artifacts"] != 3 {
		t.Errorf("min_artifacts = %v", c.ValidationRules["min_artifacts"])
	}
}

func TestPhaseConfig_RetriesDefault(t *testing.T) {
	c := PhaseConfig{Name: sparc.PhaseRefinement}
	if c.Retries() != DefaultMaxRetries {
		t.Errorf("Retries = %d, want %d", c.Retries(), DefaultMaxRetries)
	}
	if c.Timeout() != 0 {
		t.Errorf("Timeout = %v, want 0", c.Timeout())
	}
}

func TestParse_RejectsConflicts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown phase", "name: deployment\n"},
		{"allowed and forbidden", "name: pseudocode\nallowed_tools: [read_file]\nforbidden_tools: [read_file]\n"},
		{"bad permission", "name: pseudocode\ntool_permissions:\n  read_file: root\n"},
		{"bad yaml", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadDir_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	override := "name: pseudocode\ndescription: custom\ninstructions: think hard\nmax_retries: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "pseudocode.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	c := set.Get(sparc.PhasePseudocode)
	if c.Description != "custom" {
		t.Errorf("description = %q, want custom", c.Description)
	}
	if c.Retries() != 0 {
		t.Errorf("Retries = %d, want 0", c.Retries())
	}
	if _, ok := set[sparc.PhaseSpecification]; !ok {
		t.Error("defaults for other phases should survive the overlay")
	}
}

func TestLoadDir_Errors(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing dir should fail")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("name: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Error("invalid file should fail")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Set, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func(s Set) { changes <- s })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	body := "name: completion\ndescription: reloaded\n"
	if err := os.WriteFile(filepath.Join(dir, "completion.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-changes:
		if s.Get(sparc.PhaseCompletion).Description != "reloaded" {
			t.Errorf("description = %q", s.Get(sparc.PhaseCompletion).Description)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestReloadDir_SkipsAfterCancel(t *testing.T) {
	dir := t.TempDir()
	called := 0
	onChange := func(Set) { called++ }

	reloadDir(context.Background(), dir, onChange)
	if called != 1 {
		t.Fatalf("live reload called onChange %d times, want 1", called)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reloadDir(ctx, dir, onChange)
	if called != 1 {
		t.Errorf("reload after cancel reached onChange")
	}
}
