// Package phaseconfig loads per-phase configuration: LLM instructions,
// tool allow/deny lists, permissions, timeouts and retry budgets.
//
// Defaults for the five workflow phases are embedded in the binary.
// A directory of *.yaml files can overlay them; each file describes one
// phase and replaces the embedded config for that phase.
package phaseconfig

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFS embed.FS

// DefaultMaxRetries applies when a config omits max_retries.
const DefaultMaxRetries = 3

// PhaseConfig describes how one phase runs.
type PhaseConfig struct {
	Name               sparc.Phase                     `yaml:"name" json:"name"`
	Description        string                          `yaml:"description" json:"description"`
	Instructions       string                          `yaml:"instructions" json:"instructions"`
	AllowedTools       []string                        `yaml:"allowed_tools" json:"allowed_tools"`
	ForbiddenTools     []string                        `yaml:"forbidden_tools" json:"forbidden_tools"`
	ToolPermissions    map[string]sparc.ToolPermission `yaml:"tool_permissions" json:"tool_permissions,omitempty"`
	RequiredArtifacts  []string                        `yaml:"required_artifacts" json:"required_artifacts"`
	CompletionCriteria map[string]bool                 `yaml:"completion_criteria" json:"completion_criteria,omitempty"`
	TimeoutSeconds     int                             `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	MaxRetries         *int                            `yaml:"max_retries" json:"max_retries,omitempty"`
	CacheResponses     bool                            `yaml:"cache_responses" json:"cache_responses"`
	AllowHumanOverride bool                            `yaml:"allow_human_override" json:"allow_human_override"`
	ValidationRules    map[string]any                  `yaml:"validation_rules" json:"validation_rules,omitempty"`
}

// Timeout returns the phase deadline, or 0 for none.
func (c PhaseConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Retries returns how many extra attempts a failed phase gets.
func (c PhaseConfig) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// Validate checks the config is internally consistent.
func (c PhaseConfig) Validate() error {
	if err := sparc.ValidatePhase(c.Name); err != nil {
		return err
	}
	forbidden := make(map[string]bool, len(c.ForbiddenTools))
	for _, t := range c.ForbiddenTools {
		forbidden[t] = true
	}
	for _, t := range c.AllowedTools {
		if forbidden[t] {
			return fmt.Errorf("phase %s: tool %q is both allowed and forbidden", c.Name, t)
		}
	}
	for tool, p := range c.ToolPermissions {
		if err := sparc.ValidatePermission(p); err != nil {
			return fmt.Errorf("phase %s: tool %q: %w", c.Name, tool, err)
		}
	}
	return nil
}

// Set maps phases to their configuration.
type Set map[sparc.Phase]PhaseConfig

// Get returns the config for p, or a bare config named p when absent.
func (s Set) Get(p sparc.Phase) PhaseConfig {
	if c, ok := s[p]; ok {
		return c
	}
	return PhaseConfig{Name: p}
}

// Phases returns the configured phases, workflow phases first.
func (s Set) Phases() []sparc.Phase {
	out := make([]sparc.Phase, 0, len(s))
	seen := make(map[sparc.Phase]bool, len(s))
	for _, p := range sparc.WorkflowOrder {
		if _, ok := s[p]; ok {
			out = append(out, p)
			seen[p] = true
		}
	}
	var rest []sparc.Phase
	for p := range s {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// Clone returns a shallow copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Parse decodes a single phase config document.
func Parse(data []byte) (PhaseConfig, error) {
	var c PhaseConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return PhaseConfig{}, fmt.Errorf("parsing phase config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return PhaseConfig{}, err
	}
	return c, nil
}

// Defaults returns the embedded configuration for the workflow phases.
func Defaults() (Set, error) {
	entries, err := defaultFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("reading embedded phase configs: %w", err)
	}
	set := make(Set, len(entries))
	for _, e := range entries {
		data, err := defaultFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		set[c.Name] = c
	}
	return set, nil
}

// LoadDir overlays every *.yaml / *.yml file in dir on the defaults.
// An empty dir returns the defaults unchanged.
func LoadDir(dir string) (Set, error) {
	set, err := Defaults()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return set, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading phase config dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		set[c.Name] = c
	}
	return set, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
