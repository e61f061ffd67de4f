// Package toolreg answers which tools a phase may use and at what
// permission level, backed by the phase configuration set.
package toolreg

import (
	"fmt"
	"sort"
	"sync"

	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/sparc"
)

// Tool is one entry of a phase's tool list.
type Tool struct {
	Name       string               `json:"name"`
	Permission sparc.ToolPermission `json:"permission"`
}

// Registry is safe for concurrent use; Reload swaps configs atomically.
type Registry struct {
	mu      sync.RWMutex
	configs phaseconfig.Set
}

// New creates a Registry over the given configs.
func New(configs phaseconfig.Set) *Registry {
	return &Registry{configs: configs.Clone()}
}

// Reload replaces the configs.
func (r *Registry) Reload(configs phaseconfig.Set) {
	next := configs.Clone()
	r.mu.Lock()
	r.configs = next
	r.mu.Unlock()
}

// Config returns the phase config currently in effect.
func (r *Registry) Config(phase sparc.Phase) phaseconfig.PhaseConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs.Get(phase)
}

// Configs returns a snapshot of every phase config.
func (r *Registry) Configs() phaseconfig.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs.Clone()
}

// ForPhase lists allowed tools sorted by name. Tools without an explicit
// permission default to read_only.
func (r *Registry) ForPhase(phase sparc.Phase) []Tool {
	c := r.Config(phase)
	tools := make([]Tool, 0, len(c.AllowedTools))
	for _, name := range c.AllowedTools {
		tools = append(tools, Tool{Name: name, Permission: permission(c, name)})
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Names is ForPhase reduced to tool names.
func (r *Registry) Names(phase sparc.Phase) []string {
	tools := r.ForPhase(phase)
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Permission returns the access level of tool in phase. Forbidden tools
// report none.
func (r *Registry) Permission(phase sparc.Phase, tool string) sparc.ToolPermission {
	c := r.Config(phase)
	for _, f := range c.ForbiddenTools {
		if f == tool {
			return sparc.PermissionNone
		}
	}
	return permission(c, tool)
}

// Check returns an error when phase may not use tool: the tool is
// forbidden, or an allow-list exists and does not name it.
func (r *Registry) Check(phase sparc.Phase, tool string) error {
	c := r.Config(phase)
	for _, f := range c.ForbiddenTools {
		if f == tool {
			return fmt.Errorf("tool %q is forbidden in the %s phase", tool, phase)
		}
	}
	if len(c.AllowedTools) == 0 {
		return nil
	}
	for _, a := range c.AllowedTools {
		if a == tool {
			return nil
		}
	}
	return fmt.Errorf("tool %q is not allowed in the %s phase", tool, phase)
}

func permission(c phaseconfig.PhaseConfig, tool string) sparc.ToolPermission {
	if p, ok := c.ToolPermissions[tool]; ok {
		return p
	}
	return sparc.PermissionReadOnly
}
