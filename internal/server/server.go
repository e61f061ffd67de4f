// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/zenyth/internal/cli"
	"github.com/HendryAvila/zenyth/internal/config"
	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/orchestration"
	"github.com/HendryAvila/zenyth/internal/phaseconfig"
	"github.com/HendryAvila/zenyth/internal/prompts"
	"github.com/HendryAvila/zenyth/internal/resources"
	"github.com/HendryAvila/zenyth/internal/state"
	"github.com/HendryAvila/zenyth/internal/toolreg"
	"github.com/HendryAvila/zenyth/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Runtime holds the components shared by every entry point.
type Runtime struct {
	Provider     llm.Provider
	Tools        *toolreg.Registry
	Store        state.Manager
	Orchestrator *orchestration.Orchestrator
}

// NewRuntime builds the runtime from cfg.
//
// The state store falls back to memory when the SQLite database cannot
// be opened, so workflows still run but sessions do not survive a
// restart. When cfg.PhasesDir is set it is watched and changes are
// applied to the tool registry until cleanup is called.
//
// The returned cleanup function is always non-nil and safe to call
// even when NewRuntime fails.
func NewRuntime(cfg *config.Config) (*Runtime, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, noop, fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, noop, err
	}

	// --- Phase configs and tool registry ---

	set, err := phaseconfig.LoadDir(cfg.PhasesDir)
	if err != nil {
		return nil, noop, fmt.Errorf("loading phase configs: %w", err)
	}
	registry := toolreg.New(set)

	// --- State ---

	var store state.Manager
	sqliteStore, err := state.NewSQLiteStore(cfg.DataDir)
	if err != nil {
		log.Printf("WARNING: persistent state disabled, sessions are kept in memory: %v", err)
		store = state.NewMemoryStore()
	} else {
		store = sqliteStore
	}

	orch, err := orchestration.New(provider, registry, store,
		orchestration.WithMaxPhaseVisits(cfg.Orchestration.MaxPhaseVisits),
		orchestration.WithMaxSteps(cfg.Orchestration.MaxSteps),
		orchestration.WithLogger(slog.Default()),
	)
	if err != nil {
		_ = store.Close()
		return nil, noop, fmt.Errorf("creating orchestrator: %w", err)
	}

	// --- Hot reload ---

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.PhasesDir != "" {
		go func() {
			if err := phaseconfig.Watch(ctx, cfg.PhasesDir, registry.Reload); err != nil {
				log.Printf("WARNING: phase config hot-reload disabled: %v", err)
			}
		}()
	}

	cleanup := func() {
		cancel()
		if err := store.Close(); err != nil {
			log.Printf("WARNING: state store close: %v", err)
		}
	}
	return &Runtime{Provider: provider, Tools: registry, Store: store, Orchestrator: orch}, cleanup, nil
}

// NewProvider creates the LLM provider named by cfg.LLM.Provider.
func NewProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case config.ProviderHTTP:
		return llm.NewHTTPProvider(llm.HTTPConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	case config.ProviderMock:
		p, err := llm.NewMockProvider(cfg.LLM.MockResponses, false)
		if err != nil {
			return nil, fmt.Errorf("creating mock provider: %w", err)
		}
		return p, nil
	default:
		return llm.NewCLIProvider(NewRunner(cfg), cfg.LLM.Model), nil
	}
}

// NewRunner creates the command-line tool runner from cfg.CLI.
func NewRunner(cfg *config.Config) *cli.Runner {
	r := cli.NewRunner()
	if cfg.CLI.Binary != "" {
		r.Binary = cfg.CLI.Binary
	}
	if t := cfg.CLITimeout(); t > 0 {
		r.Timeout = t
	}
	r.WorkDir = cfg.CLI.WorkDir
	r.ExtraArgs = cfg.CLI.ExtraArgs
	return r
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function stops the phase config watcher and
// closes the state store. It must be called on shutdown (typically via
// defer) and is always non-nil.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	rt, cleanup, err := NewRuntime(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"zenyth",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register workflow tools ---

	runTool := tools.NewRunTool(rt.Orchestrator)
	s.AddTool(runTool.Definition(), runTool.Handle)

	executePhaseTool := tools.NewExecutePhaseTool(rt.Orchestrator)
	s.AddTool(executePhaseTool.Definition(), executePhaseTool.Handle)

	// --- Register session tools ---

	sessionTool := tools.NewSessionTool(rt.Store)
	s.AddTool(sessionTool.Definition(), sessionTool.Handle)

	listTool := tools.NewListSessionsTool(rt.Store)
	s.AddTool(listTool.Definition(), listTool.Handle)

	// --- Register configuration and LLM tools ---

	phaseToolsTool := tools.NewPhaseToolsTool(rt.Tools)
	s.AddTool(phaseToolsTool.Definition(), phaseToolsTool.Handle)

	llmSessionTool := tools.NewLLMSessionTool(rt.Provider)
	s.AddTool(llmSessionTool.Definition(), llmSessionTool.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(rt.Tools, rt.Orchestrator)
	s.AddResource(resourceHandler.PhasesResource(), resourceHandler.HandlePhases)
	s.AddResource(resourceHandler.MetricsResource(), resourceHandler.HandleMetrics)

	return s, cleanup, nil
}

// noop is the cleanup returned before anything needs releasing.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use zenyth.
func serverInstructions() string {
	return `You have access to zenyth, a SPARC workflow orchestration MCP server.

## What is SPARC?
SPARC plans a development task in five phases, each building on the
artifacts of the ones before it:
1. SPECIFICATION: requirements, acceptance criteria and complexity
2. PSEUDOCODE: algorithm outlines and data structures
3. ARCHITECTURE: components, interfaces and design patterns
4. REFINEMENT: a reviewed and improved plan (LLM)
5. COMPLETION: the final implementation summary (LLM)

A phase may suggest going back to an earlier one. Each phase runs at
most once per workflow unless the server is configured otherwise, and
a failing phase is retried with its own timeout before the run stops.

## WHEN TO USE zenyth
Suggest sparc_run when the user wants to plan a new feature, service or
system before writing code. You do NOT need it for bug fixes, small
patches or questions.

## Tools
- sparc_run: run the full workflow for a task. Returns a session ID.
- sparc_execute_phase: retry or re-run one phase on an existing session.
- sparc_session: show a session's status, phase results and artifacts.
- sparc_list_sessions: recent sessions, or a search over their tasks.
- sparc_phase_tools: the tools each phase may use, and their permissions.
- sparc_llm_session: a direct multi-turn conversation with the LLM
  (create, chat, history, fork, revert, metadata).

## Resources
- sparc://phases: the phase configuration in effect.
- sparc://metrics: runs, failures, retries and LLM calls so far.

## Guidelines
- Always report the session ID so the user can come back to a run.
- When a workflow fails, read the failing phase from the result, check
  its configuration with sparc_phase_tools, then retry it with
  sparc_execute_phase instead of starting over.
- Summarize artifacts for the user; do not paste raw JSON unless asked.`
}
