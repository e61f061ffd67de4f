// zenyth: SPARC workflow orchestration
//
// Plans development tasks through the SPARC phases (specification,
// pseudocode, architecture, refinement, completion), exposed as an MCP
// server, a one-shot CLI and an OpenAI-compatible HTTP wrapper around a
// command-line AI tool.
//
// Usage:
//
//	zenyth serve          # Start MCP server (stdio transport)
//	zenyth run <task>     # Run one workflow and print the result
//	zenyth wrap           # Serve the OpenAI-compatible HTTP API
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/HendryAvila/zenyth/internal/config"
	"github.com/HendryAvila/zenyth/internal/logger"
	"github.com/HendryAvila/zenyth/internal/openai"
	"github.com/HendryAvila/zenyth/internal/sparc"
	zserver "github.com/HendryAvila/zenyth/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "run":
		err = runWorkflow(os.Args[2:])
	case "wrap":
		err = runWrap(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("zenyth v%s\n", zserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared --config flag, loads the configuration
// and initializes logging.
func loadConfig(flagSet *pflag.FlagSet, args []string) (*config.Config, error) {
	configPath := flagSet.StringP("config", "c", "", "path to the YAML config file (default: $ZENYTH_CONFIG)")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{LogFile: cfg.LogFile})
	return cfg, nil
}

// ─── serve ──────────────────────────────────────────────────────────────────

func runServe(args []string) error {
	flagSet := pflag.NewFlagSet("zenyth serve", pflag.ContinueOnError)
	cfg, err := loadConfig(flagSet, args)
	if err != nil {
		return err
	}

	s, cleanup, err := zserver.New(cfg)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	slog.Info("zenyth MCP server starting", "version", zserver.Version, "data_dir", cfg.DataDir)
	// The stdio server handles SIGINT/SIGTERM itself.
	return server.ServeStdio(s)
}

// ─── run ────────────────────────────────────────────────────────────────────

func runWorkflow(args []string) error {
	flagSet := pflag.NewFlagSet("zenyth run", pflag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "print the workflow result as JSON")
	cfg, err := loadConfig(flagSet, args)
	if err != nil {
		return err
	}

	task := strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	if task == "" {
		return errors.New("usage: zenyth run [flags] <task description>")
	}

	rt, cleanup, err := zserver.NewRuntime(cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := rt.Orchestrator.Execute(ctx, task)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(result)
	}
	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}

func printResult(r sparc.WorkflowResult) {
	status := "✅ completed"
	if !r.Success {
		status = "❌ failed"
	}
	fmt.Printf("SPARC workflow %s\n", status)
	fmt.Printf("  session: %s\n", r.SessionID)
	for i, p := range r.PhasesCompleted {
		fmt.Printf("  %d. %s\n", i+1, p.Phase)
	}
	if doc, ok := r.Artifacts.Map(string(sparc.PhaseCompletion)); ok {
		if text, ok := doc["completion_document"].(string); ok && text != "" {
			fmt.Printf("\n%s\n", text)
		}
	}
}

// ─── wrap ───────────────────────────────────────────────────────────────────

func runWrap(args []string) error {
	flagSet := pflag.NewFlagSet("zenyth wrap", pflag.ContinueOnError)
	port := flagSet.IntP("port", "p", 0, "listen port (default: $PORT or 3001)")
	cfg, err := loadConfig(flagSet, args)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Wrapper.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	api, err := openai.NewServer(zserver.NewRunner(cfg), openai.Config{
		ServiceName:     cfg.Wrapper.ServiceName,
		APIKey:          cfg.Wrapper.APIKey,
		Models:          cfg.Wrapper.Models,
		CLIModel:        cfg.LLM.Model,
		MaxConcurrent:   cfg.Wrapper.MaxConcurrent,
		ContinueSession: cfg.Wrapper.ContinueSession,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Wrapper.Port)),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("OpenAI-compatible wrapper listening", "addr", srv.Addr, "models", cfg.Wrapper.Models, "auth", cfg.Wrapper.APIKey != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `zenyth v%s: SPARC workflow orchestration

Usage:
  zenyth serve [--config FILE]          Start the MCP server (stdio transport)
  zenyth run [--config FILE] [--json] TASK
                                        Run one SPARC workflow and print the result
  zenyth wrap [--config FILE] [--port N]
                                        Serve the OpenAI-compatible chat completions API
  zenyth version                        Print the version

Environment:
  ZENYTH_CONFIG        config file path
  ZENYTH_DATA_DIR      state directory (default: ~/.zenyth)
  ZENYTH_LLM_PROVIDER  cli, http or mock
  ZENYTH_API_KEY       bearer token required by the wrapper
  PORT                 wrapper port (default: 3001)
  LOG_LEVEL, LOG_FORMAT, LOG_FILE

MCP configuration:

  {
    "mcpServers": {
      "zenyth": {
        "command": "zenyth",
        "args": ["serve"]
      }
    }
  }
`, zserver.Version)
}
