// Package openai exposes a command-line AI tool through an
// OpenAI-compatible chat completions API.
//
// Every request runs the tool once. There is no retry: a non-zero exit,
// a spawn failure or a timeout is reported as a 500 server_error.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/zenyth/internal/cli"
	"github.com/HendryAvila/zenyth/internal/llm"
	"github.com/HendryAvila/zenyth/internal/logger"
	"github.com/HendryAvila/zenyth/internal/middleware"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Completer runs the tool; *cli.Runner satisfies it.
type Completer interface {
	Run(ctx context.Context, prompt string, opts cli.Options) (*cli.Result, error)
	Stream(ctx context.Context, prompt string, opts cli.Options) (<-chan cli.Event, error)
}

// Config configures a Server.
type Config struct {
	ServiceName string
	// APIKey, when set, must be presented as a Bearer token.
	APIKey string
	// Models is the static /v1/models list; the first entry is the
	// model reported when a request names none.
	Models []string
	// CLIModel is passed to the tool with --model when set.
	CLIModel string
	// MaxConcurrent bounds simultaneous tool processes. Default 1.
	MaxConcurrent int
	// ContinueSession resumes the tool's conversation after the first
	// successful call.
	ContinueSession bool
}

// Server is the HTTP wrapper.
type Server struct {
	cfg     Config
	tool    Completer
	sem     chan struct{}
	started int64

	mu            sync.Mutex
	sessionActive bool
}

// NewServer creates a Server over tool.
func NewServer(tool Completer, cfg Config) (*Server, error) {
	if tool == nil {
		return nil, errors.New("openai: a completer is required")
	}
	if len(cfg.Models) == 0 {
		return nil, errors.New("openai: at least one model is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "zenyth-openai-wrapper"
	}
	return &Server{
		cfg:     cfg,
		tool:    tool,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		started: timeNow().Unix(),
	}, nil
}

// Handler returns the routed handler with auth and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)

	authErr := func(w http.ResponseWriter, status int, msg string) {
		writeError(w, status, ErrTypeAuthentication, msg)
	}
	return middleware.Logging(middleware.Auth(s.cfg.APIKey, authErr)(mux))
}

// SessionActive reports whether later calls will continue the session.
func (s *Server) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionActive
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: timeNow().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	list := ModelList{Object: "list", Data: make([]Model, 0, len(s.cfg.Models))}
	for _, id := range s.cfg.Models {
		list.Data = append(list.Data, Model{ID: id, Object: "model", Created: s.started, OwnedBy: "zenyth"})
	}
	writeJSON(w, http.StatusOK, list)
}

// ─── Chat completions ───────────────────────────────────────────────────────

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "Invalid JSON in request body: "+err.Error())
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, err.Error())
		return
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-r.Context().Done():
		writeError(w, http.StatusInternalServerError, ErrTypeServer, "request cancelled while waiting for the CLI")
		return
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Models[0]
	}
	continuing := s.cfg.ContinueSession && s.SessionActive()
	prompt, opts := s.buildInvocation(req.Messages, continuing)

	log := logger.NewRequestLogger().With("model", model, "stream", req.Stream, "continue", continuing)
	if req.Stream {
		s.streamCompletion(r.Context(), w, log, model, prompt, opts)
		return
	}

	res, err := s.tool.Run(r.Context(), prompt, opts)
	// *cli.Runner reports flagged results as errors already; other
	// Completers may return them as results.
	if err == nil && res.IsError {
		err = &cli.ExitError{Code: 1, Stderr: res.Text}
	}
	if err != nil {
		log.Error("cli run failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrTypeServer, serverErrorMessage(err))
		return
	}
	s.markSession()

	writeJSON(w, http.StatusOK, ChatCompletion{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: timeNow().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: "assistant", Content: res.Text},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     res.Usage.InputTokens,
			CompletionTokens: res.Usage.OutputTokens,
			TotalTokens:      res.Usage.InputTokens + res.Usage.OutputTokens,
		},
	})
}

func validateRequest(req ChatRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages is required and must be a non-empty array")
	}
	hasContent := false
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return fmt.Errorf("messages[%d].role %q is invalid", i, m.Role)
		}
		if strings.TrimSpace(string(m.Content)) != "" {
			hasContent = true
		}
	}
	if !hasContent {
		return errors.New("messages must contain at least one non-empty message")
	}
	return nil
}

// buildInvocation turns the conversation into a prompt. System and
// developer messages become the appended system prompt. A continued
// session already holds the history, so only the last user turn is
// sent.
func (s *Server) buildInvocation(messages []ChatMessage, continuing bool) (string, cli.Options) {
	var system []string
	var turns []llm.Message
	for _, m := range messages {
		content := string(m.Content)
		switch m.Role {
		case "system", "developer":
			if strings.TrimSpace(content) != "" {
				system = append(system, content)
			}
		default:
			turns = append(turns, llm.Message{Role: m.Role, Content: content})
		}
	}

	opts := cli.Options{
		Model:        s.cfg.CLIModel,
		SystemPrompt: strings.Join(system, "\n\n"),
		Continue:     continuing,
	}
	if continuing {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role == "user" {
				return turns[i].Content, opts
			}
		}
	}
	if len(turns) == 0 {
		// Only system text was sent; use it as the prompt.
		return opts.SystemPrompt, cli.Options{Model: opts.Model, Continue: continuing}
	}
	return llm.FormatTranscript(turns), opts
}

func (s *Server) markSession() {
	if !s.cfg.ContinueSession {
		return
	}
	s.mu.Lock()
	s.sessionActive = true
	s.mu.Unlock()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func newCompletionID() string { return "chatcmpl-" + uuid.NewString() }

func serverErrorMessage(err error) string {
	switch {
	case errors.Is(err, cli.ErrTimeout):
		return "CLI process timed out"
	case errors.Is(err, cli.ErrStart):
		return "failed to start CLI process: " + err.Error()
	default:
		return "CLI process failed: " + err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{Message: message, Type: errType}})
}
