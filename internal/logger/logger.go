// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
)

type Config struct {
	// LogFile, when set, receives the log instead of stderr. The LOG_FILE
	// environment variable takes precedence.
	LogFile string
}

// Init initializes the global slog logger.
// Logs go to stderr by default; stdout belongs to the MCP stdio transport.
// LOG_LEVEL selects the level and LOG_FORMAT=json the JSON handler.
func Init(cfg Config) {
	slog.SetDefault(New(cfg, os.Stderr))
}

// New builds a logger writing to w unless a log file is configured.
func New(cfg Config, w io.Writer) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = cfg.LogFile
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			slog.Error("failed to create log directory, using stderr only", "file", logFile, "error", err)
		} else {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				slog.Error("failed to open log file, using stderr only", "file", logFile, "error", err)
			} else {
				w = f
			}
		}
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewRequestLogger creates a logger with a unique requestId for API handlers.
func NewRequestLogger() *slog.Logger {
	return slog.With("requestId", uuid.Must(uuid.NewV7()).String())
}

// LogPanic records a recovered panic value with its stack.
// Call it from a deferred recover.
func LogPanic(log *slog.Logger, recovered any, msg string) {
	if log == nil {
		log = slog.Default()
	}
	log.Error(msg, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
}
