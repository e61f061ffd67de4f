// Package state persists SPARC sessions and their phase results.
//
// Two Manager implementations are provided: SQLiteStore, a WAL-mode
// SQLite database with an FTS5 index over session tasks, and
// MemoryStore, a process-local map used by tests and one-shot runs.
package state

import (
	"context"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// DefaultListLimit caps ListSessions and SearchSessions when the
// caller passes a non-positive limit.
const DefaultListLimit = 20

// Manager stores workflow sessions.
//
// LoadSession returns an error of kind session_not_found for unknown
// ids, corruption for undecodable rows and storage for backend failures.
type Manager interface {
	SaveSession(ctx context.Context, s sparc.SessionContext) error
	LoadSession(ctx context.Context, id string) (sparc.SessionContext, error)
	AppendPhaseResult(ctx context.Context, sessionID string, r sparc.PhaseResult) error
	PhaseResults(ctx context.Context, sessionID string) ([]sparc.PhaseResult, error)
	ListSessions(ctx context.Context, limit int) ([]Summary, error)
	SearchSessions(ctx context.Context, query string, limit int) ([]Summary, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}

// Summary is a compact view of a stored session.
type Summary struct {
	SessionID  string    `json:"session_id"`
	Task       string    `json:"task"`
	PhaseCount int       `json:"phase_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func notFound(id string) error {
	return sparc.NewError(sparc.KindSessionNotFound, "session not found", id, nil)
}

func storageErr(op string, err error) error {
	return sparc.NewError(sparc.KindStorage, "state: "+op, err.Error(), err)
}

func validateID(id string) error {
	if id == "" {
		return sparc.NewError(sparc.KindValidation, "session id is required", "", nil)
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
