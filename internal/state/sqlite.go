package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DBFile is the database file name inside the data directory.
const DBFile = "zenyth.db"

// SQLiteStore is a Manager backed by SQLite + FTS5.
type SQLiteStore struct {
	db *sql.DB
}

var _ Manager = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database inside dataDir and
// runs migrations.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("state: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("state: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT    NOT NULL UNIQUE,
			task       TEXT    NOT NULL,
			artifacts  TEXT    NOT NULL DEFAULT '{}',
			metadata   TEXT    NOT NULL DEFAULT '{}',
			created_at TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

		CREATE TABLE IF NOT EXISTS phase_results (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT    NOT NULL,
			phase      TEXT    NOT NULL,
			next_phase TEXT,
			artifacts  TEXT    NOT NULL DEFAULT '{}',
			metadata   TEXT    NOT NULL DEFAULT '{}',
			created_at TEXT    NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_results_session ON phase_results(session_id, id);

		CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
			task,
			content='sessions',
			content_rowid='seq'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='sessions_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER sessions_fts_insert AFTER INSERT ON sessions BEGIN
				INSERT INTO sessions_fts(rowid, task) VALUES (new.seq, new.task);
			END;

			CREATE TRIGGER sessions_fts_delete AFTER DELETE ON sessions BEGIN
				INSERT INTO sessions_fts(sessions_fts, rowid, task) VALUES ('delete', old.seq, old.task);
			END;

			CREATE TRIGGER sessions_fts_update AFTER UPDATE ON sessions BEGIN
				INSERT INTO sessions_fts(sessions_fts, rowid, task) VALUES ('delete', old.seq, old.task);
				INSERT INTO sessions_fts(rowid, task) VALUES (new.seq, new.task);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// SaveSession inserts the session or replaces its task, artifacts and
// metadata. created_at is kept from the first save.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess sparc.SessionContext) error {
	if err := validateID(sess.SessionID); err != nil {
		return err
	}
	arts, err := encodeJSON(sess.Artifacts)
	if err != nil {
		return sparc.NewError(sparc.KindValidation, "artifacts are not JSON-encodable", err.Error(), err)
	}
	meta, err := encodeJSON(sess.Metadata)
	if err != nil {
		return sparc.NewError(sparc.KindValidation, "metadata is not JSON-encodable", err.Error(), err)
	}

	created, updated := sess.CreatedAt, sess.UpdatedAt
	if created.IsZero() {
		created = timeNow()
	}
	if updated.IsZero() {
		updated = created
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, task, artifacts, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task       = excluded.task,
			artifacts  = excluded.artifacts,
			metadata   = excluded.metadata,
			updated_at = excluded.updated_at`,
		sess.SessionID, sess.Task, arts, meta, formatTime(created), formatTime(updated),
	)
	if err != nil {
		return storageErr("save session", err)
	}
	return nil
}

// LoadSession reads one session.
func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (sparc.SessionContext, error) {
	if err := validateID(id); err != nil {
		return sparc.SessionContext{}, err
	}

	var (
		out                 sparc.SessionContext
		arts, meta          string
		createdAt, updateAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, task, artifacts, metadata, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&out.SessionID, &out.Task, &arts, &meta, &createdAt, &updateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sparc.SessionContext{}, notFound(id)
	}
	if err != nil {
		return sparc.SessionContext{}, storageErr("load session", err)
	}

	if out.Artifacts, err = decodeArtifacts(arts); err != nil {
		return sparc.SessionContext{}, corrupt(id, "artifacts", err)
	}
	if out.Metadata, err = decodeArtifacts(meta); err != nil {
		return sparc.SessionContext{}, corrupt(id, "metadata", err)
	}
	if out.CreatedAt, err = parseTime(createdAt); err != nil {
		return sparc.SessionContext{}, corrupt(id, "created_at", err)
	}
	if out.UpdatedAt, err = parseTime(updateAt); err != nil {
		return sparc.SessionContext{}, corrupt(id, "updated_at", err)
	}
	return out, nil
}

// DeleteSession removes a session and, by cascade, its phase results.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return storageErr("delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// ListSessions returns the most recently updated sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.task, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM phase_results r WHERE r.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.seq DESC
		LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return scanSummaries(rows)
}

// SearchSessions runs an FTS5 query over session tasks. Each word is
// quoted, so the query is matched literally.
func (s *SQLiteStore) SearchSessions(ctx context.Context, query string, limit int) ([]Summary, error) {
	q := sanitizeFTS(query)
	if q == "" {
		return nil, sparc.NewError(sparc.KindValidation, "search query is required", "", nil)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.task, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM phase_results r WHERE r.session_id = s.id)
		FROM sessions_fts f
		JOIN sessions s ON s.seq = f.rowid
		WHERE sessions_fts MATCH ?
		ORDER BY f.rank, s.updated_at DESC
		LIMIT ?`, q, limitOrDefault(limit))
	if err != nil {
		return nil, storageErr("search sessions", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			sum                Summary
			createdAt, updated string
		)
		if err := rows.Scan(&sum.SessionID, &sum.Task, &createdAt, &updated, &sum.PhaseCount); err != nil {
			return nil, storageErr("scan session", err)
		}
		sum.CreatedAt, _ = parseTime(createdAt)
		sum.UpdatedAt, _ = parseTime(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate sessions", err)
	}
	return out, nil
}

// ─── Phase results ───────────────────────────────────────────────────────────

// AppendPhaseResult records a phase result for an existing session.
func (s *SQLiteStore) AppendPhaseResult(ctx context.Context, sessionID string, r sparc.PhaseResult) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	arts, err := encodeJSON(r.Artifacts)
	if err != nil {
		return sparc.NewError(sparc.KindValidation, "artifacts are not JSON-encodable", err.Error(), err)
	}
	meta, err := encodeJSON(r.Metadata)
	if err != nil {
		return sparc.NewError(sparc.KindValidation, "metadata is not JSON-encodable", err.Error(), err)
	}

	var next sql.NullString
	if r.NextPhase != "" {
		next = sql.NullString{String: string(r.NextPhase), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO phase_results (session_id, phase, next_phase, artifacts, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, string(r.Phase), next, arts, meta, formatTime(timeNow()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return notFound(sessionID)
		}
		return storageErr("append phase result", err)
	}
	return nil
}

// PhaseResults returns a session's results in insertion order.
func (s *SQLiteStore) PhaseResults(ctx context.Context, sessionID string) ([]sparc.PhaseResult, error) {
	if _, err := s.LoadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, next_phase, artifacts, metadata
		FROM phase_results WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, storageErr("list phase results", err)
	}
	defer rows.Close()

	var out []sparc.PhaseResult
	for rows.Next() {
		var (
			phase      string
			next       sql.NullString
			arts, meta string
		)
		if err := rows.Scan(&phase, &next, &arts, &meta); err != nil {
			return nil, storageErr("scan phase result", err)
		}
		r := sparc.PhaseResult{Phase: sparc.Phase(phase), NextPhase: sparc.Phase(next.String)}
		if r.Artifacts, err = decodeArtifacts(arts); err != nil {
			return nil, corrupt(sessionID, phase+" artifacts", err)
		}
		if r.Metadata, err = decodeArtifacts(meta); err != nil {
			return nil, corrupt(sessionID, phase+" metadata", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate phase results", err)
	}
	return out, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func encodeJSON(a sparc.Artifacts) (string, error) {
	if a == nil {
		return "{}", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeArtifacts(s string) (sparc.Artifacts, error) {
	out := sparc.Artifacts{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func corrupt(id, field string, err error) error {
	return sparc.NewError(sparc.KindCorruption, "session data is corrupted", fmt.Sprintf("%s: %s: %v", id, field, err), err)
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// sanitizeFTS wraps each word in quotes so FTS5 operators in user
// input are matched as text.
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		if w = strings.ReplaceAll(w, `"`, ""); w != "" {
			words = append(words, `"`+w+`"`)
		}
	}
	return strings.Join(words, " ")
}
