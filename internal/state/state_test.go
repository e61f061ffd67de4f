package state

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	timeNow = func() time.Time { return baseTime }
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stores runs fn against every Manager implementation.
func stores(t *testing.T, fn func(t *testing.T, m Manager)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func session(id, task string, updated time.Time) sparc.SessionContext {
	return sparc.SessionContext{
		SessionID: id,
		Task:      task,
		Artifacts: sparc.Artifacts{"specification": map[string]any{"requirements": []any{"a", "b"}}},
		Metadata:  sparc.Artifacts{"source": "test"},
		CreatedAt: baseTime,
		UpdatedAt: updated,
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestSaveAndLoadSession(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		in := session("sparc-1", "Build a REST API", baseTime.Add(time.Minute))
		if err := m.SaveSession(ctx, in); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}

		got, err := m.LoadSession(ctx, "sparc-1")
		if err != nil {
			t.Fatalf("LoadSession: %v", err)
		}
		if got.Task != in.Task || got.Metadata["source"] != "test" {
			t.Errorf("loaded = %+v", got)
		}
		spec, ok := got.Artifacts.Map("specification")
		if !ok || len(spec["requirements"].([]any)) != 2 {
			t.Errorf("artifacts = %v", got.Artifacts)
		}
		if !got.CreatedAt.Equal(baseTime) || !got.UpdatedAt.Equal(in.UpdatedAt) {
			t.Errorf("times = %v / %v", got.CreatedAt, got.UpdatedAt)
		}
	})
}

func TestSaveSession_UpsertKeepsCreatedAt(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		_ = m.SaveSession(ctx, session("s", "first", baseTime))

		updated := session("s", "second", baseTime.Add(time.Hour))
		updated.CreatedAt = baseTime.Add(time.Hour)
		updated = updated.WithArtifact("pseudocode", map[string]any{"pseudocode_document": "x"})
		if err := m.SaveSession(ctx, updated); err != nil {
			t.Fatal(err)
		}

		got, _ := m.LoadSession(ctx, "s")
		if got.Task != "second" {
			t.Errorf("Task = %q", got.Task)
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want the first save's", got.CreatedAt)
		}
		if _, ok := got.Artifacts["pseudocode"]; !ok {
			t.Error("upsert should replace artifacts")
		}
	})
}

func TestLoadSession_Errors(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		if _, err := m.LoadSession(ctx, "missing"); !errors.Is(err, sparc.ErrSessionNotFound) {
			t.Errorf("missing: err = %v, want session not found", err)
		}
		if _, err := m.LoadSession(ctx, ""); !errors.Is(err, sparc.ErrValidation) {
			t.Errorf("empty id: err = %v, want validation", err)
		}
		if err := m.SaveSession(ctx, sparc.SessionContext{}); !errors.Is(err, sparc.ErrValidation) {
			t.Errorf("save without id: err = %v, want validation", err)
		}
	})
}

func TestSaveSession_UnencodableArtifacts(t *testing.T) {
	s := newSQLiteStore(t)
	bad := session("s", "task", baseTime)
	bad.Artifacts["ch"] = make(chan int)
	if err := s.SaveSession(context.Background(), bad); !errors.Is(err, sparc.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestLoadSession_Corruption(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_ = s.SaveSession(ctx, session("s", "task", baseTime))

	if _, err := s.db.Exec("UPDATE sessions SET artifacts = '{not json' WHERE id = 's'"); err != nil {
		t.Fatal(err)
	}
	_, err := s.LoadSession(ctx, "s")
	if !errors.Is(err, sparc.ErrCorruption) {
		t.Errorf("err = %v, want corruption", err)
	}
}

func TestLoadSession_StorageFailure(t *testing.T) {
	s := newSQLiteStore(t)
	s.Close()
	_, err := s.LoadSession(context.Background(), "s")
	if !errors.Is(err, sparc.ErrStorage) {
		t.Errorf("err = %v, want storage", err)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		_ = m.SaveSession(ctx, session("old", "old task", baseTime))
		_ = m.SaveSession(ctx, session("new", "new task", baseTime.Add(2*time.Hour)))
		_ = m.SaveSession(ctx, session("mid", "mid task", baseTime.Add(time.Hour)))
		_ = m.AppendPhaseResult(ctx, "mid", sparc.NewPhaseResult(sparc.PhaseSpecification, nil, "", nil))

		got, err := m.ListSessions(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[0].SessionID != "new" || got[1].SessionID != "mid" || got[2].SessionID != "old" {
			t.Fatalf("order = %+v", got)
		}
		if got[1].PhaseCount != 1 {
			t.Errorf("mid PhaseCount = %d", got[1].PhaseCount)
		}

		limited, _ := m.ListSessions(ctx, 2)
		if len(limited) != 2 {
			t.Errorf("limit ignored: %d", len(limited))
		}
	})
}

func TestSearchSessions(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		_ = m.SaveSession(ctx, session("a", "Build user authentication service", baseTime))
		_ = m.SaveSession(ctx, session("b", "Design a reporting dashboard", baseTime))

		got, err := m.SearchSessions(ctx, "authentication", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].SessionID != "a" {
			t.Errorf("results = %+v", got)
		}

		if _, err := m.SearchSessions(ctx, `"OR" AND`, 10); err != nil {
			t.Errorf("operators should be quoted, got %v", err)
		}
		if _, err := m.SearchSessions(ctx, "   ", 10); !errors.Is(err, sparc.ErrValidation) {
			t.Errorf("blank query err = %v, want validation", err)
		}
	})
}

func TestSearchSessions_ReflectsUpdates(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_ = s.SaveSession(ctx, session("a", "alpha task", baseTime))
	_ = s.SaveSession(ctx, session("a", "beta task", baseTime))

	if got, _ := s.SearchSessions(ctx, "alpha", 10); len(got) != 0 {
		t.Errorf("stale index entry: %+v", got)
	}
	if got, _ := s.SearchSessions(ctx, "beta", 10); len(got) != 1 {
		t.Errorf("updated task not indexed: %+v", got)
	}
}

// ─── Phase results ──────────────────────────────────────────────────────────

func TestPhaseResults_RoundTrip(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		_ = m.SaveSession(ctx, session("s", "task", baseTime))

		spec := sparc.NewPhaseResult(sparc.PhaseSpecification,
			sparc.Artifacts{"requirements": []string{"r1"}}, sparc.PhaseArchitecture,
			sparc.Artifacts{"complexity": "simple"})
		done := sparc.NewPhaseResult(sparc.PhaseCompletion, sparc.Artifacts{"completion_document": "ok"}, "", nil)
		for _, r := range []sparc.PhaseResult{spec, done} {
			if err := m.AppendPhaseResult(ctx, "s", r); err != nil {
				t.Fatalf("AppendPhaseResult: %v", err)
			}
		}

		got, err := m.PhaseResults(ctx, "s")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d results", len(got))
		}
		if got[0].Phase != sparc.PhaseSpecification || got[0].NextPhase != sparc.PhaseArchitecture {
			t.Errorf("first = %s", got[0])
		}
		if got[0].Metadata["complexity"] != "simple" {
			t.Errorf("metadata = %v", got[0].Metadata)
		}
		if got[1].NextPhase != "" || got[1].Artifacts["completion_document"] != "ok" {
			t.Errorf("second = %s", got[1])
		}
	})
}

func TestAppendPhaseResult_UnknownSession(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		err := m.AppendPhaseResult(context.Background(), "ghost", sparc.NewPhaseResult(sparc.PhaseSpecification, nil, "", nil))
		if !errors.Is(err, sparc.ErrSessionNotFound) {
			t.Errorf("err = %v, want session not found", err)
		}
		if _, err := m.PhaseResults(context.Background(), "ghost"); !errors.Is(err, sparc.ErrSessionNotFound) {
			t.Errorf("PhaseResults err = %v, want session not found", err)
		}
	})
}

func TestDeleteSession_CascadesResults(t *testing.T) {
	stores(t, func(t *testing.T, m Manager) {
		ctx := context.Background()
		_ = m.SaveSession(ctx, session("s", "task", baseTime))
		_ = m.AppendPhaseResult(ctx, "s", sparc.NewPhaseResult(sparc.PhaseSpecification, nil, "", nil))

		if err := m.DeleteSession(ctx, "s"); err != nil {
			t.Fatal(err)
		}
		if _, err := m.LoadSession(ctx, "s"); !errors.Is(err, sparc.ErrSessionNotFound) {
			t.Errorf("after delete: %v", err)
		}
		if err := m.DeleteSession(ctx, "s"); !errors.Is(err, sparc.ErrSessionNotFound) {
			t.Errorf("second delete: %v", err)
		}
	})

	s := newSQLiteStore(t)
	ctx := context.Background()
	_ = s.SaveSession(ctx, session("s", "task", baseTime))
	_ = s.AppendPhaseResult(ctx, "s", sparc.NewPhaseResult(sparc.PhaseSpecification, nil, "", nil))
	_ = s.DeleteSession(ctx, "s")
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM phase_results").Scan(&n); err != nil || n != 0 {
		t.Errorf("orphaned phase results: n=%d err=%v", n, err)
	}
}

// ─── Initialization ─────────────────────────────────────────────────────────

func TestNewSQLiteStore_CreatesDBFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestNewSQLiteStore_MigrationIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	first, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = first.SaveSession(context.Background(), session("keep", "persisted task", baseTime))
	first.Close()

	second, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if got, err := second.SearchSessions(context.Background(), "persisted", 5); err != nil || len(got) != 1 {
		t.Errorf("search after reopen = %+v, %v", got, err)
	}
}

func TestNewSQLiteStore_OpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("disk on fire") }

	if _, err := NewSQLiteStore(t.TempDir()); err == nil {
		t.Error("expected open error")
	}
}

func TestSanitizeFTS(t *testing.T) {
	tests := map[string]string{
		"hello world":  `"hello" "world"`,
		`"quoted" AND`: `"quoted" "AND"`,
		`  "" solo  `:  `"solo"`,
		"":             "",
	}
	for in, want := range tests {
		if got := sanitizeFTS(in); got != want {
			t.Errorf("sanitizeFTS(%q) = %q, want %q", in, got, want)
		}
	}
}
