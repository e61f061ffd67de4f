package state

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// MemoryStore is a Manager that keeps everything in process memory.
// Stored values are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sparc.SessionContext
	results  map[string][]sparc.PhaseResult
	order    map[string]int
	seq      int
}

var _ Manager = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]sparc.SessionContext),
		results:  make(map[string][]sparc.PhaseResult),
		order:    make(map[string]int),
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, s sparc.SessionContext) error {
	if err := validateID(s.SessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s = s.Clone()
	if prev, ok := m.sessions[s.SessionID]; ok {
		s.CreatedAt = prev.CreatedAt
	} else {
		m.seq++
		m.order[s.SessionID] = m.seq
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = timeNow().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (sparc.SessionContext, error) {
	if err := validateID(id); err != nil {
		return sparc.SessionContext{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return sparc.SessionContext{}, notFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) AppendPhaseResult(_ context.Context, sessionID string, r sparc.PhaseResult) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return notFound(sessionID)
	}
	m.results[sessionID] = append(m.results[sessionID], sparc.NewPhaseResult(r.Phase, r.Artifacts, r.NextPhase, r.Metadata))
	return nil
}

func (m *MemoryStore) PhaseResults(_ context.Context, sessionID string) ([]sparc.PhaseResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, notFound(sessionID)
	}
	stored := m.results[sessionID]
	out := make([]sparc.PhaseResult, len(stored))
	for i, r := range stored {
		out[i] = sparc.NewPhaseResult(r.Phase, r.Artifacts, r.NextPhase, r.Metadata)
	}
	return out, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaries(func(sparc.SessionContext) bool { return true }, limit), nil
}

// SearchSessions matches sessions whose task contains every query
// word, ignoring case.
func (m *MemoryStore) SearchSessions(_ context.Context, query string, limit int) ([]Summary, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, sparc.NewError(sparc.KindValidation, "search query is required", "", nil)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaries(func(s sparc.SessionContext) bool {
		task := strings.ToLower(s.Task)
		for _, w := range words {
			if !strings.Contains(task, w) {
				return false
			}
		}
		return true
	}, limit), nil
}

// summaries must be called with the lock held.
func (m *MemoryStore) summaries(keep func(sparc.SessionContext) bool, limit int) []Summary {
	var out []Summary
	for id, s := range m.sessions {
		if !keep(s) {
			continue
		}
		out = append(out, Summary{
			SessionID:  id,
			Task:       s.Task,
			PhaseCount: len(m.results[id]),
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return m.order[out[i].SessionID] > m.order[out[j].SessionID]
	})
	if limit = limitOrDefault(limit); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound(id)
	}
	delete(m.sessions, id)
	delete(m.results, id)
	delete(m.order, id)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
