package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/HendryAvila/zenyth/internal/sparc"
	"github.com/google/uuid"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// SessionBook keeps conversation transcripts in memory. Providers
// embed it to offer sessions on top of stateless backends.
type SessionBook struct {
	mu       sync.Mutex
	sessions map[string]*bookEntry
	newID    func() string
}

type bookEntry struct {
	meta     SessionMetadata
	messages []Message
}

// NewSessionBook creates a book whose ids are "<prefix>-<uuid>".
func NewSessionBook(prefix string) *SessionBook {
	return &SessionBook{
		sessions: make(map[string]*bookEntry),
		newID:    func() string { return prefix + "-" + uuid.NewString() },
	}
}

func sessionNotFound(id string) error {
	return sparc.NewError(sparc.KindSessionNotFound, "llm session not found", id, nil)
}

// Create starts an empty session.
func (b *SessionBook) Create() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.newID()
	for b.sessions[id] != nil {
		id = b.newID()
	}
	now := timeNow().UTC()
	b.sessions[id] = &bookEntry{meta: SessionMetadata{SessionID: id, CreatedAt: now, UpdatedAt: now}}
	return id
}

// Append adds messages to a session.
func (b *SessionBook) Append(id string, msgs ...Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	e.messages = append(e.messages, msgs...)
	e.meta.UpdatedAt = timeNow().UTC()
	return nil
}

// Messages returns a copy of the transcript.
func (b *SessionBook) Messages(id string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

// History returns the transcript as a History.
func (b *SessionBook) History(id string) (History, error) {
	msgs, err := b.Messages(id)
	if err != nil {
		return History{}, err
	}
	return History{SessionID: id, Messages: msgs}, nil
}

// Fork copies a session under "<id>-fork-<name>", where an empty name
// becomes "default". A taken id gets a numeric suffix.
func (b *SessionBook) Fork(id, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src, ok := b.sessions[id]
	if !ok {
		return "", sessionNotFound(id)
	}
	if name == "" {
		name = "default"
	}
	forkID := ForkID(id, name)
	for n := 2; b.sessions[forkID] != nil; n++ {
		forkID = fmt.Sprintf("%s-%d", ForkID(id, name), n)
	}

	msgs := make([]Message, len(src.messages))
	copy(msgs, src.messages)
	now := timeNow().UTC()
	b.sessions[forkID] = &bookEntry{
		meta:     SessionMetadata{SessionID: forkID, ParentID: id, Name: name, CreatedAt: now, UpdatedAt: now},
		messages: msgs,
	}
	return forkID, nil
}

// ForkID is the id a fork of id named name receives.
func ForkID(id, name string) string {
	if name == "" {
		name = "default"
	}
	return id + "-fork-" + name
}

// Revert drops the last steps exchanges. An exchange is one user turn
// and every message after it, so a trailing unanswered prompt counts.
func (b *SessionBook) Revert(id string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("revert steps must be at least 1, got %d", steps)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	// Messages before the first user turn are never removed.
	cut := len(e.messages)
	for ; steps > 0; steps-- {
		i := cut - 1
		for i >= 0 && e.messages[i].Role != "user" {
			i--
		}
		if i < 0 {
			break
		}
		cut = i
	}
	e.messages = e.messages[:cut]
	e.meta.UpdatedAt = timeNow().UTC()
	return nil
}

// Metadata describes a session.
func (b *SessionBook) Metadata(id string) (SessionMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.sessions[id]
	if !ok {
		return SessionMetadata{}, sessionNotFound(id)
	}
	meta := e.meta
	meta.MessageCount = len(e.messages)
	return meta, nil
}
