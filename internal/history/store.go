package history

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Store holds per-session message lists and system-prompt overrides. When
// constructed with a storage path it snapshots the full session map to disk
// as JSON after every mutation; a missing or malformed snapshot loads as an
// empty store. Prompt overrides live in memory only.
//
// All operations are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	sessions map[string][]Message
	prompts  map[string]string
	current  string
}

// NewStore creates a Store. path may be empty for a purely in-memory store;
// otherwise the snapshot at path is loaded if present and readable.
func NewStore(path string) *Store {
	s := &Store{
		path:     path,
		sessions: make(map[string][]Message),
		prompts:  make(map[string]string),
		current:  uuid.NewString(),
	}
	s.load()
	return s
}

// load replaces the session map with the snapshot on disk. A missing file or
// invalid JSON leaves the store empty rather than failing startup.
func (s *Store) load() {
	if s.path == "" {
		return
	}
	// Missing or unreadable snapshots start the store empty, same as a
	// corrupt one.
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var sessions map[string][]Message
	if err := sonic.Unmarshal(data, &sessions); err != nil {
		return
	}
	if sessions != nil {
		s.sessions = sessions
	}
}

// persist writes the full session map to the snapshot file. Callers must hold
// s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	data, err := sonic.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("history: write snapshot: %w", err)
	}
	return nil
}

// CurrentSession returns the ID new messages default to.
func (s *Store) CurrentSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// NewSession starts a fresh conversation and makes it current. The previous
// session's history remains stored.
func (s *Store) NewSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = uuid.NewString()
	return s.current
}

// resolve maps an empty session ID to the current session. Callers must hold
// s.mu.
func (s *Store) resolve(sessionID string) string {
	if sessionID == "" {
		return s.current
	}
	return sessionID
}

// AddMessage appends msg to the session's history and persists the snapshot.
// An empty sessionID targets the current session. A zero timestamp is filled
// with the current time.
func (s *Store) AddMessage(sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.resolve(sessionID)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.sessions[id] = append(s.sessions[id], msg)
	return s.persist()
}

// History returns up to max trailing messages of the session in insertion
// order. max <= 0 returns the full history. An empty sessionID targets the
// current session. The returned slice is a copy.
func (s *Store) History(sessionID string, max int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[s.resolve(sessionID)]
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// SessionIDs returns the IDs of all stored sessions, in no particular order.
func (s *Store) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount returns the number of sessions with stored history.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Clear removes one session's history and persists. An empty sessionID
// targets the current session.
func (s *Store) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, s.resolve(sessionID))
	return s.persist()
}

// ClearAll removes every session's history and persists.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string][]Message)
	return s.persist()
}

// CheckWritable verifies the snapshot file can still be written, for
// readiness probing. In-memory stores are always ready.
func (s *Store) CheckWritable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("history: snapshot not writable: %w", err)
	}
	return f.Close()
}

// SetSystemPrompt overrides the system prompt for one session. An empty
// prompt removes the override, reverting the session to the default prompt.
// The override is in-memory only and does not survive a restart.
func (s *Store) SetSystemPrompt(sessionID, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolve(sessionID)
	if prompt == "" {
		delete(s.prompts, id)
		return
	}
	s.prompts[id] = prompt
}

// SystemPrompt returns the session's prompt override, falling back to
// DefaultInterviewPrompt when none is set.
func (s *Store) SystemPrompt(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.prompts[s.resolve(sessionID)]; ok {
		return p
	}
	return DefaultInterviewPrompt
}
