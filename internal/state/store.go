package state

import (
	"sync"

	"github.com/google/uuid"
)

// Store persists session state between turns. Implementations must be safe
// for concurrent use across sessions; per-session access is serialized by
// the conversation lifecycle itself.
type Store interface {
	// Load returns the state map for a session, empty if the session is new.
	Load(sessionID string) (map[string]any, error)

	// Save persists the state map. Ephemeral ("temp:") entries are not
	// required to survive a Save/Load round-trip.
	Save(sessionID string, m map[string]any) error

	// Close releases resources held by the store.
	Close() error
}

// NewSessionID mints an identifier for a fresh session.
func NewSessionID() string {
	return uuid.NewString()
}

// MemoryStore is a thread-safe in-memory session store. Suitable for a
// single process; use SQLiteStore when user/app scopes must survive
// restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]any)}
}

func (s *MemoryStore) Load(sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[sessionID]
	if !ok {
		return make(map[string]any), nil
	}
	out := make(map[string]any, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Save(sessionID string, m map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(map[string]any, len(m))
	for k, v := range m {
		stored[k] = v
	}
	s.sessions[sessionID] = stored
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]map[string]any)
	return nil
}
