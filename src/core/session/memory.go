// Package session keeps conversational transcripts keyed by session id.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"docbuddy/src/core/knowledgebase"
)

type transcript struct {
	mu      sync.Mutex
	turns   []knowledgebase.Turn
	deleted bool
}

// MemoryStore holds transcripts in process memory. Operations on one
// session are serialized by that session's own lock, so sessions do not
// contend with each other.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*transcript
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*transcript)}
}

func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID string, role knowledgebase.Role, content string) error {
	if err := validateTurn(sessionID, role); err != nil {
		return err
	}

	for {
		t := s.getOrCreate(sessionID)
		t.mu.Lock()
		if t.deleted {
			// lost a race with DeleteSession, start a fresh transcript
			t.mu.Unlock()
			continue
		}
		t.turns = append(t.turns, knowledgebase.Turn{Role: role, Content: content})
		t.mu.Unlock()
		return nil
	}
}

func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]knowledgebase.Turn, error) {
	s.mu.RLock()
	t, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(sessionID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return nil, notFound(sessionID)
	}
	return append([]knowledgebase.Turn(nil), t.turns...), nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	t, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return notFound(sessionID)
	}

	t.mu.Lock()
	t.deleted = true
	t.turns = nil
	t.mu.Unlock()
	return nil
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) getOrCreate(sessionID string) *transcript {
	s.mu.RLock()
	t, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.sessions[sessionID]; ok {
		return t
	}
	t = &transcript{}
	s.sessions[sessionID] = t
	return t
}

func validateTurn(sessionID string, role knowledgebase.Role) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id must not be empty", knowledgebase.ErrInvalidInput)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", knowledgebase.ErrInvalidInput, role)
	}
	return nil
}

func notFound(sessionID string) error {
	return fmt.Errorf("session %q: %w", sessionID, knowledgebase.ErrNotFound)
}
