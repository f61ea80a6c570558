// Package inmem provides an in-memory implementation of workflow.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/session/mongo or
// features/session/redis).
package inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/flow/runtime/workflow"
)

type (
	// Store is an in-memory implementation of workflow.Store.
	// It is safe for concurrent use.
	Store struct {
		mu       sync.RWMutex
		sessions map[string]*workflow.SessionRecord
	}
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*workflow.SessionRecord),
	}
}

// Read implements workflow.Store.
func (s *Store) Read(_ context.Context, sessionID string) (*workflow.SessionRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[sessionID]
	if !ok {
		return nil, workflow.ErrSessionNotFound
	}
	return record.Clone(), nil
}

// Upsert implements workflow.Store.
func (s *Store) Upsert(_ context.Context, session *workflow.SessionRecord) (*workflow.SessionRecord, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if session.SessionID == "" {
		return nil, errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := session.Clone()
	if existing, ok := s.sessions[session.SessionID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.sessions[session.SessionID] = stored
	return stored.Clone(), nil
}

// Delete implements workflow.Store. Deleting an unknown session is not an
// error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Reset discards all stored sessions. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*workflow.SessionRecord)
}
