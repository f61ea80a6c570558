package mongo

import (
	"context"
	"errors"

	clientsmongo "goa.design/flow/features/session/mongo/clients/mongo"
	"goa.design/flow/runtime/workflow"
)

// Store implements workflow.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Read retrieves a session record from storage.
func (s *Store) Read(ctx context.Context, sessionID string) (*workflow.SessionRecord, error) {
	return s.client.ReadSession(ctx, sessionID)
}

// Upsert stores the provided session record and returns the stored state.
func (s *Store) Upsert(ctx context.Context, session *workflow.SessionRecord) (*workflow.SessionRecord, error) {
	return s.client.UpsertSession(ctx, session)
}

// Delete removes a session record from storage.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.DeleteSession(ctx, sessionID)
}

// List returns the session records matching the given workflow and user IDs.
// Empty IDs match everything.
func (s *Store) List(ctx context.Context, workflowID, userID string) ([]*workflow.SessionRecord, error) {
	return s.client.ListSessions(ctx, workflowID, userID)
}
