package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	mockmongo "goa.design/flow/features/session/mongo/clients/mongo/mocks"
	"goa.design/flow/runtime/workflow"
)

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.EqualError(t, err, "client is required")
}

func TestReadDelegatesToClient(t *testing.T) {
	mockClient := mockmongo.NewClient(t)
	expected := &workflow.SessionRecord{
		SessionID:    "sess-1",
		WorkflowID:   "wf-1",
		SessionState: map[string]any{"counter": 3},
	}
	mockClient.AddReadSession(func(ctx context.Context, id string) (*workflow.SessionRecord, error) {
		require.Equal(t, "sess-1", id)
		return expected, nil
	})
	store, err := NewStore(mockClient)
	require.NoError(t, err)

	actual, err := store.Read(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, expected, actual)
	require.False(t, mockClient.HasMore())
}

func TestUpsertDelegatesToClient(t *testing.T) {
	mockClient := mockmongo.NewClient(t)
	record := &workflow.SessionRecord{SessionID: "sess-1", WorkflowID: "wf-1"}
	mockClient.AddUpsertSession(func(ctx context.Context, session *workflow.SessionRecord) (*workflow.SessionRecord, error) {
		require.Equal(t, record, session)
		return session, nil
	})
	store, err := NewStore(mockClient)
	require.NoError(t, err)

	stored, err := store.Upsert(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, record, stored)
	require.False(t, mockClient.HasMore())
}

func TestDeleteDelegatesToClient(t *testing.T) {
	mockClient := mockmongo.NewClient(t)
	mockClient.AddDeleteSession(func(ctx context.Context, id string) error {
		require.Equal(t, "sess-1", id)
		return nil
	})
	store, err := NewStore(mockClient)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "sess-1"))
	require.False(t, mockClient.HasMore())
}

func TestListDelegatesToClient(t *testing.T) {
	mockClient := mockmongo.NewClient(t)
	expected := []*workflow.SessionRecord{
		{SessionID: "sess-1", WorkflowID: "wf-1"},
		{SessionID: "sess-2", WorkflowID: "wf-1"},
	}
	mockClient.AddListSessions(func(ctx context.Context, workflowID, userID string) ([]*workflow.SessionRecord, error) {
		require.Equal(t, "wf-1", workflowID)
		require.Equal(t, "user-1", userID)
		return expected, nil
	})
	store, err := NewStore(mockClient)
	require.NoError(t, err)

	actual, err := store.List(context.Background(), "wf-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, expected, actual)
	require.False(t, mockClient.HasMore())
}
