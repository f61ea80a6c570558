package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"goa.design/flow/runtime/workflow"
)

func TestEnsureIndexes(t *testing.T) {
	sessions := newFakeSessionsCollection()
	err := ensureIndexes(context.Background(), sessions)
	require.NoError(t, err)
	require.Equal(t, 2, sessions.indexCreated)
}

func TestUpsertAndReadSession(t *testing.T) {
	client := mustNewTestClient()
	record := &workflow.SessionRecord{
		SessionID:    "sess-1",
		WorkflowID:   "wf-1",
		UserID:       "user-1",
		Memory:       map[string]any{"runs": []any{}},
		SessionState: map[string]any{"counter": 3},
	}
	stored, err := client.UpsertSession(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, "sess-1", stored.SessionID)
	require.False(t, stored.CreatedAt.IsZero())
	require.False(t, stored.UpdatedAt.IsZero())

	loaded, err := client.ReadSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "wf-1", loaded.WorkflowID)
	require.Equal(t, "user-1", loaded.UserID)
	require.Equal(t, 3, loaded.SessionState["counter"])
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	client := mustNewTestClient()
	first, err := client.UpsertSession(context.Background(), &workflow.SessionRecord{SessionID: "sess-1"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	second, err := client.UpsertSession(context.Background(), &workflow.SessionRecord{SessionID: "sess-1"})
	require.NoError(t, err)
	require.True(t, second.CreatedAt.Equal(first.CreatedAt))
	require.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	client := mustNewTestClient()
	_, err := client.ReadSession(context.Background(), "missing")
	require.ErrorIs(t, err, workflow.ErrSessionNotFound)
}

func TestUpsertValidation(t *testing.T) {
	client := mustNewTestClient()
	_, err := client.UpsertSession(context.Background(), nil)
	require.EqualError(t, err, "session is required")
	_, err = client.UpsertSession(context.Background(), &workflow.SessionRecord{})
	require.EqualError(t, err, "session id is required")
}

func TestReadRequiresID(t *testing.T) {
	client := mustNewTestClient()
	_, err := client.ReadSession(context.Background(), "")
	require.EqualError(t, err, "session id is required")
}

func TestDeleteSession(t *testing.T) {
	client := mustNewTestClient()
	_, err := client.UpsertSession(context.Background(), &workflow.SessionRecord{SessionID: "sess-1"})
	require.NoError(t, err)

	require.NoError(t, client.DeleteSession(context.Background(), "sess-1"))
	_, err = client.ReadSession(context.Background(), "sess-1")
	require.ErrorIs(t, err, workflow.ErrSessionNotFound)

	require.NoError(t, client.DeleteSession(context.Background(), "sess-1"))
}

func TestListSessionsFilters(t *testing.T) {
	client := mustNewTestClient()
	seed := []*workflow.SessionRecord{
		{SessionID: "sess-1", WorkflowID: "wf-1", UserID: "user-1"},
		{SessionID: "sess-2", WorkflowID: "wf-1", UserID: "user-2"},
		{SessionID: "sess-3", WorkflowID: "wf-2", UserID: "user-1"},
	}
	for _, record := range seed {
		_, err := client.UpsertSession(context.Background(), record)
		require.NoError(t, err)
	}

	out, err := client.ListSessions(context.Background(), "wf-1", "")
	require.NoError(t, err)
	require.Len(t, out, 2)

	out, err = client.ListSessions(context.Background(), "wf-1", "user-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "sess-1", out[0].SessionID)

	out, err = client.ListSessions(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func mustNewTestClient() *client {
	sessions := newFakeSessionsCollection()
	cl, err := newClientWithCollection(nil, sessions, time.Second)
	if err != nil {
		panic(err)
	}
	return cl
}

type fakeSessionsCollection struct {
	mu           sync.Mutex
	indexCreated int
	docs         map[string]sessionDocument
	order        []string
}

func newFakeSessionsCollection() *fakeSessionsCollection {
	return &fakeSessionsCollection{docs: make(map[string]sessionDocument)}
}

func (c *fakeSessionsCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID := filter.(bson.M)["session_id"].(string)
	doc, ok := c.docs[sessionID]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := doc
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeSessionsCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := filter.(bson.M)
	workflowID, _ := f["workflow_id"].(string)
	userID, _ := f["user_id"].(string)
	docs := make([]any, 0, len(c.docs))
	for _, id := range c.order {
		doc := c.docs[id]
		if workflowID != "" && doc.WorkflowID != workflowID {
			continue
		}
		if userID != "" && doc.UserID != userID {
			continue
		}
		copyDoc := doc
		docs = append(docs, &copyDoc)
	}
	return newFakeCursor(docs), nil
}

func (c *fakeSessionsCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := filter.(bson.M)["session_id"].(string)
	doc, ok := c.docs[sessionID]

	upsert := false
	if len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil {
		upsert = *opts[0].Upsert
	}
	if !ok && !upsert {
		return &mongodriver.UpdateResult{}, nil
	}

	up := update.(bson.M)
	if !ok {
		if soi, isMap := up["$setOnInsert"].(bson.M); isMap {
			if v, isString := soi["session_id"].(string); isString {
				doc.SessionID = v
			}
			if v, isTime := soi["created_at"].(time.Time); isTime {
				doc.CreatedAt = v
			}
		}
		c.order = append(c.order, sessionID)
	}

	set, isMap := up["$set"].(bson.M)
	if !isMap {
		return nil, errors.New("unsupported $set payload")
	}
	if v, isString := set["workflow_id"].(string); isString {
		doc.WorkflowID = v
	}
	if v, isString := set["user_id"].(string); isString {
		doc.UserID = v
	}
	if v, isAnyMap := set["memory"].(map[string]any); isAnyMap {
		doc.Memory = v
	}
	if v, isAnyMap := set["workflow_data"].(map[string]any); isAnyMap {
		doc.WorkflowData = v
	}
	if v, isAnyMap := set["user_data"].(map[string]any); isAnyMap {
		doc.UserData = v
	}
	if v, isAnyMap := set["session_data"].(map[string]any); isAnyMap {
		doc.SessionData = v
	}
	if v, isAnyMap := set["session_state"].(map[string]any); isAnyMap {
		doc.SessionState = v
	}
	if v, isTime := set["updated_at"].(time.Time); isTime {
		doc.UpdatedAt = v
	}

	c.docs[sessionID] = doc
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeSessionsCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessionID := filter.(bson.M)["session_id"].(string)
	if _, ok := c.docs[sessionID]; !ok {
		return &mongodriver.DeleteResult{}, nil
	}
	delete(c.docs, sessionID)
	for i, id := range c.order {
		if id == sessionID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return &mongodriver.DeleteResult{DeletedCount: 1}, nil
}

func (c *fakeSessionsCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}

type fakeIndexView struct {
	parent *int
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	if len(model.Keys.(bson.D)) == 0 {
		return "", errors.New("missing keys")
	}
	*v.parent++
	return "session_id_idx", nil
}

type fakeSingleResult struct {
	doc *sessionDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	target, ok := val.(*sessionDocument)
	if !ok {
		return errors.New("unsupported target")
	}
	*target = *r.doc
	return nil
}

type fakeCursor struct {
	docs []any
	idx  int
}

func newFakeCursor(docs []any) *fakeCursor {
	return &fakeCursor{docs: docs, idx: -1}
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

func (c *fakeCursor) Decode(val any) error {
	if c.idx < 0 || c.idx >= len(c.docs) {
		return errors.New("no document")
	}
	target, ok := val.(*sessionDocument)
	if !ok {
		return errors.New("unsupported target")
	}
	*target = *(c.docs[c.idx].(*sessionDocument))
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Next(ctx context.Context) bool {
	next := c.idx + 1
	if next >= len(c.docs) {
		return false
	}
	c.idx = next
	return true
}
