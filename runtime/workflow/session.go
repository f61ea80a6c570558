// Package workflow manages the execution lifecycle of long-lived, named
// workflows. A Workflow owns its identity (workflow, session and per-run IDs),
// keeps durable session state in an external Store, merges persisted state with
// in-memory overrides under deterministic precedence, and wraps a user-supplied
// run handler so both single-shot and streaming results are normalized into a
// common response envelope. Each completed run is appended to the session's run
// history and persisted alongside the session state.
//
// Contract:
//   - Sessions are durable continuations of state across runs, identified by a
//     stable session ID. Supplying the same session ID on reconstruction resumes
//     the prior session.
//   - The Workflow issues at most one store read and one store write per run and
//     never holds a store handle across handler execution.
//   - A single Workflow value serializes one logical run at a time; concurrent
//     Execute calls against the same value require caller-side serialization.
package workflow

import (
	"context"
	"errors"
	"time"
)

type (
	// SessionRecord is the durable unit persisted by a Store. It is exclusively
	// owned by the store while at rest; the Workflow holds a working copy plus a
	// cached reference to the last-loaded record.
	SessionRecord struct {
		// SessionID is the durable identifier of the session.
		SessionID string `json:"session_id"`
		// WorkflowID identifies the workflow this session belongs to.
		WorkflowID string `json:"workflow_id,omitempty"`
		// UserID identifies the user interacting with the workflow, if any.
		UserID string `json:"user_id,omitempty"`
		// Memory carries the serialized run history under the "runs" key.
		Memory map[string]any `json:"memory,omitempty"`
		// WorkflowData holds metadata associated with the workflow, including
		// its name under the "name" key.
		WorkflowData map[string]any `json:"workflow_data,omitempty"`
		// UserData holds metadata associated with the user.
		UserData map[string]any `json:"user_data,omitempty"`
		// SessionData holds metadata associated with the session, including the
		// session name under the "session_name" key.
		SessionData map[string]any `json:"session_data,omitempty"`
		// SessionState holds free-form state carried across runs.
		SessionState map[string]any `json:"session_state,omitempty"`
		// CreatedAt records when the session was first persisted.
		CreatedAt time.Time `json:"created_at"`
		// UpdatedAt records when the session was last persisted.
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Store persists session records.
	//
	// Store implementations must be durable: failures are surfaced to callers so
	// runs can fail fast when session state is unavailable. Implementations are
	// individually thread-safe; retries, if desired, belong to the
	// implementation, not the core.
	Store interface {
		// Read loads an existing session record.
		// Returns ErrSessionNotFound when the session does not exist.
		Read(ctx context.Context, sessionID string) (*SessionRecord, error)
		// Upsert inserts or updates a session record and returns the stored
		// record. The store may adjust timestamps; callers must not assume a
		// byte-identical echo.
		Upsert(ctx context.Context, session *SessionRecord) (*SessionRecord, error)
		// Delete removes a session record. Deleting an unknown session is not
		// an error.
		Delete(ctx context.Context, sessionID string) error
	}

	// Sink receives stamped response envelopes as a streaming run produces
	// them. Implementations must tolerate concurrent runs publishing from
	// independent Workflow values. Publish failures are logged by the Workflow
	// and never interrupt the consumer.
	Sink interface {
		// Send publishes one envelope fragment.
		Send(ctx context.Context, response *RunResponse) error
		// Close releases resources owned by the sink.
		Close(ctx context.Context) error
	}
)

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("workflow session not found")
	// ErrSessionCreateFailed indicates the store did not echo a record back
	// when creating a session. A run cannot proceed without durable identity.
	ErrSessionCreateFailed = errors.New("failed to create workflow session in store")
)

// Clone returns a deep copy of the record. Map values are copied recursively so
// mutations of the clone never leak into the original.
func (s *SessionRecord) Clone() *SessionRecord {
	if s == nil {
		return nil
	}
	out := *s
	out.Memory = cloneMap(s.Memory)
	out.WorkflowData = cloneMap(s.WorkflowData)
	out.UserData = cloneMap(s.UserData)
	out.SessionData = cloneMap(s.SessionData)
	out.SessionState = cloneMap(s.SessionState)
	return &out
}

// cloneMap deep-copies a generic key/value map. Nested map[string]any and
// []any values are copied recursively; other values are copied by assignment.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
