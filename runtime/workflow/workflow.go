package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"goa.design/flow/runtime/telemetry"
)

type (
	// Workflow manages the run lifecycle of one long-lived, named workflow
	// against a durable session store. Construct with New; zero values are not
	// usable.
	//
	// The exported fields are the local overrides: values set by the caller at
	// construction that take precedence over persisted session state under the
	// Merge rules. After a session load they hold the merged view.
	Workflow struct {
		// Name names the workflow. Adopted from the persisted session when
		// locally unset.
		Name string
		// Description describes what the workflow does.
		Description string
		// WorkflowID is the stable workflow identifier, allocated at
		// construction when not supplied.
		WorkflowID string
		// WorkflowData holds metadata associated with the workflow.
		WorkflowData map[string]any
		// UserID identifies the user interacting with the workflow.
		UserID string
		// UserData holds metadata associated with the user.
		UserData map[string]any
		// SessionID is the stable session identifier, allocated at construction
		// when not supplied. Supplying a prior session's ID resumes it.
		SessionID string
		// SessionName names the session. Adopted from the persisted session
		// when locally unset.
		SessionName string
		// SessionData holds metadata associated with the session.
		SessionData map[string]any
		// SessionState holds free-form state carried across runs. Local state
		// fully takes precedence over structurally conflicting persisted keys.
		SessionState map[string]any

		store      Store
		sink       Sink
		handler    Handler
		descriptor HandlerDescriptor
		history    *History
		log        telemetry.Logger
		metrics    telemetry.Metrics
		tracer     telemetry.Tracer

		// session caches the last-loaded store record so repeated EnsureSession
		// calls within one process skip redundant reads. Deliberately not
		// expired; see EnsureSession.
		session *SessionRecord

		// Per-run fields, reset by Execute.
		runID       string
		runInput    map[string]any
		runResponse *RunResponse
	}

	// Options configures a Workflow.
	Options struct {
		// Name names the workflow.
		Name string
		// Description describes what the workflow does.
		Description string
		// WorkflowID supplies a stable workflow identifier. Generated when empty.
		WorkflowID string
		// SessionID supplies a stable session identifier. Generated when empty.
		SessionID string
		// SessionName names the session.
		SessionName string
		// UserID identifies the user interacting with the workflow.
		UserID string
		// WorkflowData, UserData, SessionData and SessionState seed the local
		// override maps.
		WorkflowData map[string]any
		UserData     map[string]any
		SessionData  map[string]any
		SessionState map[string]any
		// Store persists session records. Required.
		Store Store
		// Handler is the user-supplied run logic.
		Handler Handler
		// Descriptor is the handler's capability contract.
		Descriptor HandlerDescriptor
		// Sink optionally receives stamped envelope fragments during streaming
		// runs.
		Sink Sink
		// Logger defaults to a no-op logger.
		Logger telemetry.Logger
		// Metrics defaults to a no-op recorder.
		Metrics telemetry.Metrics
		// Tracer defaults to a no-op tracer.
		Tracer telemetry.Tracer
	}
)

// New constructs a Workflow. Workflow and session identifiers are allocated
// when not supplied so that reconstructing with the same IDs resumes the prior
// identity.
func New(opts Options) (*Workflow, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	ctx := context.Background()
	workflowID := opts.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
		logger.Debug(ctx, "allocated workflow id", "workflow_id", workflowID)
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		logger.Debug(ctx, "allocated session id", "session_id", sessionID)
	}
	return &Workflow{
		Name:         opts.Name,
		Description:  opts.Description,
		WorkflowID:   workflowID,
		WorkflowData: opts.WorkflowData,
		UserID:       opts.UserID,
		UserData:     opts.UserData,
		SessionID:    sessionID,
		SessionName:  opts.SessionName,
		SessionData:  opts.SessionData,
		SessionState: opts.SessionState,
		store:        opts.Store,
		sink:         opts.Sink,
		handler:      opts.Handler,
		descriptor:   opts.Descriptor,
		history:      NewHistory(),
		log:          logger,
		metrics:      metrics,
		tracer:       tracer,
	}, nil
}

// History returns the workflow's run history.
func (w *Workflow) History() *History {
	return w.history
}

// Session returns the cached session record loaded or created by the last
// store interaction, or nil before the first one.
func (w *Workflow) Session() *SessionRecord {
	return w.session
}

// EnsureSession loads the session from the store, creating it when absent, and
// returns the resolved session ID.
//
// When a record is already cached and its ID matches the current SessionID the
// cached record is reused without store I/O unless force is set. The cache is
// never expired within a process lifetime, so a long-lived Workflow can serve
// stale state when another process writes the same session; callers that need
// freshness pass force=true.
func (w *Workflow) EnsureSession(ctx context.Context, force bool) (string, error) {
	if w.session != nil && !force && w.session.SessionID == w.SessionID {
		return w.SessionID, nil
	}

	w.log.Debug(ctx, "reading workflow session", "session_id", w.SessionID)
	if _, err := w.ReadFromStore(ctx); err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return "", err
		}
		w.log.Debug(ctx, "creating workflow session", "session_id", w.SessionID)
		created, err := w.WriteToStore(ctx)
		if err != nil {
			return "", err
		}
		if created == nil {
			return "", ErrSessionCreateFailed
		}
		w.log.Debug(ctx, "created workflow session", "session_id", created.SessionID)
	}
	return w.SessionID, nil
}

// ReadFromStore loads the session record for the current SessionID, merges it
// into the workflow under the precedence rules of Merge, and caches it.
// Returns ErrSessionNotFound when the session does not exist.
func (w *Workflow) ReadFromStore(ctx context.Context) (*SessionRecord, error) {
	record, err := w.store.Read(ctx, w.SessionID)
	if err != nil {
		return nil, err
	}
	w.applySession(ctx, record)
	w.session = record
	return record, nil
}

// WriteToStore pushes the current in-memory snapshot, run history included, to
// the store and replaces the cached record with whatever the store echoes back.
func (w *Workflow) WriteToStore(ctx context.Context) (*SessionRecord, error) {
	record, err := w.store.Upsert(ctx, w.snapshot())
	if err != nil {
		return nil, err
	}
	w.session = record
	return record, nil
}

// RenameSession sets the session name of the identified session directly in
// the store. Returns ErrSessionNotFound when the session does not exist; the
// rename is never a silent no-op.
func (w *Workflow) RenameSession(ctx context.Context, sessionID, name string) error {
	record, err := w.store.Read(ctx, sessionID)
	if err != nil {
		return err
	}
	if record.SessionData == nil {
		record.SessionData = make(map[string]any, 1)
	}
	record.SessionData[sessionNameKey] = name
	_, err = w.store.Upsert(ctx, record)
	return err
}

// DeleteSession removes the identified session from the store. The locally
// cached session, if any, is deliberately left in place; invalidating it is
// the caller's responsibility.
func (w *Workflow) DeleteSession(ctx context.Context, sessionID string) error {
	return w.store.Delete(ctx, sessionID)
}

const (
	workflowNameKey = "name"
	sessionNameKey  = "session_name"
)

// snapshot builds the persistable session record from the current in-memory
// fields. The name keys are folded into their metadata maps so they survive
// round-trips through stores that only know the generic record shape.
func (w *Workflow) snapshot() *SessionRecord {
	return &SessionRecord{
		SessionID:    w.SessionID,
		WorkflowID:   w.WorkflowID,
		UserID:       w.UserID,
		Memory:       w.history.ToMap(),
		WorkflowData: w.workflowData(),
		UserData:     cloneMap(w.UserData),
		SessionData:  w.sessionData(),
		SessionState: cloneMap(w.SessionState),
	}
}

func (w *Workflow) workflowData() map[string]any {
	data := cloneMap(w.WorkflowData)
	if w.Name != "" {
		if data == nil {
			data = make(map[string]any, 1)
		}
		data[workflowNameKey] = w.Name
	}
	return data
}

func (w *Workflow) sessionData() map[string]any {
	data := cloneMap(w.SessionData)
	if w.SessionName != "" {
		if data == nil {
			data = make(map[string]any, 1)
		}
		data[sessionNameKey] = w.SessionName
	}
	return data
}

// applySession folds a persisted record into the workflow. Identifiers are
// adopted only when locally unset. Metadata maps are merged under the Merge
// precedence (local wins ties), with the workflow and session names adopted
// from the record before the generic merge so an unset local name is
// populated. A persisted run history replaces the in-memory one wholesale.
func (w *Workflow) applySession(ctx context.Context, record *SessionRecord) {
	if w.SessionID == "" && record.SessionID != "" {
		w.SessionID = record.SessionID
	}
	if w.WorkflowID == "" && record.WorkflowID != "" {
		w.WorkflowID = record.WorkflowID
	}
	if w.UserID == "" && record.UserID != "" {
		w.UserID = record.UserID
	}

	if record.WorkflowData != nil {
		if w.Name == "" {
			if name, ok := record.WorkflowData[workflowNameKey].(string); ok {
				w.Name = name
			}
		}
		if w.WorkflowData != nil {
			Merge(record.WorkflowData, w.WorkflowData)
		}
		w.WorkflowData = record.WorkflowData
	}

	if record.UserData != nil {
		if w.UserData != nil {
			Merge(record.UserData, w.UserData)
		}
		w.UserData = record.UserData
	}

	if record.SessionData != nil {
		if w.SessionName == "" {
			if name, ok := record.SessionData[sessionNameKey].(string); ok {
				w.SessionName = name
			}
		}
		if w.SessionData != nil {
			Merge(record.SessionData, w.SessionData)
		}
		w.SessionData = record.SessionData
	}

	if record.SessionState != nil {
		if w.SessionState != nil {
			Merge(record.SessionState, w.SessionState)
		}
		w.SessionState = record.SessionState
	}

	if record.Memory != nil {
		w.loadHistory(ctx, record.Memory)
	}
	w.log.Debug(ctx, "workflow session loaded", "session_id", record.SessionID)
}

// loadHistory replaces the in-memory run history with the persisted one. The
// persisted history is authoritative: it is append-only and the in-memory list
// starts empty on a fresh Workflow. Malformed individual records are logged
// and skipped rather than aborting the load; a memory document whose runs
// entry has an unexpected shape leaves the history as previously set.
func (w *Workflow) loadHistory(ctx context.Context, memory map[string]any) {
	raw, ok := memory[historyRunsKey]
	if !ok {
		return
	}
	entries, ok := raw.([]any)
	if !ok {
		w.log.Warn(ctx, "failed to load run history", "session_id", w.SessionID, "type", typeName(raw))
		return
	}
	runs := make([]RunRecord, 0, len(entries))
	for i, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			w.log.Warn(ctx, "skipping malformed run record", "session_id", w.SessionID, "index", i, "type", typeName(entry))
			continue
		}
		record, err := DecodeRunRecord(m)
		if err != nil {
			w.log.Warn(ctx, "skipping malformed run record", "session_id", w.SessionID, "index", i, "error", err.Error())
			continue
		}
		runs = append(runs, record)
	}
	w.history.Replace(runs)
}
