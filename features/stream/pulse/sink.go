// Package pulse exposes a workflow.Sink implementation that publishes run
// response fragments to goa.design/pulse streams. It mirrors the layering used
// by existing Pulse deployments: services build a Redis client, pass it to the
// Pulse client, and hand the resulting sink to the workflow runtime.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	clientspulse "goa.design/flow/features/stream/pulse/clients/pulse"
	"goa.design/flow/runtime/workflow"
)

const (
	eventFragment  = "fragment"
	eventAggregate = "aggregate"
)

type (
	// PublishedEvent describes a fragment that was published to a Pulse stream.
	PublishedEvent struct {
		// Response is the fragment that was published.
		Response *workflow.RunResponse
		// StreamID names the Pulse stream the fragment was written to.
		StreamID string
		// EntryID is the Redis-assigned entry ID (e.g., "1234567890-0").
		EntryID string
	}

	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish fragments. Required.
		Client clientspulse.Client
		// StreamID derives the target Pulse stream from a fragment. Defaults to `run/<RunID>`.
		StreamID func(*workflow.RunResponse) (string, error)
		// MarshalEnvelope allows overriding the envelope serialization (primarily for tests).
		MarshalEnvelope func(envelope) ([]byte, error)
		// OnPublished is invoked after each successful publish. Errors returned
		// from the callback propagate to the Send caller.
		OnPublished func(ctx context.Context, ev PublishedEvent) error
	}

	// Sink publishes run response fragments into Pulse streams. It delegates
	// serialization to the configured envelope marshaler.
	// Thread-safe for concurrent Send operations.
	Sink struct {
		client clientspulse.Client
		opts   sinkOptions
	}

	// sinkOptions holds internal configuration derived from Options.
	sinkOptions struct {
		streamID        func(*workflow.RunResponse) (string, error)
		marshalEnvelope func(envelope) ([]byte, error)
		onPublished     func(ctx context.Context, ev PublishedEvent) error
	}

	// envelope wraps run response fragments for transmission over Pulse streams.
	envelope struct {
		// Kind distinguishes intermediate fragments from the aggregated response.
		Kind string `json:"kind"`
		// RunID links the fragment to a specific run.
		RunID string `json:"run_id"`
		// SessionID identifies the session the run belongs to.
		SessionID string `json:"session_id,omitempty"`
		// WorkflowID identifies the workflow that produced the fragment.
		WorkflowID string `json:"workflow_id,omitempty"`
		// Content carries the fragment text.
		Content string `json:"content"`
		// Timestamp records when the fragment was published (UTC).
		Timestamp time.Time `json:"timestamp"`
	}
)

// NewSink constructs a Pulse-backed run sink. The Client field in opts is
// required; StreamID and MarshalEnvelope default to the built-in
// implementations if not provided.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	cfg := sinkOptions{
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
		onPublished:     opts.OnPublished,
	}
	if opts.StreamID != nil {
		cfg.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		cfg.marshalEnvelope = opts.MarshalEnvelope
	}
	return &Sink{
		client: opts.Client,
		opts:   cfg,
	}, nil
}

// Send publishes the fragment to the derived Pulse stream. It derives the
// stream ID, wraps the fragment in an envelope, marshals it to JSON, and
// publishes it via the Pulse client. Thread-safe for concurrent calls.
func (s *Sink) Send(ctx context.Context, response *workflow.RunResponse) error {
	if response == nil {
		return errors.New("run response is required")
	}
	streamID, err := s.opts.streamID(response)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	kind := eventFragment
	if response.Aggregated {
		kind = eventAggregate
	}
	env := envelope{
		Kind:       kind,
		RunID:      response.RunID,
		SessionID:  response.SessionID,
		WorkflowID: response.WorkflowID,
		Content:    response.Content,
		Timestamp:  time.Now().UTC(),
	}
	payload, err := s.opts.marshalEnvelope(env)
	if err != nil {
		return err
	}
	entryID, err := handle.Add(ctx, env.Kind, payload)
	if err != nil {
		return err
	}
	if s.opts.onPublished != nil {
		return s.opts.onPublished(ctx, PublishedEvent{
			Response: response,
			StreamID: streamID,
			EntryID:  entryID,
		})
	}
	return nil
}

// Close releases resources owned by the sink. This delegates to the underlying
// Pulse client, which may or may not close the Redis connection depending on
// the client implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the fragment's RunID.
// Returns an error if the RunID is empty.
func defaultStreamID(response *workflow.RunResponse) (string, error) {
	if response.RunID == "" {
		return "", errors.New("run response missing run id")
	}
	return fmt.Sprintf("run/%s", response.RunID), nil
}

// defaultMarshal serializes an envelope to JSON.
func defaultMarshal(env envelope) ([]byte, error) {
	return json.Marshal(env)
}
