package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	clientspulse "goa.design/flow/features/stream/pulse/clients/pulse"
	"goa.design/flow/runtime/workflow"
)

type (
	// EnvelopeDecoder converts raw payloads read from Pulse into run response
	// fragments. Custom decoders can be provided to handle non-standard
	// envelope formats.
	EnvelopeDecoder func([]byte) (*workflow.RunResponse, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume fragments. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to "flow_subscriber".
		SinkName string
		// Buffer specifies the fragment channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes fragment payloads. Defaults to the built-in JSON decoder.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes Pulse streams and emits run response fragments. It
	// wraps a Pulse sink (consumer group) and decodes incoming payloads into
	// workflow.RunResponse values.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
		decode EnvelopeDecoder
	}
)

// NewSubscriber constructs a Pulse-backed subscriber. The Client field in opts
// is required; SinkName, Buffer, and Decoder default to sensible values if not
// provided (see SubscriberOptions field documentation).
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "flow_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		buffer: buffer,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and returns channels for
// fragments and errors. It spawns a goroutine that consumes from the sink,
// decodes payloads, and emits run response fragments. The returned cancel
// function stops consumption, closes the sink, and closes both channels.
//
// Usage:
//
//	fragments, errs, cancel, err := sub.Subscribe(ctx, "run/abc123")
//	defer cancel()
//	for fragment := range fragments {
//	    // process fragment
//	}
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
) (<-chan *workflow.RunResponse, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name)
	if err != nil {
		return nil, nil, nil, err
	}
	fragments := make(chan *workflow.RunResponse, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, fragments, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return fragments, errs, cancelFunc, nil
}

// consume reads events from the Pulse sink channel, decodes them, and emits
// them on the out channel. It acks each event after successful emission.
// Closes both channels when ctx is canceled or when the sink channel closes.
// Sends errors on the errs channel if decoding or acking fails, then returns.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- *workflow.RunResponse, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope format and rebuilds the
// run response fragment. Returns an error if the payload is malformed.
func decodeEnvelope(payload []byte) (*workflow.RunResponse, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &workflow.RunResponse{
		RunID:      env.RunID,
		SessionID:  env.SessionID,
		WorkflowID: env.WorkflowID,
		Content:    env.Content,
		Aggregated: env.Kind == eventAggregate,
		CreatedAt:  env.Timestamp,
	}, nil
}
