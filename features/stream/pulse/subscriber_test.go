package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"

	clientspulse "goa.design/flow/features/stream/pulse/clients/pulse"
	mockpulse "goa.design/flow/features/stream/pulse/clients/pulse/mocks"
	"goa.design/flow/runtime/workflow"
)

func TestSubscribeEmitsFragments(t *testing.T) {
	ctx := context.Background()
	client := mockpulse.NewClient(t)
	streamMock := mockpulse.NewStream(t)
	sinkMock := mockpulse.NewSink(t)

	eventCh := make(chan *streaming.Event, 1)
	sinkMock.AddSubscribe(func() <-chan *streaming.Event { return eventCh })
	sinkMock.AddAck(func(ctx context.Context, evt *streaming.Event) error {
		require.Equal(t, "1-0", evt.ID)
		return nil
	})
	sinkMock.AddClose(func(ctx context.Context) {})

	client.AddStream(func(name string) (clientspulse.Stream, error) {
		require.Equal(t, "run/run-123", name)
		return streamMock, nil
	})
	streamMock.AddNewSink(func(ctx context.Context, name string) (clientspulse.Sink, error) {
		require.Equal(t, "flow_subscriber", name)
		return sinkMock, nil
	})

	sub, err := NewSubscriber(SubscriberOptions{Client: client, Buffer: 2})
	require.NoError(t, err)

	fragments, errs, cancel, err := sub.Subscribe(ctx, "run/run-123")
	require.NoError(t, err)
	defer cancel()

	payload, _ := json.Marshal(envelope{
		Kind:      eventFragment,
		RunID:     "run-123",
		SessionID: "sess-1",
		Content:   "hi",
		Timestamp: time.Now().UTC(),
	})
	eventCh <- &streaming.Event{ID: "1-0", Payload: payload}
	close(eventCh)

	fragment := <-fragments
	require.Equal(t, "run-123", fragment.RunID)
	require.Equal(t, "sess-1", fragment.SessionID)
	require.Equal(t, "hi", fragment.Content)
	require.False(t, fragment.Aggregated)
	require.Empty(t, errs)
}

func TestSubscribeMarksAggregated(t *testing.T) {
	client := mockpulse.NewClient(t)
	streamMock := mockpulse.NewStream(t)
	sinkMock := mockpulse.NewSink(t)
	eventCh := make(chan *streaming.Event, 1)

	client.AddStream(func(name string) (clientspulse.Stream, error) { return streamMock, nil })
	streamMock.AddNewSink(func(ctx context.Context, name string) (clientspulse.Sink, error) {
		return sinkMock, nil
	})
	sinkMock.AddSubscribe(func() <-chan *streaming.Event { return eventCh })
	sinkMock.AddAck(func(ctx context.Context, evt *streaming.Event) error { return nil })
	sinkMock.AddClose(func(ctx context.Context) {})

	sub, err := NewSubscriber(SubscriberOptions{Client: client})
	require.NoError(t, err)

	fragments, _, cancel, err := sub.Subscribe(context.Background(), "run/run-1")
	require.NoError(t, err)
	defer cancel()

	payload, _ := json.Marshal(envelope{Kind: eventAggregate, RunID: "run-1", Content: "Hello World"})
	eventCh <- &streaming.Event{ID: "1-0", Payload: payload}
	close(eventCh)

	fragment := <-fragments
	require.True(t, fragment.Aggregated)
	require.Equal(t, "Hello World", fragment.Content)
}

func TestSubscribeDecoderError(t *testing.T) {
	client := mockpulse.NewClient(t)
	streamMock := mockpulse.NewStream(t)
	sinkMock := mockpulse.NewSink(t)
	eventCh := make(chan *streaming.Event, 1)

	client.AddStream(func(name string) (clientspulse.Stream, error) { return streamMock, nil })
	streamMock.AddNewSink(func(ctx context.Context, name string) (clientspulse.Sink, error) {
		return sinkMock, nil
	})
	sinkMock.AddSubscribe(func() <-chan *streaming.Event { return eventCh })
	sinkMock.AddClose(func(ctx context.Context) {})

	sub, err := NewSubscriber(SubscriberOptions{
		Client: client,
		Decoder: func([]byte) (*workflow.RunResponse, error) {
			return nil, errors.New("decode error")
		},
	})
	require.NoError(t, err)

	fragments, errs, cancel, err := sub.Subscribe(context.Background(), "run/run-1")
	require.NoError(t, err)
	defer cancel()
	eventCh <- &streaming.Event{Payload: []byte("{}")}
	close(eventCh)

	require.Empty(t, fragments)
	require.EqualError(t, <-errs, "pulse decode payload: decode error")
}
