package workflow

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
)

type (
	// Handler is the user-supplied run logic. It receives the run input map
	// captured by Execute and reports its result as an Outcome. The result
	// shape is declared by the handler's contract, not inspected at run time.
	Handler func(ctx context.Context, input map[string]any) Outcome

	// Outcome is the tagged union produced by a run: exactly one of Single or
	// Stream is set. A zero Outcome means the run produced nothing.
	Outcome struct {
		// Single is a one-shot response envelope.
		Single *RunResponse
		// Stream lazily yields response fragments. Well-formed producers yield
		// *RunResponse values; anything else is forwarded to the consumer
		// as-is and logged. The sequence is finite and not restartable.
		Stream iter.Seq[any]
	}
)

// Single wraps a one-shot envelope in an Outcome.
func Single(response *RunResponse) Outcome {
	return Outcome{Single: response}
}

// Streaming wraps a lazy fragment sequence in an Outcome.
func Streaming(fragments iter.Seq[any]) Outcome {
	return Outcome{Stream: fragments}
}

// Execute runs the workflow handler once and normalizes its result.
//
// It allocates a fresh run ID, captures the input verbatim for the run record,
// ensures the session exists before the handler runs (so persisted state is
// available to it), then classifies the handler's outcome:
//
//   - Streaming: the returned Outcome carries a new lazy sequence. Each
//     envelope fragment pulled through it is stamped with the run's identity
//     triple and its content appended to the outer aggregate envelope;
//     non-envelope fragments are forwarded unchanged with a warning. The run
//     record is appended and the session persisted exactly once, after the
//     last fragment is yielded. A consumer that stops pulling before
//     exhaustion skips finalization entirely: no history append, no
//     persistence.
//   - Single: the envelope is stamped, its content copied into the aggregate
//     envelope, the run record appended and the session persisted before
//     Execute returns.
//   - Neither: a warning is logged and a zero Outcome returned, with no
//     history append and no persistence.
//
// Store errors from session synchronization or the single-result persistence
// propagate to the caller.
func (w *Workflow) Execute(ctx context.Context, input map[string]any) (Outcome, error) {
	if !w.descriptor.HasCustomLogic || w.handler == nil {
		w.log.Error(ctx, "workflow run handler not implemented", "workflow_id", w.WorkflowID)
		return Outcome{}, nil
	}

	w.runID = uuid.NewString()
	w.runInput = cloneMap(input)
	w.runResponse = &RunResponse{
		RunID:      w.runID,
		SessionID:  w.SessionID,
		WorkflowID: w.WorkflowID,
		CreatedAt:  time.Now().UTC(),
	}

	if err := w.descriptor.validateInput(input); err != nil {
		return Outcome{}, err
	}

	ctx, span := w.tracer.Start(ctx, "workflow.run")
	defer span.End()

	started := time.Now()
	w.metrics.IncCounter("flow.runs.started", 1, "workflow", w.Name)
	if _, err := w.EnsureSession(ctx, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session synchronization failed")
		return Outcome{}, err
	}

	w.log.Debug(ctx, "workflow run start", "run_id", w.runID)
	outcome := w.handler(ctx, input)

	switch {
	case outcome.Stream != nil:
		w.runResponse.Content = ""
		w.runResponse.Aggregated = true
		return Streaming(w.wrapStream(ctx, outcome.Stream, started)), nil

	case outcome.Single != nil:
		result := outcome.Single
		result.stamp(w.runID, w.SessionID, w.WorkflowID)
		if result.Content != "" {
			w.runResponse.Content = result.Content
		}
		w.history.AddRun(RunRecord{Input: w.runInput, Response: w.runResponse})
		if _, err := w.WriteToStore(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session persistence failed")
			return Outcome{}, err
		}
		w.finishRun(ctx, started)
		return Single(result), nil

	default:
		w.log.Warn(ctx, "workflow run produced an unexpected outcome shape", "run_id", w.runID)
		return Outcome{}, nil
	}
}

// wrapStream adapts the handler's fragment sequence into the normalized one.
// The wrapper is purely pass-through per fragment: consumer pull drives
// producer pull, with no buffering beyond the single in-flight fragment.
func (w *Workflow) wrapStream(ctx context.Context, src iter.Seq[any], started time.Time) iter.Seq[any] {
	return func(yield func(any) bool) {
		for fragment := range src {
			if response, ok := fragment.(*RunResponse); ok {
				response.stamp(w.runID, w.SessionID, w.WorkflowID)
				w.runResponse.Content += response.Content
				w.publish(ctx, response)
			} else {
				w.log.Warn(ctx, "workflow stream yielded an unexpected fragment", "run_id", w.runID, "type", typeName(fragment))
			}
			if !yield(fragment) {
				// Abandoned before exhaustion: no history, no persistence.
				w.log.Debug(ctx, "workflow stream abandoned", "run_id", w.runID)
				return
			}
		}

		w.history.AddRun(RunRecord{Input: w.runInput, Response: w.runResponse})
		if _, err := w.WriteToStore(ctx); err != nil {
			w.log.Error(ctx, "failed to persist workflow session after run", "run_id", w.runID, "error", err.Error())
		}
		w.finishRun(ctx, started)
	}
}

// publish forwards a stamped fragment to the configured sink, if any. Publish
// failures are contained: the consumer keeps pulling.
func (w *Workflow) publish(ctx context.Context, response *RunResponse) {
	if w.sink == nil {
		return
	}
	if err := w.sink.Send(ctx, response); err != nil {
		w.log.Warn(ctx, "failed to publish run fragment", "run_id", w.runID, "error", err.Error())
	}
}

func (w *Workflow) finishRun(ctx context.Context, started time.Time) {
	w.metrics.IncCounter("flow.runs.completed", 1, "workflow", w.Name)
	w.metrics.RecordTimer("flow.run.duration", time.Since(started), "workflow", w.Name)
	w.log.Debug(ctx, "workflow run end", "run_id", w.runID)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
