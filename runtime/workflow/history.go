package workflow

import (
	"encoding/json"
	"fmt"
)

type (
	// RunRecord pairs the captured input of one run with its final response
	// envelope. Records are immutable once appended; append order is
	// chronological.
	RunRecord struct {
		// Input holds the run arguments captured verbatim at invocation.
		Input map[string]any `json:"input,omitempty"`
		// Response is the final envelope of the run. For streaming runs this is
		// the aggregate envelope, not an individual fragment.
		Response *RunResponse `json:"response,omitempty"`
	}

	// History accumulates the run records of a workflow session in append
	// order. It is serialized into the session record's memory document and
	// replaced wholesale by the persisted history on session load.
	History struct {
		runs []RunRecord
	}
)

// historyRunsKey is the memory document key holding the serialized run records.
const historyRunsKey = "runs"

// NewHistory returns an empty run history.
func NewHistory() *History {
	return &History{}
}

// AddRun appends a record to the history.
func (h *History) AddRun(record RunRecord) {
	h.runs = append(h.runs, record)
}

// Len returns the number of recorded runs.
func (h *History) Len() int {
	return len(h.runs)
}

// Runs returns a deep-copied snapshot of the recorded runs in append order.
func (h *History) Runs() []RunRecord {
	if len(h.runs) == 0 {
		return nil
	}
	out := make([]RunRecord, len(h.runs))
	for i, record := range h.runs {
		out[i] = RunRecord{
			Input:    cloneMap(record.Input),
			Response: record.Response.Clone(),
		}
	}
	return out
}

// Replace discards the current records and adopts the given ones. Used when a
// persisted history is authoritative over the in-memory one.
func (h *History) Replace(runs []RunRecord) {
	h.runs = runs
}

// ToMap serializes the history into its memory document form,
// {"runs": [...]}, with each record as a generic key/value map.
func (h *History) ToMap() map[string]any {
	entries := make([]any, len(h.runs))
	for i, record := range h.runs {
		entries[i] = record.toMap()
	}
	return map[string]any{historyRunsKey: entries}
}

func (r RunRecord) toMap() map[string]any {
	out := make(map[string]any, 2)
	if r.Input != nil {
		out["input"] = cloneMap(r.Input)
	}
	if r.Response != nil {
		out["response"] = responseToMap(r.Response)
	}
	return out
}

func responseToMap(r *RunResponse) map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// DecodeRunRecord reconstructs a RunRecord from its generic map form. A
// malformed entry yields an error so callers can skip it without aborting the
// whole history load.
func DecodeRunRecord(entry map[string]any) (RunRecord, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return RunRecord{}, fmt.Errorf("encode run record: %w", err)
	}
	var record RunRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record: %w", err)
	}
	return record, nil
}
