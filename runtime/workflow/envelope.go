package workflow

import "time"

// RunResponse is the normalized response envelope produced by a workflow run.
// Every envelope that reaches a caller carries the identity triple of the run
// that produced it, overwriting any values the run handler may have set.
//
// For streaming runs the Workflow maintains an outer aggregate envelope whose
// Content accumulates the string content of every envelope fragment yielded by
// the handler, in emission order.
type RunResponse struct {
	// RunID identifies the run that produced this response.
	RunID string `json:"run_id,omitempty"`
	// SessionID identifies the session the run executed under.
	SessionID string `json:"session_id,omitempty"`
	// WorkflowID identifies the workflow.
	WorkflowID string `json:"workflow_id,omitempty"`
	// Content is the textual payload of the response.
	Content string `json:"content,omitempty"`
	// Aggregated marks the outer envelope of a streaming run, whose Content is
	// the concatenation of all fragment content.
	Aggregated bool `json:"aggregated,omitempty"`
	// CreatedAt records when the envelope was initialized.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewRunResponse returns an envelope carrying the given content.
func NewRunResponse(content string) *RunResponse {
	return &RunResponse{Content: content, CreatedAt: time.Now().UTC()}
}

// stamp overwrites the identity triple with the current run's values.
func (r *RunResponse) stamp(runID, sessionID, workflowID string) {
	r.RunID = runID
	r.SessionID = sessionID
	r.WorkflowID = workflowID
}

// Clone returns a copy of the envelope.
func (r *RunResponse) Clone() *RunResponse {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
