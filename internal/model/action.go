package model

// ActionRequest is a submitted action: the registered action name plus its
// raw parameters. Parameters are validated against the registry schema
// before anything is persisted.
type ActionRequest struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ActionResult is what a handler returns. IsError marks a domain-level
// failure (e.g. "target agent not found") — still a successful protocol
// round trip, as opposed to a system fault.
type ActionResult struct {
	Content  any            `json:"content"`
	IsError  bool           `json:"is_error"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ActionData is the durable payload of one action log row: who submitted,
// what they asked for, and (once the handler completes) what came back.
// Request is immutable after creation; Result transitions from nil to
// non-nil exactly once.
type ActionData struct {
	AgentID string        `json:"agent_id"`
	Request ActionRequest `json:"request"`
	Result  *ActionResult `json:"result"`
}

// WithResult returns a copy of d with the result attached.
func (d ActionData) WithResult(r ActionResult) ActionData {
	d.Result = &r
	return d
}
