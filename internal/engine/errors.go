package engine

import "fmt"

// Rejection is a pre-persistence refusal: the action name was unknown, the
// parameters failed schema validation, or the submitter was not allowed to
// act. A rejected submission produces zero writes.
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("engine: rejected: %s: %v", r.Reason, r.Err)
	}
	return fmt.Sprintf("engine: rejected: %s", r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Fault is a post-persistence system failure: the handler panicked or
// errored, or storage failed mid-dispatch. The action record (when ActionID
// is set) persists without a result; retry policy belongs to the caller.
//
// A Fault is distinct from a domain error: a handler returning a result with
// IsError set completes the protocol round trip normally.
type Fault struct {
	ActionID string
	Err      error
}

func (f *Fault) Error() string {
	if f.ActionID != "" {
		return fmt.Sprintf("engine: fault handling action %s: %v", f.ActionID, f.Err)
	}
	return fmt.Sprintf("engine: fault: %v", f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
