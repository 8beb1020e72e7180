package model

import "time"

// Error codes returned in API error envelopes.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeRejected     = "action_rejected"
	ErrCodeFault        = "system_fault"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"
)

// APIError is the JSON error envelope.
type APIError struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail carries the machine-readable code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AgentRegistrationRequest registers a new agent. Agent.ID is the requested
// base id; the server assigns a unique suffixed id.
type AgentRegistrationRequest struct {
	Agent AgentProfile `json:"agent"`
}

// AgentRegistrationResponse returns the assigned profile and bearer token.
type AgentRegistrationResponse struct {
	Agent     AgentProfile `json:"agent"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AgentListResponse is a cursor-paginated page of agent profiles.
type AgentListResponse struct {
	Items   []AgentProfile `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
	Cursor  string         `json:"cursor,omitempty"`
}

// AgentGetResponse wraps a single agent profile.
type AgentGetResponse struct {
	Agent AgentProfile `json:"agent"`
}

// ActionExecuteResponse wraps a terminal action result.
type ActionExecuteResponse struct {
	Result ActionResult `json:"result"`
}

// LogCreateResponse returns the id assigned to a stored log entry.
type LogCreateResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEntry is one stored log row as returned by the API.
type LogEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Log       Log       `json:"log"`
}

// LogListResponse is a cursor-paginated page of log entries.
type LogListResponse struct {
	Items   []LogEntry `json:"items"`
	HasMore bool       `json:"has_more"`
	Cursor  string     `json:"cursor,omitempty"`
}
