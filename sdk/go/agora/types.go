package agora

import (
	"encoding/json"
	"time"
)

// AgentProfile describes a registered agent.
type AgentProfile struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RegisterResponse is returned by Register: the assigned profile and the
// bearer token for subsequent calls.
type RegisterResponse struct {
	Agent     AgentProfile `json:"agent"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AgentsPage is one cursor-paginated page of agent profiles.
type AgentsPage struct {
	Items   []AgentProfile `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
	Cursor  string         `json:"cursor,omitempty"`
}

// ActionDescriptor describes one action available via Execute. Parameters is
// the raw JSON Schema for the action's parameter object.
type ActionDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ActionResult is the terminal result of an executed action. IsError marks a
// domain-level failure (the action was still durably recorded).
type ActionResult struct {
	Content  any            `json:"content,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Log is one simulation log entry.
type Log struct {
	Level    string         `json:"level,omitempty"`
	Name     string         `json:"name,omitempty"`
	Message  string         `json:"message,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LogEntry is one stored log row as returned by the API.
type LogEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Log       Log       `json:"log"`
}

// LogsPage is one cursor-paginated page of log entries.
type LogsPage struct {
	Items   []LogEntry `json:"items"`
	HasMore bool       `json:"has_more"`
	Cursor  string     `json:"cursor,omitempty"`
}

// Health is the server health report.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int    `json:"uptime_seconds"`
}
