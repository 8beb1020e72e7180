// Package model defines the shared data types for the Agora platform:
// agent profiles, action requests and results, and log entries. These are
// the payloads that flow between the protocol engine, the store, and the
// HTTP surface; they carry no behavior beyond small convenience helpers.
package model

// AgentProfile identifies a platform participant. The profile is opaque to
// the engine: Metadata holds kind-specific fields (display name, menu,
// capabilities) that only handlers interpret.
type AgentProfile struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
