package model

// LogLevel is the severity of a platform log entry.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Log is a structured log entry written by agents or the platform itself.
// Name identifies the emitter (e.g. "customer.llm_call"); Data carries the
// entry's structured payload.
type Log struct {
	Level    LogLevel       `json:"level"`
	Name     string         `json:"name"`
	Message  string         `json:"message,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
