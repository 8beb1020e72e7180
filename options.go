package agora

import (
	"log/slog"
	"net/http"
)

// RouteRegistrar adds routes to the shared HTTP mux.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the server's root handler.
type Middleware func(next http.Handler) http.Handler

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported, callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	logger          *slog.Logger
	version         string
	mcpAgentID      string
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// WithPort overrides the TCP port from config (AGORA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var). A postgres:// URL selects the Postgres backend;
// anything else is treated as a SQLite path.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithMCPAgent mounts the MCP transport at /mcp, submitting every tool call
// as the given agent. Overrides AGORA_MCP_AGENT_ID.
func WithMCPAgent(agentID string) Option {
	return func(o *resolvedOptions) { o.mcpAgentID = agentID }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
