package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agora-sim/agora/internal/auth"
	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/idgen"
	"github.com/agora-sim/agora/internal/ratelimit"
	"github.com/agora-sim/agora/internal/store"
)

// Server is the Agora HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. MCPServer is optional (nil = disabled).
type ServerConfig struct {
	DB     store.Controller
	Engine *engine.Engine
	JWTMgr *auth.JWTManager
	IDGen  *idgen.Generator
	Logger *slog.Logger

	MCPServer *mcpserver.MCPServer

	// RateLimiter is optional (nil = no rate limiting). Requests are keyed
	// by authenticated agent, falling back to client IP.
	RateLimiter ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// ExtraRoutes lets embedding consumers register additional routes on the
	// shared mux. Middlewares wrap outermost, in registration order.
	ExtraRoutes []func(mux *http.ServeMux)
	Middlewares []func(http.Handler) http.Handler

	// OpenAPISpec, when non-nil, is served at GET /openapi.yaml without auth.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Engine:              cfg.Engine,
		JWTMgr:              cfg.JWTMgr,
		IDGen:               cfg.IDGen,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Registration is the only unauthenticated write: it is how an agent
	// obtains a token in the first place.
	mux.HandleFunc("POST /agents/register", h.HandleRegisterAgent)
	mux.HandleFunc("GET /agents", h.HandleListAgents)
	mux.HandleFunc("GET /agents/{agent_id}", h.HandleGetAgent)

	mux.HandleFunc("GET /actions/protocol", h.HandleActionProtocol)
	mux.HandleFunc("POST /actions/execute", h.HandleExecuteAction)

	mux.HandleFunc("POST /logs", h.HandleCreateLog)
	mux.HandleFunc("GET /logs", h.HandleListLogs)

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	if cfg.OpenAPISpec != nil {
		mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPISpec)
		})
	}

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID -> logging -> auth -> rate limit -> recovery -> handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	if cfg.RateLimiter != nil {
		// Sits inside auth so authenticated traffic is keyed per agent.
		handler = ratelimit.Middleware(cfg.RateLimiter, agentKeyFunc, requestIDFunc, cfg.Logger)(handler)
	}
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = requestIDMiddleware(handler)

	// Consumer middlewares wrap outside the built-in chain; the first
	// registered is outermost.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// agentKeyFunc keys rate limiting by the authenticated agent, falling back
// to the client IP for unauthenticated routes. Health checks are exempt.
func agentKeyFunc(r *http.Request) string {
	if r.URL.Path == "/health" {
		return ""
	}
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return "agent:" + claims.AgentID
	}
	return "ip:" + ratelimit.IPKeyFunc(r)
}

func requestIDFunc(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
