// Package agora is the public API for embedding the Agora action protocol
// server.
//
// Simulation harnesses import this package to construct and extend the server
// without forking it:
//
//	app, err := agora.New(
//	    agora.WithVersion(version),
//	    agora.WithLogger(logger),
//	    agora.WithExtraRoutes(myHarnessRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: agora (root) imports
// internal/*, but internal/* never imports agora (root).
package agora

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/agora-sim/agora/api"
	"github.com/agora-sim/agora/internal/auth"
	"github.com/agora-sim/agora/internal/config"
	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/idgen"
	"github.com/agora-sim/agora/internal/marketplace"
	"github.com/agora-sim/agora/internal/mcp"
	"github.com/agora-sim/agora/internal/ratelimit"
	"github.com/agora-sim/agora/internal/registry"
	"github.com/agora-sim/agora/internal/server"
	"github.com/agora-sim/agora/internal/store"
	"github.com/agora-sim/agora/internal/telemetry"
)

// App is the Agora server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           store.Controller
	engine       *engine.Engine
	srv          *server.Server
	limiter      ratelimit.Limiter // nil when disabled
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Agora server. It connects to the database, runs
// migrations where the backend needs them, wires all subsystems, and returns
// a ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.mcpAgentID != "" {
		cfg.MCPAgentID = o.mcpAgentID
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("agora starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to the database. Open dispatches on the URL scheme and runs the
	// embedded migrations for the Postgres backend.
	db, err := store.Open(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("store: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		_ = db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Register the marketplace action set and build the protocol engine.
	reg, err := registry.New(marketplace.Descriptors()...)
	if err != nil {
		_ = db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("registry: %w", err)
	}
	market := marketplace.New(logger).WithFetchLimit(cfg.FetchMessagesLimit)
	eng, err := engine.New(reg, market.Handlers(), db, logger)
	if err != nil {
		_ = db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("engine: %w", err)
	}

	srvCfg := server.ServerConfig{
		DB:                  db,
		Engine:              eng,
		JWTMgr:              jwtMgr,
		IDGen:               idgen.New(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}

	// MCP transport, bound to one submitting agent.
	if cfg.MCPAgentID != "" {
		mcpSrv, err := mcp.New(eng, cfg.MCPAgentID, logger)
		if err != nil {
			_ = db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("mcp: %w", err)
		}
		srvCfg.MCPServer = mcpSrv.MCPServer()
		logger.Info("mcp: enabled", "agent_id", cfg.MCPAgentID)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		srvCfg.RateLimiter = limiter
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	for _, fn := range o.routeRegistrars {
		srvCfg.ExtraRoutes = append(srvCfg.ExtraRoutes, fn)
	}
	for _, mw := range o.middlewares {
		srvCfg.Middlewares = append(srvCfg.Middlewares, mw)
	}

	return &App{
		cfg:          cfg,
		db:           db,
		engine:       eng,
		srv:          server.New(srvCfg),
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for mounting the App inside another
// server or driving it with httptest.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation it shuts down gracefully and releases all resources;
// Run always leaves the App closed.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.close()
		return err
	}

	a.logger.Info("agora shutting down")

	httpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	a.close()
	a.logger.Info("agora stopped")
	return nil
}

func (a *App) close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if err := a.db.Close(context.Background()); err != nil {
		a.logger.Error("store close error", "error", err)
	}
	if a.otelShutdown != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(shutCtx); err != nil {
			a.logger.Error("telemetry shutdown error", "error", err)
		}
		cancel()
	}
}
