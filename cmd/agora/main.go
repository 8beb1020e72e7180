package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/agora-sim/agora"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env before reading the log level so local overrides apply.
	_ = godotenv.Load()

	level := slog.LevelInfo
	switch os.Getenv("AGORA_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := agora.New(
		agora.WithLogger(logger),
		agora.WithVersion(version),
	)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
