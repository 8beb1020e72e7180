package config

import (
	"testing"
	"time"
)

func TestEnvStrFallback(t *testing.T) {
	if v := envStr("AGORA_TEST_MISSING", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %q", v)
	}
	t.Setenv("AGORA_TEST_STR", "set")
	if v := envStr("AGORA_TEST_STR", "fallback"); v != "set" {
		t.Fatalf("expected set, got %q", v)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("AGORA_TEST_INT", "42")
	if v := envInt("AGORA_TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	t.Setenv("AGORA_TEST_INT_BAD", "abc")
	if v := envInt("AGORA_TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("AGORA_TEST_DUR", "90s")
	if v := envDuration("AGORA_TEST_DUR", time.Second); v != 90*time.Second {
		t.Fatalf("expected 90s, got %v", v)
	}
	if v := envDuration("AGORA_TEST_DUR_MISSING", time.Minute); v != time.Minute {
		t.Fatalf("expected 1m fallback, got %v", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "agora.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.DatabaseURL)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("AGORA_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
