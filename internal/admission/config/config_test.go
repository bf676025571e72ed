package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.StoreBackend != "memory" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.DefaultPolicy.MaxRequests != 120 || cfg.DefaultPolicy.Window != time.Minute {
		t.Fatalf("unexpected default policy: %#v", cfg.DefaultPolicy)
	}
	if !cfg.RateLimiting {
		t.Fatalf("rate limiting should default on")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Parallel()

	environ := []string{
		"ADMISSION_LISTEN_ADDR=:9090",
		"ADMISSION_STORE=Redis",
		"ADMISSION_REDIS_ADDR=localhost:6379",
		"ADMISSION_POLICY_WINDOW_MS=30000",
		"ADMISSION_POLICY_MAX_REQUESTS=10",
		"ADMISSION_RATE_LIMITING=false",
		"UNRELATED=value",
	}
	cfg, err := Load(environ)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected addr: %q", cfg.ListenAddr)
	}
	if cfg.StoreBackend != "redis" {
		t.Fatalf("backend should be lowercased: %q", cfg.StoreBackend)
	}
	if cfg.DefaultPolicy.Window != 30*time.Second || cfg.DefaultPolicy.MaxRequests != 10 {
		t.Fatalf("unexpected policy: %#v", cfg.DefaultPolicy)
	}
	if cfg.RateLimiting {
		t.Fatalf("rate limiting should be disabled")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Parallel()

	if _, err := Load([]string{"ADMISSION_POLICY_MAX_REQUESTS=abc"}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load([]string{"ADMISSION_RATE_LIMITING=maybe"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
