package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_DRIVER", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW_SECONDS", "GATE_WINDOW_START", "GATE_WINDOW_END", "GATE_WINDOW_ENABLED", "REDIS_URL", "TRUST_FORWARDED_FOR"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("DatabaseDriver = %q, want postgres", cfg.DatabaseDriver)
	}
	if cfg.RateLimitMax != 5 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("rate limit = %d/%s, want 5/1m", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if !cfg.WindowEnabled || cfg.WindowStart != "18:00" || cfg.WindowEnd != "21:00" {
		t.Fatalf("window = %v %s-%s", cfg.WindowEnabled, cfg.WindowStart, cfg.WindowEnd)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.TrustForwardedFor {
		t.Fatal("TrustForwardedFor = true, want false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("RATE_LIMIT_MAX", "10")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("GATE_WINDOW_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRUST_FORWARDED_FOR", "true")

	cfg := Load()
	if cfg.DSN() != "/tmp/x.db" {
		t.Fatalf("DSN() = %q", cfg.DSN())
	}
	if cfg.RateLimitMax != 10 || cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("rate limit = %d/%s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.WindowEnabled {
		t.Fatal("WindowEnabled = true, want false")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.TrustForwardedFor {
		t.Fatal("TrustForwardedFor = false, want true")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "lots")
	t.Setenv("GATE_WINDOW_ENABLED", "maybe")
	cfg := Load()
	if cfg.RateLimitMax != 5 {
		t.Fatalf("RateLimitMax = %d, want fallback 5", cfg.RateLimitMax)
	}
	if !cfg.WindowEnabled {
		t.Fatal("WindowEnabled should fall back to true")
	}
}
