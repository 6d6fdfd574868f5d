package config_test

import (
	"testing"
	"time"

	"github.com/cifrazia/cats-go/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	if cfg.InputLimit != config.DefaultInputLimit {
		t.Fatalf("InputLimit = %d, want %d", cfg.InputLimit, config.DefaultInputLimit)
	}
	if cfg.MaxPlainDataSize != config.MaxPlainDataSize {
		t.Fatalf("MaxPlainDataSize = %d, want %d", cfg.MaxPlainDataSize, config.MaxPlainDataSize)
	}
}

func TestFromEnvOverridesAndLeavesDefaultIntact(t *testing.T) {
	t.Setenv("CATS_IDLE_TIMEOUT_S", "5.5")
	t.Setenv("CATS_INPUT_LIMIT", "7")
	t.Setenv("CATS_LOG_DIR", "/var/log/cats")

	base := config.Default()
	out := config.FromEnv(base)

	if out.IdleTimeout != 5500*time.Millisecond {
		t.Fatalf("IdleTimeout = %s, want 5.5s", out.IdleTimeout)
	}
	if out.InputLimit != 7 {
		t.Fatalf("InputLimit = %d, want 7", out.InputLimit)
	}
	if out.LogDir != "/var/log/cats" {
		t.Fatalf("LogDir = %q, want /var/log/cats", out.LogDir)
	}
	if base.InputLimit != config.DefaultInputLimit {
		t.Fatalf("FromEnv mutated its input config; base.InputLimit = %d", base.InputLimit)
	}
}

func TestFromEnvIgnoresUnsetVars(t *testing.T) {
	base := config.Default()
	out := config.FromEnv(base)
	if out.IdleTimeout != base.IdleTimeout {
		t.Fatalf("IdleTimeout changed with no env vars set")
	}
}

func TestRomSetGet(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = 3
	config.Rom.Set(cfg)
	if got := config.Rom.Get(); got.LogLevel != 3 {
		t.Fatalf("Rom.Get().LogLevel = %d, want 3", got.LogLevel)
	}
	if !config.Rom.FastV(2) {
		t.Fatal("FastV(2) = false, want true at LogLevel 3")
	}
	if config.Rom.FastV(5) {
		t.Fatal("FastV(5) = true, want false at LogLevel 3")
	}
}
