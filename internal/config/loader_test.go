package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/networking-rounds/internal/phase"
)

var roundsEnv = []string{
	"ROUNDS_CONFIG",
	"ROUNDS_HTTP_PORT",
	"ROUNDS_DB_PATH",
	"ROUNDS_LOG_LEVEL",
	"ROUNDS_DRIVER_INTERVAL",
	"ROUNDS_SESSION_CACHE_SIZE",
	"ROUNDS_SESSION_CACHE_TTL",
	"ROUNDS_STORE_MAX_RETRIES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range roundsEnv {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rounds.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.DBPath != "rounds.db" {
			t.Fatalf("unexpected default DB path: %q", cfg.DBPath)
		}
		if cfg.DriverInterval != time.Minute {
			t.Fatalf("expected default driver interval of one minute, got %s", cfg.DriverInterval)
		}
		if cfg.Parameters != phase.DefaultParameters() {
			t.Fatalf("unexpected default parameters %+v", cfg.Parameters)
		}
		if len(cfg.Warnings) != 0 {
			t.Fatalf("expected no warnings for defaults, got %v", cfg.Warnings)
		}
	})

	t.Run("parses provided values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROUNDS_HTTP_PORT", "9090")
		t.Setenv("ROUNDS_DB_PATH", MemoryStore)
		t.Setenv("ROUNDS_LOG_LEVEL", "debug")
		t.Setenv("ROUNDS_DRIVER_INTERVAL", "15s")
		t.Setenv("ROUNDS_SESSION_CACHE_SIZE", "0")
		t.Setenv("ROUNDS_SESSION_CACHE_TTL", "2m")
		t.Setenv("ROUNDS_STORE_MAX_RETRIES", "5")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.DBPath != MemoryStore || cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if cfg.DriverInterval != 15*time.Second || cfg.CacheSize != 0 || cfg.CacheTTL != 2*time.Minute {
			t.Fatalf("unexpected driver or cache settings %+v", cfg)
		}
		if cfg.Retry.MaxRetries != 5 {
			t.Fatalf("expected 5 retries, got %d", cfg.Retry.MaxRetries)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROUNDS_HTTP_PORT", "-1")
		t.Setenv("ROUNDS_DRIVER_INTERVAL", "often")
		t.Setenv("ROUNDS_LOG_LEVEL", "loud")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid environment values: ROUNDS_HTTP_PORT, ROUNDS_LOG_LEVEL, ROUNDS_DRIVER_INTERVAL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoader_ParametersFile(t *testing.T) {
	t.Run("file values apply and environment wins", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, strings.Join([]string{
			"parameters:",
			"  safety_window_minutes: 10",
			"  confirmation_window_minutes: 7",
			"  walking_time_minutes: 4",
			"driver:",
			"  interval: 30s",
			"session_cache:",
			"  size: 16",
			"store:",
			"  max_retries: 1",
			"  initial_delay: 50ms",
		}, "\n"))
		t.Setenv("ROUNDS_CONFIG", path)
		t.Setenv("ROUNDS_DRIVER_INTERVAL", "10s")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		want := phase.Parameters{SafetyWindowMinutes: 10, ConfirmationWindowMinutes: 7, WalkingTimeMinutes: 4}
		if cfg.Parameters != want {
			t.Fatalf("expected parameters %+v, got %+v", want, cfg.Parameters)
		}
		if cfg.DriverInterval != 10*time.Second {
			t.Fatalf("expected environment to override the file interval, got %s", cfg.DriverInterval)
		}
		if cfg.CacheSize != 16 || cfg.Retry.MaxRetries != 1 || cfg.Retry.InitialDelay != 50*time.Millisecond {
			t.Fatalf("unexpected file settings %+v", cfg)
		}
	})

	t.Run("explicit path overrides the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROUNDS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
		path := writeFile(t, "driver:\n  interval: 5s\n")

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.DriverInterval != 5*time.Second {
			t.Fatalf("expected 5s interval, got %s", cfg.DriverInterval)
		}
	})

	t.Run("odd parameters are kept and warned about", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "parameters:\n  safety_window_minutes: 3\n  confirmation_window_minutes: 5\n  walking_time_minutes: 3\n")

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.Parameters.SafetyWindowMinutes != 3 {
			t.Fatalf("expected parameters to be kept as configured, got %+v", cfg.Parameters)
		}
		if len(cfg.Warnings) != 1 {
			t.Fatalf("expected one warning, got %v", cfg.Warnings)
		}
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "parameters:\n  safety_window: 3\n")

		if _, err := LoadFrom(path); err == nil {
			t.Fatalf("expected error for unknown key")
		}
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "")

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("LoadFrom returned error: %v", err)
		}
		if cfg.Parameters != phase.DefaultParameters() {
			t.Fatalf("expected default parameters, got %+v", cfg.Parameters)
		}
	})
}
