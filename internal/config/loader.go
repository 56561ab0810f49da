package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/networking-rounds/internal/persistence"
	"github.com/example/networking-rounds/internal/phase"
)

// MemoryStore selects the in-memory store instead of a SQLite file.
const MemoryStore = "memory"

// Config captures the settings of the rounds service.
type Config struct {
	HTTPPort       int
	DBPath         string
	LogLevel       slog.Level
	DriverInterval time.Duration
	CacheSize      int
	CacheTTL       time.Duration
	Retry          persistence.RetryConfig
	Parameters     phase.Parameters
	// Warnings lists parameter combinations that are accepted but probably
	// unintended.
	Warnings []string
}

// fileConfig is the layout of the optional YAML parameters file.
type fileConfig struct {
	// Parameters is decoded over the current values so omitted keys keep
	// them.
	Parameters *phase.Parameters `yaml:"parameters"`
	Driver     struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"driver"`
	SessionCache struct {
		Size *int          `yaml:"size"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"session_cache"`
	Store struct {
		MaxRetries   *int          `yaml:"max_retries"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
	} `yaml:"store"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:       8080,
		DBPath:         "rounds.db",
		LogLevel:       slog.LevelInfo,
		DriverInterval: time.Minute,
		CacheSize:      256,
		CacheTTL:       30 * time.Second,
		Retry:          persistence.DefaultRetryConfig(),
		Parameters:     phase.DefaultParameters(),
	}
}

// Load parses configuration from the process environment and the parameters
// file named by ROUNDS_CONFIG.
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit parameters file. An empty path falls back
// to ROUNDS_CONFIG; no file at all keeps the defaults.
//
// Values are applied in order: defaults, file, environment. Invalid
// environment values are reported together.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("ROUNDS_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := applyFile(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ROUNDS_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "ROUNDS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dbPath := strings.TrimSpace(os.Getenv("ROUNDS_DB_PATH")); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if levelValue := strings.TrimSpace(os.Getenv("ROUNDS_LOG_LEVEL")); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "ROUNDS_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if intervalValue := strings.TrimSpace(os.Getenv("ROUNDS_DRIVER_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "ROUNDS_DRIVER_INTERVAL")
		} else {
			cfg.DriverInterval = interval
		}
	}

	if sizeValue := strings.TrimSpace(os.Getenv("ROUNDS_SESSION_CACHE_SIZE")); sizeValue != "" {
		size, err := strconv.Atoi(sizeValue)
		if err != nil || size < 0 {
			invalid = append(invalid, "ROUNDS_SESSION_CACHE_SIZE")
		} else {
			cfg.CacheSize = size
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ROUNDS_SESSION_CACHE_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ROUNDS_SESSION_CACHE_TTL")
		} else {
			cfg.CacheTTL = ttl
		}
	}

	if retriesValue := strings.TrimSpace(os.Getenv("ROUNDS_STORE_MAX_RETRIES")); retriesValue != "" {
		retries, err := strconv.Atoi(retriesValue)
		if err != nil || retries < 0 {
			invalid = append(invalid, "ROUNDS_STORE_MAX_RETRIES")
		} else {
			cfg.Retry.MaxRetries = retries
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	cfg.Warnings = cfg.Parameters.Warnings()
	return cfg, nil
}

func applyFile(cfg *Config, data []byte) error {
	params := cfg.Parameters
	file := fileConfig{Parameters: &params}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	cfg.Parameters = params
	if file.Driver.Interval < 0 {
		return fmt.Errorf("driver.interval must be positive")
	}
	if file.Driver.Interval > 0 {
		cfg.DriverInterval = file.Driver.Interval
	}
	if file.SessionCache.Size != nil {
		if *file.SessionCache.Size < 0 {
			return fmt.Errorf("session_cache.size must not be negative")
		}
		cfg.CacheSize = *file.SessionCache.Size
	}
	if file.SessionCache.TTL > 0 {
		cfg.CacheTTL = file.SessionCache.TTL
	}
	if file.Store.MaxRetries != nil {
		if *file.Store.MaxRetries < 0 {
			return fmt.Errorf("store.max_retries must not be negative")
		}
		cfg.Retry.MaxRetries = *file.Store.MaxRetries
	}
	if file.Store.InitialDelay > 0 {
		cfg.Retry.InitialDelay = file.Store.InitialDelay
	}
	if file.Store.MaxDelay > 0 {
		cfg.Retry.MaxDelay = file.Store.MaxDelay
	}
	return nil
}
