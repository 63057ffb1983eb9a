// Package config loads warden configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration.
type Config struct {
	// API server
	ListenAddr string

	// Storage
	DataDir        string
	ThresholdsFile string // optional YAML override of default thresholds

	// Monitoring
	TickInterval   time.Duration
	TargetPID      int32 // monitored process PID for vitals sampling; 0 disables
	AnomalyLogSize int

	// Logging
	LogLevel  string
	LogFormat string
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		ListenAddr:     "127.0.0.1:8844",
		DataDir:        defaultDataDir(),
		TickInterval:   5 * time.Second,
		AnomalyLogSize: 200,
		LogLevel:       "info",
		LogFormat:      "auto",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".warden")
	}
	return "/var/lib/warden"
}

// Load builds the configuration from the environment. envFile, when
// non-empty and present, is read first without overriding variables
// already set in the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			log.Debug().Str("path", envFile).Msg("No env file found, using environment only")
		}
	}

	cfg := Defaults()

	if v := os.Getenv("WARDEN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WARDEN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WARDEN_THRESHOLDS_FILE"); v != "" {
		cfg.ThresholdsFile = v
	}
	if v := os.Getenv("WARDEN_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid WARDEN_TICK_INTERVAL %q", v)
		}
		cfg.TickInterval = d
	}
	if v := os.Getenv("WARDEN_TARGET_PID"); v != "" {
		pid, err := strconv.ParseInt(v, 10, 32)
		if err != nil || pid < 0 {
			return Config{}, fmt.Errorf("invalid WARDEN_TARGET_PID %q", v)
		}
		cfg.TargetPID = int32(pid)
	}
	if v := os.Getenv("WARDEN_ANOMALY_LOG_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid WARDEN_ANOMALY_LOG_SIZE %q", v)
		}
		cfg.AnomalyLogSize = n
	}
	if v := os.Getenv("WARDEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("WARDEN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	return cfg, nil
}
