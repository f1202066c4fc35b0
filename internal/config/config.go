// Package config loads config.yaml from the autarch home directory and
// applies environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig declares one recurring task in config.yaml.
type ScheduleConfig struct {
	Name        string `yaml:"name"`
	Expr        string `yaml:"expr"`
	Description string `yaml:"description"`
}

// OtelConfig controls the optional OpenTelemetry pipeline.
type OtelConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`

	// WorkerTickMillis is the task worker poll interval. 0 uses the
	// engine default (400ms).
	WorkerTickMillis int `yaml:"worker_tick_millis"`

	// ReflectionIntervalMinutes drives the reflection engine. 0 uses the
	// default (5 minutes).
	ReflectionIntervalMinutes int `yaml:"reflection_interval_minutes"`

	// PolicyPath points at the guardrail policy file. Empty means
	// <home>/policy.yaml.
	PolicyPath string `yaml:"policy_path"`

	// ManifestPath / ManifestURL locate the operation catalog. Path wins
	// when both are set; both empty means no bridge.
	ManifestPath string `yaml:"manifest_path"`
	ManifestURL  string `yaml:"manifest_url"`

	// DBPath overrides the persistence store location. Empty means
	// <home>/autarch.db.
	DBPath string `yaml:"db_path"`

	Schedules []ScheduleConfig `yaml:"schedules"`
	Otel      OtelConfig       `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:                  "info",
		ReflectionIntervalMinutes: 5,
	}
}

// HomeDir returns the autarch home directory, honoring AUTARCH_HOME.
func HomeDir() string {
	if override := os.Getenv("AUTARCH_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".autarch")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the home directory, creating the directory
// when absent. A missing config file yields defaults.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create autarch home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("AUTARCH_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("AUTARCH_QUIET"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Quiet = v
		}
	}
	if raw := os.Getenv("AUTARCH_WORKER_TICK_MILLIS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.WorkerTickMillis = v
		}
	}
	if raw := os.Getenv("AUTARCH_MANIFEST_URL"); raw != "" {
		cfg.ManifestURL = raw
	}
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReflectionIntervalMinutes <= 0 {
		cfg.ReflectionIntervalMinutes = 5
	}
	if cfg.WorkerTickMillis < 0 {
		cfg.WorkerTickMillis = 0
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = filepath.Join(cfg.HomeDir, "policy.yaml")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "autarch.db")
	}
}

// WorkerTick converts the configured tick to a duration; 0 means default.
func (c Config) WorkerTick() time.Duration {
	return time.Duration(c.WorkerTickMillis) * time.Millisecond
}

// ReflectionInterval converts the configured interval to a duration.
func (c Config) ReflectionInterval() time.Duration {
	return time.Duration(c.ReflectionIntervalMinutes) * time.Minute
}
