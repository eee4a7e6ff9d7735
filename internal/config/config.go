// Package config provides configuration management for ThreatLens.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lvonguyen/threatlens/internal/observability"
	"github.com/lvonguyen/threatlens/internal/publish"
	"github.com/lvonguyen/threatlens/internal/reputation"
)

// Config holds all ThreatLens configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Detection  DetectionConfig      `yaml:"detection"`
	Reputation ReputationConfig     `yaml:"reputation"`
	Alerts     publish.Config       `yaml:"alerts"`
	Telemetry  observability.Config `yaml:"telemetry"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DetectionConfig holds anomaly baselines for the detection methods.
type DetectionConfig struct {
	RequestsPerHour    float64 `yaml:"requests_per_hour"`
	AuthFailuresPerDay float64 `yaml:"auth_failures_per_day"`
}

// ReputationConfig holds reputation lookup settings.
type ReputationConfig struct {
	Enabled    bool                      `yaml:"enabled"`
	Provider   reputation.ProviderConfig `yaml:"provider"`
	CacheTTL   time.Duration             `yaml:"cache_ttl"`
	BatchDelay time.Duration             `yaml:"batch_delay"`
	Redis      RedisConfig               `yaml:"redis"`
}

// RedisConfig holds Redis cache settings. When disabled the reputation
// cache lives in process memory.
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    4 * 1024 * 1024,
		},
		Detection: DetectionConfig{
			RequestsPerHour:    10,
			AuthFailuresPerDay: 2,
		},
		Reputation: ReputationConfig{
			Enabled:    false,
			Provider:   reputation.DefaultProviderConfig(),
			CacheTTL:   reputation.DefaultCacheTTL,
			BatchDelay: reputation.DefaultBatchDelay,
			Redis: RedisConfig{
				Enabled:  false,
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Alerts: publish.DefaultConfig(),
		Telemetry: observability.Config{
			ServiceName:    "threatlens",
			ServiceVersion: "dev",
			Environment:    "development",
			LogLevel:       "info",
			LogFormat:      "json",
			TracingEnabled: false,
			OTLPEndpoint:   "localhost:4317",
			SamplingRate:   0.1,
			MetricsEnabled: true,
			MetricsPort:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
