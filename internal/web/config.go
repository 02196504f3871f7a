package web

import (
	"encoding/json"
	"os"

	"github.com/firm-crd-matching/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server   ServerConfig  `json:"server"`
	Auth     AuthConfig    `json:"auth"`
	Features FeatureConfig `json:"features"`
	Debug    bool          `json:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port       int    `json:"port"`
	Host       string `json:"host"`
	BatchLimit int    `json:"batch_limit"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	APIKey string `json:"api_key"`
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	ManualOverrideEnabled bool `json:"manual_override_enabled"`
	PersistBatches        bool `json:"persist_batches"`
	MetricsEnabled        bool `json:"metrics_enabled"`
}

// LoadConfig loads configuration from a JSON file over the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFromEnv overlays WEB_* and API_KEY variables on the defaults.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Server.Host = config.GetEnv("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = config.GetEnvInt("WEB_PORT", cfg.Server.Port)
	cfg.Server.BatchLimit = config.GetEnvInt("WEB_BATCH_LIMIT", cfg.Server.BatchLimit)
	cfg.Auth.APIKey = config.GetEnv("API_KEY", cfg.Auth.APIKey)
	cfg.Features.ManualOverrideEnabled = config.GetEnvBool("ENABLE_MANUAL_OVERRIDE", cfg.Features.ManualOverrideEnabled)
	cfg.Features.PersistBatches = config.GetEnvBool("ENABLE_PERSIST_BATCHES", cfg.Features.PersistBatches)
	cfg.Features.MetricsEnabled = config.GetEnvBool("ENABLE_METRICS", cfg.Features.MetricsEnabled)
	cfg.Debug = config.GetEnvBool("DEBUG", cfg.Debug)
	return cfg
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       8080,
			Host:       "0.0.0.0",
			BatchLimit: 10000,
		},
		Features: FeatureConfig{
			ManualOverrideEnabled: true,
			PersistBatches:        true,
			MetricsEnabled:        true,
		},
	}
}
