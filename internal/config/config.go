// Package config loads process settings from the environment (and an
// optional .env file) and governance parameters from a TOML file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds process settings.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// APIKey guards /api/v1 when set.
	APIKey string `envconfig:"API_KEY"`

	// Governor is the address allowed to change parameters and roles.
	Governor string `envconfig:"GOVERNOR"`

	// PriceKeepers may push oracle rounds (comma-separated).
	PriceKeepers []string `envconfig:"PRICE_KEEPERS"`

	// ParamsFile is an optional TOML file of governance parameters.
	ParamsFile string `envconfig:"PARAMS_FILE"`

	OracleSampleSpace int           `envconfig:"ORACLE_SAMPLE_SPACE" default:"3"`
	OracleMaxAge      time.Duration `envconfig:"ORACLE_MAX_AGE" default:"5m"`
	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if cfg.OracleSampleSpace < 1 {
		return nil, fmt.Errorf("ORACLE_SAMPLE_SPACE must be positive, got %d", cfg.OracleSampleSpace)
	}
	return &cfg, nil
}
