// Package config loads process configuration for the staffing binaries.
//
// Settings come from STAFFING_* environment variables; command line flags
// in cmd/ override them. Organisation-wide policy defaults may be supplied
// as a YAML file and are layered over the built-in policy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"crew-staffing/internal/models"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the api and worker binaries
type Config struct {
	DBPath           string        `env:"STAFFING_DB_PATH" envDefault:"./staffing.db"`
	Port             string        `env:"STAFFING_PORT" envDefault:"8080"`
	JWTSecret        string        `env:"STAFFING_JWT_SECRET"`
	JWTIssuer        string        `env:"STAFFING_JWT_ISSUER" envDefault:"crew-staffing"`
	SweepInterval    time.Duration `env:"STAFFING_SWEEP_INTERVAL" envDefault:"30s"`
	SweepConcurrency int           `env:"STAFFING_SWEEP_CONCURRENCY" envDefault:"4"`
	SweepBatch       int           `env:"STAFFING_SWEEP_BATCH" envDefault:"50"`
	NudgesPerMinute  int           `env:"STAFFING_NUDGES_PER_MINUTE" envDefault:"6"`
	PolicyFile       string        `env:"STAFFING_POLICY_FILE"`
	OTELEndpoint     string        `env:"STAFFING_OTEL_ENDPOINT"`
}

// Load parses the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks values that have no usable default
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("STAFFING_JWT_SECRET is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("sweep concurrency must be at least 1")
	}
	if c.SweepBatch < 1 {
		return fmt.Errorf("sweep batch must be at least 1")
	}
	return nil
}

// LoadPolicyDefaults returns the built-in policy overlaid with the YAML file
// at path. An empty path or a missing file yields the built-in policy.
func LoadPolicyDefaults(path string) (models.Policy, error) {
	policy := models.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return policy, nil
		}
		return policy, fmt.Errorf("read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return models.DefaultPolicy(), fmt.Errorf("parse policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return models.DefaultPolicy(), fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}
