package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

var (
	instance *Config
	loaded   bool
)

// Load parses configuration from environment variables (and .env files
// outside Lambda) exactly once per process.
func Load() (*Config, error) {
	if loaded {
		return instance, nil
	}

	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := parse()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	instance = cfg
	loaded = true
	return cfg, nil
}

func loadEnvFiles() error {
	if isLambda() {
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("load .env.local: %w", err)
		}
	}

	return nil
}

func isLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
