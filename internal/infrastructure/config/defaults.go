package config

// applyDefaults fills adapter selection based on environment, mirroring
// the teacher's local-vs-production adapter switch.
func applyDefaults(cfg *Config) {
	if cfg.Environment == "production" {
		if cfg.Adapters.Logger == "" {
			cfg.Adapters.Logger = "cloudwatch"
		}
		if cfg.Adapters.Metrics == "" {
			cfg.Adapters.Metrics = "cloudwatch"
		}
		return
	}

	if cfg.Adapters.Logger == "" {
		cfg.Adapters.Logger = "stdout"
	}
	if cfg.Adapters.Metrics == "" {
		cfg.Adapters.Metrics = "stdout"
	}
}
