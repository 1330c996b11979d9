package config

import (
	"fmt"
	"strings"
)

// Validate checks required fields and adapter-specific constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.ServiceName == "" {
		errs = append(errs, "SERVICE_NAME is required")
	}

	if err := c.Adapters.validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if err := c.Database.validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Adapters.Logger == "cloudwatch" || c.Adapters.Metrics == "cloudwatch" {
		if err := c.Observability.validate(c.Adapters); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if c.Downloader.MaxDownloadRetries < 0 {
		errs = append(errs, "MAX_DOWNLOAD_RETRIES cannot be negative")
	}

	if c.Subscription.RecencyDays <= 0 {
		errs = append(errs, "SUBSCRIPTION_RECENCY_DAYS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (a *AdapterConfig) validate() error {
	validLogger := map[string]bool{"cloudwatch": true, "stdout": true, "": true}
	if !validLogger[a.Logger] {
		return fmt.Errorf("invalid logger adapter: %s (must be cloudwatch or stdout)", a.Logger)
	}
	validMetrics := map[string]bool{"cloudwatch": true, "stdout": true, "": true}
	if !validMetrics[a.Metrics] {
		return fmt.Errorf("invalid metrics adapter: %s (must be cloudwatch or stdout)", a.Metrics)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if d.Database == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if d.Username == "" {
		errs = append(errs, "DB_USER is required")
	}
	if d.MaxOpenConns > 0 && d.MaxIdleConns > d.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}
	if len(errs) > 0 {
		return fmt.Errorf("database configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (o *ObservabilityConfig) validate(adapters AdapterConfig) error {
	if o.CloudWatchRegion == "" {
		return fmt.Errorf("CLOUDWATCH_REGION is required for CloudWatch")
	}
	if adapters.Logger == "cloudwatch" && o.CloudWatchLogGroup == "" {
		return fmt.Errorf("CLOUDWATCH_LOG_GROUP is required for CloudWatch logging")
	}
	if adapters.Metrics == "cloudwatch" && o.CloudWatchNamespace == "" {
		return fmt.Errorf("CLOUDWATCH_NAMESPACE is required for CloudWatch metrics")
	}
	return nil
}
