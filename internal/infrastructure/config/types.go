// Package config loads and validates process configuration from
// environment variables, in the style of the teacher's
// shared/infrastructure/config package.
package config

// Config holds everything a cmd/ entrypoint needs to wire its use case
// against concrete infrastructure adapters.
type Config struct {
	Environment string
	ServiceName string
	LogLevel    string

	Adapters AdapterConfig

	Database      DatabaseConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Downloader    DownloaderConfig
	Subscription  SubscriptionConfig
	DateGenerator DateGeneratorConfig
}

// AdapterConfig selects which concrete implementation backs each port,
// mirroring the teacher's adapter-selection pattern.
type AdapterConfig struct {
	Logger  string // "cloudwatch", "stdout"
	Metrics string // "cloudwatch", "stdout"
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// AWSConfig configures the AWS SDK clients shared across adapters.
type AWSConfig struct {
	Region               string
	UploadBucket         string
	ToDownloadQueue      string
	SciHubCredsSecret    string
	IntHub2CredsSecret   string
	CopernicusTokenParam string

	// StaticAccessKeyID/StaticSecretAccessKey, when both set, override the
	// SDK's default credential chain — used against S3-compatible
	// endpoints in local/dev environments that don't have an AWS profile.
	StaticAccessKeyID     string
	StaticSecretAccessKey string
}

// ObservabilityConfig configures CloudWatch logging/metrics when selected.
type ObservabilityConfig struct {
	CloudWatchRegion    string
	CloudWatchLogGroup  string
	CloudWatchNamespace string
}

// DownloaderConfig configures the download worker (spec.md §6).
type DownloaderConfig struct {
	UseIntHub2         bool
	EnableDownloading  bool
	MaxDownloadRetries int
}

// SubscriptionConfig configures the push/subscription handler.
type SubscriptionConfig struct {
	Username            string
	Password            string
	RecencyDays         int
	AcceptedTileIDsFile string
	Port                int
}

// DateGeneratorConfig configures the date generator's defaults.
type DateGeneratorConfig struct {
	LookbackDays int
}
