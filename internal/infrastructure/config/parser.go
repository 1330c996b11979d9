package config

// parse reads configuration from environment variables. Every field name
// corresponds to a spec.md §6 "Configuration (environment)" entry.
func parse() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", "hls-s2-downloader"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		Adapters: AdapterConfig{
			Logger:  getEnv("ADAPTER_LOGGER", ""),
			Metrics: getEnv("ADAPTER_METRICS", ""),
		},

		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getInt("DB_PORT", 5432),
			Database:     getEnv("DB_NAME", "hls_downloader"),
			Username:     getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
		},

		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			UploadBucket:         getEnv("UPLOAD_BUCKET", ""),
			ToDownloadQueue:      getEnv("TO_DOWNLOAD_QUEUE_URL", ""),
			SciHubCredsSecret:    getEnv("SCIHUB_SECRET_NAME", "scihub-credentials"),
			IntHub2CredsSecret:   getEnv("INTHUB2_SECRET_NAME", "inthub2-credentials"),
			CopernicusTokenParam: getEnv("COPERNICUS_TOKEN_PARAM", "/hls-s2-downloader/copernicus-token"),

			StaticAccessKeyID:     getEnv("AWS_STATIC_ACCESS_KEY_ID", ""),
			StaticSecretAccessKey: getEnv("AWS_STATIC_SECRET_ACCESS_KEY", ""),
		},

		Observability: ObservabilityConfig{
			CloudWatchRegion:    getEnv("CLOUDWATCH_REGION", getEnv("AWS_REGION", "us-east-1")),
			CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", ""),
			CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", ""),
		},

		Downloader: DownloaderConfig{
			UseIntHub2:         getBool("USE_INTHUB2", false),
			EnableDownloading:  getBool("ENABLE_DOWNLOADING", true),
			MaxDownloadRetries: getInt("MAX_DOWNLOAD_RETRIES", 10),
		},

		Subscription: SubscriptionConfig{
			Username:            getEnv("SUBSCRIPTION_USERNAME", ""),
			Password:            getEnv("SUBSCRIPTION_PASSWORD", ""),
			RecencyDays:         getInt("SUBSCRIPTION_RECENCY_DAYS", 30),
			AcceptedTileIDsFile: getEnv("ACCEPTED_TILE_IDS_FILENAME", "configs/allowed_tiles.txt"),
			Port:                getInt("SUBSCRIPTION_PORT", 8080),
		},

		DateGenerator: DateGeneratorConfig{
			LookbackDays: getInt("LOOKBACK_DAYS", 5),
		},
	}
}
