// Package observability wires the stdout/cloudwatch adapters behind
// ports.Observability, selecting between them per config.AdapterConfig.
package observability

import (
	"context"
	"fmt"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability/cloudwatch"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability/stdout"
)

type provider struct {
	cfg     *config.Config
	logger  ports.Logger
	metrics ports.Metrics
}

// New builds a ports.Observability backed by the adapters cfg selects.
func New(ctx context.Context, cfg *config.Config) (ports.Observability, error) {
	logger, metrics, err := build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build observability: %w", err)
	}
	return &provider{cfg: cfg, logger: logger, metrics: metrics}, nil
}

func build(ctx context.Context, cfg *config.Config) (ports.Logger, ports.Metrics, error) {
	var logger ports.Logger
	var metrics ports.Metrics

	switch cfg.Adapters.Logger {
	case "cloudwatch":
		logGroup := cfg.Observability.CloudWatchLogGroup
		if logGroup == "" {
			logGroup = fmt.Sprintf("/hls-s2-downloader/%s", cfg.ServiceName)
		}
		l, err := cloudwatch.NewLogger(ctx, cfg.Observability.CloudWatchRegion, logGroup, cfg.ServiceName)
		if err != nil {
			return nil, nil, fmt.Errorf("create cloudwatch logger: %w", err)
		}
		logger = l
	default:
		logger = stdout.NewLogger()
	}

	switch cfg.Adapters.Metrics {
	case "cloudwatch":
		namespace := cfg.Observability.CloudWatchNamespace
		if namespace == "" {
			namespace = fmt.Sprintf("%s/%s", cfg.ServiceName, cfg.Environment)
		}
		m, err := cloudwatch.NewMetrics(ctx, cfg.Observability.CloudWatchRegion, namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("create cloudwatch metrics: %w", err)
		}
		metrics = m
	default:
		metrics = stdout.NewMetrics()
	}

	return logger, metrics, nil
}

// ComponentsScoped returns a Logger/Metrics pair scoped with service and
// component tags, per ports.Observability.
func (p *provider) ComponentsScoped(component string) (ports.Logger, ports.Metrics, error) {
	fields := map[string]interface{}{
		"service":     p.cfg.ServiceName,
		"environment": p.cfg.Environment,
		"component":   component,
	}
	tags := map[string]string{
		"service":     p.cfg.ServiceName,
		"environment": p.cfg.Environment,
		"component":   component,
	}
	return p.logger.WithFields(fields), p.metrics.WithTags(tags), nil
}
