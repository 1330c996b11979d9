// Command dategenerator is the orchestrator's entrypoint: it lists the
// (date, platform) work items that drive the link fetcher, per spec.md
// §4.1.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/dategen"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability"
)

// Event is the (currently empty) invocation payload; all inputs come from
// configuration, matching the original step function's fan-out trigger.
type Event struct{}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	obs, err := observability.New(ctx, cfg)
	if err != nil {
		log.Fatalf("build observability: %v", err)
	}
	logger, metrics, err := obs.ComponentsScoped("dategenerator")
	if err != nil {
		log.Fatalf("scope observability: %v", err)
	}

	lambda.Start(handler(cfg, logger, metrics))
}

func handler(cfg *config.Config, logger ports.Logger, metrics ports.Metrics) func(context.Context, Event) ([]dategen.QueryDatePlatform, error) {
	return func(_ context.Context, _ Event) ([]dategen.QueryDatePlatform, error) {
		items := dategen.Generate(dategen.Options{
			LookbackDays: cfg.DateGenerator.LookbackDays,
		})
		logger.Info("generated work items", "count", len(items))
		metrics.RecordGauge("dategenerator.items", float64(len(items)), nil)
		return items, nil
	}
}
