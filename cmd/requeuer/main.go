// Command requeuer runs the operator-triggered backfill (spec.md §4.4):
// given a date and an explicit dry_run flag, it lists (and optionally
// re-admits) undownloaded granules for that date.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/requeuer"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/database/postgres"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/queue/sqs"
)

// Event is the requeuer's invocation payload. DryRun is a *bool so its
// absence, per spec.md §4.4, is distinguishable from an explicit false.
type Event struct {
	DryRun *bool  `json:"dry_run"`
	Date   string `json:"date"`
}

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
	logger, metrics, err := obs.ComponentsScoped("requeuer")
	if err != nil {
		log.Fatalf("scope observability: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	repos := postgres.NewRepositories(db, logger, metrics)

	publisher, err := sqs.New(ctx, cfg.AWS.Region, cfg.AWS.ToDownloadQueue, logger, metrics)
	if err != nil {
		log.Fatalf("build sqs publisher: %v", err)
	}

	rq := requeuer.New(repos.Granules, publisher, logger, metrics)

	lambda.Start(func(ctx context.Context, event Event) (requeuer.Result, error) {
		return rq.Run(ctx, requeuer.Request{DryRun: event.DryRun, Date: event.Date})
	})
}
