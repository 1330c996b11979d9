// Command linkfetcher runs the polling link fetcher (spec.md §4.2.1): one
// (date, platform) work item in, one page of catalog results admitted,
// and a {completed} result the orchestrator uses to decide whether to
// re-invoke for the same work item.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/fetcher"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/catalog/cdse"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/database/postgres"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/httpclient"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/queue/sqs"
)

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
	logger, metrics, err := obs.ComponentsScoped("linkfetcher")
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

	tiles, err := tileset.Load(cfg.Subscription.AcceptedTileIDsFile)
	if err != nil {
		log.Fatalf("load tile allowlist: %v", err)
	}

	catalogClient := cdse.New(cdse.DefaultSearchURL, httpclient.New(0))
	admitter := admission.New(repos.Granules, publisher, logger, metrics)
	poller := fetcher.NewPoller(catalogClient, repos.GranuleCounts, repos.Statuses, tiles, admitter, logger, metrics)

	lambda.Start(poller.Run)
}
