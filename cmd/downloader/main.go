// Command downloader runs the download worker (spec.md §4.3): it drains
// the "to-download" SQS queue, fetching, checksumming, and uploading each
// granule, bounded to MaxConcurrency simultaneous in-flight downloads per
// invocation.
package main

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/downloader"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/catalog/cdse"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/database/postgres"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/httpclient"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/queue/sqs"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/secrets/secretsmanager"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/secrets/ssm"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/storage/s3"
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
	logger, metrics, err := obs.ComponentsScoped("downloader")
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

	uploader, err := s3.New(ctx, cfg.AWS.Region, s3.StaticCredentials{
		AccessKeyID:     cfg.AWS.StaticAccessKeyID,
		SecretAccessKey: cfg.AWS.StaticSecretAccessKey,
	}, logger, metrics)
	if err != nil {
		log.Fatalf("build s3 uploader: %v", err)
	}

	creds, err := secretsmanager.New(ctx, cfg.AWS.Region, logger)
	if err != nil {
		log.Fatalf("build secrets provider: %v", err)
	}

	var tokens ports.TokenProvider
	if cfg.AWS.CopernicusTokenParam != "" {
		tokens, err = ssm.New(ctx, cfg.AWS.Region, cfg.AWS.CopernicusTokenParam, logger)
		if err != nil {
			log.Fatalf("build token provider: %v", err)
		}
	}

	httpClient := httpclient.New(0)
	worker := downloader.New(
		repos.Granules,
		repos.Statuses,
		cdse.NewChecksumClient(cdse.DefaultChecksumURL, httpClient),
		cdse.NewDownloader(httpClient, tokens),
		uploader,
		publisher,
		creds,
		downloader.Config{
			UseIntHub2:   cfg.Downloader.UseIntHub2,
			MaxRetries:   cfg.Downloader.MaxDownloadRetries,
			UploadBucket: cfg.AWS.UploadBucket,
		},
		logger,
		metrics,
	)

	lambda.Start(handleSQSEvent(worker, logger))
}

func handleSQSEvent(worker *downloader.Worker, logger ports.Logger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		response := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}

		sem := make(chan struct{}, downloader.MaxConcurrency)
		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, record := range event.Records {
			record := record

			var msg ports.DownloadMessage
			if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
				logger.Error("invalid download message, dropping", "error", err, "message_id", record.MessageId)
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				if err := worker.Process(ctx, msg); err != nil {
					logger.Error("download failed, broker will redeliver", "error", err, "granule_id", msg.ID)
					mu.Lock()
					response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
					mu.Unlock()
				}
			}()
		}

		wg.Wait()
		return response, nil
	}
}
