// Package sqs implements ports.Publisher against an SQS queue, in the
// style of the teacher's shared/infrastructure/queue/sqs.go.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Publisher implements ports.Publisher over a single fixed queue URL.
type Publisher struct {
	client   *sqs.Client
	queueURL string
	logger   ports.Logger
	metrics  ports.Metrics
}

// New builds a Publisher bound to queueURL.
func New(ctx context.Context, region, queueURL string, logger ports.Logger, metrics ports.Metrics) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SQS publisher: %w", err)
	}

	return &Publisher{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: queueURL,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// PublishDownload sends msg to the to-download queue (spec.md §6).
func (p *Publisher) PublishDownload(ctx context.Context, msg ports.DownloadMessage) error {
	start := time.Now()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal download message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.metrics.IncrementCounter("queue.publish.error", nil)
		p.logger.Error("failed to publish download message", "error", err, "granule_id", msg.ID)
		return fmt.Errorf("send download message for %s: %w", msg.ID, err)
	}

	p.metrics.IncrementCounter("queue.publish.success", nil)
	p.metrics.RecordHistogram("queue.publish.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	return nil
}
