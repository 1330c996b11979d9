// Package s3 implements ports.Uploader against an S3 bucket, in the style
// of the teacher's shared/storage/adapters/s3/client.go.
package s3

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Uploader implements ports.Uploader.
type Uploader struct {
	client  *s3.Client
	logger  ports.Logger
	metrics ports.Metrics
}

// StaticCredentials overrides the SDK's default credential chain with a
// fixed access key pair, for S3-compatible endpoints in local/dev
// environments that don't carry an AWS profile. Zero value leaves the
// default chain (instance role, env vars, shared config) in place.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// New builds an Uploader.
func New(ctx context.Context, region string, staticCreds StaticCredentials, logger ports.Logger, metrics ports.Metrics) (*Uploader, error) {
	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if staticCreds.AccessKeyID != "" && staticCreds.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(staticCreds.AccessKeyID, staticCreds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for S3 uploader: %w", err)
	}

	return &Uploader{
		client:  s3.NewFromConfig(awsCfg),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Upload stores body under bucket/key, setting Content-MD5 from
// checksumHex so S3 rejects the object server-side on a mismatch. S3
// expects Content-MD5 base64-encoded, while the upstream catalog and this
// repo's checksum column carry the hex form, so this converts hex to
// base64 before the PutObject call, per
// original_source/lambdas/downloader/handler.py:generate_aws_checksum.
func (u *Uploader) Upload(ctx context.Context, bucket, key string, body io.Reader, checksumHex string) (string, error) {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}

	if checksumHex != "" {
		raw, err := hex.DecodeString(checksumHex)
		if err != nil {
			return "", fmt.Errorf("decode checksum %q: %w", checksumHex, err)
		}
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(raw))
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		u.metrics.IncrementCounter("storage.upload.error", nil)
		u.logger.Error("failed to upload object", "error", err, "bucket", bucket, "key", key)
		return "", fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}

	u.metrics.IncrementCounter("storage.upload.success", nil)
	u.metrics.RecordHistogram("storage.upload.duration_ms", float64(time.Since(start).Milliseconds()), nil)
	return fmt.Sprintf("%s/%s", bucket, key), nil
}
