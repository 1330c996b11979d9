// Package secretsmanager implements ports.CredentialsProvider against AWS
// Secrets Manager, grounded on the teacher's AWS SDK v2 bootstrap pattern
// (shared/storage/adapters/s3/client.go) generalized to a different
// service client.
package secretsmanager

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Provider implements ports.CredentialsProvider.
type Provider struct {
	client *secretsmanager.Client
	logger ports.Logger
}

// New builds a Provider.
func New(ctx context.Context, region string, logger ports.Logger) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for secrets provider: %w", err)
	}
	return &Provider{client: secretsmanager.NewFromConfig(awsCfg), logger: logger}, nil
}

// secretValue is the JSON shape stored for the scihub-credentials and
// inthub2-credentials secrets (spec.md §6, "Secrets").
type secretValue struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetCredentials fetches and parses a named Basic Auth secret.
func (p *Provider) GetCredentials(ctx context.Context, secretName string) (ports.DownloadCredentials, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return ports.DownloadCredentials{}, fmt.Errorf("get secret %q: %w", secretName, err)
	}

	var v secretValue
	if out.SecretString == nil {
		return ports.DownloadCredentials{}, fmt.Errorf("secret %q has no string value", secretName)
	}
	if err := json.Unmarshal([]byte(*out.SecretString), &v); err != nil {
		return ports.DownloadCredentials{}, fmt.Errorf("parse secret %q: %w", secretName, err)
	}

	return ports.DownloadCredentials{Username: v.Username, Password: v.Password}, nil
}
