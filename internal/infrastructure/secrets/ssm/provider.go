// Package ssm implements ports.TokenProvider against SSM Parameter Store,
// recovering the Copernicus bearer-token flow from
// original_source/lambdas/downloader/handler.py:get_copernicus_token
// (SPEC_FULL.md §3).
package ssm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Provider implements ports.TokenProvider.
type Provider struct {
	client        *ssm.Client
	parameterName string
	logger        ports.Logger
}

// New builds a Provider that reads parameterName on every GetToken call,
// since the underlying token is rotated independently of this process's
// lifetime.
func New(ctx context.Context, region, parameterName string, logger ports.Logger) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SSM token provider: %w", err)
	}
	return &Provider{client: ssm.NewFromConfig(awsCfg), parameterName: parameterName, logger: logger}, nil
}

// GetToken fetches the current Copernicus bearer token.
func (p *Provider) GetToken(ctx context.Context) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.parameterName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", p.parameterName, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %q has no value", p.parameterName)
	}
	return *out.Parameter.Value, nil
}
