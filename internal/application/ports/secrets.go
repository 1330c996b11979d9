package ports

import "context"

// CredentialsProvider fetches named upstream credentials (spec.md §6,
// "Secrets": scihub-credentials, inthub2-credentials).
type CredentialsProvider interface {
	GetCredentials(ctx context.Context, secretName string) (DownloadCredentials, error)
}

// TokenProvider fetches a short-lived bearer token used to authenticate
// against the Copernicus zipper download endpoint, recovered from
// original_source/lambdas/downloader/handler.py:get_copernicus_token (see
// SPEC_FULL.md §3, "Copernicus token retrieval").
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}
