package cdse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// IntHub2Host replaces the upstream download URL's host when useIntHub2 is
// set, per spec.md §4.3 step 4.
const IntHub2Host = "inthub2.copernicus.eu"

// Downloader implements ports.Downloader against the zipper download
// endpoint. When tokens is non-nil it authenticates with a Copernicus
// bearer token (SPEC_FULL.md §3, "Copernicus token retrieval"); otherwise
// it falls back to HTTP Basic Auth with the supplied credentials.
type Downloader struct {
	httpClient *http.Client
	tokens     ports.TokenProvider
}

// NewDownloader builds a Downloader. tokens may be nil to use Basic Auth
// only.
func NewDownloader(httpClient *http.Client, tokens ports.TokenProvider) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Downloader{httpClient: httpClient, tokens: tokens}
}

// Fetch streams the archive at downloadURL.
func (d *Downloader) Fetch(ctx context.Context, downloadURL string, useIntHub2 bool, creds ports.DownloadCredentials) (io.ReadCloser, error) {
	target := downloadURL
	if useIntHub2 {
		rewritten, err := rewriteHost(downloadURL, IntHub2Host)
		if err != nil {
			return nil, fmt.Errorf("rewrite download URL for IntHub2: %w", err)
		}
		target = rewritten
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	if d.tokens != nil {
		token, err := d.tokens.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("get bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch download body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("product no longer available (status %d): %w", resp.StatusCode, ports.ErrUpstreamExpired)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("download upstream: unexpected status %d", resp.StatusCode)
	}
}

func rewriteHost(rawURL, host string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	parsed.Host = host
	return parsed.String(), nil
}
