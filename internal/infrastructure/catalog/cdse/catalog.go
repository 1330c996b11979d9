// Package cdse implements ports.CatalogClient, ports.ChecksumClient, and
// ports.Downloader against the Copernicus Data Space Ecosystem's
// OpenSearch, OData, and zipper endpoints, grounded on
// original_source/lambdas/link_fetcher/app/search_handler.go and
// original_source/lambdas/downloader/handler.py, expressed in the
// teacher's HTTP client idiom (shared/infrastructure/http/client.go).
package cdse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
)

// DefaultSearchURL is the OpenSearch catalog root, overridable for tests
// and non-production stages.
const DefaultSearchURL = "https://catalogue.dataspace.copernicus.eu"

// searchMaxAttempts and defaultSearchBackoffBase implement spec.md
// §4.2.3's Catalog API retry contract ("5xx / network: retried with
// exponential backoff (base 2s, 7 attempts)"), adapted from the teacher's
// shared/domain/handler/middleware/retry.go calculateBackoff.
const (
	searchMaxAttempts        = 7
	defaultSearchBackoffBase = 2 * time.Second
)

// oldestAcquisitionWindow bounds how far back startDate reaches relative
// to the queried day, per search_handler.go:get_query_parameters.
const oldestAcquisitionWindow = 30 * 24 * time.Hour

// CatalogClient implements ports.CatalogClient against the OpenSearch
// collections API.
type CatalogClient struct {
	httpClient        *http.Client
	searchURL         string
	searchBackoffBase time.Duration
}

// Option configures a CatalogClient beyond its required constructor args.
type Option func(*CatalogClient)

// WithSearchBackoffBase overrides the base retry delay, matching the
// teacher's config-driven RetryConfig.InitialBackoff. Tests use this to
// shrink retry waits instead of exercising the real multi-second backoff.
func WithSearchBackoffBase(base time.Duration) Option {
	return func(c *CatalogClient) { c.searchBackoffBase = base }
}

// New builds a CatalogClient. searchURL defaults to DefaultSearchURL when
// empty.
func New(searchURL string, httpClient *http.Client, opts ...Option) *CatalogClient {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &CatalogClient{
		httpClient:        httpClient,
		searchURL:         searchURL,
		searchBackoffBase: defaultSearchBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchBackoff doubles the base delay per attempt: base, 2*base, 4*base,
// ... for attempts 0..searchMaxAttempts-2.
func (c *CatalogClient) searchBackoff(attempt int) time.Duration {
	return c.searchBackoffBase * time.Duration(uint64(1)<<uint(attempt))
}

type searchResponse struct {
	Properties struct {
		TotalResults *int64 `json:"totalResults"`
	} `json:"properties"`
	Features []searchFeature `json:"features"`
}

type searchFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Title       string `json:"title"`
		StartDate   string `json:"startDate"`
		Completion  string `json:"completionDate"`
		Published   string `json:"published"`
		Services    struct {
			Download struct {
				URL  string `json:"url"`
				Size string `json:"size"`
			} `json:"download"`
		} `json:"services"`
	} `json:"properties"`
}

// SearchPage queries the OpenSearch collections endpoint for one page of
// results, per spec.md §4.2.1 step 2-4, using the exact parameter set
// search_handler.go:get_query_parameters builds.
func (c *CatalogClient) SearchPage(ctx context.Context, params ports.SearchParams) ([]ports.SearchResult, int64, error) {
	query := url.Values{}
	query.Set("processingLevel", "S2MSI1C")
	query.Set("publishedAfter", params.Date.Format("2006-01-02")+"T00:00:00Z")
	query.Set("publishedBefore", params.Date.Format("2006-01-02")+"T23:59:59Z")
	query.Set("startDate", params.Date.Add(-oldestAcquisitionWindow).Format("2006-01-02")+"T00:00:00Z")
	query.Set("platform", params.Platform)
	query.Set("sortParam", "published")
	query.Set("sortOrder", "desc")
	query.Set("maxRecords", strconv.Itoa(params.PageSize))
	query.Set("index", strconv.Itoa(params.Index))
	query.Set("exactCount", "1")

	reqURL := c.searchURL + "/resto/api/collections/Sentinel2/search.json?" + query.Encode()

	resp, err := c.searchWithRetry(ctx, reqURL)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	// Mirrors search_handler.py: missing or null totalResults defaults to
	// -1 rather than 0, so callers don't mistake "unknown" for "empty".
	total := int64(-1)
	if parsed.Properties.TotalResults != nil {
		total = *parsed.Properties.TotalResults
	}

	results := make([]ports.SearchResult, 0, len(parsed.Features))
	for _, feature := range parsed.Features {
		result, err := toSearchResult(feature)
		if err != nil {
			return nil, 0, fmt.Errorf("parse search feature %s: %w", feature.ID, err)
		}
		results = append(results, result)
	}

	return results, total, nil
}

// searchWithRetry issues the GET request, retrying on 5xx responses and
// transport errors with exponential backoff. A non-5xx, non-200 response
// is a permanent failure and returns immediately without retrying.
func (c *CatalogClient) searchWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < searchMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build search request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("search catalog: unexpected status %d", resp.StatusCode)
		}

		if err != nil {
			lastErr = fmt.Errorf("search catalog: %w", err)
		} else {
			lastErr = fmt.Errorf("search catalog: unexpected status %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt == searchMaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.searchBackoff(attempt)):
		}
	}

	return nil, fmt.Errorf("search catalog: exhausted %d attempts: %w", searchMaxAttempts, lastErr)
}

func toSearchResult(feature searchFeature) (ports.SearchResult, error) {
	begin, err := time.Parse(time.RFC3339, feature.Properties.StartDate)
	if err != nil {
		return ports.SearchResult{}, fmt.Errorf("parse startDate: %w", err)
	}
	end, err := time.Parse(time.RFC3339, feature.Properties.Completion)
	if err != nil {
		return ports.SearchResult{}, fmt.Errorf("parse completionDate: %w", err)
	}
	published, err := time.Parse(time.RFC3339, feature.Properties.Published)
	if err != nil {
		return ports.SearchResult{}, fmt.Errorf("parse published: %w", err)
	}

	title := feature.Properties.Title
	tileID := tileset.ParseTileIDFromTitle(title)

	// download.size arrives as a plain byte count in this API in
	// practice; parse failures are non-fatal since size is informational
	// only (not used by admission or the download worker).
	size, _ := strconv.ParseInt(feature.Properties.Services.Download.Size, 10, 64)

	return ports.SearchResult{
		ImageID:       feature.ID,
		Filename:      title,
		TileID:        tileID,
		Size:          size,
		BeginPosition: begin,
		EndPosition:   end,
		IngestionDate: published,
		DownloadURL:   feature.Properties.Services.Download.URL,
	}, nil
}
