package ports

import (
	"context"
	"fmt"
	"io"
	"time"
)

// SearchResult is one item returned by a catalog search page, grounded on
// original_source/lambdas/link_fetcher/app/common.py:SearchResult.
type SearchResult struct {
	ImageID        string
	Filename       string
	TileID         string
	Size           int64
	BeginPosition  time.Time
	EndPosition    time.Time
	IngestionDate  time.Time
	DownloadURL    string
	Checksum       string
}

// SearchParams parametrises one page request against the catalog API,
// per spec.md §4.2.1 step 2-3.
type SearchParams struct {
	Date     time.Time
	Platform string
	// Index is the 1-based offset into the result set ($skip-equivalent
	// with +1 applied, matching the original's "index" query parameter).
	Index int
	// PageSize is the number of results requested per page.
	PageSize int
}

// CatalogClient pages the upstream catalog API (spec.md §6, "Upstream
// catalog API").
type CatalogClient interface {
	// SearchPage returns one page of results and the total number of
	// results matching the query (independent of paging), or -1 when the
	// upstream does not report a total, per spec.md §4.2.1 step 3-4.
	SearchPage(ctx context.Context, params SearchParams) (results []SearchResult, total int64, err error)
}

// ChecksumClient retrieves the authoritative MD5 checksum for a granule
// from the upstream product metadata endpoint (spec.md §6).
type ChecksumClient interface {
	GetChecksum(ctx context.Context, granuleID string) (string, error)
}

// DownloadCredentials is the Basic Auth pair used against the upstream
// download endpoint, selected per spec.md §4.3 step 4 (SciHub vs
// IntHub2).
type DownloadCredentials struct {
	Username string
	Password string
}

// Downloader streams a granule's archive from the upstream download
// endpoint (spec.md §6, "Upstream download endpoint").
type Downloader interface {
	// Fetch streams the body at downloadURL using creds for Basic Auth,
	// rewriting the host to the IntHub2 host first when useIntHub2 is
	// set (spec.md §4.3 step 4). Callers must close the returned
	// ReadCloser.
	Fetch(ctx context.Context, downloadURL string, useIntHub2 bool, creds DownloadCredentials) (io.ReadCloser, error)
}

// ErrUpstreamExpired signals that the upstream reports a product as no
// longer retrievable (404/410), the terminal "expired" branch of spec.md
// §4.3. Downloader implementations wrap it with the granule id via
// fmt.Errorf("...: %w", ...) so callers can still test with errors.Is.
var ErrUpstreamExpired = fmt.Errorf("upstream reports granule expired")
