// Package granule holds the central entity of the downloader pipeline: one
// Sentinel-2 product moving through admission, download, and terminal
// states.
package granule

import (
	"errors"
	"time"
)

// MaxRetries bounds download_retries before a granule is abandoned.
// Overridable per deployment via configuration; this is the spec default.
const MaxRetries = 10

// LeaseTimeout is how long an in_progress=true lease is honored before a
// later worker may treat it as abandoned by a crashed/killed worker.
const LeaseTimeout = 15 * time.Minute

var (
	ErrNotFound           = errors.New("granule not found")
	ErrAlreadyDownloaded   = errors.New("granule already downloaded")
	ErrLeaseHeld           = errors.New("granule lease held by another worker")
	ErrRetryLimitReached   = errors.New("granule retry limit reached")
)

// Granule is the central entity. Field names and nullability follow
// spec.md §3 exactly.
type Granule struct {
	ID                          string
	Filename                    string
	TileID                      string
	Size                        int64
	Checksum                    string
	BeginPosition               time.Time
	EndPosition                 time.Time
	IngestionDate               time.Time
	DownloadURL                 string
	Downloaded                  bool
	InProgress                  bool
	UploadedGranuleFileLocation *string
	DownloadStarted             *time.Time
	DownloadFinished            *time.Time
	DownloadRetries             int
	Expired                     bool
}

// New constructs a granule in its initial "admitted" state: downloaded and
// in_progress both false, retries at zero. This is the only constructor
// admission (§4.2.3) should use.
func New(id, filename, tileID string, size int64, checksum string, begin, end, ingestion time.Time, downloadURL string) *Granule {
	return &Granule{
		ID:             id,
		Filename:       filename,
		TileID:         tileID,
		Size:           size,
		Checksum:       checksum,
		BeginPosition:  begin,
		EndPosition:    end,
		IngestionDate:  ingestion,
		DownloadURL:    downloadURL,
		Downloaded:     false,
		InProgress:     false,
		DownloadRetries: 0,
		Expired:        false,
	}
}

// LeaseExpired reports whether an in_progress lease is older than
// LeaseTimeout and may be safely reclaimed by another worker. See
// spec.md §9, "Stale lease recovery".
func (g *Granule) LeaseExpired(now time.Time) bool {
	if !g.InProgress || g.DownloadStarted == nil {
		return false
	}
	return now.Sub(*g.DownloadStarted) > LeaseTimeout
}

// RetryLimitReached reports whether the granule has exhausted its retry
// budget and must not be requeued again automatically.
func (g *Granule) RetryLimitReached(maxRetries int) bool {
	return g.DownloadRetries >= maxRetries
}

// MarkInProgress sets the lease fields for a worker that has just won the
// lease. Callers are expected to persist this via a conditional update
// that only succeeds when the prior state was not already leased (see
// internal/application/ports.GranuleRepository.AcquireLease).
func (g *Granule) MarkInProgress(now time.Time) {
	g.InProgress = true
	g.DownloadStarted = &now
}

// MarkDownloaded transitions the granule to its terminal success state.
func (g *Granule) MarkDownloaded(now time.Time, location string) {
	g.Downloaded = true
	g.InProgress = false
	finished := now
	g.DownloadFinished = &finished
	g.UploadedGranuleFileLocation = &location
}

// MarkTransientFailure clears the lease and increments the retry counter,
// per the transient-failure transition in spec.md §4.3 step 7.
func (g *Granule) MarkTransientFailure() {
	g.InProgress = false
	g.DownloadRetries++
}

// MarkAbandoned clears the lease without incrementing retries; used when
// the retry cap has already been reached (spec.md §4.3 step 2).
func (g *Granule) MarkAbandoned() {
	g.InProgress = false
}

// MarkExpired transitions the granule to its terminal expired state, per
// the upstream-404/410 branch of the state machine in spec.md §4.3.
func (g *Granule) MarkExpired() {
	g.InProgress = false
	g.Expired = true
}
