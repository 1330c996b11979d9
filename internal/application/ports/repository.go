package ports

import (
	"context"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granulecount"
)

// ErrAlreadyExists is returned by GranuleRepository.Insert when a granule
// with the same id already exists, the idempotent-insert branch of
// admission (spec.md §4.2.3).
var ErrAlreadyExists = granuleAlreadyExistsError{}

type granuleAlreadyExistsError struct{}

func (granuleAlreadyExistsError) Error() string { return "granule already exists" }

// GranuleRepository persists and mutates Granule rows. AcquireLease is a
// conditional update that reports whether it applied, so callers can detect
// a lost race without relying on a prior read. The Commit* methods and
// UpdateChecksum update the row by id with no condition on its current
// state and do not report whether a row matched.
type GranuleRepository interface {
	// Insert performs the conditional insert described in spec.md
	// §4.2.3: it returns ErrAlreadyExists (not an error the caller should
	// treat as fatal) when the id is already present.
	Insert(ctx context.Context, g *granule.Granule) error

	// Get returns the granule with the given id, or granule.ErrNotFound.
	Get(ctx context.Context, id string) (*granule.Granule, error)

	// AcquireLease atomically transitions a granule from
	// (downloaded=false, in_progress=false) to in_progress=true,
	// recording download_started=now. It returns false (no error) when
	// the lease could not be acquired because another worker already
	// holds it, unless that lease is older than granule.LeaseTimeout, in
	// which case it is reclaimed. It also returns false with no error when
	// the row does not exist or downloaded is already true; callers that
	// need to tell these cases apart read the row first.
	AcquireLease(ctx context.Context, id string, now time.Time) (*granule.Granule, bool, error)

	// CommitDownload records a successful download (spec.md §4.3 step
	// 6) and releases the lease.
	CommitDownload(ctx context.Context, id string, finishedAt time.Time, checksum, location string) error

	// CommitTransientFailure releases the lease and increments
	// download_retries (spec.md §4.3 step 7).
	CommitTransientFailure(ctx context.Context, id string, checksum string) error

	// CommitAbandoned releases the lease without changing retries
	// (spec.md §4.3 step 2).
	CommitAbandoned(ctx context.Context, id string) error

	// CommitExpired marks the granule expired and releases the lease
	// (spec.md §4.3, upstream 404/410/expired branch).
	CommitExpired(ctx context.Context, id string) error

	// UpdateChecksum updates the checksum field independently of a
	// state transition, per the "checksum drift" behaviour in spec.md
	// §9.
	UpdateChecksum(ctx context.Context, id, checksum string) error

	// SelectUndownloaded returns all granules for a given ingestion date
	// with downloaded=false, for the requeuer (spec.md §4.4).
	SelectUndownloaded(ctx context.Context, ingestionDate time.Time) ([]*granule.Granule, error)
}

// GranuleCountRepository persists per-(date, platform) discovery progress.
type GranuleCountRepository interface {
	// GetOrCreate returns the existing row for (date, platform) or
	// creates one with zeroed counters (spec.md §4.2.1 step 1).
	GetOrCreate(ctx context.Context, date time.Time, platform string) (*granulecount.GranuleCount, error)

	// UpdateAvailableLinks sets available_links when the upstream total
	// exceeds the stored value (spec.md §4.2.1 step 4).
	UpdateAvailableLinks(ctx context.Context, date time.Time, platform string, total int64) error

	// IncrementFetchedLinks adds delta to fetched_links and refreshes
	// last_fetched_time (spec.md §4.2.1 step 8).
	IncrementFetchedLinks(ctx context.Context, date time.Time, platform string, delta int64) error
}

// StatusRepository persists the generic key-value status table.
type StatusRepository interface {
	// Get returns the value for key, or ("", false) if absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Upsert creates or overwrites the value for key.
	Upsert(ctx context.Context, key, value string) error
}
