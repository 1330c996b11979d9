package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
)

const granuleTable = "granule"

// granuleRow mirrors the granule table's columns for sqlx scanning;
// nullable columns use sql.Null* / pointer types as spec.md §3 requires.
type granuleRow struct {
	ID                          string         `db:"id"`
	Filename                    string         `db:"filename"`
	TileID                      string         `db:"tileid"`
	Size                        int64          `db:"size"`
	Checksum                    string         `db:"checksum"`
	BeginPosition               time.Time      `db:"beginposition"`
	EndPosition                 time.Time      `db:"endposition"`
	IngestionDate               time.Time      `db:"ingestiondate"`
	DownloadURL                 string         `db:"download_url"`
	Downloaded                  bool           `db:"downloaded"`
	InProgress                  bool           `db:"in_progress"`
	UploadedGranuleFileLocation sql.NullString `db:"uploaded_granule_file_location"`
	DownloadStarted             sql.NullTime   `db:"download_started"`
	DownloadFinished            sql.NullTime   `db:"download_finished"`
	DownloadRetries             int            `db:"download_retries"`
	Expired                     bool           `db:"expired"`
}

func (r granuleRow) toDomain() *granule.Granule {
	g := &granule.Granule{
		ID:              r.ID,
		Filename:        r.Filename,
		TileID:          r.TileID,
		Size:            r.Size,
		Checksum:        r.Checksum,
		BeginPosition:   r.BeginPosition,
		EndPosition:     r.EndPosition,
		IngestionDate:   r.IngestionDate,
		DownloadURL:     r.DownloadURL,
		Downloaded:      r.Downloaded,
		InProgress:      r.InProgress,
		DownloadRetries: r.DownloadRetries,
		Expired:         r.Expired,
	}
	if r.UploadedGranuleFileLocation.Valid {
		location := r.UploadedGranuleFileLocation.String
		g.UploadedGranuleFileLocation = &location
	}
	if r.DownloadStarted.Valid {
		started := r.DownloadStarted.Time
		g.DownloadStarted = &started
	}
	if r.DownloadFinished.Valid {
		finished := r.DownloadFinished.Time
		g.DownloadFinished = &finished
	}
	return g
}

// GranuleRepository implements ports.GranuleRepository over Postgres.
type GranuleRepository struct {
	db      *sqlx.DB
	logger  ports.Logger
	metrics ports.Metrics
}

// NewGranuleRepository builds a GranuleRepository.
func NewGranuleRepository(db *sqlx.DB, logger ports.Logger, metrics ports.Metrics) *GranuleRepository {
	return &GranuleRepository{db: db, logger: logger, metrics: metrics}
}

// uniqueViolation is Postgres's SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

// Insert performs the conditional insert underlying admission (spec.md
// §4.2.3), relying on a unique constraint on id to make duplicate inserts
// fail rather than silently overwrite.
func (r *GranuleRepository) Insert(ctx context.Context, g *granule.Granule) error {
	query, args, err := qb.Insert(granuleTable).
		Columns("id", "filename", "tileid", "size", "checksum", "beginposition", "endposition",
			"ingestiondate", "download_url", "downloaded", "in_progress", "download_retries", "expired").
		Values(g.ID, g.Filename, g.TileID, g.Size, g.Checksum, g.BeginPosition, g.EndPosition,
			g.IngestionDate, g.DownloadURL, g.Downloaded, g.InProgress, g.DownloadRetries, g.Expired).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ports.ErrAlreadyExists
		}
		r.metrics.IncrementCounter("repository.granule.insert_error", nil)
		return fmt.Errorf("insert granule %s: %w", g.ID, err)
	}

	r.metrics.IncrementCounter("repository.granule.insert", nil)
	return nil
}

// Get returns the granule with the given id.
func (r *GranuleRepository) Get(ctx context.Context, id string) (*granule.Granule, error) {
	query, args, err := qb.Select("*").From(granuleTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row granuleRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, granule.ErrNotFound
		}
		return nil, fmt.Errorf("get granule %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// AcquireLease atomically transitions a pending or stale-leased granule
// to in_progress=true, per spec.md §4.3 step 1 and §9 "Stale lease
// recovery". The WHERE clause is the compare-and-set: it only matches
// rows that are not downloaded and are either unleased or leased past
// granule.LeaseTimeout.
func (r *GranuleRepository) AcquireLease(ctx context.Context, id string, now time.Time) (*granule.Granule, bool, error) {
	staleBefore := now.Add(-granule.LeaseTimeout)

	query, args, err := qb.Update(granuleTable).
		Set("in_progress", true).
		Set("download_started", now).
		Where(squirrel.And{
			squirrel.Eq{"id": id},
			squirrel.Eq{"downloaded": false},
			squirrel.Or{
				squirrel.Eq{"in_progress": false},
				squirrel.Lt{"download_started": staleBefore},
			},
		}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build lease update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease for %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("read rows affected: %w", err)
	}
	if rows == 0 {
		// Either the row doesn't exist, is already downloaded, or is
		// leased by another live worker; the caller treats all three as
		// "could not acquire" except not-found, which it surfaces by
		// re-fetching if it needs to distinguish them.
		return nil, false, nil
	}

	g, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	r.metrics.IncrementCounter("repository.granule.lease_acquired", nil)
	return g, true, nil
}

// CommitDownload records a successful download, per spec.md §4.3 step 6.
func (r *GranuleRepository) CommitDownload(ctx context.Context, id string, finishedAt time.Time, checksum, location string) error {
	query, args, err := qb.Update(granuleTable).
		Set("downloaded", true).
		Set("in_progress", false).
		Set("download_finished", finishedAt).
		Set("uploaded_granule_file_location", location).
		Set("checksum", checksum).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build commit-download update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("commit download for %s: %w", id, err)
	}
	return nil
}

// CommitTransientFailure releases the lease and increments retries, per
// spec.md §4.3 step 7.
func (r *GranuleRepository) CommitTransientFailure(ctx context.Context, id string, checksum string) error {
	query, args, err := qb.Update(granuleTable).
		Set("in_progress", false).
		Set("download_retries", squirrel.Expr("download_retries + 1")).
		Set("checksum", checksum).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build transient-failure update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("commit transient failure for %s: %w", id, err)
	}
	return nil
}

// CommitAbandoned clears the lease without touching retries, per spec.md
// §4.3 step 2.
func (r *GranuleRepository) CommitAbandoned(ctx context.Context, id string) error {
	query, args, err := qb.Update(granuleTable).
		Set("in_progress", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build abandon update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("commit abandoned for %s: %w", id, err)
	}
	return nil
}

// CommitExpired marks the granule expired, per the upstream 404/410
// branch of spec.md §4.3.
func (r *GranuleRepository) CommitExpired(ctx context.Context, id string) error {
	query, args, err := qb.Update(granuleTable).
		Set("in_progress", false).
		Set("expired", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build expire update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("commit expired for %s: %w", id, err)
	}
	return nil
}

// UpdateChecksum updates checksum independently of any state transition,
// for the "checksum drift" behaviour in spec.md §9.
func (r *GranuleRepository) UpdateChecksum(ctx context.Context, id, checksum string) error {
	query, args, err := qb.Update(granuleTable).
		Set("checksum", checksum).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build checksum update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update checksum for %s: %w", id, err)
	}
	return nil
}

// SelectUndownloaded returns all undownloaded granules for ingestionDate,
// for the requeuer (spec.md §4.4).
func (r *GranuleRepository) SelectUndownloaded(ctx context.Context, ingestionDate time.Time) ([]*granule.Granule, error) {
	query, args, err := qb.Select("*").
		From(granuleTable).
		Where(squirrel.Eq{"ingestiondate": ingestionDate, "downloaded": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build undownloaded select: %w", err)
	}

	var rows []granuleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select undownloaded granules: %w", err)
	}

	granules := make([]*granule.Granule, 0, len(rows))
	for _, row := range rows {
		granules = append(granules, row.toDomain())
	}
	return granules, nil
}
