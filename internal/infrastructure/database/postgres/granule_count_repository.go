package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granulecount"
)

const granuleCountTable = "granule_count"

type granuleCountRow struct {
	Date            time.Time    `db:"date"`
	Platform        string       `db:"platform_name"`
	AvailableLinks  int64        `db:"available_links"`
	FetchedLinks    int64        `db:"fetched_links"`
	LastFetchedTime sql.NullTime `db:"last_fetched_time"`
}

func (r granuleCountRow) toDomain() *granulecount.GranuleCount {
	gc := &granulecount.GranuleCount{
		Date:           r.Date,
		Platform:       r.Platform,
		AvailableLinks: r.AvailableLinks,
		FetchedLinks:   r.FetchedLinks,
	}
	if r.LastFetchedTime.Valid {
		gc.LastFetchedTime = r.LastFetchedTime.Time
	}
	return gc
}

// GranuleCountRepository implements ports.GranuleCountRepository.
type GranuleCountRepository struct {
	db      *sqlx.DB
	logger  ports.Logger
	metrics ports.Metrics
}

// NewGranuleCountRepository builds a GranuleCountRepository.
func NewGranuleCountRepository(db *sqlx.DB, logger ports.Logger, metrics ports.Metrics) *GranuleCountRepository {
	return &GranuleCountRepository{db: db, logger: logger, metrics: metrics}
}

// GetOrCreate returns the existing row for (date, platform), creating a
// zeroed one if absent, per spec.md §4.2.1 step 1.
func (r *GranuleCountRepository) GetOrCreate(ctx context.Context, date time.Time, platform string) (*granulecount.GranuleCount, error) {
	selectQuery, selectArgs, err := qb.Select("*").
		From(granuleCountTable).
		Where(squirrel.Eq{"date": date, "platform_name": platform}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row granuleCountRow
	err = r.db.GetContext(ctx, &row, selectQuery, selectArgs...)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get granule count for %s/%s: %w", date.Format("2006-01-02"), platform, err)
	}

	gc := granulecount.New(date, platform)
	insertQuery, insertArgs, err := qb.Insert(granuleCountTable).
		Columns("date", "platform_name", "available_links", "fetched_links").
		Values(gc.Date, gc.Platform, gc.AvailableLinks, gc.FetchedLinks).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		return nil, fmt.Errorf("create granule count for %s/%s: %w", date.Format("2006-01-02"), platform, err)
	}

	r.metrics.IncrementCounter("repository.granule_count.created", nil)
	return gc, nil
}

// UpdateAvailableLinks sets available_links when total exceeds the stored
// value, per spec.md §4.2.1 step 4.
func (r *GranuleCountRepository) UpdateAvailableLinks(ctx context.Context, date time.Time, platform string, total int64) error {
	query, args, err := qb.Update(granuleCountTable).
		Set("available_links", total).
		Where(squirrel.And{
			squirrel.Eq{"date": date, "platform_name": platform},
			squirrel.Lt{"available_links": total},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update available links for %s/%s: %w", date.Format("2006-01-02"), platform, err)
	}
	return nil
}

// IncrementFetchedLinks adds delta to fetched_links and refreshes
// last_fetched_time, per spec.md §4.2.1 step 8.
func (r *GranuleCountRepository) IncrementFetchedLinks(ctx context.Context, date time.Time, platform string, delta int64) error {
	query, args, err := qb.Update(granuleCountTable).
		Set("fetched_links", squirrel.Expr("fetched_links + ?", delta)).
		Set("last_fetched_time", time.Now().UTC()).
		Where(squirrel.Eq{"date": date, "platform_name": platform}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment fetched links for %s/%s: %w", date.Format("2006-01-02"), platform, err)
	}
	return nil
}
