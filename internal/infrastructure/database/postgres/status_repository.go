package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

const statusTable = "status"

// StatusRepository implements ports.StatusRepository over the generic
// key-value status table.
type StatusRepository struct {
	db      *sqlx.DB
	logger  ports.Logger
	metrics ports.Metrics
}

// NewStatusRepository builds a StatusRepository.
func NewStatusRepository(db *sqlx.DB, logger ports.Logger, metrics ports.Metrics) *StatusRepository {
	return &StatusRepository{db: db, logger: logger, metrics: metrics}
}

// Get returns the value for key, or ("", false) if absent.
func (r *StatusRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := qb.Select("value").
		From(statusTable).
		Where(squirrel.Eq{"key_name": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build select: %w", err)
	}

	var value string
	if err := r.db.GetContext(ctx, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get status %q: %w", key, err)
	}
	return value, true, nil
}

// Upsert creates or overwrites the value for key.
func (r *StatusRepository) Upsert(ctx context.Context, key, value string) error {
	query, args, err := qb.Insert(statusTable).
		Columns("key_name", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key_name) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert status %q: %w", key, err)
	}
	return nil
}
