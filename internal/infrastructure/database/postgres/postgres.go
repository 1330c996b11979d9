// Package postgres implements the repository ports against PostgreSQL
// using sqlx for scanning and squirrel for query building, in the style
// of the teacher's shared/infrastructure/database and
// shared/infrastructure/repository packages.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
)

// qb is the shared squirrel builder configured for Postgres's $N
// placeholder syntax.
var qb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Connect opens and pings a PostgreSQL connection per cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return conn, nil
}

// Repositories bundles the three repository adapters sharing one pool, so
// cmd/ entrypoints construct them together.
type Repositories struct {
	Granules      ports.GranuleRepository
	GranuleCounts ports.GranuleCountRepository
	Statuses      ports.StatusRepository
}

// NewRepositories builds all three repositories over db.
func NewRepositories(db *sqlx.DB, logger ports.Logger, metrics ports.Metrics) *Repositories {
	return &Repositories{
		Granules:      NewGranuleRepository(db, logger, metrics),
		GranuleCounts: NewGranuleCountRepository(db, logger, metrics),
		Statuses:      NewStatusRepository(db, logger, metrics),
	}
}
