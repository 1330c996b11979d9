// Package requeuer implements the operator-triggered backfill described in
// spec.md §4.4: it finds undownloaded granules for a date and either
// re-admits them to the download queue or reports them (dry run).
package requeuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// ErrDryRunRequired is returned when the caller omits dry_run, per
// spec.md §4.4 "Validates that dry_run is explicitly present".
var ErrDryRunRequired = errors.New("dry_run must be explicitly set")

// Request is the requeuer's invocation payload, per spec.md §6 "Requeuer
// trigger". DryRun uses a pointer so its absence is distinguishable from
// an explicit false.
type Request struct {
	DryRun *bool
	Date   string
}

// AffectedGranule is one entry in the requeuer's response.
type AffectedGranule struct {
	ID       string
	Filename string
}

// Result is the requeuer's response, per spec.md §6.
type Result struct {
	Granules []AffectedGranule
}

// Requeuer implements the backfill operation.
type Requeuer struct {
	granules  ports.GranuleRepository
	publisher ports.Publisher
	logger    ports.Logger
	metrics   ports.Metrics
}

// New builds a Requeuer.
func New(granules ports.GranuleRepository, publisher ports.Publisher, logger ports.Logger, metrics ports.Metrics) *Requeuer {
	return &Requeuer{granules: granules, publisher: publisher, logger: logger, metrics: metrics}
}

// Run executes the backfill for req, per spec.md §4.4.
func (r *Requeuer) Run(ctx context.Context, req Request) (Result, error) {
	if req.DryRun == nil {
		return Result{}, ErrDryRunRequired
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return Result{}, fmt.Errorf("parse date %q: %w", req.Date, err)
	}

	granules, err := r.granules.SelectUndownloaded(ctx, date)
	if err != nil {
		return Result{}, fmt.Errorf("select undownloaded granules for %s: %w", req.Date, err)
	}

	result := Result{Granules: make([]AffectedGranule, 0, len(granules))}
	for _, g := range granules {
		result.Granules = append(result.Granules, AffectedGranule{ID: g.ID, Filename: g.Filename})

		if *req.DryRun {
			continue
		}

		msg := ports.DownloadMessage{ID: g.ID, Filename: g.Filename, DownloadURL: g.DownloadURL, Checksum: g.Checksum}
		if err := r.publisher.PublishDownload(ctx, msg); err != nil {
			return result, fmt.Errorf("publish requeue message for %s: %w", g.ID, err)
		}
	}

	r.logger.Info("requeue completed", "date", req.Date, "dry_run", *req.DryRun, "affected", len(result.Granules))
	r.metrics.RecordGauge("requeuer.affected", float64(len(result.Granules)), map[string]string{"dry_run": fmt.Sprintf("%t", *req.DryRun)})

	return result, nil
}
