// Package admission implements the shared, exactly-once granule admission
// routine used by both link fetcher modes (spec.md §4.2.3).
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
)

// Admitter performs the conditional-insert-then-publish routine described
// in spec.md §4.2.3.
type Admitter struct {
	granules  ports.GranuleRepository
	publisher ports.Publisher
	logger    ports.Logger
	metrics   ports.Metrics
}

// New builds an Admitter.
func New(granules ports.GranuleRepository, publisher ports.Publisher, logger ports.Logger, metrics ports.Metrics) *Admitter {
	return &Admitter{granules: granules, publisher: publisher, logger: logger, metrics: metrics}
}

// Admit inserts result as a new granule row and publishes exactly one
// "to-download" message, atomically with the insert from the caller's
// point of view: if the insert finds the id already present, this is a
// no-op (no reinsert, no re-publish) and returns nil. Database errors
// roll back and are returned so the caller does not publish.
func (a *Admitter) Admit(ctx context.Context, result ports.SearchResult) error {
	g := granule.New(
		result.ImageID,
		result.Filename,
		result.TileID,
		result.Size,
		result.Checksum,
		result.BeginPosition,
		result.EndPosition,
		result.IngestionDate,
		result.DownloadURL,
	)

	if err := a.granules.Insert(ctx, g); err != nil {
		if errors.Is(err, ports.ErrAlreadyExists) {
			a.logger.Info("granule already admitted, skipping", "granule_id", result.ImageID)
			a.metrics.IncrementCounter("admission.duplicate", map[string]string{"tile_id": result.TileID})
			return nil
		}
		a.metrics.IncrementCounter("admission.db_error", nil)
		return fmt.Errorf("insert granule %s: %w", result.ImageID, err)
	}

	msg := ports.DownloadMessage{
		ID:          g.ID,
		Filename:    g.Filename,
		DownloadURL: g.DownloadURL,
		Checksum:    g.Checksum,
	}
	if err := a.publisher.PublishDownload(ctx, msg); err != nil {
		// The row is already committed; spec.md §5 accepts this as a
		// rare missed-publish window the requeuer can repair, rather
		// than requiring a transactional outbox.
		a.logger.Error("granule admitted but publish failed, requeuer will repair", "granule_id", result.ImageID, "error", err)
		a.metrics.IncrementCounter("admission.publish_error", nil)
		return fmt.Errorf("publish download message for %s: %w", result.ImageID, err)
	}

	a.metrics.IncrementCounter("admission.success", map[string]string{"tile_id": result.TileID})
	return nil
}

// AdmitAll admits every result in turn, continuing past per-item errors so
// one bad granule does not block the rest of the page; it returns the
// first error encountered (if any) after attempting all of them.
func (a *Admitter) AdmitAll(ctx context.Context, results []ports.SearchResult) error {
	var firstErr error
	for _, result := range results {
		if err := a.Admit(ctx, result); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
