// Package fetcher implements both link-fetcher modes: the polling page
// walker (spec.md §4.2.1) and the push/subscription handler (spec.md
// §4.2.2). Both funnel into the shared admission.Admitter.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/status"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
)

// PageSize is the fixed catalog page size requested by the polling fetcher.
const PageSize = 100

// PollRequest is the orchestrator's invocation payload for one (date,
// platform) work item, per spec.md §4.2.1.
type PollRequest struct {
	QueryDate string
	Platform  string
}

// PollResult reports whether the orchestrator should re-invoke the fetcher
// for the same (date, platform) pair.
type PollResult struct {
	Completed     bool
	GranulesSeen  int
	GranulesAdmitted int
}

// Poller implements the polling link-fetcher mode.
type Poller struct {
	catalog  ports.CatalogClient
	counts   ports.GranuleCountRepository
	statuses ports.StatusRepository
	tiles    tileset.Set
	admitter *admission.Admitter
	logger   ports.Logger
	metrics  ports.Metrics
}

// NewPoller builds a Poller.
func NewPoller(
	catalog ports.CatalogClient,
	counts ports.GranuleCountRepository,
	statuses ports.StatusRepository,
	tiles tileset.Set,
	admitter *admission.Admitter,
	logger ports.Logger,
	metrics ports.Metrics,
) *Poller {
	return &Poller{
		catalog:  catalog,
		counts:   counts,
		statuses: statuses,
		tiles:    tiles,
		admitter: admitter,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes one page of work for req, per spec.md §4.2.1 steps 1-9.
func (p *Poller) Run(ctx context.Context, req PollRequest) (PollResult, error) {
	date, err := time.Parse("2006-01-02", req.QueryDate)
	if err != nil {
		return PollResult{}, fmt.Errorf("parse query_date %q: %w", req.QueryDate, err)
	}

	count, err := p.counts.GetOrCreate(ctx, date, req.Platform)
	if err != nil {
		return PollResult{}, fmt.Errorf("load granule_count(%s,%s): %w", req.QueryDate, req.Platform, err)
	}

	cursorKey := status.CursorKey(req.QueryDate, req.Platform)
	cursor, err := p.loadCursor(ctx, cursorKey)
	if err != nil {
		return PollResult{}, err
	}

	results, total, err := p.catalog.SearchPage(ctx, ports.SearchParams{
		Date:     date,
		Platform: req.Platform,
		Index:    cursor + 1,
		PageSize: PageSize,
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("search catalog for (%s,%s) at index %d: %w", req.QueryDate, req.Platform, cursor, err)
	}

	availableLinks := count.AvailableLinks
	if total > availableLinks {
		availableLinks = total
		if err := p.counts.UpdateAvailableLinks(ctx, date, req.Platform, total); err != nil {
			return PollResult{}, fmt.Errorf("update available_links: %w", err)
		}
	}

	if len(results) == 0 {
		p.logger.Info("empty page, discovery complete for work item", "date", req.QueryDate, "platform", req.Platform)
		return PollResult{Completed: true}, nil
	}

	var filtered []ports.SearchResult
	for _, result := range results {
		if p.tiles.Contains(result.TileID) {
			filtered = append(filtered, result)
		}
	}

	// AdmitAll continues past per-granule errors so one bad row doesn't
	// block the rest of the page, but surfaces the first one here: a
	// database error on this page must roll the whole invocation back per
	// spec.md §4.2.3, leaving fetched_links and the cursor untouched so
	// the orchestrator retries the same page.
	if err := p.admitter.AdmitAll(ctx, filtered); err != nil {
		return PollResult{}, fmt.Errorf("admit page for (%s,%s) at index %d: %w", req.QueryDate, req.Platform, cursor, err)
	}
	admitted := len(filtered)

	if err := p.counts.IncrementFetchedLinks(ctx, date, req.Platform, int64(len(results))); err != nil {
		return PollResult{}, fmt.Errorf("increment fetched_links: %w", err)
	}

	nextCursor := cursor + len(results)
	if err := p.statuses.Upsert(ctx, cursorKey, fmt.Sprintf("%d", nextCursor)); err != nil {
		return PollResult{}, fmt.Errorf("persist cursor: %w", err)
	}
	if err := p.statuses.Upsert(ctx, status.LastLinkedFetchedTimeKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		p.logger.Error("failed to update last_linked_fetched_time", "error", err)
	}

	p.metrics.RecordGauge("fetcher.page_size", float64(len(results)), map[string]string{"platform": req.Platform})

	// available_links is the durable discovery progress for this work
	// item; a still-unknown total (availableLinks == 0, never
	// established) must not be read as "cursor already exceeds zero" —
	// completion then depends solely on the empty-page check above.
	completed := availableLinks > 0 && int64(nextCursor) > availableLinks

	return PollResult{
		Completed:        completed,
		GranulesSeen:     len(results),
		GranulesAdmitted: admitted,
	}, nil
}

func (p *Poller) loadCursor(ctx context.Context, key string) (int, error) {
	value, ok, err := p.statuses.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load cursor %q: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	var cursor int
	if _, err := fmt.Sscanf(value, "%d", &cursor); err != nil {
		return 0, fmt.Errorf("parse cursor %q=%q: %w", key, value, err)
	}
	return cursor, nil
}
