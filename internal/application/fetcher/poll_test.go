package fetcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/fetcher"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granulecount"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/status"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
)

type fakeCatalog struct {
	pages [][]ports.SearchResult
	total int64
	calls int
}

func (f *fakeCatalog) SearchPage(_ context.Context, _ ports.SearchParams) ([]ports.SearchResult, int64, error) {
	if f.calls >= len(f.pages) {
		return nil, f.total, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, f.total, nil
}

type fakeCountRepo struct {
	rows map[string]*granulecount.GranuleCount
}

func newFakeCountRepo() *fakeCountRepo {
	return &fakeCountRepo{rows: map[string]*granulecount.GranuleCount{}}
}

func key(date time.Time, platform string) string {
	return date.Format("2006-01-02") + "|" + platform
}

func (f *fakeCountRepo) GetOrCreate(_ context.Context, date time.Time, platform string) (*granulecount.GranuleCount, error) {
	k := key(date, platform)
	if c, ok := f.rows[k]; ok {
		return c, nil
	}
	c := granulecount.New(date, platform)
	f.rows[k] = c
	return c, nil
}

func (f *fakeCountRepo) UpdateAvailableLinks(_ context.Context, date time.Time, platform string, total int64) error {
	f.rows[key(date, platform)].AvailableLinks = total
	return nil
}

func (f *fakeCountRepo) IncrementFetchedLinks(_ context.Context, date time.Time, platform string, delta int64) error {
	f.rows[key(date, platform)].FetchedLinks += delta
	return nil
}

type fakeStatusRepo struct {
	values map[string]string
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{values: map[string]string{}}
}

func (f *fakeStatusRepo) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStatusRepo) Upsert(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

type fakeGranuleRepoPoll struct {
	rows      map[string]*granule.Granule
	insertErr error
}

func newFakeGranuleRepoPoll() *fakeGranuleRepoPoll {
	return &fakeGranuleRepoPoll{rows: map[string]*granule.Granule{}}
}

func (f *fakeGranuleRepoPoll) Insert(_ context.Context, g *granule.Granule) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.rows[g.ID]; ok {
		return ports.ErrAlreadyExists
	}
	f.rows[g.ID] = g
	return nil
}
func (f *fakeGranuleRepoPoll) Get(_ context.Context, id string) (*granule.Granule, error) {
	return f.rows[id], nil
}
func (f *fakeGranuleRepoPoll) AcquireLease(context.Context, string, time.Time) (*granule.Granule, bool, error) {
	return nil, false, nil
}
func (f *fakeGranuleRepoPoll) CommitDownload(context.Context, string, time.Time, string, string) error {
	return nil
}
func (f *fakeGranuleRepoPoll) CommitTransientFailure(context.Context, string, string) error { return nil }
func (f *fakeGranuleRepoPoll) CommitAbandoned(context.Context, string) error                { return nil }
func (f *fakeGranuleRepoPoll) CommitExpired(context.Context, string) error                  { return nil }
func (f *fakeGranuleRepoPoll) UpdateChecksum(context.Context, string, string) error         { return nil }
func (f *fakeGranuleRepoPoll) SelectUndownloaded(context.Context, time.Time) ([]*granule.Granule, error) {
	return nil, nil
}

type fakePublisherPoll struct {
	published []ports.DownloadMessage
}

func (f *fakePublisherPoll) PublishDownload(_ context.Context, msg ports.DownloadMessage) error {
	f.published = append(f.published, msg)
	return nil
}

type noopLoggerPoll struct{}

func (noopLoggerPoll) Info(string, ...interface{}) {}
func (noopLoggerPoll) Error(string, ...interface{}) {}
func (noopLoggerPoll) WithFields(map[string]interface{}) ports.Logger { return noopLoggerPoll{} }

type noopMetricsPoll struct{}

func (noopMetricsPoll) IncrementCounter(string, map[string]string)         {}
func (noopMetricsPoll) RecordHistogram(string, float64, map[string]string) {}
func (noopMetricsPoll) RecordGauge(string, float64, map[string]string)     {}
func (noopMetricsPoll) WithTags(map[string]string) ports.Metrics           { return noopMetricsPoll{} }

func result(id, tileID string) ports.SearchResult {
	now := time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC)
	return ports.SearchResult{
		ImageID:       id,
		Filename:      "S2B_MSIL1C_..._T" + tileID + "_....zip",
		TileID:        tileID,
		Size:          100,
		BeginPosition: now,
		EndPosition:   now,
		IngestionDate: now,
		DownloadURL:   "https://example.org/" + id,
		Checksum:      "abc",
	}
}

func newPoller(t *testing.T, catalog *fakeCatalog, counts *fakeCountRepo, statuses *fakeStatusRepo, granules *fakeGranuleRepoPoll, pub *fakePublisherPoll, tiles tileset.Set) *fetcher.Poller {
	t.Helper()
	admitter := admission.New(granules, pub, noopLoggerPoll{}, noopMetricsPoll{})
	return fetcher.NewPoller(catalog, counts, statuses, tiles, admitter, noopLoggerPoll{}, noopMetricsPoll{})
}

func TestPollerFirstPageScenario(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]ports.SearchResult{
			{result("A", "18TWM"), result("B", "18TWM"), result("C", "19ABC")},
		},
		total: 3,
	}
	counts := newFakeCountRepo()
	statuses := newFakeStatusRepo()
	granules := newFakeGranuleRepoPoll()
	pub := &fakePublisherPoll{}
	tiles := tileset.Set{"18TWM": struct{}{}}

	p := newPoller(t, catalog, counts, statuses, granules, pub, tiles)

	res, err := p.Run(context.Background(), fetcher.PollRequest{QueryDate: "2025-01-27", Platform: "S2B"})
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, 2, res.GranulesAdmitted)
	assert.Len(t, granules.rows, 2)
	assert.Len(t, pub.published, 2)

	c := counts.rows[key(time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC), "S2B")]
	assert.EqualValues(t, 3, c.AvailableLinks)
	assert.EqualValues(t, 3, c.FetchedLinks)
}

func TestPollerEmptyPageCompletes(t *testing.T) {
	catalog := &fakeCatalog{pages: [][]ports.SearchResult{{}}, total: 0}
	counts := newFakeCountRepo()
	statuses := newFakeStatusRepo()
	granules := newFakeGranuleRepoPoll()
	pub := &fakePublisherPoll{}

	p := newPoller(t, catalog, counts, statuses, granules, pub, tileset.Set{})

	res, err := p.Run(context.Background(), fetcher.PollRequest{QueryDate: "2025-01-27", Platform: "S2A"})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Empty(t, pub.published)
}

func TestPollerFiltersByTileAllowlist(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]ports.SearchResult{{result("X", "00XYZ")}},
		total: 1,
	}
	counts := newFakeCountRepo()
	statuses := newFakeStatusRepo()
	granules := newFakeGranuleRepoPoll()
	pub := &fakePublisherPoll{}

	p := newPoller(t, catalog, counts, statuses, granules, pub, tileset.Set{"18TWM": struct{}{}})

	res, err := p.Run(context.Background(), fetcher.PollRequest{QueryDate: "2025-01-27", Platform: "S2A"})
	require.NoError(t, err)

	assert.Equal(t, 0, res.GranulesAdmitted)
	assert.Empty(t, granules.rows)
	assert.Empty(t, pub.published)
}

func TestPollerUnknownTotalNeverVacuouslyCompletes(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]ports.SearchResult{
			{result("A", "18TWM")},
		},
		total: -1,
	}
	counts := newFakeCountRepo()
	statuses := newFakeStatusRepo()
	granules := newFakeGranuleRepoPoll()
	pub := &fakePublisherPoll{}
	tiles := tileset.Set{"18TWM": struct{}{}}

	p := newPoller(t, catalog, counts, statuses, granules, pub, tiles)

	res, err := p.Run(context.Background(), fetcher.PollRequest{QueryDate: "2025-01-27", Platform: "S2A"})
	require.NoError(t, err)

	assert.False(t, res.Completed, "an unknown upstream total must not be read as cursor already exceeding zero")

	c := counts.rows[key(time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC), "S2A")]
	assert.EqualValues(t, 0, c.AvailableLinks, "a -1 total is never persisted as available_links")
}

func TestPollerAdmissionDBErrorFailsRunWithoutAdvancingCursor(t *testing.T) {
	catalog := &fakeCatalog{
		pages: [][]ports.SearchResult{
			{result("A", "18TWM"), result("B", "18TWM")},
		},
		total: 2,
	}
	counts := newFakeCountRepo()
	statuses := newFakeStatusRepo()
	granules := newFakeGranuleRepoPoll()
	granules.insertErr = errors.New("connection reset")
	pub := &fakePublisherPoll{}
	tiles := tileset.Set{"18TWM": struct{}{}}

	p := newPoller(t, catalog, counts, statuses, granules, pub, tiles)

	_, err := p.Run(context.Background(), fetcher.PollRequest{QueryDate: "2025-01-27", Platform: "S2A"})
	require.Error(t, err)

	assert.Empty(t, pub.published, "a database error must not publish a download message")

	_, ok := statuses.values[status.CursorKey("2025-01-27", "S2A")]
	assert.False(t, ok, "the cursor must not advance past a page that failed admission")

	c := counts.rows[key(time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC), "S2A")]
	assert.EqualValues(t, 0, c.FetchedLinks, "fetched_links must not be incremented for a page that failed admission")
}
