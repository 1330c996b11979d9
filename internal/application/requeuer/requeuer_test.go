package requeuer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/requeuer"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
)

type fakeGranuleRepoRQ struct {
	undownloaded []*granule.Granule
}

func (f *fakeGranuleRepoRQ) Insert(context.Context, *granule.Granule) error { return nil }
func (f *fakeGranuleRepoRQ) Get(context.Context, string) (*granule.Granule, error) {
	return nil, granule.ErrNotFound
}
func (f *fakeGranuleRepoRQ) AcquireLease(context.Context, string, time.Time) (*granule.Granule, bool, error) {
	return nil, false, nil
}
func (f *fakeGranuleRepoRQ) CommitDownload(context.Context, string, time.Time, string, string) error {
	return nil
}
func (f *fakeGranuleRepoRQ) CommitTransientFailure(context.Context, string, string) error { return nil }
func (f *fakeGranuleRepoRQ) CommitAbandoned(context.Context, string) error                { return nil }
func (f *fakeGranuleRepoRQ) CommitExpired(context.Context, string) error                  { return nil }
func (f *fakeGranuleRepoRQ) UpdateChecksum(context.Context, string, string) error         { return nil }
func (f *fakeGranuleRepoRQ) SelectUndownloaded(context.Context, time.Time) ([]*granule.Granule, error) {
	return f.undownloaded, nil
}

type fakePublisherRQ struct {
	published []ports.DownloadMessage
}

func (f *fakePublisherRQ) PublishDownload(_ context.Context, msg ports.DownloadMessage) error {
	f.published = append(f.published, msg)
	return nil
}

type noopLoggerRQ struct{}

func (noopLoggerRQ) Info(string, ...interface{})                      {}
func (noopLoggerRQ) Error(string, ...interface{})                      {}
func (noopLoggerRQ) WithFields(map[string]interface{}) ports.Logger { return noopLoggerRQ{} }

type noopMetricsRQ struct{}

func (noopMetricsRQ) IncrementCounter(string, map[string]string)         {}
func (noopMetricsRQ) RecordHistogram(string, float64, map[string]string) {}
func (noopMetricsRQ) RecordGauge(string, float64, map[string]string)     {}
func (noopMetricsRQ) WithTags(map[string]string) ports.Metrics           { return noopMetricsRQ{} }

func boolPtr(b bool) *bool { return &b }

func threeUndownloaded() []*granule.Granule {
	begin := time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)
	return []*granule.Granule{
		granule.New("g1", "f1.zip", "18TWM", 1, "c1", begin, begin, begin, "https://example.org/g1"),
		granule.New("g2", "f2.zip", "18TWM", 1, "c2", begin, begin, begin, "https://example.org/g2"),
		granule.New("g3", "f3.zip", "18TWM", 1, "c3", begin, begin, begin, "https://example.org/g3"),
	}
}

func TestRequeuerRejectsMissingDryRun(t *testing.T) {
	repo := &fakeGranuleRepoRQ{undownloaded: threeUndownloaded()}
	pub := &fakePublisherRQ{}
	r := requeuer.New(repo, pub, noopLoggerRQ{}, noopMetricsRQ{})

	_, err := r.Run(context.Background(), requeuer.Request{DryRun: nil, Date: "2023-06-10"})

	require.ErrorIs(t, err, requeuer.ErrDryRunRequired)
}

func TestRequeuerDryRunListsWithoutPublishing(t *testing.T) {
	repo := &fakeGranuleRepoRQ{undownloaded: threeUndownloaded()}
	pub := &fakePublisherRQ{}
	r := requeuer.New(repo, pub, noopLoggerRQ{}, noopMetricsRQ{})

	result, err := r.Run(context.Background(), requeuer.Request{DryRun: boolPtr(true), Date: "2023-06-10"})

	require.NoError(t, err)
	assert.Len(t, result.Granules, 3)
	assert.Empty(t, pub.published)
}

func TestRequeuerPublishesWhenNotDryRun(t *testing.T) {
	repo := &fakeGranuleRepoRQ{undownloaded: threeUndownloaded()}
	pub := &fakePublisherRQ{}
	r := requeuer.New(repo, pub, noopLoggerRQ{}, noopMetricsRQ{})

	result, err := r.Run(context.Background(), requeuer.Request{DryRun: boolPtr(false), Date: "2023-06-10"})

	require.NoError(t, err)
	assert.Len(t, result.Granules, 3)
	assert.Len(t, pub.published, 3)
}
