package downloader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/downloader"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
)

type fakeRepo struct {
	rows          map[string]*granule.Granule
	leaseGranted  bool
	acquireErr    error
	committed     string
	commitErr     error
	transientErr  error
	abandonedErr  error
	expiredErr    error
	checksumSet   string
}

func newFakeRepo(g *granule.Granule) *fakeRepo {
	rows := map[string]*granule.Granule{}
	if g != nil {
		rows[g.ID] = g
	}
	return &fakeRepo{rows: rows, leaseGranted: true}
}

func (f *fakeRepo) Insert(context.Context, *granule.Granule) error { return nil }

func (f *fakeRepo) Get(_ context.Context, id string) (*granule.Granule, error) {
	g, ok := f.rows[id]
	if !ok {
		return nil, granule.ErrNotFound
	}
	return g, nil
}

func (f *fakeRepo) AcquireLease(_ context.Context, id string, now time.Time) (*granule.Granule, bool, error) {
	if f.acquireErr != nil {
		return nil, false, f.acquireErr
	}
	if !f.leaseGranted {
		return nil, false, nil
	}
	g := f.rows[id]
	g.MarkInProgress(now)
	return g, true, nil
}

func (f *fakeRepo) CommitDownload(_ context.Context, id string, _ time.Time, checksum, location string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = location
	f.rows[id].MarkDownloaded(time.Now().UTC(), location)
	return nil
}

func (f *fakeRepo) CommitTransientFailure(_ context.Context, id string, _ string) error {
	if f.transientErr != nil {
		return f.transientErr
	}
	f.rows[id].MarkTransientFailure()
	return nil
}

func (f *fakeRepo) CommitAbandoned(_ context.Context, id string) error {
	if f.abandonedErr != nil {
		return f.abandonedErr
	}
	f.rows[id].MarkAbandoned()
	return nil
}

func (f *fakeRepo) CommitExpired(_ context.Context, id string) error {
	if f.expiredErr != nil {
		return f.expiredErr
	}
	f.rows[id].MarkExpired()
	return nil
}

func (f *fakeRepo) UpdateChecksum(_ context.Context, id, checksum string) error {
	f.checksumSet = checksum
	f.rows[id].Checksum = checksum
	return nil
}

func (f *fakeRepo) SelectUndownloaded(context.Context, time.Time) ([]*granule.Granule, error) {
	return nil, nil
}

type fakeStatusRepoDL struct{ values map[string]string }

func newFakeStatusRepoDL() *fakeStatusRepoDL { return &fakeStatusRepoDL{values: map[string]string{}} }

func (f *fakeStatusRepoDL) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}
func (f *fakeStatusRepoDL) Upsert(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

type fakeChecksumClient struct {
	checksum string
	err      error
}

func (f *fakeChecksumClient) GetChecksum(context.Context, string) (string, error) {
	return f.checksum, f.err
}

type fakeDownloader struct {
	body []byte
	err  error
}

func (f *fakeDownloader) Fetch(context.Context, string, bool, ports.DownloadCredentials) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.body)), nil
}

type fakeUploader struct {
	location string
	err      error
	gotKey   string
}

func (f *fakeUploader) Upload(_ context.Context, bucket, key string, _ io.Reader, _ string) (string, error) {
	f.gotKey = key
	if f.err != nil {
		return "", f.err
	}
	return bucket + "/" + key, nil
}

type fakePublisherDL struct {
	published []ports.DownloadMessage
}

func (f *fakePublisherDL) PublishDownload(_ context.Context, msg ports.DownloadMessage) error {
	f.published = append(f.published, msg)
	return nil
}

type fakeCreds struct {
	creds ports.DownloadCredentials
	err   error
}

func (f *fakeCreds) GetCredentials(context.Context, string) (ports.DownloadCredentials, error) {
	return f.creds, f.err
}

type noopLoggerDL struct{}

func (noopLoggerDL) Info(string, ...interface{})                     {}
func (noopLoggerDL) Error(string, ...interface{})                     {}
func (noopLoggerDL) WithFields(map[string]interface{}) ports.Logger { return noopLoggerDL{} }

type noopMetricsDL struct{}

func (noopMetricsDL) IncrementCounter(string, map[string]string)         {}
func (noopMetricsDL) RecordHistogram(string, float64, map[string]string) {}
func (noopMetricsDL) RecordGauge(string, float64, map[string]string)     {}
func (noopMetricsDL) WithTags(map[string]string) ports.Metrics           { return noopMetricsDL{} }

func sampleGranule() *granule.Granule {
	begin := time.Date(2025, 1, 27, 8, 0, 0, 0, time.UTC)
	return granule.New("grn-1", "S2A_MSIL1C_..._T18TWM_....zip", "18TWM", 100, "abc123", begin, begin, begin, "https://example.org/grn-1")
}

func newWorker(repo *fakeRepo, statuses ports.StatusRepository, checksums ports.ChecksumClient, dl ports.Downloader, up *fakeUploader, pub *fakePublisherDL) *downloader.Worker {
	return downloader.New(repo, statuses, checksums, dl, up, pub, &fakeCreds{creds: ports.DownloadCredentials{Username: "u", Password: "p"}}, downloader.Config{UploadBucket: "hls-bucket"}, noopLoggerDL{}, noopMetricsDL{})
}

func TestProcessSuccessfulDownload(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	up := &fakeUploader{}
	pub := &fakePublisherDL{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{checksum: "abc123"}, &fakeDownloader{body: []byte("data")}, up, pub)

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.True(t, repo.rows["grn-1"].Downloaded)
	assert.False(t, repo.rows["grn-1"].InProgress)
	assert.Equal(t, "2025-01-27/S2A_MSIL1C_..._T18TWM_....zip", up.gotKey)
	assert.Equal(t, 0, repo.rows["grn-1"].DownloadRetries)
}

func TestProcessDropsMessageWhenGranuleNotFound(t *testing.T) {
	repo := newFakeRepo(nil)
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{}, &fakeDownloader{}, &fakeUploader{}, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "missing"})

	require.NoError(t, err)
}

func TestProcessDropsMessageWhenAlreadyDownloaded(t *testing.T) {
	g := sampleGranule()
	g.MarkDownloaded(time.Now(), "bucket/key")
	repo := newFakeRepo(g)
	up := &fakeUploader{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{}, &fakeDownloader{}, up, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.Empty(t, up.gotKey, "an already-downloaded granule must not be re-uploaded")
}

func TestProcessDropsMessageWhenLeaseHeldByOther(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	repo.leaseGranted = false
	up := &fakeUploader{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{}, &fakeDownloader{}, up, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.Empty(t, up.gotKey)
}

func TestProcessAbandonsWhenRetryLimitReached(t *testing.T) {
	g := sampleGranule()
	g.DownloadRetries = granule.MaxRetries
	repo := newFakeRepo(g)
	up := &fakeUploader{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{}, &fakeDownloader{}, up, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.False(t, repo.rows["grn-1"].Downloaded)
	assert.False(t, repo.rows["grn-1"].InProgress)
	assert.Empty(t, up.gotKey)
}

func TestProcessUpdatesDriftedChecksum(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	up := &fakeUploader{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{checksum: "newchecksum"}, &fakeDownloader{body: []byte("data")}, up, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.Equal(t, "newchecksum", repo.checksumSet)
}

func TestProcessRequeuesOnUploadFailure(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	up := &fakeUploader{err: errors.New("checksum mismatch")}
	pub := &fakePublisherDL{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{checksum: "abc123"}, &fakeDownloader{body: []byte("data")}, up, pub)

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err, "transient failures are swallowed so the broker does not double-account")
	assert.Equal(t, 1, repo.rows["grn-1"].DownloadRetries)
	assert.False(t, repo.rows["grn-1"].InProgress)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "grn-1", pub.published[0].ID)
}

func TestProcessRequeuesOnFetchFailure(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	pub := &fakePublisherDL{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{checksum: "abc123"}, &fakeDownloader{err: errors.New("connection reset")}, &fakeUploader{}, pub)

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, repo.rows["grn-1"].DownloadRetries)
	require.Len(t, pub.published, 1)
}

func TestProcessMarksExpiredOnUpstreamExpiry(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	pub := &fakePublisherDL{}
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{checksum: "abc123"}, &fakeDownloader{err: fmt.Errorf("product gone: %w", ports.ErrUpstreamExpired)}, &fakeUploader{}, pub)

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.NoError(t, err)
	assert.True(t, repo.rows["grn-1"].Expired)
	assert.Empty(t, pub.published)
}

func TestProcessPropagatesHardFailureFromDatabase(t *testing.T) {
	repo := newFakeRepo(sampleGranule())
	repo.acquireErr = errors.New("connection pool exhausted")
	w := newWorker(repo, newFakeStatusRepoDL(), &fakeChecksumClient{}, &fakeDownloader{}, &fakeUploader{}, &fakePublisherDL{})

	err := w.Process(context.Background(), ports.DownloadMessage{ID: "grn-1"})

	require.Error(t, err)
}
