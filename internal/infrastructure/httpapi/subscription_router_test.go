package httpapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/fetcher"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/httpapi"
)

// samplePayload builds a notification acquired yesterday, inside the
// handler's 30-day recency window.
func samplePayload() string {
	day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	return `{
  "value": {
    "Id": "img-1",
    "Name": "S2A_MSIL1C_..._T31UFU_....SAFE",
    "PublicationDate": "` + day + `T00:00:00Z",
    "ContentDate": {"Start": "` + day + `T00:00:00Z", "End": "` + day + `T00:05:00Z"},
    "Locations": [
      {"FormatType": "Extracted", "DownloadLink": "https://example.test/d", "ContentLength": 100,
       "Checksum": [{"Algorithm": "MD5", "Value": "abc123"}]}
    ]
  }
}`
}

func TestRouterRejectsMissingAuth(t *testing.T) {
	router := newRouter()

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(samplePayload()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAdmitsValidNotification(t *testing.T) {
	granules := &stubGranules{}
	router := newRouterWithGranules(granules)

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(samplePayload()))
	req.SetBasicAuth("user", "pass")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, granules.inserted, 1)
	assert.Equal(t, "img-1", granules.inserted[0].ID)
}

func newRouter() http.Handler {
	return newRouterWithGranules(&stubGranules{})
}

func newRouterWithGranules(granules *stubGranules) http.Handler {
	tiles := tileset.Set{"31UFU": struct{}{}}
	admitter := admission.New(granules, &stubPublisher{}, noopLogger{}, noopMetrics{})
	handler := fetcher.NewSubscriptionHandler(
		fetcher.Credentials{Username: "user", Password: "pass"},
		tiles,
		admitter,
		30,
		noopLogger{},
		noopMetrics{},
	)
	return httpapi.NewRouter(handler, noopLogger{}, noopMetrics{}, nil)
}

type stubGranules struct {
	inserted []*granule.Granule
}

func (s *stubGranules) Insert(ctx context.Context, g *granule.Granule) error {
	s.inserted = append(s.inserted, g)
	return nil
}
func (s *stubGranules) Get(context.Context, string) (*granule.Granule, error) {
	return nil, granule.ErrNotFound
}
func (s *stubGranules) AcquireLease(context.Context, string, time.Time) (*granule.Granule, bool, error) {
	return nil, false, nil
}
func (s *stubGranules) CommitDownload(context.Context, string, time.Time, string, string) error {
	return nil
}
func (s *stubGranules) CommitTransientFailure(context.Context, string, string) error { return nil }
func (s *stubGranules) CommitAbandoned(context.Context, string) error                { return nil }
func (s *stubGranules) CommitExpired(context.Context, string) error                  { return nil }
func (s *stubGranules) UpdateChecksum(context.Context, string, string) error         { return nil }
func (s *stubGranules) SelectUndownloaded(context.Context, time.Time) ([]*granule.Granule, error) {
	return nil, nil
}

type stubPublisher struct{}

func (stubPublisher) PublishDownload(context.Context, ports.DownloadMessage) error { return nil }

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})                    {}
func (noopLogger) Error(string, ...interface{})                   {}
func (noopLogger) WithFields(map[string]interface{}) ports.Logger { return noopLogger{} }

type noopMetrics struct{}

func (noopMetrics) IncrementCounter(string, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string) {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)     {}
func (noopMetrics) WithTags(map[string]string) ports.Metrics           { return noopMetrics{} }
