// Package httpapi exposes the push/subscription link fetcher mode
// (spec.md §4.2.2) as a chi-routed HTTP endpoint, in the teacher's
// handlers/adapters/http style generalized to chi.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/fetcher"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
)

type traceIDKey struct{}

// traceID reads the correlation ID attached by withTraceID.
func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// withTraceID stamps every request with a trace ID, generating one when the
// caller didn't supply X-Trace-Id, in the style of the teacher's
// shared/handler/middleware.go TracingMiddleware.
func withTraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Trace-Id", id)
		ctx := context.WithValue(r.Context(), traceIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// notificationEnvelope is the CDSE subscription push payload shape, per
// original_source/lambdas/link_fetcher/app/subscription_endpoint.py:parse_search_result.
type notificationEnvelope struct {
	Value struct {
		ID              string `json:"Id"`
		Name            string `json:"Name"`
		PublicationDate string `json:"PublicationDate"`
		ContentDate     struct {
			Start string `json:"Start"`
			End   string `json:"End"`
		} `json:"ContentDate"`
		Locations []struct {
			FormatType    string `json:"FormatType"`
			DownloadLink  string `json:"DownloadLink"`
			ContentLength int64  `json:"ContentLength"`
			Checksum      []struct {
				Algorithm string `json:"Algorithm"`
				Value     string `json:"Value"`
			} `json:"Checksum"`
		} `json:"Locations"`
	} `json:"value"`
}

// toSearchResult extracts the single "Extracted" location's MD5 checksum
// into a ports.SearchResult, rejecting payloads that don't carry exactly
// one such location.
func (n notificationEnvelope) toSearchResult() (ports.SearchResult, error) {
	var extracted *struct {
		FormatType    string `json:"FormatType"`
		DownloadLink  string `json:"DownloadLink"`
		ContentLength int64  `json:"ContentLength"`
		Checksum      []struct {
			Algorithm string `json:"Algorithm"`
			Value     string `json:"Value"`
		} `json:"Checksum"`
	}
	count := 0
	for i := range n.Value.Locations {
		if n.Value.Locations[i].FormatType == "Extracted" {
			extracted = &n.Value.Locations[i]
			count++
		}
	}
	if count != 1 {
		return ports.SearchResult{}, errInvalidLocations
	}

	var checksum string
	for _, c := range extracted.Checksum {
		if c.Algorithm == "MD5" {
			checksum = c.Value
			break
		}
	}

	begin, err := time.Parse(time.RFC3339, n.Value.ContentDate.Start)
	if err != nil {
		return ports.SearchResult{}, err
	}
	end, err := time.Parse(time.RFC3339, n.Value.ContentDate.End)
	if err != nil {
		return ports.SearchResult{}, err
	}
	published, err := time.Parse(time.RFC3339, n.Value.PublicationDate)
	if err != nil {
		return ports.SearchResult{}, err
	}

	return ports.SearchResult{
		ImageID:       n.Value.ID,
		Filename:      n.Value.Name,
		TileID:        tileset.ParseTileIDFromTitle(n.Value.Name),
		Size:          extracted.ContentLength,
		BeginPosition: begin,
		EndPosition:   end,
		IngestionDate: published,
		DownloadURL:   extracted.DownloadLink,
		Checksum:      checksum,
	}, nil
}

var errInvalidLocations = jsonError("expected exactly one 'Extracted' location")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// NewRouter builds the chi router serving POST /events. metricsHandler, if
// non-nil, is mounted at GET /metrics — cmd/subscriptionhandler wires it to
// promhttp so the Prometheus registry can be scraped from the same listener.
func NewRouter(handler *fetcher.SubscriptionHandler, logger ports.Logger, metrics ports.Metrics, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withTraceID)
	r.Post("/events", postEvent(handler, logger, metrics))
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}
	return r
}

func postEvent(handler *fetcher.SubscriptionHandler, baseLogger ports.Logger, metrics ports.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := baseLogger.WithFields(map[string]interface{}{"trace_id": traceID(r.Context())})

		username, password, ok := r.BasicAuth()
		if !ok || !handler.Authenticate(username, password) {
			metrics.IncrementCounter("subscription.unauthorized", nil)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var envelope notificationEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			logger.Error("invalid subscription payload", "error", err)
			metrics.IncrementCounter("subscription.bad_request", nil)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, err := envelope.toSearchResult()
		if err != nil {
			logger.Error("could not parse subscription payload", "error", err)
			metrics.IncrementCounter("subscription.bad_request", nil)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		outcome, err := handler.Handle(r.Context(), result)
		if err != nil {
			logger.Error("failed to process subscription event", "error", err, "granule_id", result.ImageID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		logger.Info("processed subscription event", "granule_id", result.ImageID, "outcome", int(outcome))
		w.WriteHeader(http.StatusOK)
	}
}
