// Command subscriptionhandler serves the push/subscription link fetcher
// mode (spec.md §4.2.2) as a standalone HTTP server, in the style of the
// teacher's shared/infrastructure/handlers/adapters/http/server.go.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/fetcher"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/config"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/database/postgres"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/httpapi"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability"
	promadapter "github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/observability/prometheus"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/infrastructure/queue/sqs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	obs, err := observability.New(ctx, cfg)
	if err != nil {
		log.Fatalf("build observability: %v", err)
	}
	logger, baseMetrics, err := obs.ComponentsScoped("subscriptionhandler")
	if err != nil {
		log.Fatalf("scope observability: %v", err)
	}

	// This is the one long-running listener in the repo, so it's also the
	// one worth scraping (spec.md §5): fan metrics out to both the normal
	// stdout/cloudwatch sink and a Prometheus registry exposed on /metrics.
	promMetrics := promadapter.NewMetrics()
	metrics := observability.Fanout(baseMetrics, promMetrics)

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	repos := postgres.NewRepositories(db, logger, metrics)

	publisher, err := sqs.New(ctx, cfg.AWS.Region, cfg.AWS.ToDownloadQueue, logger, metrics)
	if err != nil {
		log.Fatalf("build sqs publisher: %v", err)
	}

	tiles, err := tileset.Load(cfg.Subscription.AcceptedTileIDsFile)
	if err != nil {
		log.Fatalf("load tile allowlist: %v", err)
	}

	admitter := admission.New(repos.Granules, publisher, logger, metrics)
	handler := fetcher.NewSubscriptionHandler(
		fetcher.Credentials{Username: cfg.Subscription.Username, Password: cfg.Subscription.Password},
		tiles,
		admitter,
		cfg.Subscription.RecencyDays,
		logger,
		metrics,
	)

	metricsHandler := promhttp.HandlerFor(promMetrics.Registry(), promhttp.HandlerOpts{})
	router := httpapi.NewRouter(handler, logger, metrics, metricsHandler)

	addr := fmt.Sprintf(":%d", cfg.Subscription.Port)
	server := &http.Server{Addr: addr, Handler: router, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second}

	go func() {
		logger.Info("starting subscription handler", "address", addr)
		metrics.IncrementCounter("http.starts", nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down subscription handler")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
