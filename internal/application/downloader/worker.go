// Package downloader implements the download worker described in
// spec.md §4.3: it fetches one granule's archive from upstream, verifies
// its checksum, uploads it to the object store, and drives the granule
// state machine.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/granule"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/status"
)

// MaxConcurrency bounds simultaneous in-flight downloads, per spec.md §4.3
// "Concurrency bound".
const MaxConcurrency = 15

// Config parametrises worker behaviour; all fields correspond to spec.md
// §6 configuration entries.
type Config struct {
	UseIntHub2   bool
	MaxRetries   int
	UploadBucket string
}

// Worker processes one "to-download" message at a time (spec.md §4.3).
// Bounded concurrency across many workers is the caller's responsibility
// (see cmd/downloader for the SQS event-source wiring).
type Worker struct {
	granules    ports.GranuleRepository
	statuses    ports.StatusRepository
	checksums   ports.ChecksumClient
	downloader  ports.Downloader
	uploader    ports.Uploader
	publisher   ports.Publisher
	sciHubCreds ports.CredentialsProvider
	cfg         Config
	logger      ports.Logger
	metrics     ports.Metrics
	now         func() time.Time
}

// New builds a Worker.
func New(
	granules ports.GranuleRepository,
	statuses ports.StatusRepository,
	checksums ports.ChecksumClient,
	dl ports.Downloader,
	uploader ports.Uploader,
	publisher ports.Publisher,
	creds ports.CredentialsProvider,
	cfg Config,
	logger ports.Logger,
	metrics ports.Metrics,
) *Worker {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = granule.MaxRetries
	}
	return &Worker{
		granules:    granules,
		statuses:    statuses,
		checksums:   checksums,
		downloader:  dl,
		uploader:    uploader,
		publisher:   publisher,
		sciHubCreds: creds,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// sciHubSecretName and intHub2SecretName are the upstream secrets
// resolveCredentials chooses between, per spec.md §4.3 step 4 and §6
// "Secrets".
const (
	sciHubSecretName  = "scihub-credentials"
	intHub2SecretName = "inthub2-credentials"
)

// Process runs the full state machine for msg, per spec.md §4.3's
// detailed contract. A nil return means the caller should acknowledge
// the message (drop it, possibly after a deliberate requeue); a non-nil
// return means the caller should let its broker redeliver.
func (w *Worker) Process(ctx context.Context, msg ports.DownloadMessage) error {
	now := w.now()

	g, err := w.granules.Get(ctx, msg.ID)
	if errors.Is(err, granule.ErrNotFound) {
		w.logger.Info("granule not found, dropping message", "granule_id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load granule %s: %w", msg.ID, err)
	}

	if g.Downloaded {
		w.logger.Info("granule already downloaded, dropping message", "granule_id", msg.ID)
		return nil
	}

	leased, acquired, err := w.granules.AcquireLease(ctx, msg.ID, now)
	if err != nil {
		return fmt.Errorf("acquire lease for %s: %w", msg.ID, err)
	}
	if !acquired {
		w.logger.Info("lease held by another worker, dropping message", "granule_id", msg.ID)
		return nil
	}
	g = leased

	if g.RetryLimitReached(w.cfg.MaxRetries) {
		w.logger.Info("retry limit reached, abandoning granule", "granule_id", msg.ID, "retries", g.DownloadRetries)
		if err := w.granules.CommitAbandoned(ctx, msg.ID); err != nil {
			return fmt.Errorf("commit abandoned for %s: %w", msg.ID, err)
		}
		w.metrics.IncrementCounter("downloader.abandoned", nil)
		return nil
	}

	checksum, err := w.checksums.GetChecksum(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("fetch checksum for %s: %w", msg.ID, err)
	}
	if checksum != "" && checksum != g.Checksum {
		if err := w.granules.UpdateChecksum(ctx, msg.ID, checksum); err != nil {
			return fmt.Errorf("update drifted checksum for %s: %w", msg.ID, err)
		}
		g.Checksum = checksum
	}

	creds, err := w.resolveCredentials(ctx)
	if err != nil {
		return fmt.Errorf("resolve download credentials: %w", err)
	}

	body, err := w.downloader.Fetch(ctx, g.DownloadURL, w.cfg.UseIntHub2, creds)
	if err != nil {
		if isExpiredUpstream(err) {
			return w.commitExpired(ctx, msg.ID)
		}
		return w.commitTransientFailure(ctx, msg, g.Checksum, fmt.Errorf("fetch upstream body: %w", err))
	}
	defer body.Close()

	key := objectKey(g.BeginPosition, g.Filename)
	location, err := w.uploader.Upload(ctx, w.cfg.UploadBucket, key, body, g.Checksum)
	if err != nil {
		return w.commitTransientFailure(ctx, msg, g.Checksum, fmt.Errorf("upload to object store: %w", err))
	}

	if err := w.granules.CommitDownload(ctx, msg.ID, w.now(), g.Checksum, location); err != nil {
		return fmt.Errorf("commit download for %s: %w", msg.ID, err)
	}
	if err := w.statuses.Upsert(ctx, status.LastFileDownloadedTimeKey, w.now().Format(time.RFC3339)); err != nil {
		w.logger.Error("failed to update last_file_downloaded_time", "error", err)
	}

	w.metrics.IncrementCounter("downloader.success", nil)
	return nil
}

func (w *Worker) resolveCredentials(ctx context.Context) (ports.DownloadCredentials, error) {
	secretName := sciHubSecretName
	if w.cfg.UseIntHub2 {
		secretName = intHub2SecretName
	}
	return w.sciHubCreds.GetCredentials(ctx, secretName)
}

func (w *Worker) commitTransientFailure(ctx context.Context, msg ports.DownloadMessage, checksum string, cause error) error {
	w.logger.Error("transient download failure, requeueing", "granule_id", msg.ID, "error", cause)
	if err := w.granules.CommitTransientFailure(ctx, msg.ID, checksum); err != nil {
		return fmt.Errorf("commit transient failure for %s: %w", msg.ID, err)
	}
	if err := w.publisher.PublishDownload(ctx, msg); err != nil {
		return fmt.Errorf("republish %s after transient failure: %w", msg.ID, err)
	}
	w.metrics.IncrementCounter("downloader.transient_failure", nil)
	return nil
}

func (w *Worker) commitExpired(ctx context.Context, id string) error {
	w.logger.Info("upstream reports product expired", "granule_id", id)
	if err := w.granules.CommitExpired(ctx, id); err != nil {
		return fmt.Errorf("commit expired for %s: %w", id, err)
	}
	w.metrics.IncrementCounter("downloader.expired", nil)
	return nil
}

// objectKey builds the object-store key YYYY-MM-DD/<filename>.zip, per
// spec.md §4.3 step 5. The upstream product name carries a .SAFE-style
// extension that the archive itself does not use, so the extension is
// replaced with .zip, matching
// original_source/lambdas/downloader/handler.py:download_file.
func objectKey(beginPosition time.Time, filename string) string {
	root := strings.TrimSuffix(filename, filepath.Ext(filename))
	return beginPosition.Format("2006-01-02") + "/" + root + ".zip"
}

func isExpiredUpstream(err error) bool {
	return errors.Is(err, ports.ErrUpstreamExpired)
}
