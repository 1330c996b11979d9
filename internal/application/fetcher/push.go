package fetcher

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/admission"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/tileset"
)

// DefaultRecencyDays is how far back an acquisition may be before the
// push handler silently discards it, per spec.md §4.2.2 step 3.
const DefaultRecencyDays = 30

// SubscriptionOutcome is the disposition of one push event, mapped onto
// an HTTP status by the transport adapter.
type SubscriptionOutcome int

const (
	// OutcomeAdmitted means the event was accepted and admitted.
	OutcomeAdmitted SubscriptionOutcome = iota
	// OutcomeUnauthorized means Basic auth failed.
	OutcomeUnauthorized
	// OutcomeRejectedStale means beginposition was older than the
	// recency window.
	OutcomeRejectedStale
	// OutcomeRejectedTile means the tile is not in the allowlist.
	OutcomeRejectedTile
)

// Credentials is the expected Basic Auth pair for the push endpoint,
// configured out-of-band (spec.md §6, push subscription endpoint).
type Credentials struct {
	Username string
	Password string
}

// SubscriptionHandler implements the push/subscription link-fetcher mode.
type SubscriptionHandler struct {
	expected     Credentials
	tiles        tileset.Set
	admitter     *admission.Admitter
	recencyDays  int
	logger       ports.Logger
	metrics      ports.Metrics
	now          func() time.Time
}

// NewSubscriptionHandler builds a SubscriptionHandler. recencyDays of 0
// selects DefaultRecencyDays.
func NewSubscriptionHandler(
	expected Credentials,
	tiles tileset.Set,
	admitter *admission.Admitter,
	recencyDays int,
	logger ports.Logger,
	metrics ports.Metrics,
) *SubscriptionHandler {
	if recencyDays == 0 {
		recencyDays = DefaultRecencyDays
	}
	return &SubscriptionHandler{
		expected:    expected,
		tiles:       tiles,
		admitter:    admitter,
		recencyDays: recencyDays,
		logger:      logger,
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate compares the given credentials against the configured pair
// in constant time, per spec.md §4.2.2 step 1.
func (h *SubscriptionHandler) Authenticate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.expected.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.expected.Password)) == 1
	return userOK && passOK
}

// Handle processes one already-parsed push event, per spec.md §4.2.2
// steps 2-6. Authentication is the caller's responsibility (it has access
// to the raw HTTP request); Handle assumes it already passed.
func (h *SubscriptionHandler) Handle(ctx context.Context, result ports.SearchResult) (SubscriptionOutcome, error) {
	cutoff := h.now().AddDate(0, 0, -h.recencyDays)
	if result.BeginPosition.Before(cutoff) {
		h.logger.Info("rejecting stale push event", "granule_id", result.ImageID, "begin_position", result.BeginPosition)
		h.metrics.IncrementCounter("subscription.rejected_stale", nil)
		return OutcomeRejectedStale, nil
	}

	if !h.tiles.Contains(result.TileID) {
		h.logger.Info("rejecting push event outside tile allowlist", "granule_id", result.ImageID, "tile_id", result.TileID)
		h.metrics.IncrementCounter("subscription.rejected_tile", nil)
		return OutcomeRejectedTile, nil
	}

	if err := h.admitter.Admit(ctx, result); err != nil {
		return 0, err
	}

	h.metrics.IncrementCounter("subscription.admitted", map[string]string{"tile_id": result.TileID})
	return OutcomeAdmitted, nil
}
