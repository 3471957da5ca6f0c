package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// EstimatorConfig controls the cross-validation estimator.
type EstimatorConfig struct {
	Clock        clockwork.Clock
	FetchTimeout time.Duration
	// MinLatency is the shortest time a computed (uncached) estimate takes
	// to return. Zero disables the floor.
	MinLatency time.Duration
}

// Estimator cross-validates local samples against the external ledger and
// caches one result per tracking code.
type Estimator struct {
	ledger    LedgerFeed
	artifacts store.ArtifactStore
	clock     clockwork.Clock
	cfg       EstimatorConfig
	logger    *slog.Logger
	metrics   *observability.Metrics
	group     singleflight.Group
}

// NewEstimator creates an Estimator.
func NewEstimator(ledger LedgerFeed, artifacts store.ArtifactStore, cfg EstimatorConfig, logger *slog.Logger, metrics *observability.Metrics) *Estimator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Estimator{
		ledger:    ledger,
		artifacts: artifacts,
		clock:     cfg.Clock,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// EstimateMatch returns the percentage of local samples that have a matching
// ledger entry. A cached result is returned as is. A ledger fetch failure
// yields 0 and an error and caches nothing; so does an empty local set,
// without the error.
//
// Concurrent calls for one tracking code share a single computation. It runs
// detached from any caller's cancellation, so a caller that gives up does not
// fail the others.
func (e *Estimator) EstimateMatch(ctx context.Context, trackingCode string, local []domain.SensorSample) (int, error) {
	if res, ok := e.Cached(ctx, trackingCode); ok {
		e.metrics.ValidationCache.WithLabelValues("hit").Inc()
		return res.Percent, nil
	}
	e.metrics.ValidationCache.WithLabelValues("miss").Inc()

	if len(local) == 0 {
		return 0, nil
	}

	start := e.clock.Now()
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(trackingCode, func() (any, error) {
		// A flight that finished between the lookup above and DoChan has
		// already cached its result.
		if res, ok := e.Cached(flightCtx, trackingCode); ok {
			return estimate{percent: res.Percent, cached: true}, nil
		}
		pct, err := e.compute(flightCtx, trackingCode, local)
		return estimate{percent: pct}, err
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return 0, r.Err
	}
	est := r.Val.(estimate)
	if !est.cached {
		e.waitFloor(ctx, start)
	}
	return est.percent, nil
}

type estimate struct {
	percent int
	cached  bool
}

// Cached returns the stored validation result for trackingCode, if any.
func (e *Estimator) Cached(ctx context.Context, trackingCode string) (domain.ValidationResult, bool) {
	payload, err := e.artifacts.Read(ctx, store.ValidationKey(trackingCode))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("read cached validation failed", "error", err, "tracking_code", trackingCode)
		}
		return domain.ValidationResult{}, false
	}
	var res domain.ValidationResult
	if err := json.Unmarshal(payload, &res); err != nil {
		e.logger.Warn("decode cached validation failed", "error", err, "tracking_code", trackingCode)
		return domain.ValidationResult{}, false
	}
	return res, true
}

func (e *Estimator) compute(ctx context.Context, trackingCode string, local []domain.SensorSample) (int, error) {
	fetchCtx := ctx
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}
	ledger, err := e.ledger.Ledger(fetchCtx)
	if err != nil {
		e.metrics.LedgerFetchErrors.Inc()
		e.logger.Warn("ledger fetch failed", "error", err, "tracking_code", trackingCode)
		return 0, fmt.Errorf("fetch ledger: %w", err)
	}

	res := domain.ValidationResult{
		TrackingCode: trackingCode,
		Percent:      domain.MatchPercent(local, ledger),
		LocalCount:   len(local),
		LedgerCount:  len(ledger),
		ComputedAt:   e.clock.Now().UTC(),
	}
	e.metrics.ValidationPercent.Observe(float64(res.Percent))
	e.save(ctx, res)
	return res.Percent, nil
}

func (e *Estimator) save(ctx context.Context, res domain.ValidationResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		e.logger.Warn("encode validation failed", "error", err, "tracking_code", res.TrackingCode)
		return
	}
	if _, err := e.artifacts.Write(ctx, store.ValidationKey(res.TrackingCode), payload); err != nil {
		e.logger.Warn("cache validation failed", "error", err, "tracking_code", res.TrackingCode)
	}
}

// waitFloor pads a computed estimate out to MinLatency. The result is
// already cached, so a cancelled caller just stops waiting.
func (e *Estimator) waitFloor(ctx context.Context, start time.Time) {
	remaining := e.cfg.MinLatency - e.clock.Since(start)
	if remaining <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-e.clock.After(remaining):
	}
}
