package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
)

// SensorFeed returns the most recent reading of the shared sensor feed.
type SensorFeed interface {
	Latest(ctx context.Context) (domain.FeedReading, error)
}

// LedgerFeed returns the independent ledger used for cross-validation.
type LedgerFeed interface {
	Ledger(ctx context.Context) ([]domain.LedgerEntry, error)
}

// ShipmentSource lists every shipment visible to the service.
type ShipmentSource interface {
	Shipments(ctx context.Context) ([]domain.ShipmentTransitRecord, error)
}

// InTransitLister exposes the shipments currently between ship and delivery.
type InTransitLister interface {
	InTransit() []domain.ShipmentTransitRecord
}

// PollerConfig controls the ingestion cadence.
type PollerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Poller pulls the latest feed reading on a fixed interval and appends it to
// the history of every in-transit shipment.
type Poller struct {
	feed      SensorFeed
	shipments InTransitLister
	samples   *history.Store
	clock     clockwork.Clock
	cfg       PollerConfig
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewPoller creates a Poller. A nil clock uses the real clock.
func NewPoller(feed SensorFeed, shipments InTransitLister, samples *history.Store, clock clockwork.Clock, cfg PollerConfig, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		feed:      feed,
		shipments: shipments,
		samples:   samples,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one complete feed reading has been
// ingested, or an error describing why the service is not yet ready.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no sensor reading ingested yet")
	}
	return nil
}

// Run polls until the context is cancelled. Ticks that fire while a previous
// tick is still running are dropped rather than queued.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.cfg.Interval)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.Tick(ctx)
		}
	}
}

// Tick performs one fetch and fan-out. It returns how many histories gained
// the sample. Fetch failures and incomplete readings skip the tick.
func (p *Poller) Tick(ctx context.Context) int {
	start := p.clock.Now()
	defer func() {
		p.metrics.PollTickDuration.Observe(p.clock.Since(start).Seconds())
	}()

	reading, err := fetchLatest(ctx, p.feed, p.cfg.FetchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("sensor feed fetch failed, skipping tick", "error", err)
			p.metrics.FeedReadings.WithLabelValues("error").Inc()
		}
		return 0
	}
	if !reading.Complete() {
		p.logger.Debug("incomplete sensor reading, skipping tick", "timestamp", reading.Timestamp)
		p.metrics.FeedReadings.WithLabelValues("incomplete").Inc()
		return 0
	}
	p.metrics.FeedReadings.WithLabelValues("ok").Inc()
	p.ready.Store(true)

	sample := reading.Sample()
	active := p.shipments.InTransit()
	p.metrics.InTransitShipments.Set(float64(len(active)))

	appended := 0
	for _, rec := range active {
		added, err := p.samples.Append(ctx, rec.TrackingCode, sample)
		if err != nil {
			p.logger.Warn("append sample failed", "error", err, "tracking_code", rec.TrackingCode)
			continue
		}
		if !added {
			p.metrics.DuplicatesRejected.Inc()
			continue
		}
		p.metrics.SamplesAppended.Inc()
		appended++
	}
	return appended
}

func fetchLatest(ctx context.Context, feed SensorFeed, timeout time.Duration) (domain.FeedReading, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return feed.Latest(ctx)
}
