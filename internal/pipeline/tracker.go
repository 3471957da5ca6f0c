package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
)

// Completer finalizes a delivered shipment.
type Completer interface {
	Complete(ctx context.Context, rec domain.ShipmentTransitRecord) (PersistResult, error)
}

// TrackerConfig controls the shipment refresh cadence.
type TrackerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Tracker keeps an eventually consistent snapshot of the shipment list and
// hands delivered shipments to the Completer.
type Tracker struct {
	source    ShipmentSource
	completer Completer
	clock     clockwork.Clock
	cfg       TrackerConfig
	logger    *slog.Logger
	metrics   *observability.Metrics

	snapshot  atomic.Pointer[shipmentSnapshot]
	refreshed atomic.Bool

	// finished holds codes whose sensor log is known to be persisted.
	mu       sync.Mutex
	finished map[string]struct{}
}

type shipmentSnapshot struct {
	all    []domain.ShipmentTransitRecord
	byCode map[string]domain.ShipmentTransitRecord
}

// NewTracker creates a Tracker with an empty snapshot. completer may be nil.
func NewTracker(source ShipmentSource, completer Completer, clock clockwork.Clock, cfg TrackerConfig, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{
		source:    source,
		completer: completer,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		finished:  make(map[string]struct{}),
	}
	t.snapshot.Store(&shipmentSnapshot{byCode: map[string]domain.ShipmentTransitRecord{}})
	return t
}

// CheckReadiness returns nil once the shipment list was fetched at least once.
func (t *Tracker) CheckReadiness(_ context.Context) error {
	if !t.refreshed.Load() {
		return errors.New("shipment list not loaded yet")
	}
	return nil
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("shipment tracker started", "interval", t.cfg.Interval)

	ticker := t.clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn("shipment refresh failed, keeping previous snapshot", "error", err)
		}
		select {
		case <-ctx.Done():
			t.logger.Info("shipment tracker stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Refresh replaces the snapshot with the provider's current list and then
// completes every delivered shipment not already finished. On fetch failure
// the previous snapshot stays in place.
func (t *Tracker) Refresh(ctx context.Context) error {
	fetchCtx := ctx
	if t.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t.cfg.FetchTimeout)
		defer cancel()
	}

	records, err := t.source.Shipments(fetchCtx)
	if err != nil {
		t.metrics.ShipmentRefreshes.WithLabelValues("error").Inc()
		return err
	}
	t.metrics.ShipmentRefreshes.WithLabelValues("ok").Inc()

	snap := &shipmentSnapshot{
		all:    records,
		byCode: make(map[string]domain.ShipmentTransitRecord, len(records)),
	}
	for _, rec := range records {
		if rec.TrackingCode == "" {
			continue
		}
		snap.byCode[rec.TrackingCode] = rec
	}
	t.snapshot.Store(snap)
	t.refreshed.Store(true)

	t.completeDelivered(ctx, records)
	return nil
}

func (t *Tracker) completeDelivered(ctx context.Context, records []domain.ShipmentTransitRecord) {
	if t.completer == nil {
		return
	}
	for _, rec := range records {
		if !rec.IsDelivered || rec.TrackingCode == "" || t.isFinished(rec.TrackingCode) {
			continue
		}
		res, err := t.completer.Complete(ctx, rec)
		if err != nil {
			t.logger.Warn("complete shipment failed", "error", err, "tracking_code", rec.TrackingCode)
			continue
		}
		if res.AlreadySaved || res.SavedCount > 0 {
			t.markFinished(rec.TrackingCode)
		}
	}
}

func (t *Tracker) isFinished(code string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.finished[code]
	return ok
}

func (t *Tracker) markFinished(code string) {
	t.mu.Lock()
	t.finished[code] = struct{}{}
	t.mu.Unlock()
}

// InTransit returns the shipments that are shipped and not yet delivered.
func (t *Tracker) InTransit() []domain.ShipmentTransitRecord {
	snap := t.snapshot.Load()
	out := make([]domain.ShipmentTransitRecord, 0, len(snap.all))
	for _, rec := range snap.all {
		if rec.InTransit() && rec.TrackingCode != "" {
			out = append(out, rec)
		}
	}
	return out
}

// Lookup returns the latest known record for a tracking code.
func (t *Tracker) Lookup(code string) (domain.ShipmentTransitRecord, bool) {
	rec, ok := t.snapshot.Load().byCode[code]
	return rec, ok
}

// All returns a copy of the latest shipment list.
func (t *Tracker) All() []domain.ShipmentTransitRecord {
	snap := t.snapshot.Load()
	return append([]domain.ShipmentTransitRecord(nil), snap.all...)
}
