package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// LogPublisher forwards a freshly persisted sensor log downstream.
type LogPublisher interface {
	PublishSensorLog(ctx context.Context, log domain.PersistedSensorLog) error
}

// PersistResult reports the outcome of PersistIfNeeded. The zero value means
// the shipment was not eligible and nothing was written.
type PersistResult struct {
	AlreadySaved bool `json:"already_saved"`
	SavedCount   int  `json:"saved_count"`
}

// PersisterConfig wires the optional parts of a Persister.
type PersisterConfig struct {
	Clock     clockwork.Clock
	Location  *time.Location // zone of the feed's wall-clock timestamps
	Publisher LogPublisher
}

// Persister writes each delivered shipment's in-window samples exactly once.
type Persister struct {
	artifacts store.ArtifactStore
	samples   *history.Store
	clock     clockwork.Clock
	location  *time.Location
	publisher LogPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	locks     *keyLock
}

// NewPersister creates a Persister.
func NewPersister(artifacts store.ArtifactStore, samples *history.Store, cfg PersisterConfig, logger *slog.Logger, metrics *observability.Metrics) *Persister {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Persister{
		artifacts: artifacts,
		samples:   samples,
		clock:     cfg.Clock,
		location:  cfg.Location,
		publisher: cfg.Publisher,
		logger:    logger,
		metrics:   metrics,
		locks:     newKeyLock(),
	}
}

// Complete filters the shipment's history to its transit window and
// persists the result if the shipment is delivered.
func (p *Persister) Complete(ctx context.Context, rec domain.ShipmentTransitRecord) (PersistResult, error) {
	if !rec.IsDelivered {
		return PersistResult{}, nil
	}
	now := p.clock.Now().In(p.location)
	filtered := domain.FilterWindow(p.samples.Get(rec.TrackingCode, domain.Ascending), rec, now)
	return p.PersistIfNeeded(ctx, rec, domain.SortSamples(filtered, domain.Ascending))
}

// PersistIfNeeded writes filtered as the shipment's sensor log unless one
// already exists. Concurrent calls for one tracking code produce a single
// artifact; every loser reports AlreadySaved.
func (p *Persister) PersistIfNeeded(ctx context.Context, rec domain.ShipmentTransitRecord, filtered []domain.SensorSample) (PersistResult, error) {
	if !rec.IsDelivered || len(filtered) == 0 || rec.TrackingCode == "" {
		p.metrics.SensorLogs.WithLabelValues("skipped").Inc()
		return PersistResult{}, nil
	}
	key := store.SensorLogKey(rec.TrackingCode)

	exists, err := p.artifacts.Exists(ctx, key)
	if err != nil {
		p.metrics.SensorLogs.WithLabelValues("error").Inc()
		return PersistResult{}, fmt.Errorf("check sensor log %s: %w", rec.TrackingCode, err)
	}
	if exists {
		p.metrics.SensorLogs.WithLabelValues("already_saved").Inc()
		return PersistResult{AlreadySaved: true}, nil
	}

	unlock := p.locks.lock(key)
	defer unlock()

	log := domain.PersistedSensorLog{
		ID:           uuid.NewString(),
		TrackingCode: rec.TrackingCode,
		ShippedAt:    rec.ShippedAt,
		DeliveredAt:  rec.DeliveredAt,
		Samples:      domain.SortSamples(filtered, domain.Ascending),
		SavedAt:      p.clock.Now().UTC(),
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return PersistResult{}, fmt.Errorf("marshal sensor log %s: %w", rec.TrackingCode, err)
	}

	created, err := p.artifacts.Write(ctx, key, payload)
	if err != nil {
		p.metrics.SensorLogs.WithLabelValues("error").Inc()
		return PersistResult{}, fmt.Errorf("write sensor log %s: %w", rec.TrackingCode, err)
	}
	if !created {
		p.metrics.SensorLogs.WithLabelValues("already_saved").Inc()
		return PersistResult{AlreadySaved: true}, nil
	}

	p.metrics.SensorLogs.WithLabelValues("saved").Inc()
	p.logger.Info("sensor log persisted",
		"tracking_code", rec.TrackingCode,
		"samples", len(log.Samples),
		"id", log.ID,
	)
	p.publish(ctx, log)

	return PersistResult{SavedCount: len(log.Samples)}, nil
}

func (p *Persister) publish(ctx context.Context, log domain.PersistedSensorLog) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSensorLog(ctx, log); err != nil {
		p.metrics.PublishFailures.Inc()
		p.logger.Warn("publish sensor log failed", "error", err, "tracking_code", log.TrackingCode)
	}
}

// Load reads a persisted sensor log. It returns store.ErrNotFound when the
// shipment has none.
func (p *Persister) Load(ctx context.Context, trackingCode string) (domain.PersistedSensorLog, error) {
	payload, err := p.artifacts.Read(ctx, store.SensorLogKey(trackingCode))
	if err != nil {
		return domain.PersistedSensorLog{}, err
	}
	var log domain.PersistedSensorLog
	if err := json.Unmarshal(payload, &log); err != nil {
		return domain.PersistedSensorLog{}, fmt.Errorf("decode sensor log %s: %w", trackingCode, err)
	}
	return log, nil
}
