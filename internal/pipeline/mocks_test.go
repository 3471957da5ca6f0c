package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/history"
	"github.com/couchcryptid/parcel-sensor-service/internal/observability"
	"github.com/couchcryptid/parcel-sensor-service/internal/pipeline"
	"github.com/couchcryptid/parcel-sensor-service/internal/store/memory"
)

// --- mocks ---

// fakeFeed serves readings in order and then repeats the last one.
type fakeFeed struct {
	mu       sync.Mutex
	readings []domain.FeedReading
	next     int
	err      error
	calls    atomic.Int32
}

func (f *fakeFeed) Latest(_ context.Context) (domain.FeedReading, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.FeedReading{}, f.err
	}
	if len(f.readings) == 0 {
		return domain.FeedReading{}, nil
	}
	r := f.readings[min(f.next, len(f.readings)-1)]
	f.next++
	return r, nil
}

func (f *fakeFeed) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	err     error
	calls   atomic.Int32
	release chan struct{} // when set, Ledger blocks until closed
}

func (f *fakeLedger) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, f.err
}

type fakeShipments struct {
	mu      sync.Mutex
	records []domain.ShipmentTransitRecord
	err     error
}

func (f *fakeShipments) Shipments(_ context.Context) ([]domain.ShipmentTransitRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.ShipmentTransitRecord(nil), f.records...), nil
}

func (f *fakeShipments) set(records ...domain.ShipmentTransitRecord) {
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
}

type staticInTransit []domain.ShipmentTransitRecord

func (s staticInTransit) InTransit() []domain.ShipmentTransitRecord { return s }

type recordingPublisher struct {
	mu   sync.Mutex
	logs []domain.PersistedSensorLog
	err  error
}

func (p *recordingPublisher) PublishSensorLog(_ context.Context, log domain.PersistedSensorLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, log)
	return p.err
}

type recordingCompleter struct {
	mu     sync.Mutex
	codes  []string
	result pipeline.PersistResult
}

func (c *recordingCompleter) Complete(_ context.Context, rec domain.ShipmentTransitRecord) (pipeline.PersistResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, rec.TrackingCode)
	return c.result, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func newHistory() *history.Store {
	return history.New(memory.NewHistories(), history.Options{})
}

func reading(ts string, temp float64) domain.FeedReading {
	return domain.FeedReading{Temp: &temp, Timestamp: ts, SensorID: "sensor-1"}
}

func smp(ts string, temp float64) domain.SensorSample {
	return domain.SensorSample{Temperature: temp, Timestamp: ts}
}

func inTransit(code string) domain.ShipmentTransitRecord {
	return domain.ShipmentTransitRecord{
		ShipmentID:   domain.OpaqueID("id-" + code),
		TrackingCode: code,
		ShippedAt:    "2024-01-15T08:00:00",
		IsShipped:    true,
	}
}

func delivered(code string) domain.ShipmentTransitRecord {
	rec := inTransit(code)
	rec.DeliveredAt = "2024-01-15T09:00:00"
	rec.IsDelivered = true
	return rec
}
