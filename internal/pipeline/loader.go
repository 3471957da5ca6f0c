package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/parcel-sensor-service/internal/history"
)

// FirstViewLoader seeds an empty history with one feed reading the first
// time a shipment is viewed, so the view does not wait for the next poll.
type FirstViewLoader struct {
	feed      SensorFeed
	samples   *history.Store
	timeout   time.Duration
	logger    *slog.Logger
	attempted sync.Map // tracking code -> struct{}
}

// NewFirstViewLoader creates a loader. timeout bounds the single fetch.
func NewFirstViewLoader(feed SensorFeed, samples *history.Store, timeout time.Duration, logger *slog.Logger) *FirstViewLoader {
	return &FirstViewLoader{
		feed:    feed,
		samples: samples,
		timeout: timeout,
		logger:  logger,
	}
}

// EnsureLoaded fetches and appends one reading for trackingCode when its
// history is empty and no attempt was made before. It reports whether a
// fetch was attempted. A fetch racing the poller is harmless: the store
// drops the duplicate timestamp.
func (l *FirstViewLoader) EnsureLoaded(ctx context.Context, trackingCode string) bool {
	if trackingCode == "" || l.samples.Len(trackingCode) > 0 {
		return false
	}
	if _, seen := l.attempted.LoadOrStore(trackingCode, struct{}{}); seen {
		return false
	}

	reading, err := fetchLatest(ctx, l.feed, l.timeout)
	if err != nil {
		l.logger.Warn("first-view fetch failed", "error", err, "tracking_code", trackingCode)
		return true
	}
	if !reading.Complete() {
		l.logger.Debug("first-view reading incomplete", "tracking_code", trackingCode)
		return true
	}
	if _, err := l.samples.Append(ctx, trackingCode, reading.Sample()); err != nil {
		l.logger.Warn("first-view append failed", "error", err, "tracking_code", trackingCode)
	}
	return true
}
