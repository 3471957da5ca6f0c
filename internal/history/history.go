// Package history holds the per-shipment sensor sample histories.
//
// Every successful append is written through a store.HistoryStore before it
// becomes visible to readers, so a restarted process resumes with the same
// histories after Load.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// DefaultRetention is the number of samples kept per tracking code when
// Options.Retention is unset.
const DefaultRetention = 1000

var (
	ErrBlankTrackingCode = errors.New("tracking code is required")
	ErrBlankTimestamp    = errors.New("sample timestamp is required")
)

// Options configures a Store.
type Options struct {
	Retention int
	Clock     clockwork.Clock
}

// Store is the in-process view of every shipment's sample history. Samples
// are kept newest first, at most Retention per tracking code, and never twice
// under the same timestamp string.
type Store struct {
	persist   store.HistoryStore
	retention int
	clock     clockwork.Clock

	// appendMu serializes appends across all tracking codes. mu guards the
	// in-memory maps only and is never held across persistence.
	appendMu   sync.Mutex
	mu         sync.RWMutex
	histories  map[string][]domain.SensorSample
	lastUpdate time.Time
}

// New creates an empty Store. Call Load to restore persisted histories.
func New(persist store.HistoryStore, opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Store{
		persist:   persist,
		retention: opts.Retention,
		clock:     opts.Clock,
		histories: make(map[string][]domain.SensorSample),
	}
}

// Load replaces the in-memory histories with the persisted ones, trimming
// any that exceed the current retention.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.persist.LoadHistories(ctx)
	if err != nil {
		return fmt.Errorf("load histories: %w", err)
	}
	if loaded == nil {
		loaded = make(map[string][]domain.SensorSample)
	}
	for code, samples := range loaded {
		if len(samples) > s.retention {
			loaded[code] = samples[:s.retention]
		}
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.mu.Lock()
	s.histories = loaded
	s.mu.Unlock()
	return nil
}

// Append records sample for trackingCode. It reports false with a nil error
// when a sample with the same timestamp is already stored.
func (s *Store) Append(ctx context.Context, trackingCode string, sample domain.SensorSample) (bool, error) {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return false, ErrBlankTrackingCode
	}
	if sample.Timestamp == "" {
		return false, ErrBlankTimestamp
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	s.mu.RLock()
	current := s.histories[trackingCode]
	s.mu.RUnlock()
	if slices.ContainsFunc(current, func(e domain.SensorSample) bool { return e.Timestamp == sample.Timestamp }) {
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	// Once handed to the store the write runs to completion, so a cancelled
	// caller cannot leave a committed sample missing from memory.
	if err := s.persist.AppendSample(context.WithoutCancel(ctx), trackingCode, sample, s.retention); err != nil {
		return false, fmt.Errorf("persist sample for %s: %w", trackingCode, err)
	}

	next := make([]domain.SensorSample, 0, min(len(current)+1, s.retention))
	next = append(next, sample)
	next = append(next, current[:min(len(current), s.retention-1)]...)

	s.mu.Lock()
	s.histories[trackingCode] = next
	s.lastUpdate = s.clock.Now()
	s.mu.Unlock()
	return true, nil
}

// Get returns a copy of the history for trackingCode in insertion order:
// Descending is newest first, Ascending oldest first.
func (s *Store) Get(trackingCode string, order domain.Order) []domain.SensorSample {
	s.mu.RLock()
	out := slices.Clone(s.histories[trackingCode])
	s.mu.RUnlock()

	if out == nil {
		out = []domain.SensorSample{}
	}
	if order == domain.Ascending {
		slices.Reverse(out)
	}
	return out
}

// Len returns the number of samples held for trackingCode.
func (s *Store) Len(trackingCode string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[trackingCode])
}

// TrackingCodes lists every code with a non-empty history, sorted.
func (s *Store) TrackingCodes() []string {
	s.mu.RLock()
	codes := make([]string, 0, len(s.histories))
	for code, samples := range s.histories {
		if len(samples) > 0 {
			codes = append(codes, code)
		}
	}
	s.mu.RUnlock()

	slices.Sort(codes)
	return codes
}

// LastUpdate is the time of the most recent successful append, or the zero
// time if nothing was appended since the process started.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}
