// Package memory provides in-memory store implementations for tests and
// local development. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// Artifacts is an in-memory store.ArtifactStore.
type Artifacts struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

func NewArtifacts() *Artifacts {
	return &Artifacts{data: make(map[string][]byte)}
}

func (a *Artifacts) Exists(_ context.Context, key string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.data[key]
	return ok, nil
}

func (a *Artifacts) Write(_ context.Context, key string, payload []byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[key]; ok {
		return false, nil
	}
	a.data[key] = append([]byte(nil), payload...)
	a.writes++
	return true, nil
}

func (a *Artifacts) Read(_ context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	payload, ok := a.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Writes returns how many artifacts were created. Test-only helper.
func (a *Artifacts) Writes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes
}

// Histories is an in-memory store.HistoryStore. Samples are kept newest first.
type Histories struct {
	mu   sync.Mutex
	data map[string][]domain.SensorSample
}

func NewHistories() *Histories {
	return &Histories{data: make(map[string][]domain.SensorSample)}
}

func (h *Histories) LoadHistories(_ context.Context) (map[string][]domain.SensorSample, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]domain.SensorSample, len(h.data))
	for code, samples := range h.data {
		out[code] = append([]domain.SensorSample(nil), samples...)
	}
	return out, nil
}

func (h *Histories) AppendSample(_ context.Context, trackingCode string, s domain.SensorSample, retention int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.data[trackingCode]
	for _, existing := range current {
		if existing.Timestamp == s.Timestamp {
			return nil
		}
	}

	next := append([]domain.SensorSample{s}, current...)
	if retention > 0 && len(next) > retention {
		next = next[:retention]
	}
	h.data[trackingCode] = next
	return nil
}
