// Package store defines the durable persistence contracts used by the
// sensor pipeline. Implementations live in the memory and sqlite subpackages.
package store

import (
	"context"
	"errors"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

// ErrNotFound is returned by Read when no artifact exists for a key.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore is a key-addressed, write-once store.
type ArtifactStore interface {
	Exists(ctx context.Context, key string) (bool, error)

	// Write stores payload under key only if the key is absent. It reports
	// whether this call created the artifact; an existing key is left as is.
	Write(ctx context.Context, key string, payload []byte) (bool, error)

	Read(ctx context.Context, key string) ([]byte, error)
}

// HistoryStore persists per-tracking-code sample histories.
type HistoryStore interface {
	// LoadHistories returns every stored history, newest sample first.
	LoadHistories(ctx context.Context) (map[string][]domain.SensorSample, error)

	// AppendSample records s for trackingCode and trims the stored history
	// to the newest retention samples.
	AppendSample(ctx context.Context, trackingCode string, s domain.SensorSample, retention int) error
}

const (
	sensorLogPrefix  = "sensor-log:"
	validationPrefix = "validation:"
)

// SensorLogKey is the artifact key of a shipment's persisted sensor log.
func SensorLogKey(trackingCode string) string { return sensorLogPrefix + trackingCode }

// ValidationKey is the artifact key of a shipment's cached validation result.
func ValidationKey(trackingCode string) string { return validationPrefix + trackingCode }

// SensorLogPrefix is the key prefix shared by all persisted sensor logs.
func SensorLogPrefix() string { return sensorLogPrefix }

// ValidationPrefix is the key prefix shared by all cached validation results.
func ValidationPrefix() string { return validationPrefix }
