package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SensorSample is a single temperature reading taken from the shared sensor
// feed. The timestamp is kept exactly as the feed rendered it; its normalized
// value is derived on demand with Normalize.
type SensorSample struct {
	Temperature  float64 `json:"temperature"`
	Timestamp    string  `json:"timestamp"`
	SourceDevice string  `json:"source_device,omitempty"`
}

// FeedReading is the payload returned by the external sensor feed.
// Temperature is a pointer so a missing field is distinguishable from 0°C.
type FeedReading struct {
	Temp      *float64 `json:"temp"`
	Timestamp string   `json:"timestamp"`
	SensorID  string   `json:"sensor_id"`
}

// Complete reports whether the reading carries both a temperature and a
// timestamp. Incomplete readings are dropped by the ingestion poller.
func (r FeedReading) Complete() bool {
	return r.Temp != nil && r.Timestamp != ""
}

// Sample converts a complete reading into a SensorSample.
func (r FeedReading) Sample() SensorSample {
	var temp float64
	if r.Temp != nil {
		temp = *r.Temp
	}
	return SensorSample{
		Temperature:  temp,
		Timestamp:    r.Timestamp,
		SourceDevice: r.SensorID,
	}
}

// LedgerEntry is one row of the independent ledger used for cross-validation.
type LedgerEntry struct {
	Temp      float64 `json:"temp"`
	Timestamp string  `json:"timestamp"`
}

// ShipmentTransitRecord is the subset of a shipment's lifecycle state needed
// to compute its transit window. ShippedAt and DeliveredAt hold the raw
// timestamps from the lifecycle provider; an empty string means absent.
type ShipmentTransitRecord struct {
	ShipmentID   OpaqueID `json:"id"`
	TrackingCode string   `json:"tracking_code"`
	ShippedAt    string   `json:"shipped_at,omitempty"`
	DeliveredAt  string   `json:"delivered_at,omitempty"`
	TempMin      *float64 `json:"temp_min,omitempty"`
	TempMax      *float64 `json:"temp_max,omitempty"`
	IsShipped    bool     `json:"is_shipped"`
	IsDelivered  bool     `json:"is_delivered"`
}

// OpaqueID is an identifier owned by another system. It decodes from a JSON
// string or number and is only ever compared and displayed.
type OpaqueID string

func (id *OpaqueID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OpaqueID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = OpaqueID(n.String())
	return nil
}

// InTransit reports whether the shipment has left but not yet arrived.
func (r ShipmentTransitRecord) InTransit() bool {
	return r.IsShipped && !r.IsDelivered
}

// PersistedSensorLog is the write-once artifact holding a delivered
// shipment's final in-window samples, oldest first.
type PersistedSensorLog struct {
	ID           string         `json:"id"`
	TrackingCode string         `json:"tracking_code"`
	ShippedAt    string         `json:"shipped_at"`
	DeliveredAt  string         `json:"delivered_at"`
	Samples      []SensorSample `json:"samples"`
	SavedAt      time.Time      `json:"saved_at"`
}

// ValidationResult is the cached outcome of cross-validating a shipment's
// samples against the external ledger.
type ValidationResult struct {
	TrackingCode string    `json:"tracking_code"`
	Percent      int       `json:"percent"`
	LocalCount   int       `json:"local_count"`
	LedgerCount  int       `json:"ledger_count"`
	ComputedAt   time.Time `json:"computed_at"`
}
