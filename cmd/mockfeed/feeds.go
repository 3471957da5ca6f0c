package main

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ledgerStep   = 10 * time.Second
	ledgerMax    = 1000
	glitchEvery  = 7   // every 7th reading is off by glitchDelta
	glitchDelta  = 0.4 // degrees
	buddhistDiff = 543
)

type reading struct {
	Temp      float64 `json:"temp"`
	Timestamp string  `json:"timestamp"`
	SensorID  string  `json:"sensor_id"`
}

type ledgerEntry struct {
	Temp      float64 `json:"temp"`
	Timestamp string  `json:"timestamp"`
}

type shipment struct {
	ID           string   `json:"id"`
	TrackingCode string   `json:"tracking_code"`
	ShippedAt    string   `json:"shipped_at"`
	DeliveredAt  string   `json:"delivered_at"`
	TempMin      *float64 `json:"temp_min"`
	TempMax      *float64 `json:"temp_max"`
	IsShipped    bool     `json:"is_shipped"`
	IsDelivered  bool     `json:"is_delivered"`
}

// plan is a scripted shipment. Offsets are in scenario units from start; a
// negative deliver offset means the shipment never arrives.
type plan struct {
	code              string
	ship, deliver     int
	tempMin, tempMax  float64
	buddhistShippedAt bool
}

var plans = []plan{
	{code: "TH-DEMO-1", ship: 1, deliver: 5, tempMin: 2, tempMax: 8},
	{code: "TH-DEMO-2", ship: 3, deliver: 12, tempMin: 4, tempMax: 6, buddhistShippedAt: true},
	{code: "TH-DEMO-3", ship: 8, deliver: -1, tempMin: 2, tempMax: 8},
	{code: "TH-DEMO-4", ship: 30, deliver: -1, tempMin: 0, tempMax: 4},
}

type feeds struct {
	clock clockwork.Clock
	loc   *time.Location
	unit  time.Duration
	start time.Time
}

func newFeeds(clock clockwork.Clock, loc *time.Location, unit time.Duration) *feeds {
	return &feeds{clock: clock, loc: loc, unit: unit, start: clock.Now()}
}

func (f *feeds) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sensor/latest", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, f.latest())
	})
	mux.HandleFunc("GET /ledger", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, f.ledger())
	})
	mux.HandleFunc("GET /shipments", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, f.shipments())
	})
	return mux
}

func writeResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// temperature is a smooth, deterministic curve around 5 degrees.
func temperature(t time.Time) float64 {
	minutes := float64(t.Unix()) / 60
	return math.Round((5+1.5*math.Sin(minutes/10))*100) / 100
}

func (f *feeds) latest() reading {
	now := f.clock.Now().Truncate(time.Second)
	seq := int(now.Sub(f.start.Truncate(time.Second)) / time.Second)

	temp := temperature(now)
	if seq%glitchEvery == glitchEvery-1 {
		temp += glitchDelta
	}
	return reading{
		Temp:      math.Round(temp*100) / 100,
		Timestamp: encode(now.In(f.loc), seq),
		SensorID:  "mock-pi-01",
	}
}

// encode renders the wall clock of t in one of three encodings.
func encode(t time.Time, seq int) string {
	switch seq % 3 {
	case 1:
		return t.Format("2006-01-02T15:04:05") + "Z"
	case 2:
		return fmt.Sprintf("%04d%s", t.Year()+buddhistDiff, t.Format("-01-02 15:04:05"))
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

// ledger lists the curve every ledgerStep from start, stamped in UTC.
func (f *feeds) ledger() []ledgerEntry {
	now := f.clock.Now()
	first := f.start.Truncate(ledgerStep)
	if n := int(now.Sub(first) / ledgerStep); n > ledgerMax {
		first = first.Add(time.Duration(n-ledgerMax) * ledgerStep)
	}

	out := []ledgerEntry{}
	for t := first; !t.After(now); t = t.Add(ledgerStep) {
		out = append(out, ledgerEntry{
			Temp:      temperature(t),
			Timestamp: t.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func (f *feeds) shipments() []shipment {
	now := f.clock.Now()
	out := make([]shipment, 0, len(plans))
	for i, p := range plans {
		s := shipment{
			ID:           fmt.Sprintf("shp-%d", i+1),
			TrackingCode: p.code,
			TempMin:      &p.tempMin,
			TempMax:      &p.tempMax,
		}
		shipAt := f.start.Add(time.Duration(p.ship) * f.unit)
		if !now.Before(shipAt) {
			s.IsShipped = true
			s.ShippedAt = shipAt.In(f.loc).Format("2006-01-02T15:04:05")
			if p.buddhistShippedAt {
				s.ShippedAt = encode(shipAt.In(f.loc), 2)
			}
		}
		if p.deliver >= 0 {
			deliverAt := f.start.Add(time.Duration(p.deliver) * f.unit)
			if !now.Before(deliverAt) {
				s.IsDelivered = true
				s.DeliveredAt = deliverAt.In(f.loc).Format("2006-01-02T15:04:05")
			}
		}
		out = append(out, s)
	}
	return out
}
