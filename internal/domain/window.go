package domain

import (
	"sort"
	"time"
)

// Order selects how a sample sequence is arranged for a consumer.
type Order int

const (
	// Ascending is oldest first, used for graphs and statistics.
	Ascending Order = iota
	// Descending is most recent first, used for table display.
	Descending
)

// ParseOrder maps "asc"/"desc" query values to an Order. Anything else is
// reported as not ok.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "asc", "ascending":
		return Ascending, true
	case "desc", "descending":
		return Descending, true
	default:
		return Ascending, false
	}
}

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Window is an inclusive transit interval in normalized milliseconds.
type Window struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
	Open bool  `json:"open"` // upper bound is "now" because the shipment is undelivered
}

// Contains reports whether a normalized timestamp lies inside the window.
// The sentinel 0 is never contained.
func (w Window) Contains(ms int64) bool {
	return ms != 0 && ms >= w.From && ms <= w.To
}

// WindowFor computes the transit window for a shipment. It returns false when
// the shipment has no ship time (or one that cannot be parsed), in which case
// no window exists yet. now is read through WallClockMillis, so pass it in
// the feed's time zone.
func WindowFor(rec ShipmentTransitRecord, now time.Time) (Window, bool) {
	if rec.ShippedAt == "" {
		return Window{}, false
	}
	from := Normalize(rec.ShippedAt)
	if from == 0 {
		return Window{}, false
	}

	w := Window{From: from}
	if rec.DeliveredAt != "" {
		w.To = Normalize(rec.DeliveredAt)
	} else {
		w.To = WallClockMillis(now)
		w.Open = true
	}
	return w, true
}

// FilterWindow selects the samples that fall inside the shipment's transit
// window, preserving the input order. It never mutates history.
func FilterWindow(history []SensorSample, rec ShipmentTransitRecord, now time.Time) []SensorSample {
	w, ok := WindowFor(rec, now)
	if !ok {
		return []SensorSample{}
	}

	out := make([]SensorSample, 0, len(history))
	for _, s := range history {
		if w.Contains(Normalize(s.Timestamp)) {
			out = append(out, s)
		}
	}
	return out
}

// SortSamples returns a copy of samples ordered by normalized timestamp.
// Samples with equal instants keep their relative order.
func SortSamples(samples []SensorSample, order Order) []SensorSample {
	type keyed struct {
		ms int64
		s  SensorSample
	}
	ks := make([]keyed, len(samples))
	for i, s := range samples {
		ks[i] = keyed{ms: Normalize(s.Timestamp), s: s}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if order == Descending {
			return ks[i].ms > ks[j].ms
		}
		return ks[i].ms < ks[j].ms
	})

	out := make([]SensorSample, len(ks))
	for i, k := range ks {
		out[i] = k.s
	}
	return out
}
