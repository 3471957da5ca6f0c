package domain

import "math"

// Summary holds the derived statistics shown alongside a transit window.
type Summary struct {
	Count          int     `json:"count"`
	AverageTemp    float64 `json:"average_temp"`
	MinTemp        float64 `json:"min_temp"`
	MaxTemp        float64 `json:"max_temp"`
	InRangePercent float64 `json:"in_range_percent"`
	HasRange       bool    `json:"has_range"`
}

// Summarize computes statistics over already-filtered samples. The in-range
// percentage is only meaningful when the shipment defines both bounds.
func Summarize(samples []SensorSample, rec ShipmentTransitRecord) Summary {
	sum := Summary{
		Count:    len(samples),
		HasRange: rec.TempMin != nil && rec.TempMax != nil,
	}
	if len(samples) == 0 {
		return sum
	}

	total := 0.0
	inRange := 0
	sum.MinTemp = math.Inf(1)
	sum.MaxTemp = math.Inf(-1)
	for _, s := range samples {
		total += s.Temperature
		sum.MinTemp = math.Min(sum.MinTemp, s.Temperature)
		sum.MaxTemp = math.Max(sum.MaxTemp, s.Temperature)
		if sum.HasRange && s.Temperature >= *rec.TempMin && s.Temperature <= *rec.TempMax {
			inRange++
		}
	}

	sum.AverageTemp = round2(total / float64(len(samples)))
	if sum.HasRange {
		sum.InRangePercent = round2(float64(inRange) / float64(len(samples)) * 100)
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
