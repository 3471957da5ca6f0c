package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// phase tracks pass/fail for an audit phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type keyLister interface {
	store.ArtifactStore
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type auditor struct {
	artifacts keyLister
	histories store.HistoryStore
	retention int
}

type auditStats struct {
	sensorLogs  int
	validations int
	histories   int
	samples     int
	unparseable int
}

func (a *auditor) audit(ctx context.Context) ([]*phase, auditStats, error) {
	var stats auditStats

	logs, err := a.loadArtifacts(ctx, store.SensorLogPrefix())
	if err != nil {
		return nil, stats, fmt.Errorf("load sensor logs: %w", err)
	}
	validations, err := a.loadArtifacts(ctx, store.ValidationPrefix())
	if err != nil {
		return nil, stats, fmt.Errorf("load validation results: %w", err)
	}
	histories, err := a.histories.LoadHistories(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("load histories: %w", err)
	}

	stats.sensorLogs = len(logs)
	stats.validations = len(validations)
	stats.histories = len(histories)
	for _, samples := range histories {
		stats.samples += len(samples)
		for _, s := range samples {
			if domain.Normalize(s.Timestamp) == 0 {
				stats.unparseable++
			}
		}
	}

	return []*phase{
		checkSensorLogs(logs),
		checkHistories(histories, a.retention),
		checkValidations(validations),
	}, stats, nil
}

func (a *auditor) loadArtifacts(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := a.artifacts.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		payload, err := a.artifacts.Read(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		out[strings.TrimPrefix(k, prefix)] = payload
	}
	return out, nil
}

// ── Sensor logs ──

func checkSensorLogs(logs map[string][]byte) *phase {
	p := &phase{name: "Persisted sensor logs"}
	for code, payload := range logs {
		var log domain.PersistedSensorLog
		if err := json.Unmarshal(payload, &log); err != nil {
			p.errorf("%s: decode: %v", code, err)
			continue
		}
		checkSensorLog(p, code, log)
	}
	return p
}

func checkSensorLog(p *phase, code string, log domain.PersistedSensorLog) {
	if log.TrackingCode != code {
		p.errorf("%s: tracking_code is %q", code, log.TrackingCode)
	}
	if _, err := uuid.Parse(log.ID); err != nil {
		p.errorf("%s: id %q is not a UUID", code, log.ID)
	}
	if log.SavedAt.IsZero() {
		p.errorf("%s: saved_at missing", code)
	}
	if len(log.Samples) == 0 {
		p.errorf("%s: no samples", code)
	}

	win, ok := domain.WindowFor(domain.ShipmentTransitRecord{
		ShippedAt:   log.ShippedAt,
		DeliveredAt: log.DeliveredAt,
		IsDelivered: true,
	}, time.Time{})
	if !ok {
		p.errorf("%s: shipped_at %q does not parse", code, log.ShippedAt)
		return
	}
	// Without delivered_at the window closed at the persister's clock,
	// which the log does not record; only the lower bound is checkable.
	if log.DeliveredAt == "" {
		win.To = math.MaxInt64
	}

	seen := make(map[string]bool, len(log.Samples))
	var prev int64
	for i, s := range log.Samples {
		ms := domain.Normalize(s.Timestamp)
		if !win.Contains(ms) {
			p.errorf("%s: sample %d (%s) outside window", code, i, s.Timestamp)
		}
		if seen[s.Timestamp] {
			p.errorf("%s: duplicate timestamp %s", code, s.Timestamp)
		}
		seen[s.Timestamp] = true
		if ms < prev {
			p.errorf("%s: sample %d (%s) out of order", code, i, s.Timestamp)
		}
		prev = ms
	}
}

// ── Histories ──

func checkHistories(histories map[string][]domain.SensorSample, retention int) *phase {
	p := &phase{name: "Sample histories (retention, dedup)"}
	for code, samples := range histories {
		if retention > 0 && len(samples) > retention {
			p.errorf("%s: %d samples exceeds retention %d", code, len(samples), retention)
		}
		seen := make(map[string]bool, len(samples))
		for _, s := range samples {
			if s.Timestamp == "" {
				p.errorf("%s: sample without timestamp", code)
				continue
			}
			if seen[s.Timestamp] {
				p.errorf("%s: duplicate timestamp %s", code, s.Timestamp)
			}
			seen[s.Timestamp] = true
		}
	}
	return p
}

// ── Validation results ──

func checkValidations(results map[string][]byte) *phase {
	p := &phase{name: "Cached validation results"}
	for code, payload := range results {
		var res domain.ValidationResult
		if err := json.Unmarshal(payload, &res); err != nil {
			p.errorf("%s: decode: %v", code, err)
			continue
		}
		if res.TrackingCode != code {
			p.errorf("%s: tracking_code is %q", code, res.TrackingCode)
		}
		if res.Percent < 0 || res.Percent > 100 {
			p.errorf("%s: percent %d out of range", code, res.Percent)
		}
		if res.LocalCount <= 0 {
			p.errorf("%s: cached with no local samples", code)
		}
		if res.ComputedAt.IsZero() {
			p.errorf("%s: computed_at missing", code)
		}
	}
	return p
}
