package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/couchcryptid/parcel-sensor-service/internal/db"
	"github.com/couchcryptid/parcel-sensor-service/internal/domain"
)

// HistoryStore is a store.HistoryStore backed by the sensor_samples table.
type HistoryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHistoryStore(db *sql.DB, writer *dbpkg.Worker) *HistoryStore {
	return &HistoryStore{db: db, writer: writer}
}

// LoadHistories reads every stored sample, grouped by tracking code and
// ordered newest first (by insertion).
func (s *HistoryStore) LoadHistories(ctx context.Context) (map[string][]domain.SensorSample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT tracking_code, ts, temperature, source_device
FROM sensor_samples
ORDER BY tracking_code, id DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadHistories: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.SensorSample)
	for rows.Next() {
		var code string
		var smp domain.SensorSample
		if err := rows.Scan(&code, &smp.Timestamp, &smp.Temperature, &smp.SourceDevice); err != nil {
			return nil, fmt.Errorf("LoadHistories scan: %w", err)
		}
		out[code] = append(out[code], smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadHistories rows: %w", err)
	}
	return out, nil
}

// AppendSample inserts the sample (ignored if the timestamp is already stored
// for the code) and deletes everything older than the newest retention rows.
func (s *HistoryStore) AppendSample(ctx context.Context, trackingCode string, smp domain.SensorSample, retention int) error {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return nil
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO sensor_samples(tracking_code, ts, temperature, source_device, ingested_at_ms)
VALUES (?, ?, ?, ?, ?);
`, trackingCode, smp.Timestamp, smp.Temperature, smp.SourceDevice, nowMs); err != nil {
			return fmt.Errorf("AppendSample insert %s: %w", trackingCode, err)
		}

		if retention <= 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
DELETE FROM sensor_samples
WHERE tracking_code = ?
  AND id NOT IN (
    SELECT id FROM sensor_samples
    WHERE tracking_code = ?
    ORDER BY id DESC
    LIMIT ?
  );
`, trackingCode, trackingCode, retention); err != nil {
			return fmt.Errorf("AppendSample trim %s: %w", trackingCode, err)
		}
		return nil
	})
}
