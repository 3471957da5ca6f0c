package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/couchcryptid/parcel-sensor-service/internal/db"
	"github.com/couchcryptid/parcel-sensor-service/internal/store"
)

// ArtifactStore is a store.ArtifactStore backed by the artifacts table.
// Write relies on INSERT OR IGNORE against the primary key, so concurrent
// writers for one key can never both succeed.
type ArtifactStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewArtifactStore(db *sql.DB, writer *dbpkg.Worker) *ArtifactStore {
	return &ArtifactStore{db: db, writer: writer}
}

func (s *ArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM artifacts WHERE key = ?;`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Exists %s: %w", key, err)
	}
	return true, nil
}

func (s *ArtifactStore) Write(ctx context.Context, key string, payload []byte) (bool, error) {
	var created bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO artifacts(key, payload, created_at_ms)
VALUES (?, ?, ?);
`, key, payload, time.Now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("Write %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Write %s rows affected: %w", key, err)
		}
		created = n == 1
		return nil
	})
	return created, err
}

func (s *ArtifactStore) Read(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM artifacts WHERE key = ?;`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Read %s: %w", key, err)
	}
	return payload, nil
}

// Keys lists artifact keys with the given prefix in key order.
func (s *ArtifactStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key FROM artifacts
WHERE substr(key, 1, ?) = ?
ORDER BY key;
`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("Keys %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("Keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
