package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parcel-sensor-service/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func countArtifacts(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&n))
	return n
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTestDB(t)

	require.NoError(t, db.Migrate(context.Background(), conn))

	var versions int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestWorker_DoCommits(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO artifacts(key, payload, created_at_ms) VALUES ('k', x'00', 1)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countArtifacts(t, conn))
}

func TestWorker_DoRollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	boom := errors.New("boom")
	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts(key, payload, created_at_ms) VALUES ('k', x'00', 1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countArtifacts(t, conn))
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, db.ErrWorkerClosed)
}

func TestWorker_CancelledContext(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
