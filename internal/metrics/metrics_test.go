package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/procwatch/internal/errors"
	"codeberg.org/mutker/procwatch/internal/logger"
	"codeberg.org/mutker/procwatch/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) metrics.Config {
	t.Helper()
	dir := t.TempDir()
	return metrics.Config{
		DBPath:    filepath.Join(dir, "db", "metrics.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 2,
		Enabled:   true,
	}
}

func countRows(t *testing.T, path, where string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cycles "+where).Scan(&n))
	return n
}

func TestNewServiceDisabled(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, collector.Record(context.Background(), &metrics.CycleMetrics{}))
	assert.NoError(t, collector.Close())
}

func TestNewServiceRejectsMissingPath(t *testing.T) {
	_, err := metrics.NewService(metrics.Config{Enabled: true}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestRecordAndFlush(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	now := time.Now()
	ctx := context.Background()
	require.NoError(t, collector.Record(ctx, &metrics.CycleMetrics{
		Timestamp: now, Seq: 1, Processes: 120, TotalCPU: 37.5, TotalMemory: 41.2, Duration: 80 * time.Millisecond,
	}))
	require.NoError(t, collector.Record(ctx, &metrics.CycleMetrics{
		Timestamp: now.Add(2 * time.Second), Failed: true, Duration: time.Second,
	}))
	require.NoError(t, collector.Record(ctx, &metrics.CycleMetrics{
		Timestamp: now.Add(4 * time.Second), Seq: 2, Processes: 118,
	}))

	// The third record stays buffered until Close.
	require.NoError(t, collector.Close())

	assert.Equal(t, 3, countRows(t, cfg.DBPath, ""))
	assert.Equal(t, 1, countRows(t, cfg.DBPath, "WHERE failed = 1"))
	assert.Equal(t, 1, countRows(t, cfg.DBPath, "WHERE processes = 120 AND duration_us = 80000"))
}

func TestRecordValidation(t *testing.T) {
	cfg := testConfig(t)
	collector, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer collector.Close()

	err = collector.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidMetrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = collector.Record(ctx, &metrics.CycleMetrics{})
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE cycles (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "metrics_v99_")

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestCloseIsIdempotent(t *testing.T) {
	repo, err := metrics.NewRepository(testConfig(t), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, repo.Close())
	assert.NoError(t, repo.Close())
}
