package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/config"
)

func TestNewLoaderDefaults(t *testing.T) {
	loader, err := config.NewLoader("", nil)
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Batch.PoolSize)
	require.Equal(t, 1, cfg.Batch.LowPriorityPoolSize)
	require.Equal(t, 256, cfg.Batch.MaxBatchSize)
	require.Equal(t, 5*time.Second, cfg.Batch.RescheduleDuration)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestNewLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fsmrund.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  pool_size: 7\nlogging:\n  level: debug\n"), 0o644))

	loader, err := config.NewLoader(path, nil)
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Batch.PoolSize)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestNewLoaderMissingFileErrors(t *testing.T) {
	_, err := config.NewLoader("/nonexistent/path/fsmrund.yaml", nil)
	require.Error(t, err)
}

func TestWatchWithoutFileIsNoOp(t *testing.T) {
	loader, err := config.NewLoader("", nil)
	require.NoError(t, err)

	// Must not panic even though nothing was ever watched.
	loader.Watch(func(time.Duration) {})
}
