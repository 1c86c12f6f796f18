package logging_test

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/config"
	"github.com/webitel/fsmrun/internal/logging"
)

func TestNewRespectsConfiguredLevel(t *testing.T) {
	cfg := config.LoggingConfig{Level: "error", JSON: true}
	logger := logging.New(cfg, "fsmrund-test")
	require.False(t, logger.Enabled(nil, slog.LevelInfo))
	require.True(t, logger.Enabled(nil, slog.LevelError))
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	cfg := config.LoggingConfig{Level: "not-a-level", JSON: true}
	logger := logging.New(cfg, "fsmrund-test")
	require.True(t, logger.Enabled(nil, slog.LevelInfo))
	require.False(t, logger.Enabled(nil, slog.LevelDebug))
}

func TestNewWritesStructuredRecordsToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fsmrund.log")
	cfg := config.LoggingConfig{
		Level:      "info",
		JSON:       true,
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}
	logger := logging.New(cfg, "fsmrund-test")
	logger.Info("poller started", "tag", "normal-0")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
	require.Equal(t, "fsmrund-test", decoded["service"])
	require.Equal(t, "normal-0", decoded["tag"])
	require.Equal(t, "poller started", decoded["msg"])
}
