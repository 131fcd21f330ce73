package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger := New(Config{Development: true})
	require.NotNil(t, logger)
	logger.Debug("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger := New(Config{})
	require.NotNil(t, logger)
	logger.Info("production logger ready")
}

func TestNewWithFileSink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crawler.log")
	logger := New(Config{File: path})
	logger.Info("file sink ready")
	_ = logger.Sync() // stderr sync can fail on some platforms; the file sink still flushes

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "file sink ready")
}
