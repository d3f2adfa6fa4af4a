package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newWithWriter(Options{Level: "info"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("resized", zap.Int("probes", 7))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "resized", entry["msg"])
	require.Equal(t, float64(7), entry["probes"])
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestNew_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizefit.log")
	var buf bytes.Buffer
	logger, err := newWithWriter(Options{File: path, MaxSizeMB: 1, MaxBackups: 1}, &buf)
	require.NoError(t, err)

	logger.Warn("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
	require.Contains(t, buf.String(), "to file")
}
