package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dscd.log")
	logger := Setup("dscd", "test", WithFile(path), WithLevel(slog.LevelWarn))

	logger.Info("dropped below level")
	logger.Warn("dsc operation rejected", "op", "mint", MaskField("passphrase", "hunter2"))
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "dsc operation rejected", entry["message"])
	require.Equal(t, "dscd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "mint", entry["op"])
	require.Equal(t, RedactedValue, entry["passphrase"])
	require.Contains(t, entry, "timestamp")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestRedactionAllowlistCoversEngineKeys(t *testing.T) {
	for _, key := range []string{"op", "account", "asset", "error"} {
		require.True(t, IsAllowlisted(key), key)
	}
	require.Equal(t, "0xabc", MaskField("account", "0xabc").Value.String())
}
