package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomx220052/cryptoprice/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(config.LoggingConfig{
		Level:         "info",
		Format:        "json",
		ContextFields: map[string]string{"service": "cryptoprice"},
	}, &buf)

	cl := lm.GetComponentLogger("exchange")
	assert.Equal(t, "exchange", cl.Component())
	cl.WithCoin("bitcoin").Info("fetched")
	cl.Debug("hidden")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "exchange", entries[0]["component"])
	assert.Equal(t, "bitcoin", entries[0]["coin"])
	assert.Equal(t, "cryptoprice", entries[0]["service"])
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithCoin(ctx, "ethereum")
	ctx = WithOperation(ctx, "FetchRange")

	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "ethereum", GetCoin(ctx))
	assert.Empty(t, GetTraceID(ctx))

	lm.WithContext(ctx).Info("hello")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0]["run_id"])
	assert.Equal(t, "ethereum", entries[0]["coin"])
	assert.Equal(t, "FetchRange", entries[0]["operation"])
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	cl, ctx := NewTraceLogger(context.Background(), lm, "collector")
	require.NotEmpty(t, GetTraceID(ctx))

	boom := errors.New("boom")
	err := cl.LogOperation(ctx, "fetch", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "operation started", entries[0]["msg"])
	assert.Equal(t, "operation failed", entries[1]["msg"])
	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, GetTraceID(ctx), entries[1]["trace_id"])
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cryptoprice.log")
	lm, err := NewLoggerManager(config.LoggingConfig{
		Level:    "info",
		Format:   "text",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)

	lm.GetLogger().Info("written to file")
	require.NoError(t, lm.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestCreateWriterErrors(t *testing.T) {
	_, err := NewLoggerManager(config.LoggingConfig{Output: "file"})
	assert.Error(t, err)

	_, err = NewLoggerManager(config.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
