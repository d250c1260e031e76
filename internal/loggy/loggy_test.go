package loggy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug, Format: "json", AddSource: true})

	logger.With("component", "queue").Info("Enqueued operation", "operation_id", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Enqueued operation", entry["msg"])
	assert.Equal(t, "queue", entry["component"])
	assert.Equal(t, float64(7), entry["operation_id"])
	assert.Contains(t, entry["source"], "loggy_test.go")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn, Format: "text"})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo, Format: "json"})

	logger.WithError(errors.New("boom")).Error("Drain failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
	assert.Same(t, logger, logger.WithError(nil))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("nothing")
		_ = logger.With("k", "v")
		_ = logger.Close()
	})
}

func TestContextHelpers(t *testing.T) {
	noop := NewNoopLogger()
	assert.Same(t, noop, FromContext(context.Background()))

	custom := noop.With("scope", "test")
	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))

	ctx, id := EnsureRequestID(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetRequestID(ctx))

	_, again := EnsureRequestID(ctx)
	assert.Equal(t, id, again, "an existing request id is reused")
}
