package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/MindBridge/config"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("console message")
		assert.NoError(t, l.Close())
	})

	t.Run("json file output respects level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mindbridge.log")
		l, err := NewLogger(&config.LoggingConfig{Level: "warn", Format: "json", Output: "file", FilePath: path})
		require.NoError(t, err)

		l.Info("dropped")
		l.Warn("kept", zap.String("circle_id", "c1"))
		require.NoError(t, l.Close())

		entries := readLines(t, path)
		require.Len(t, entries, 1)
		assert.Equal(t, "kept", entries[0]["msg"])
		assert.Equal(t, "c1", entries[0]["circle_id"])
	})

	t.Run("file output requires a path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file"})
		assert.Error(t, err)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
		assert.Equal(t, zapcore.ErrorLevel, parseLevel("ERROR"))
	})
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-1")
	l.InfoContext(ctx, "joined circle")
	l.WarnContext(context.Background(), "no context")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Wrap(zap.New(core)).Named("ledger").Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ledger", logs.All()[0].LoggerName)
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.ErrorContext(context.Background(), "ignored")
	assert.NoError(t, l.Close())
}
