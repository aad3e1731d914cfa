package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlogLogger(t *testing.T) {
	t.Run("writes structured fields", func(t *testing.T) {
		var buf bytes.Buffer
		handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
		logger := NewSlog(slog.New(handler))

		logger.Debug("debug message", "key", "value")
		logger.Info("info message", "lease", "primary")
		logger.Warn("warn message")
		logger.Error("error message", "error", "boom")

		out := buf.String()
		require.Contains(t, out, "debug message")
		require.Contains(t, out, "key=value")
		require.Contains(t, out, "lease=primary")
		require.Contains(t, out, "error=boom")
	})

	t.Run("respects level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
		logger := NewSlog(slog.New(handler))

		logger.Debug("hidden")
		logger.Info("hidden too")
		logger.Warn("visible")

		out := buf.String()
		require.NotContains(t, out, "hidden")
		require.Contains(t, out, "visible")
	})
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()

	// Must not panic or exit, including Fatal.
	logger.Debug("a")
	logger.Info("b", "k", 1)
	logger.Warn("c")
	logger.Error("d")
	logger.Fatal("e")
}
