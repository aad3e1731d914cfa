package logging

import (
	"log/slog"
	"os"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// SlogLogger implements types.Logger using Go's standard log/slog package.
type SlogLogger struct {
	logger *slog.Logger
}

// Compile-time assertion that SlogLogger implements Logger.
var _ types.Logger = (*SlogLogger)(nil)

// NewSlog creates a new slog-based logger.
//
// Parameters:
//   - logger: The underlying slog.Logger instance to use
//
// Returns:
//   - *SlogLogger: A new logger instance that wraps the provided slog.Logger
//
// Example:
//
//	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
//	logger := NewSlog(slog.New(handler))
//	logger.Info("control plane started", "identity", "node-0")
func NewSlog(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// NewSlogDefault creates a new slog-based logger backed by slog.Default().
func NewSlogDefault() *SlogLogger {
	return &SlogLogger{logger: slog.Default()}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}

// Fatal logs at error level (slog has no Fatal level) and exits.
func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
	os.Exit(1) //nolint:revive // Fatal should exit the program
}
