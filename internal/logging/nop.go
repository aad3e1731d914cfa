package logging

import "github.com/jefflill/neonKUBE-sub003/types"

// NopLogger is a types.Logger that discards all output.
//
// Used as the default when no logger is injected, so components never need
// nil checks before logging.
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards everything.
func NewNop() *NopLogger { return &NopLogger{} }

// Debug discards the message.
func (*NopLogger) Debug(string, ...any) {}

// Info discards the message.
func (*NopLogger) Info(string, ...any) {}

// Warn discards the message.
func (*NopLogger) Warn(string, ...any) {}

// Error discards the message.
func (*NopLogger) Error(string, ...any) {}

// Fatal discards the message and does not exit; a nop logger must never
// terminate the process.
func (*NopLogger) Fatal(string, ...any) {}
