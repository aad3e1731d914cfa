package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jefflill/neonKUBE-sub003/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// Transient store/stream I/O failures must never change election state or
// terminate a reconciliation loop; callers use this to decide between
// "retry next tick" and real failure handling.
//
// Kept in internal/natsutil to avoid importing NATS dependencies in types/.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates a connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}
