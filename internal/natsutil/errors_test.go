package natsutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/jefflill/neonKUBE-sub003/types"
)

func TestIsConnectivityError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		require.False(t, IsConnectivityError(nil))
	})

	t.Run("connectivity sentinels", func(t *testing.T) {
		require.True(t, IsConnectivityError(nats.ErrTimeout))
		require.True(t, IsConnectivityError(nats.ErrNoServers))
		require.True(t, IsConnectivityError(nats.ErrConnectionClosed))
		require.True(t, IsConnectivityError(types.ErrConnectivity))
	})

	t.Run("wrapped connectivity error", func(t *testing.T) {
		err := fmt.Errorf("failed to read lease: %w", nats.ErrTimeout)
		require.True(t, IsConnectivityError(err))
	})

	t.Run("string matches", func(t *testing.T) {
		require.True(t, IsConnectivityError(errors.New("dial tcp 127.0.0.1:4222: connection refused")))
		require.True(t, IsConnectivityError(errors.New("read tcp: i/o timeout")))
	})

	t.Run("unrelated error", func(t *testing.T) {
		require.False(t, IsConnectivityError(errors.New("invalid payload")))
		require.False(t, IsConnectivityError(types.ErrLeaseConflict))
	})
}
