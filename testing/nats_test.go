package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.NotNil(t, nc)
	require.True(t, nc.IsConnected())
	require.True(t, ns.JetStreamEnabled())
}

func TestCreateJetStreamKV(t *testing.T) {
	_, nc := StartEmbeddedNATS(t)
	kv := CreateJetStreamKV(t, nc, "test-bucket")

	ctx := t.Context()
	rev, err := kv.Put(ctx, "key", []byte("value"))
	require.NoError(t, err)
	require.Positive(t, rev)

	entry, err := kv.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), entry.Value())
}
