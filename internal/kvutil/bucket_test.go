package kvutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	cltest "github.com/jefflill/neonKUBE-sub003/testing"
)

func TestEnsureBucket(t *testing.T) {
	t.Run("creates a new bucket", func(t *testing.T) {
		ctx := t.Context()

		_, nc := cltest.StartEmbeddedNATS(t)
		js, err := jetstream.New(nc)
		require.NoError(t, err)

		kv, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{
			Bucket: "ensure-new",
		}, 3)
		require.NoError(t, err)
		require.NotNil(t, kv)

		_, err = kv.Put(ctx, "key", []byte("value"))
		require.NoError(t, err)
	})

	t.Run("opens an existing bucket", func(t *testing.T) {
		ctx := t.Context()

		_, nc := cltest.StartEmbeddedNATS(t)
		js, err := jetstream.New(nc)
		require.NoError(t, err)

		first, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "ensure-existing"}, 3)
		require.NoError(t, err)
		_, err = first.Put(ctx, "seed", []byte("1"))
		require.NoError(t, err)

		second, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "ensure-existing"}, 3)
		require.NoError(t, err)

		entry, err := second.Get(ctx, "seed")
		require.NoError(t, err)
		require.Equal(t, []byte("1"), entry.Value())
	})

	t.Run("concurrent ensure resolves to one bucket", func(t *testing.T) {
		ctx := t.Context()

		_, nc := cltest.StartEmbeddedNATS(t)
		js, err := jetstream.New(nc)
		require.NoError(t, err)

		const workers = 5
		results := make(chan error, workers)
		for range workers {
			go func() {
				_, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "ensure-race"}, 5)
				results <- err
			}()
		}

		for range workers {
			select {
			case err := <-results:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("timeout waiting for concurrent bucket creation")
			}
		}
	})
}
