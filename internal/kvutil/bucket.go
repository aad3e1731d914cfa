// Package kvutil provides utilities for working with NATS JetStream KeyValue stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureBucket opens the configured KV bucket, creating it on first use.
//
// Every replica ensures its buckets at startup, so losing the create race is
// the common path: jetstream.ErrBucketExists resolves to opening the bucket
// another replica just created. Transient failures are retried with doubling
// delays up to maxAttempts.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxAttempts: Maximum number of attempts (default 3 when <= 0)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: The last error after all attempts were exhausted
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxAttempts int,
) (jetstream.KeyValue, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	delay := 10 * time.Millisecond

	var lastErr error
	for attempt := 1; ; attempt++ {
		kv, err := ensureOnce(ctx, js, config)
		if err == nil {
			return kv, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ensure KV bucket %s: %w", config.Bucket, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("ensure KV bucket %s after %d attempts: %w",
		config.Bucket, maxAttempts, lastErr)
}

// ensureOnce makes a single create-or-open attempt.
func ensureOnce(ctx context.Context, js jetstream.JetStream, config jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, config)
	if err == nil {
		return kv, nil
	}

	if errors.Is(err, jetstream.ErrBucketExists) {
		kv, openErr := js.KeyValue(ctx, config.Bucket)
		if openErr != nil {
			return nil, fmt.Errorf("bucket exists but failed to open: %w", openErr)
		}

		return kv, nil
	}

	return nil, err
}
