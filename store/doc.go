// Package store provides the NATS JetStream KV implementations of the
// engine's external collaborators: the compare-and-swap lease store used by
// the leader elector, and the per-kind object stream consumed by the
// reconciliation engines.
//
// JetStream KV gives both collaborators the properties the engine requires
// for free: revision-conditioned writes for mutual exclusion, and ordered,
// revisioned watch notifications per key prefix.
package store
