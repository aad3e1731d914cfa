package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/jefflill/neonKUBE-sub003/internal/logging"
	"github.com/jefflill/neonKUBE-sub003/types"
)

// keyPrefix is the top-level KV namespace for managed objects.
const keyPrefix = "obj"

// KVObjectStream implements types.ObjectStream on a NATS JetStream KV bucket.
//
// Objects of one kind live under the key prefix "obj.<kind>.<name>". The KV
// entry revision doubles as the object's monotonic version, and KV watchers
// deliver ordered Put/Delete notifications that map directly onto the
// engine's event model. The nil end-of-replay marker emitted by KV watchers
// becomes an EventBookmark.
//
// The same type also serves producers: PutObject, PutStatus and DeleteObject
// are the write surface collaborators use to drive the stream, including
// surfacing handler-visible failures through an object's status field.
type KVObjectStream struct {
	kv     jetstream.KeyValue
	kind   string
	logger types.Logger
}

// Compile-time assertion that KVObjectStream implements ObjectStream.
var _ types.ObjectStream = (*KVObjectStream)(nil)

// NewObjectStream creates an object stream for one resource kind.
//
// Object names must not contain dots: the dot is the KV key separator.
//
// Parameters:
//   - kv: JetStream KV bucket holding the kind's objects
//   - kind: Resource kind served by this stream
//   - logger: Logger for decode warnings (nop if nil)
//
// Returns:
//   - *KVObjectStream: New stream instance
func NewObjectStream(kv jetstream.KeyValue, kind string, logger types.Logger) *KVObjectStream {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &KVObjectStream{kv: kv, kind: kind, logger: logger}
}

// Kind returns the resource kind this stream serves.
func (s *KVObjectStream) Kind() string {
	return s.kind
}

// List returns a snapshot of all current objects of the kind.
func (s *KVObjectStream) List(ctx context.Context) ([]types.Object, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list keys for kind %s: %w", s.kind, err)
	}

	prefix := s.keyFor("")
	objects := make([]types.Object, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			// Deleted between Keys() and Get(); the watch will report it.
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}

		obj, err := s.decode(entry)
		if err != nil {
			s.logger.Warn("skipping undecodable object", "kind", s.kind, "key", key, "error", err)

			continue
		}

		objects = append(objects, obj)
	}

	return objects, nil
}

// Watch subscribes to change notifications for the kind.
func (s *KVObjectStream) Watch(ctx context.Context) (types.Watcher, error) {
	kw, err := s.kv.Watch(ctx, s.keyFor(">"))
	if err != nil {
		return nil, fmt.Errorf("failed to watch kind %s: %w", s.kind, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &kvWatcher{
		stream: s,
		kw:     kw,
		events: make(chan types.Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(watchCtx)

	return w, nil
}

// PutObject writes an object's desired state (spec and generation), leaving
// any stored status untouched. Used by producers, not by the engine.
func (s *KVObjectStream) PutObject(ctx context.Context, obj types.Object) (uint64, error) {
	if obj.Name == "" {
		return 0, errors.New("object name is required")
	}

	current, _, err := s.getCurrent(ctx, obj.Name)
	if err != nil {
		return 0, err
	}
	if current != nil {
		obj.Status = current.Status
	}

	return s.put(ctx, obj)
}

// PutStatus updates only the status payload of an existing object.
//
// Status writes produce status-only change events downstream, which the
// dispatcher routes to StatusModified instead of Reconcile. This is how
// operator-visible failures (e.g., invalid handler-supplied configuration)
// are surfaced without re-triggering convergence.
func (s *KVObjectStream) PutStatus(ctx context.Context, name string, status json.RawMessage) (uint64, error) {
	current, _, err := s.getCurrent(ctx, name)
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, fmt.Errorf("object %s/%s not found", s.kind, name)
	}

	current.Status = status

	return s.put(ctx, *current)
}

// DeleteObject removes an object, producing a Deleted event downstream.
func (s *KVObjectStream) DeleteObject(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, s.keyFor(name)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s/%s: %w", s.kind, name, err)
	}

	return nil
}

func (s *KVObjectStream) keyFor(name string) string {
	return fmt.Sprintf("%s.%s.%s", keyPrefix, s.kind, name)
}

func (s *KVObjectStream) put(ctx context.Context, obj types.Object) (uint64, error) {
	obj.Kind = s.kind
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s/%s: %w", s.kind, obj.Name, err)
	}

	revision, err := s.kv.Put(ctx, s.keyFor(obj.Name), value)
	if err != nil {
		return 0, fmt.Errorf("failed to put %s/%s: %w", s.kind, obj.Name, err)
	}

	return revision, nil
}

func (s *KVObjectStream) getCurrent(ctx context.Context, name string) (*types.Object, uint64, error) {
	entry, err := s.kv.Get(ctx, s.keyFor(name))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, nil
		}

		return nil, 0, fmt.Errorf("failed to get %s/%s: %w", s.kind, name, err)
	}

	obj, err := s.decode(entry)
	if err != nil {
		return nil, 0, err
	}

	return &obj, entry.Revision(), nil
}

// decode converts a KV entry into an object snapshot. Kind, name and
// revision are authoritative from the entry, not the stored payload.
func (s *KVObjectStream) decode(entry jetstream.KeyValueEntry) (types.Object, error) {
	var obj types.Object
	if err := json.Unmarshal(entry.Value(), &obj); err != nil {
		return types.Object{}, fmt.Errorf("failed to decode object: %w", err)
	}

	obj.Kind = s.kind
	obj.Name = s.nameFromKey(entry.Key())
	obj.Revision = entry.Revision()

	return obj, nil
}

func (s *KVObjectStream) nameFromKey(key string) string {
	return strings.TrimPrefix(key, s.keyFor(""))
}

// kvWatcher adapts a JetStream KV watcher to the types.Watcher contract.
type kvWatcher struct {
	stream *KVObjectStream
	kw     jetstream.KeyWatcher
	events chan types.Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the channel delivering watch events.
func (w *kvWatcher) Events() <-chan types.Event {
	return w.events
}

// Stop terminates the subscription and waits for the translation goroutine.
func (w *kvWatcher) Stop() error {
	w.cancel()
	err := w.kw.Stop()
	<-w.done

	return err
}

// run translates KV entries into engine events until the watcher closes.
func (w *kvWatcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

	replaying := true

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-w.kw.Updates():
			if !ok {
				// Underlying watcher died (connection loss or server-side
				// stream failure). Consumers must re-list and resubscribe.
				w.emit(ctx, types.Event{Type: types.EventError, Err: types.ErrStreamGone})

				return
			}

			if entry == nil {
				// Nil entry marks the end of the initial replay.
				if replaying {
					replaying = false
					w.emit(ctx, types.Event{Type: types.EventBookmark})
				}

				continue
			}

			evt, ok := w.translate(entry, replaying)
			if !ok {
				continue
			}
			w.emit(ctx, evt)
		}
	}
}

func (w *kvWatcher) translate(entry jetstream.KeyValueEntry, replaying bool) (types.Event, bool) {
	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return types.Event{
			Type: types.EventDeleted,
			Object: types.Object{
				Kind:     w.stream.kind,
				Name:     w.stream.nameFromKey(entry.Key()),
				Revision: entry.Revision(),
			},
		}, true
	case jetstream.KeyValuePut:
		obj, err := w.stream.decode(entry)
		if err != nil {
			w.stream.logger.Warn("dropping undecodable watch entry",
				"kind", w.stream.kind,
				"key", entry.Key(),
				"error", err,
			)

			return types.Event{}, false
		}

		eventType := types.EventModified
		if replaying {
			eventType = types.EventAdded
		}

		return types.Event{Type: eventType, Object: obj}, true
	default:
		return types.Event{}, false
	}
}

func (w *kvWatcher) emit(ctx context.Context, evt types.Event) {
	select {
	case w.events <- evt:
	case <-ctx.Done():
	}
}
