package events

import (
	"encoding/hex"
	"sort"

	"lukechampine.com/blake3"

	"dscengine/core/types"
)

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Renderer is implemented by events that can be flattened into the generic
// attribute form consumed by indexers and streams.
type Renderer interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. streams, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each of the wrapped emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Fingerprint returns a stable blake3 digest over the rendered event type and
// attributes. Identical events share a fingerprint.
func Fingerprint(evt *types.Event) string {
	if evt == nil {
		return ""
	}
	keys := make([]string, 0, len(evt.Attributes))
	for key := range evt.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hasher := blake3.New(32, nil)
	hasher.Write([]byte(evt.Type))
	for _, key := range keys {
		hasher.Write([]byte{0})
		hasher.Write([]byte(key))
		hasher.Write([]byte{'='})
		hasher.Write([]byte(evt.Attributes[key]))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
