// Type registry for GoLanShare object dispatch
// Maps wire-visible type tags to decode functions. Registration happens at
// layer construction; lookups happen on every inbound envelope.
package objects

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownType is returned when an envelope names a tag with no registered
// decoder. The envelope is dropped; the connection stays open.
var ErrUnknownType = errors.New("unknown object type")

// Object is anything that can travel inside an envelope.
type Object interface {
	// TypeTag returns the wire-visible name the type registers under.
	TypeTag() string
	// MarshalWire serializes the object's fields in declared order.
	MarshalWire() ([]byte, error)
}

// DecodeFunc turns inner payload bytes back into an Object.
type DecodeFunc func(payload []byte) (Object, error)

// Registry is the tag-to-decoder mapping consulted on dispatch.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

// Register binds tag to fn. Registering a tag twice replaces the decoder.
func (r *Registry) Register(tag string, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[tag] = fn
}

// Decode looks up tag and runs its decoder over payload.
func (r *Registry) Decode(tag string, payload []byte) (Object, error) {
	r.mu.RLock()
	fn, ok := r.decoders[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Wrap(ErrUnknownType, tag)
	}
	return fn(payload)
}
