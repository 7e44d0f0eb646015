// Package codec defines the external value-serialization contract
// (component B) and a generic adapter over it. Neither mmapkv nor
// qptrie interprets value bytes; dnstrie.Backend's Add/Get/etc. move
// raw []byte end to end. TypedBackend is the boundary where a typed
// Value is encoded going in and decoded coming out, so an embedder
// who wants a typed store never has to touch []byte directly.
package codec

import dnstrie "github.com/sirgallo/dnstrie"

// Codec encodes and decodes a Value to and from the byte representation
// stored in a core's value region (mmapkv) or leaf (qptrie).
type Codec[Value any] interface {
	Encode(v Value) ([]byte, error)
	Decode(b []byte) (Value, error)
}

// Bytes is the identity codec for raw []byte values, used by tests and by
// embedders that already store encoded bytes.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) { return v, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String is a trivial string codec, handy for small examples/tests.
type String struct{}

func (String) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// TypedBackend adapts any dnstrie.Backend (mmapkv or qptrie) to a
// typed Value via Codec, so callers work with Value instead of
// []byte. It is a thin pass-through: every method encodes/decodes at
// the boundary and otherwise delegates straight to the wrapped
// backend, so TypedBackend carries none of either core's concurrency
// or persistence semantics itself.
type TypedBackend[Value any] struct {
	Backend dnstrie.Backend
	Codec   Codec[Value]
}

// NewTypedBackend wraps backend with codec.
func NewTypedBackend[Value any](backend dnstrie.Backend, codec Codec[Value]) *TypedBackend[Value] {
	return &TypedBackend[Value]{Backend: backend, Codec: codec}
}

func (t *TypedBackend[Value]) Add(name string, value Value) error {
	raw, err := t.Codec.Encode(value)
	if err != nil {
		return err
	}
	return t.Backend.Add(name, raw)
}

func (t *TypedBackend[Value]) TryAdd(name string, value Value) (bool, error) {
	raw, err := t.Codec.Encode(value)
	if err != nil {
		return false, err
	}
	return t.Backend.TryAdd(name, raw)
}

func (t *TypedBackend[Value]) Get(name string) (Value, error) {
	var zero Value
	raw, err := t.Backend.Get(name)
	if err != nil {
		return zero, err
	}
	return t.Codec.Decode(raw)
}

func (t *TypedBackend[Value]) TryGet(name string) (Value, bool, error) {
	var zero Value
	raw, found, err := t.Backend.TryGet(name)
	if err != nil || !found {
		return zero, found, err
	}
	v, err := t.Codec.Decode(raw)
	return v, true, err
}

func (t *TypedBackend[Value]) Contains(name string) (bool, error) {
	return t.Backend.Contains(name)
}

// GetOrAdd invokes factory (producing a typed Value) when name is
// missing, as often as the wrapped backend's GetOrAdd calls its own
// factory: at most once for mmapkv, possibly more under contention for
// qptrie.
func (t *TypedBackend[Value]) GetOrAdd(name string, factory func() Value) (Value, bool, error) {
	var zero Value
	var encodeErr error

	raw, added, err := t.Backend.GetOrAdd(name, func() []byte {
		b, e := t.Codec.Encode(factory())
		if e != nil {
			encodeErr = e
		}
		return b
	})
	if err != nil {
		return zero, false, err
	}
	if encodeErr != nil {
		return zero, false, encodeErr
	}

	v, err := t.Codec.Decode(raw)
	return v, added, err
}

// AddOrUpdate inserts via addFactory or updates via updateFactory, both
// operating on typed Values.
func (t *TypedBackend[Value]) AddOrUpdate(name string, addFactory func() Value, updateFactory func(Value) Value) (Value, error) {
	var zero Value
	var stepErr error

	raw, err := t.Backend.AddOrUpdate(name,
		func() []byte {
			b, e := t.Codec.Encode(addFactory())
			if e != nil {
				stepErr = e
			}
			return b
		},
		func(cur []byte) []byte {
			v, e := t.Codec.Decode(cur)
			if e != nil {
				stepErr = e
				return cur
			}
			b, e := t.Codec.Encode(updateFactory(v))
			if e != nil {
				stepErr = e
			}
			return b
		},
	)
	if err != nil {
		return zero, err
	}
	if stepErr != nil {
		return zero, stepErr
	}
	return t.Codec.Decode(raw)
}

func (t *TypedBackend[Value]) TryUpdate(name string, newValue, expected Value) (bool, error) {
	newRaw, err := t.Codec.Encode(newValue)
	if err != nil {
		return false, err
	}
	expectedRaw, err := t.Codec.Encode(expected)
	if err != nil {
		return false, err
	}
	return t.Backend.TryUpdate(name, newRaw, expectedRaw)
}

func (t *TypedBackend[Value]) TryRemove(name string) (Value, bool, error) {
	var zero Value
	raw, removed, err := t.Backend.TryRemove(name)
	if err != nil || !removed {
		return zero, removed, err
	}
	v, err := t.Codec.Decode(raw)
	return v, true, err
}

func (t *TypedBackend[Value]) Clear() error           { return t.Backend.Clear() }
func (t *TypedBackend[Value]) IsEmpty() (bool, error) { return t.Backend.IsEmpty() }
func (t *TypedBackend[Value]) Close() error           { return t.Backend.Close() }
