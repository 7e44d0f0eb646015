package qptrie

import (
	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/keyenc"
)

// keyOpts is this backend's fixed key encoding: reverse-label, the
// same discipline mmapkv uses, per §2's shared key-encoding contract.
var keyOpts = keyenc.Options{Mode: keyenc.ModeReverseLabel}

// Backend implements dnstrie.Backend over a lock-free Trie (§6.1).
// Unlike mmapkv, there is no on-disk file and no staging/publish
// split: every operation acts directly on the live, CAS-published
// trie, so readers always observe the most recently completed write
// (no read-your-writes subtlety to resolve here).
type Backend struct {
	trie *Trie
}

// Open returns a ready-to-use, empty Backend.
func Open() *Backend {
	return &Backend{trie: &Trie{}}
}

// OpenFromBuilt wraps an already-built Trie (e.g. from Build) as a
// Backend, letting a bulk load hand off directly into the shared
// interface without a further copy.
func OpenFromBuilt(t *Trie) *Backend {
	return &Backend{trie: t}
}

func (b *Backend) Add(name string, value []byte) error {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return err
	}
	if !b.trie.SetIfAbsent(key, value) {
		return dnstrie.ErrAlreadyExists
	}
	return nil
}

func (b *Backend) TryAdd(name string, value []byte) (bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return false, nil
	}
	return b.trie.SetIfAbsent(key, value), nil
}

func (b *Backend) Get(name string) ([]byte, error) {
	v, found, err := b.TryGet(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dnstrie.ErrKeyNotFound
	}
	return v, nil
}

func (b *Backend) TryGet(name string) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, nil
	}
	v, ok := b.trie.Lookup(key)
	return v, ok, nil
}

func (b *Backend) Contains(name string) (bool, error) {
	_, found, err := b.TryGet(name)
	return found, err
}

func (b *Backend) GetOrAdd(name string, factory dnstrie.AddFactory) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, err
	}
	v, added := b.trie.GetOrAdd(key, factory)
	return v, added, nil
}

func (b *Backend) AddOrUpdate(name string, addFactory dnstrie.AddFactory, updateFactory dnstrie.UpdateFactory) ([]byte, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, err
	}
	return b.trie.AddOrUpdate(key, addFactory, updateFactory), nil
}

func (b *Backend) TryUpdate(name string, newValue, expected []byte) (bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return false, nil
	}
	return b.trie.CompareAndSwapValue(key, newValue, expected), nil
}

func (b *Backend) TryRemove(name string) ([]byte, bool, error) {
	key, err := keyenc.Encode(name, keyOpts)
	if err != nil {
		return nil, false, nil
	}
	old, removed := b.trie.Delete(key)
	return old, removed, nil
}

func (b *Backend) Clear() error {
	b.trie.Clear()
	return nil
}

func (b *Backend) IsEmpty() (bool, error) {
	return b.trie.IsEmpty(), nil
}

func (b *Backend) Enumerate() (dnstrie.Enumerator, error) {
	return &forwardEnumerator{cursor: b.trie.NewCursor()}, nil
}

func (b *Backend) ReverseEnumerate() (dnstrie.Enumerator, error) {
	return &reverseEnumerator{cursor: b.trie.NewReverseCursor()}, nil
}

// Close is a no-op: the trie holds no file descriptors or mmap
// regions to release.
func (b *Backend) Close() error { return nil }

type forwardEnumerator struct {
	cursor *Cursor
	err    error
}

func (e *forwardEnumerator) Next() bool {
	if e.err != nil {
		return false
	}
	return e.cursor.Next()
}

func (e *forwardEnumerator) Key() string {
	name, err := keyenc.Decode(e.cursor.EncodedKey(), keyOpts)
	if err != nil {
		e.err = err
		return ""
	}
	return name
}

func (e *forwardEnumerator) Value() []byte { return e.cursor.Value() }
func (e *forwardEnumerator) Err() error    { return e.err }
func (e *forwardEnumerator) Close() error  { return nil }

type reverseEnumerator struct {
	cursor *ReverseCursor
	err    error
}

func (e *reverseEnumerator) Next() bool {
	if e.err != nil {
		return false
	}
	return e.cursor.Next()
}

func (e *reverseEnumerator) Key() string {
	name, err := keyenc.Decode(e.cursor.EncodedKey(), keyOpts)
	if err != nil {
		e.err = err
		return ""
	}
	return name
}

func (e *reverseEnumerator) Value() []byte { return e.cursor.Value() }
func (e *reverseEnumerator) Err() error    { return e.err }
func (e *reverseEnumerator) Close() error  { return nil }

var (
	_ dnstrie.Backend    = (*Backend)(nil)
	_ dnstrie.Enumerator = (*forwardEnumerator)(nil)
	_ dnstrie.Enumerator = (*reverseEnumerator)(nil)
)
