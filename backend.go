package dnstrie

// AddFactory produces a value to insert when a key is missing.
type AddFactory func() []byte

// UpdateFactory produces the next value given the current one.
type UpdateFactory func(current []byte) []byte

// Backend is the operation surface shared by the mmapkv and qptrie cores
// (§6.1). Keys are domain-name strings; encoding into the core's native
// byte key happens behind this interface.
type Backend interface {
	// Add fails with ErrAlreadyExists if the key is already present.
	Add(name string, value []byte) error

	// TryAdd returns false if the key is present or the name is invalid.
	// It never returns an error for an invalid domain name.
	TryAdd(name string, value []byte) (bool, error)

	// Get returns ErrKeyNotFound if the key is absent.
	Get(name string) ([]byte, error)

	// TryGet reports whether the key was found.
	TryGet(name string) (value []byte, found bool, err error)

	// Contains reports membership.
	Contains(name string) (bool, error)

	// GetOrAdd atomically returns the existing value, or invokes factory
	// and stores its result if the key was missing. Exactly one result is
	// stored per missing key; mmapkv invokes factory at most once, while
	// qptrie may invoke it more than once under contention.
	GetOrAdd(name string, factory AddFactory) (value []byte, added bool, err error)

	// AddOrUpdate atomically inserts via addFactory or updates the
	// existing value via updateFactory.
	AddOrUpdate(name string, addFactory AddFactory, updateFactory UpdateFactory) (value []byte, err error)

	// TryUpdate performs a compare-and-set on the encoded value bytes.
	TryUpdate(name string, newValue, expected []byte) (bool, error)

	// TryRemove is idempotent; absence of the key returns found=false.
	TryRemove(name string) (oldValue []byte, found bool, err error)

	// Clear empties the backend (mmapkv: staging only; qptrie: drops root).
	Clear() error

	// IsEmpty is a backend-specific fast path.
	IsEmpty() (bool, error)

	// Enumerate walks keys in ascending encoded-key order.
	Enumerate() (Enumerator, error)

	// ReverseEnumerate walks keys in descending encoded-key order.
	ReverseEnumerate() (Enumerator, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Enumerator yields key/value pairs in order until exhausted.
type Enumerator interface {
	// Next advances the enumerator. It returns false when exhausted or
	// when an error occurred, which Err then reports. Closing the
	// backend does not end an enumerator that is already open, and
	// neither core's enumerator reports ErrDisposed.
	Next() bool

	// Key returns the domain name for the current position.
	Key() string

	// Value returns the value bytes for the current position. The
	// returned slice may be a zero-copy view into a memory-mapped
	// region and is only valid until the enumerator is closed.
	Value() []byte

	// Err returns any error encountered during enumeration.
	Err() error

	// Close releases the lease (if any) held by the enumerator.
	Close() error
}
