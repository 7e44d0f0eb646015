// Package config holds the embedder-supplied options for the mmapkv
// backend, generalized from the teacher's MariOpts.
package config

// Options configures an mmapkv.Backend on Open. Generalized from
// sirgallo/mari's MariOpts: a file path, plus the capacity knobs mari
// threads through Open's MariOpts.NodePoolSize. The teacher's
// CompactAtVersion/MaxCompactVersion knob has no analog here: mari
// retains many versions in one ever-growing file and periodically
// vacuums it, while this backend's swap() always rewrites the entire
// current state into a fresh file, so every swap is already mari's
// vacuum pass -- there is no accumulated version history to bound.
type Options struct {
	// Filepath is the directory containing the backing file.
	Filepath string

	// FileName is the backing file's base name within Filepath.
	FileName string

	// NodeCapacityHint preallocates the flat node layout built by each
	// swap(), grounded on NodePool.go's NewMariNodePool(maxSize).
	NodeCapacityHint int64

	// ValueCapacityHint preallocates the value-blob buffer built by
	// each swap(); the buffer still grows past it as needed.
	ValueCapacityHint int64

	// DisableAutoSwap turns off the default publish-every-mutation
	// behavior, so single-key Add/TryAdd/GetOrAdd/AddOrUpdate/TryUpdate/
	// TryRemove calls stage without calling Swap(). A caller batching
	// many mutations sets this and issues one explicit Swap() (or calls
	// BulkLoad, which always publishes exactly once regardless of this
	// flag) instead of paying a full BFS-layout-and-fsync per key.
	DisableAutoSwap bool
}

// DefaultNodeCapacityHint mirrors the teacher's informal "100,000
// pre-allocated nodes" comment in Mari.go's Open.
const DefaultNodeCapacityHint = 100_000

// WithDefaults fills zero-valued fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.FileName == "" {
		o.FileName = "dnstrie.db"
	}
	if o.NodeCapacityHint == 0 {
		o.NodeCapacityHint = DefaultNodeCapacityHint
	}
	return o
}
