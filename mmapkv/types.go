// Package mmapkv implements the memory-mapped immutable snapshot engine
// (§3.2, §4.D-F, §6.2): a single-file, zero-copy trie reader/writer with
// blue/green snapshot publishing and ref-counted lease-based reader
// coordination. The on-disk layout, the staging trie, and the
// blue/green publish protocol are new to this package; the mmap
// plumbing (MMap type, flag constants, atomic.Value-backed data, node
// pooling) is carried over from sirgallo/mari's Types.go/Mari.go. The
// teacher's IsResizing/RWResizeLock guard growing a live mmap region in
// place as its append-only file accumulates versions; this backend
// never grows a live mapping -- swap() always builds a complete,
// correctly-sized file and atomically replaces the old one -- so that
// guard has no equivalent here.
package mmapkv

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirgallo/dnstrie/internal/config"
)

// MMap is the byte-slice view over a memory-mapped file, carried
// unchanged in spirit from the teacher's Types.go.
type MMap []byte

// mmap protection/flag constants, carried from Types.go.
const (
	RDONLY = 0
	RDWR   = 1 << iota
	COPY
	EXEC
)

const (
	ANON = 1 << iota
)

// DefaultPageSize mirrors the teacher's os.Getpagesize() constant.
var DefaultPageSize = os.Getpagesize()

// Header byte offsets and sizes, per §6.2.
const (
	HeaderMagicOffset             = 0
	HeaderVersionOffset           = 4
	HeaderEndiannessOffset        = 6
	HeaderNodeRegionOffsetOffset  = 8
	HeaderNodeCountOffset         = 16
	HeaderValueRegionOffsetOffset = 24
	HeaderSize                    = 32

	Magic             uint32 = 0x50414d4d // 'MMAP' little-endian as a 4-byte tag
	FormatVersion     uint16 = 1
	LittleEndianMark  uint16 = 1
)

// Node byte offsets and sizes within the node array, per §6.2.
const (
	NodeLabelIDOffset      = 0
	NodeFirstChildOffset   = 4
	NodeChildCountOffset   = 12
	NodeValueOffsetOffset  = 16
	NodeValueLengthOffset  = 24
	NodeSize               = 28
)

// Node is the in-memory decoded form of a serialized trie node (§3.2).
type Node struct {
	LabelID       uint32
	FirstChildPos int64 // absolute file offset, 0 = none
	ChildCount    uint32
	ValueOffset   int64 // relative to valueRegionOffset, 0 = no value
	ValueLength   int32
}

// HasValue reports whether this node carries a value (valueOffset == 0
// is reserved to mean "no value", per §3.2's Node invariants).
func (n *Node) HasValue() bool { return n.ValueOffset != 0 || n.ValueLength > 0 }

// HasChildren reports whether the node has any children.
func (n *Node) HasChildren() bool { return n.ChildCount > 0 }

// Header is the decoded file header (§3.2, §6.2).
type Header struct {
	Magic             uint32
	Version           uint16
	Endianness        uint16
	NodeRegionOffset  uint64
	NodeCount         uint64
	ValueRegionOffset uint64
}

// Backend implements dnstrie.Backend over a memory-mapped, blue/green
// published snapshot file. Fields are carried from the teacher's Mari
// struct (Types.go): atomic.Value-held mmap data and a staging lock,
// adapted to the spec's staging-trie + immutable-State split.
type Backend struct {
	filepath string
	fileName string
	file     *os.File

	// active holds the current *State, swapped atomically by swap().
	active atomic.Value

	// stagingLock guards staging; never touched by pure readers (§5:
	// "Staging trie is guarded by a per-backend monitor"). stagingLoaded
	// is read outside the lock as a fast path to decide whether Get must
	// consult staging at all; it is only ever set to true under the lock.
	stagingLock   sync.Mutex
	staging       *stagingTrie
	stagingLoaded atomic.Bool

	// autoSwap, when true (the default), publishes every successful
	// single-key mutation immediately so Add/TryGet sequences observe
	// read-your-writes without a caller-issued Swap(). Set false via
	// config.Options.DisableAutoSwap to stage many mutations and publish
	// them with one explicit Swap() call; BulkLoad always does this
	// regardless of autoSwap.
	autoSwap bool

	// nodeCapacityHint/valueCapacityHint presize the flat layout slice
	// and value-blob buffer built by each swap(), carried from
	// Opts.NodeCapacityHint/ValueCapacityHint.
	nodeCapacityHint  int64
	valueCapacityHint int64

	// nodePool recycles the *flatNode values layoutBFS produces on every
	// swap(), per the teacher's MariNodePool (NodePool.go).
	nodePool *flatNodePool

	closed uint32
}

// Opts configures Open, generalized from the teacher's MariOpts.
// config.Options carries the shared, teacher-grounded knobs
// (Filepath/FileName/NodeCapacityHint/ValueCapacityHint). Value
// (de)serialization is not one of mmapkv's concerns: the codec package
// adapts a typed Value on top of the raw-bytes dnstrie.Backend
// contract both cores already implement.
type Opts struct {
	config.Options
}
