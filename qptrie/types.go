// Package qptrie implements the lock-free QP-trie core (§3.4, §4.G):
// a CAS-published, byte-at-a-time radix trie keyed on the same
// keyenc-encoded domain names the mmap core uses, with an ordered
// cursor and a bulk builder. Grounded on sirgallo/mari's
// Operation.go CAS-retry style and atomic.Value-held state, adapted
// from mari's fixed-depth bitmap trie (keyed on raw key bytes) to a
// byte-string radix trie with a variable KeyOffset per branch.
package qptrie

import "sync/atomic"

// Node is the tagged sum Leaf | Branch that makes up the trie, per
// §9's explicit guidance to model it as a sum type rather than through
// inheritance.
type Node interface {
	isQPNode()
}

// Leaf holds one stored (encoded key, value) pair. Leaves are
// immutable; every mutation replaces a Leaf wholesale rather than
// editing one in place, so a leaf pointer observed by a concurrent
// reader is always a consistent snapshot.
type Leaf struct {
	EncodedKey []byte
	Value      []byte
}

func (*Leaf) isQPNode() {}

// Branch is a radix node testing the bit produced by keyBit(key,
// KeyOffset). Its twigs are published via a single atomic.Value swap
// of an entire BranchState, matching §9's note that "a single
// indirect pointer swap is required" for BranchState publication --
// the same pattern mmapkv's Backend.active uses for snapshot
// publication, grounded in the teacher's atomic.Value-held Mari data.
type Branch struct {
	KeyOffset int
	state     atomic.Value // holds *BranchState
}

func (*Branch) isQPNode() {}

// loadState returns the branch's currently published state.
func (b *Branch) loadState() *BranchState {
	return b.state.Load().(*BranchState)
}

// casState installs newState if the branch's state still equals old,
// mirroring the teacher's Operation.go compareAndSwap retry idiom.
func (b *Branch) casState(old, newState *BranchState) bool {
	return b.state.CompareAndSwap(old, newState)
}

// BranchState is the immutable snapshot a Branch points to: which
// bits are populated, and the child subtree for each, ordered
// ascending by bit value (§3.4: "child at logical bit b lives at slot
// index popcount(bitmap & bitsBelow(b))").
type BranchState struct {
	Bitmap uint64
	Twigs  []Node
}

// nodeBox is the fixed concrete type stored in Trie.root. atomic.Value
// requires every Store/CompareAndSwap to use the same concrete type;
// since the root can be either a *Leaf or a *Branch, it is boxed
// behind one indirection so the Value itself always holds a *nodeBox.
type nodeBox struct {
	n Node
}

// Trie is the QP-trie core: a CAS-published root plus an approximate
// live entry count. The zero value is an empty, ready-to-use trie.
type Trie struct {
	root  atomic.Value // holds *nodeBox
	count atomic.Int64
}

// loadRoot returns the currently published root box (nil if the trie
// has never been stored to) and the Node it wraps (nil if empty,
// whether because nothing was ever stored or because the last entry
// was deleted).
func (t *Trie) loadRoot() (*nodeBox, Node) {
	v := t.root.Load()
	if v == nil {
		return nil, nil
	}
	box := v.(*nodeBox)
	return box, box.n
}

// casRoot installs newNode if the root box still equals oldBox. A nil
// oldBox means "the trie has never been stored to" and is passed to
// atomic.Value.CompareAndSwap as a literal untyped nil, per its
// documented bootstrap case.
func (t *Trie) casRoot(oldBox *nodeBox, newNode Node) bool {
	newBox := &nodeBox{n: newNode}
	if oldBox == nil {
		return t.root.CompareAndSwap(nil, newBox)
	}
	return t.root.CompareAndSwap(oldBox, newBox)
}

// Count returns the approximate number of live entries (§6.1: CountHint).
func (t *Trie) Count() int64 {
	return t.count.Load()
}

// IsEmpty reports whether the trie currently holds no entries.
func (t *Trie) IsEmpty() bool {
	_, n := t.loadRoot()
	return n == nil
}
