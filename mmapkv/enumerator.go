package mmapkv

import (
	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/keyenc"
)

// enumFrame is one stack entry of the non-recursive DFS walk: a node,
// its absolute file offset, and the accumulated key up to and including
// node's own label.
type enumFrame struct {
	node   *Node
	offset uint64
	prefix []byte
}

// enumerator is a stack-based DFS walker over one leased State,
// yielding keys in ascending or descending LabelID order at every
// level (§4.I). It never touches staging: it is a read-only view over
// whatever was published at the moment Enumerate was called.
type enumerator struct {
	backend *Backend
	state   *State
	reverse bool

	stack []*enumFrame
	key   string
	value []byte
	err   error
	done  bool
}

func newEnumerator(b *Backend, reverse bool) (*enumerator, error) {
	state := b.acquireActive()

	e := &enumerator{backend: b, state: state, reverse: reverse}
	if state == nil {
		e.done = true
		return e, nil
	}

	root, err := readNodeAt(state.data, state.rootOffset)
	if err != nil {
		state.release()
		e.state = nil
		e.err = err
		e.done = true
		return e, nil
	}

	e.stack = append(e.stack, &enumFrame{node: root, offset: state.rootOffset, prefix: nil})
	return e, nil
}

// Next advances to the next key/value pair in order. Ascending order is
// a preorder DFS: visit a node's own value (if any), then its children.
// Descending order visits a node's children before its own value, since
// a node's key is a prefix of, and so sorts before, every key below it.
func (e *enumerator) Next() bool {
	if e.done || e.err != nil {
		return false
	}

	for len(e.stack) > 0 {
		top := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]

		children, offsets, err := readChildrenAt(e.state.data, top.node)
		if err != nil {
			e.err = err
			e.done = true
			return false
		}

		// In descending order a node with both a value and children
		// re-pushes itself as a childless frame underneath its children,
		// so its value is yielded only after all of them.
		deferValue := e.reverse && top.node.HasValue() && top.node.HasChildren()
		if deferValue {
			valueOnly := *top.node
			valueOnly.FirstChildPos, valueOnly.ChildCount = 0, 0
			e.stack = append(e.stack, &enumFrame{node: &valueOnly, offset: top.offset, prefix: top.prefix})
		}

		// The stack pops LIFO, so to visit children in ascending LabelID
		// order we push from the highest index down (smallest ends up on
		// top); descending order pushes the other way.
		n := len(children)
		for i := 0; i < n; i++ {
			var idx int
			if e.reverse {
				idx = i
			} else {
				idx = n - 1 - i
			}
			child := children[idx]
			childPrefix := append(append([]byte(nil), top.prefix...), byte(child.LabelID))
			e.stack = append(e.stack, &enumFrame{node: child, offset: offsets[idx], prefix: childPrefix})
		}

		if top.node.HasValue() && !deferValue {
			val, err := readValueAt(e.state.data, e.state.header.ValueRegionOffset, top.node)
			if err != nil {
				e.err = err
				e.done = true
				return false
			}

			name, err := keyenc.Decode(top.prefix, keyOpts)
			if err != nil {
				e.err = err
				e.done = true
				return false
			}

			e.key = name
			e.value = val
			return true
		}
	}

	e.done = true
	return false
}

func (e *enumerator) Key() string { return e.key }

func (e *enumerator) Value() []byte { return e.value }

func (e *enumerator) Err() error { return e.err }

// Close releases the lease held on the enumerator's snapshot. Safe to
// call more than once.
func (e *enumerator) Close() error {
	if e.state == nil {
		return nil
	}
	s := e.state
	e.state = nil
	e.done = true
	return s.release()
}

var _ dnstrie.Enumerator = (*enumerator)(nil)
