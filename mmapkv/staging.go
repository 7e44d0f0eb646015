package mmapkv

// stagingNode is a single node in the 256-way in-memory staging trie
// (component C, §3.3, §4.C). Ownership is exclusive to the Backend's
// stagingLock; readers never see it. Grounded on the teacher's
// path-copy style in Node.go/Operation.go (copyINode/putRecursive),
// simplified from a popcount-indexed sparse array down to a dense
// [256]*stagingNode table since the staging trie is not published
// directly -- it is always rebuilt into the compact mmap layout by
// builder.go, so sparsity here buys nothing.
type stagingNode struct {
	children  [256]*stagingNode
	value     []byte
	hasValue  bool
	nchildren int
}

// stagingTrie is the mutable shadow of the active MMAP snapshot that
// accumulates writes until the next swap() (§3.3).
type stagingTrie struct {
	root *stagingNode
}

func newStagingTrie() *stagingTrie {
	return &stagingTrie{root: &stagingNode{}}
}

// insert stores value at key. If allowOverwrite is false and a value
// already exists at key, it returns false without modifying the trie
// (§4.C).
func (t *stagingTrie) insert(key []byte, value []byte, allowOverwrite bool) bool {
	node := t.root
	for _, b := range key {
		child := node.children[b]
		if child == nil {
			child = &stagingNode{}
			node.children[b] = child
			node.nchildren++
		}
		node = child
	}

	if node.hasValue && !allowOverwrite {
		return false
	}

	node.value = value
	node.hasValue = true
	return true
}

// tryGetBytes returns the stored bytes for key, if any.
func (t *stagingTrie) tryGetBytes(key []byte) ([]byte, bool) {
	node := t.descend(key)
	if node == nil || !node.hasValue {
		return nil, false
	}
	return node.value, true
}

// descend walks the 256-way children for each byte of key, returning
// nil if any byte along the path is absent.
func (t *stagingTrie) descend(key []byte) *stagingNode {
	node := t.root
	for _, b := range key {
		node = node.children[b]
		if node == nil {
			return nil
		}
	}
	return node
}

// remove clears the value at key (if present) and prunes every node on
// the path that ends up with no children and no value (§4.C).
func (t *stagingTrie) remove(key []byte) (removed bool, oldValue []byte) {
	path := make([]*stagingNode, 0, len(key)+1)
	path = append(path, t.root)

	node := t.root
	for _, b := range key {
		node = node.children[b]
		if node == nil {
			return false, nil
		}
		path = append(path, node)
	}

	if !node.hasValue {
		return false, nil
	}

	oldValue = node.value
	node.value = nil
	node.hasValue = false

	for i := len(path) - 1; i > 0; i-- {
		child := path[i]
		if child.hasValue || child.nchildren > 0 {
			break
		}
		parent := path[i-1]
		parentByte := key[i-1]
		parent.children[parentByte] = nil
		parent.nchildren--
	}

	return true, oldValue
}

// clone deep-copies the trie so value byte slices are independently
// owned by the copy, per §4.C's clone contract. This is invoked once
// per swap() to freeze the mutation set being published.
func (t *stagingTrie) clone() *stagingTrie {
	return &stagingTrie{root: cloneStagingNode(t.root)}
}

func cloneStagingNode(n *stagingNode) *stagingNode {
	if n == nil {
		return nil
	}

	cp := &stagingNode{hasValue: n.hasValue, nchildren: n.nchildren}
	if n.hasValue {
		cp.value = append([]byte(nil), n.value...)
	}
	for i, child := range n.children {
		if child != nil {
			cp.children[i] = cloneStagingNode(child)
		}
	}
	return cp
}

// isEmpty reports whether the trie holds no value anywhere.
func (t *stagingTrie) isEmpty() bool {
	return !t.root.hasValue && t.root.nchildren == 0
}

// clear resets the trie to empty (§6.1 Clear: "MMAP: clears staging
// only").
func (t *stagingTrie) clear() {
	t.root = &stagingNode{}
}

// loadFromSnapshot materializes the staging trie from an active State
// by DFS-ing its node array once, used for the one-time lazy load on
// first mutation described in §4.F step 1.
func loadFromSnapshot(s *State) (*stagingTrie, error) {
	t := newStagingTrie()
	if s == nil {
		return t, nil
	}

	var walk func(offset uint64, prefix []byte) error
	walk = func(offset uint64, prefix []byte) error {
		node, err := readNodeAt(s.data, offset)
		if err != nil {
			return err
		}

		if node.HasValue() {
			val, err := readValueAt(s.data, s.header.ValueRegionOffset, node)
			if err != nil {
				return err
			}
			t.insert(prefix, append([]byte(nil), val...), true)
		}

		children, offsets, err := readChildrenAt(s.data, node)
		if err != nil {
			return err
		}
		for i, child := range children {
			childPrefix := append(append([]byte(nil), prefix...), byte(child.LabelID))
			if err := walk(offsets[i], childPrefix); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(s.rootOffset, nil); err != nil {
		return nil, err
	}

	return t, nil
}
