package qptrie

import "bytes"

// nearTwigDescend walks from n following encKey's bits, falling back
// to slot 0 whenever the wanted bit is absent from a branch (the
// NearTwig technique, §4.G.1/§9: "descending via slot 0 whenever the
// sought bit is absent guarantees termination at *some* leaf, which
// is then used to compute the true divergence point"). It returns the
// leaf it lands on along with the last branch visited, that branch's
// observed state, and the bit tested there -- everything a caller
// needs to retry a single-slot CAS against the exact snapshot it read.
func nearTwigDescend(n Node, encKey []byte) (leaf *Leaf, parent *Branch, parentState *BranchState, parentBit uint) {
	var p *Branch
	var ps *BranchState
	var pbit uint

	for {
		br, ok := n.(*Branch)
		if !ok {
			break
		}
		s := br.loadState()
		bit := keyBit(encKey, br.KeyOffset)

		idx := 0
		if hasBit(s.Bitmap, bit) {
			idx = slotIndex(s.Bitmap, bit)
		}

		p, ps, pbit = br, s, bit
		n = s.Twigs[idx]
	}

	return n.(*Leaf), p, ps, pbit
}

// leftmostLeaf returns the leaf reached by always taking twig slot 0,
// the minimum leaf under n in encoded-key order.
func leftmostLeaf(n Node) *Leaf {
	for {
		br, ok := n.(*Branch)
		if !ok {
			return n.(*Leaf)
		}
		s := br.loadState()
		n = s.Twigs[0]
	}
}

// insertTwig returns a copy of twigs with n inserted at the sorted
// position bit occupies, per the slot-index invariant (§3.4).
func insertTwig(twigs []Node, bitmap uint64, bit uint, n Node) []Node {
	idx := slotIndex(bitmap, bit)
	out := make([]Node, 0, len(twigs)+1)
	out = append(out, twigs[:idx]...)
	out = append(out, n)
	out = append(out, twigs[idx:]...)
	return out
}

// removeTwig returns a copy of twigs with the entry at idx dropped.
func removeTwig(twigs []Node, idx int) []Node {
	out := make([]Node, 0, len(twigs)-1)
	out = append(out, twigs[:idx]...)
	out = append(out, twigs[idx+1:]...)
	return out
}

// Lookup returns the value stored for encKey, if any. Lock-free: reads
// only ever follow published pointers, never taking a lock (§5).
func (t *Trie) Lookup(encKey []byte) ([]byte, bool) {
	_, root := t.loadRoot()
	if root == nil {
		return nil, false
	}
	leaf, _, _, _ := nearTwigDescend(root, encKey)
	if !bytes.Equal(leaf.EncodedKey, encKey) {
		return nil, false
	}
	return leaf.Value, true
}

// Set installs value for encKey unconditionally (insert-or-overwrite),
// per §4.G.2.
func (t *Trie) Set(encKey, value []byte) {
	t.upsert(encKey, value, true)
}

// SetIfAbsent installs value for encKey only if it is not already
// present, reporting whether it actually wrote.
func (t *Trie) SetIfAbsent(encKey, value []byte) bool {
	return t.upsert(encKey, value, false)
}

// upsert is the shared CAS-retry insert path behind Set and
// SetIfAbsent (§4.G.2 steps 1-6). When the NearTwig leaf's key exactly
// matches encKey (diffOff < 0), overwrite controls whether that
// existing leaf is replaced or the call is refused. Otherwise it walks
// the real insertion path a second time to find whether the
// divergence point GROWs an existing branch or requires a NEW BRANCH,
// retrying the whole operation on any lost CAS race.
func (t *Trie) upsert(encKey, value []byte, overwrite bool) bool {
	for {
		rootBox, rootNode := t.loadRoot()

		if rootNode == nil {
			if t.casRoot(rootBox, &Leaf{EncodedKey: encKey, Value: value}) {
				t.count.Add(1)
				return true
			}
			continue
		}

		nearLeaf, nearParent, nearParentState, nearParentBit := nearTwigDescend(rootNode, encKey)
		diffOff := firstDiffOffset(encKey, nearLeaf.EncodedKey)

		if diffOff < 0 {
			if !overwrite {
				return false
			}
			newLeaf := &Leaf{EncodedKey: encKey, Value: value}
			if nearParent == nil {
				if t.casRoot(rootBox, newLeaf) {
					return true
				}
				continue
			}
			idx := slotIndex(nearParentState.Bitmap, nearParentBit)
			newTwigs := append([]Node(nil), nearParentState.Twigs...)
			newTwigs[idx] = newLeaf
			newState := &BranchState{Bitmap: nearParentState.Bitmap, Twigs: newTwigs}
			if nearParent.casState(nearParentState, newState) {
				return true
			}
			continue
		}

		newBit := keyBit(encKey, diffOff)

		// Walk the real path again (not the NearTwig-shortcut path) to
		// find exactly where diffOff fits: GROW a branch that already
		// tests offset diffOff, or insert a NEW BRANCH above whatever
		// node sits at the point the real path runs out.
		var parent *Branch
		var parentState *BranchState
		cursor := rootNode
		raced := false
		grown := false

		for {
			br, ok := cursor.(*Branch)
			if !ok {
				break
			}
			if br.KeyOffset == diffOff {
				s := br.loadState()
				if hasBit(s.Bitmap, newBit) {
					raced = true
					break
				}
				newTwigs := insertTwig(s.Twigs, s.Bitmap, newBit, &Leaf{EncodedKey: encKey, Value: value})
				newState := &BranchState{Bitmap: s.Bitmap | (uint64(1) << newBit), Twigs: newTwigs}
				if br.casState(s, newState) {
					t.count.Add(1)
					grown = true
				} else {
					raced = true
				}
				break
			}
			if br.KeyOffset > diffOff {
				break
			}
			s := br.loadState()
			bit := keyBit(encKey, br.KeyOffset)
			if !hasBit(s.Bitmap, bit) {
				break
			}
			parent, parentState = br, s
			cursor = s.Twigs[slotIndex(s.Bitmap, bit)]
		}

		if grown {
			return true
		}
		if raced {
			continue
		}

		repLeaf, _, _, _ := nearTwigDescend(cursor, encKey)
		existingBit := keyBit(repLeaf.EncodedKey, diffOff)

		newLeaf := &Leaf{EncodedKey: encKey, Value: value}
		var twigs []Node
		if existingBit < newBit {
			twigs = []Node{cursor, newLeaf}
		} else {
			twigs = []Node{newLeaf, cursor}
		}
		bitmap := (uint64(1) << existingBit) | (uint64(1) << newBit)

		newBranch := &Branch{KeyOffset: diffOff}
		newBranch.state.Store(&BranchState{Bitmap: bitmap, Twigs: twigs})

		if parent == nil {
			if t.casRoot(rootBox, newBranch) {
				t.count.Add(1)
				return true
			}
			continue
		}

		bit := keyBit(encKey, parent.KeyOffset)
		idx := slotIndex(parentState.Bitmap, bit)
		newTwigs := append([]Node(nil), parentState.Twigs...)
		newTwigs[idx] = newBranch
		newParentState := &BranchState{Bitmap: parentState.Bitmap, Twigs: newTwigs}
		if parent.casState(parentState, newParentState) {
			t.count.Add(1)
			return true
		}
		// lost the race: restart from a fresh read of the root.
	}
}

// CompareAndSwapValue installs newValue for encKey only if its current
// value equals expected, retrying on CAS contention and only failing
// on a confirmed mismatch read fresh from the trie.
func (t *Trie) CompareAndSwapValue(encKey, newValue, expected []byte) bool {
	for {
		rootBox, rootNode := t.loadRoot()
		if rootNode == nil {
			return false
		}

		leaf, parent, parentState, parentBit := nearTwigDescend(rootNode, encKey)
		if !bytes.Equal(leaf.EncodedKey, encKey) || !bytes.Equal(leaf.Value, expected) {
			return false
		}

		newLeaf := &Leaf{EncodedKey: encKey, Value: newValue}
		if parent == nil {
			if t.casRoot(rootBox, newLeaf) {
				return true
			}
			continue
		}

		idx := slotIndex(parentState.Bitmap, parentBit)
		newTwigs := append([]Node(nil), parentState.Twigs...)
		newTwigs[idx] = newLeaf
		newState := &BranchState{Bitmap: parentState.Bitmap, Twigs: newTwigs}
		if parent.casState(parentState, newState) {
			return true
		}
	}
}

// GetOrAdd returns the current value for encKey, or installs and
// returns factory()'s result if absent. Under race, factory may
// occasionally run more than once, but only one result is ever
// published -- the same best-effort guarantee sync.Map.LoadOrStore
// makes.
func (t *Trie) GetOrAdd(encKey []byte, factory func() []byte) (value []byte, added bool) {
	for {
		if v, ok := t.Lookup(encKey); ok {
			return v, false
		}
		v := factory()
		if t.upsert(encKey, v, false) {
			return v, true
		}
		// lost the race to a concurrent insert of the same key: loop
		// and read back whatever won.
	}
}

// AddOrUpdate installs addFactory()'s result if encKey is absent, or
// replaces the current value with updateFactory(current) if present.
func (t *Trie) AddOrUpdate(encKey []byte, addFactory func() []byte, updateFactory func([]byte) []byte) []byte {
	for {
		rootBox, rootNode := t.loadRoot()

		if rootNode == nil {
			v := addFactory()
			if t.casRoot(rootBox, &Leaf{EncodedKey: encKey, Value: v}) {
				t.count.Add(1)
				return v
			}
			continue
		}

		leaf, parent, parentState, parentBit := nearTwigDescend(rootNode, encKey)
		if bytes.Equal(leaf.EncodedKey, encKey) {
			newValue := updateFactory(leaf.Value)
			newLeaf := &Leaf{EncodedKey: encKey, Value: newValue}
			if parent == nil {
				if t.casRoot(rootBox, newLeaf) {
					return newValue
				}
				continue
			}
			idx := slotIndex(parentState.Bitmap, parentBit)
			newTwigs := append([]Node(nil), parentState.Twigs...)
			newTwigs[idx] = newLeaf
			newState := &BranchState{Bitmap: parentState.Bitmap, Twigs: newTwigs}
			if parent.casState(parentState, newState) {
				return newValue
			}
			continue
		}

		v := addFactory()
		if t.upsert(encKey, v, false) {
			return v
		}
		// lost the race: someone else inserted or updated first, retry
		// the whole decision.
	}
}

// Delete removes encKey if present, returning its prior value and
// true, per §4.G.3's Collapse (2-child parent) and Shrink (>=3-child
// parent) cases.
func (t *Trie) Delete(encKey []byte) ([]byte, bool) {
	for {
		rootBox, rootNode := t.loadRoot()
		if rootNode == nil {
			return nil, false
		}

		var grandparent, parent *Branch
		var grandparentState, parentState *BranchState
		var grandparentBit, parentBit uint

		cursor := rootNode
		for {
			br, ok := cursor.(*Branch)
			if !ok {
				break
			}
			s := br.loadState()
			bit := keyBit(encKey, br.KeyOffset)
			if !hasBit(s.Bitmap, bit) {
				return nil, false
			}
			grandparent, grandparentState, grandparentBit = parent, parentState, parentBit
			parent, parentState, parentBit = br, s, bit
			cursor = s.Twigs[slotIndex(s.Bitmap, bit)]
		}

		leaf, ok := cursor.(*Leaf)
		if !ok || !bytes.Equal(leaf.EncodedKey, encKey) {
			return nil, false
		}
		oldValue := leaf.Value

		switch {
		case parent == nil:
			if t.casRoot(rootBox, nil) {
				t.count.Add(-1)
				return oldValue, true
			}

		case len(parentState.Twigs) == 2:
			idx := slotIndex(parentState.Bitmap, parentBit)
			var other Node
			if idx == 0 {
				other = parentState.Twigs[1]
			} else {
				other = parentState.Twigs[0]
			}

			if grandparent == nil {
				if t.casRoot(rootBox, other) {
					t.count.Add(-1)
					return oldValue, true
				}
			} else {
				gidx := slotIndex(grandparentState.Bitmap, grandparentBit)
				newTwigs := append([]Node(nil), grandparentState.Twigs...)
				newTwigs[gidx] = other
				newGState := &BranchState{Bitmap: grandparentState.Bitmap, Twigs: newTwigs}
				if grandparent.casState(grandparentState, newGState) {
					t.count.Add(-1)
					return oldValue, true
				}
			}

		default:
			idx := slotIndex(parentState.Bitmap, parentBit)
			newTwigs := removeTwig(parentState.Twigs, idx)
			newState := &BranchState{Bitmap: parentState.Bitmap &^ (uint64(1) << parentBit), Twigs: newTwigs}
			if parent.casState(parentState, newState) {
				t.count.Add(-1)
				return oldValue, true
			}
		}
		// CAS missed under contention: restart from a fresh read.
	}
}

// Clear drops the entire trie in one step.
func (t *Trie) Clear() {
	for {
		box, _ := t.loadRoot()
		if t.casRoot(box, nil) {
			t.count.Store(0)
			return
		}
	}
}
