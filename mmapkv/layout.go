//go:build !mmapkv_unsafe

package mmapkv

import (
	"encoding/binary"
	"fmt"

	dnstrie "github.com/sirgallo/dnstrie"
)

// This file implements the default, bounds-checked accessors (§4.D).
// Building with -tags mmapkv_unsafe swaps in layout_unsafe.go, which
// skips the range checks for trusted files.

// readNodeAt decodes the Node at the given absolute file offset,
// rejecting any offset that would read outside data.
func readNodeAt(data MMap, offset uint64) (*Node, error) {
	if offset+NodeSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: node offset %d out of bounds (len %d)", dnstrie.ErrCorrupt, offset, len(data))
	}

	buf := data[offset : offset+NodeSize]
	n := &Node{
		LabelID:       binary.LittleEndian.Uint32(buf[NodeLabelIDOffset:]),
		FirstChildPos: int64(binary.LittleEndian.Uint64(buf[NodeFirstChildOffset:])),
		ChildCount:    binary.LittleEndian.Uint32(buf[NodeChildCountOffset:]),
		ValueOffset:   int64(binary.LittleEndian.Uint64(buf[NodeValueOffsetOffset:])),
		ValueLength:   int32(binary.LittleEndian.Uint32(buf[NodeValueLengthOffset:])),
	}

	if (n.FirstChildPos == 0) != (n.ChildCount == 0) {
		return nil, fmt.Errorf("%w: node at %d has inconsistent child pointer/count", dnstrie.ErrCorrupt, offset)
	}
	if n.FirstChildPos != 0 {
		childrenEnd := uint64(n.FirstChildPos) + uint64(n.ChildCount)*NodeSize
		if childrenEnd > uint64(len(data)) {
			return nil, fmt.Errorf("%w: node at %d children region out of bounds", dnstrie.ErrCorrupt, offset)
		}
	}

	return n, nil
}

// readValueAt reads the length-prefixed value blob for node, relative
// to valueRegionOffset, validating the length prefix against the
// node's recorded ValueLength (§4.D).
func readValueAt(data MMap, valueRegionOffset uint64, node *Node) ([]byte, error) {
	if !node.HasValue() {
		return nil, nil
	}
	if node.ValueOffset < 0 {
		return nil, fmt.Errorf("%w: negative value offset", dnstrie.ErrCorrupt)
	}

	start := valueRegionOffset + uint64(node.ValueOffset)
	if start+4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: value length prefix out of bounds at %d", dnstrie.ErrCorrupt, start)
	}

	length := int32(binary.LittleEndian.Uint32(data[start : start+4]))
	if length < 0 {
		return nil, fmt.Errorf("%w: negative value length", dnstrie.ErrCorrupt)
	}
	if length != node.ValueLength {
		return nil, fmt.Errorf("%w: value length mismatch (prefix %d, node %d)", dnstrie.ErrCorrupt, length, node.ValueLength)
	}

	payloadStart := start + 4
	payloadEnd := payloadStart + uint64(length)
	if payloadEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: value payload out of bounds", dnstrie.ErrCorrupt)
	}

	return data[payloadStart:payloadEnd], nil
}

// readChildrenAt reads the ChildCount contiguous child nodes starting
// at FirstChildPos, already known sorted ascending by LabelID (§3.2).
func readChildrenAt(data MMap, node *Node) ([]*Node, []uint64, error) {
	if node.ChildCount == 0 {
		return nil, nil, nil
	}

	children := make([]*Node, 0, node.ChildCount)
	offsets := make([]uint64, 0, node.ChildCount)

	base := uint64(node.FirstChildPos)
	for i := uint32(0); i < node.ChildCount; i++ {
		off := base + uint64(i)*NodeSize
		child, err := readNodeAt(data, off)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, child)
		offsets = append(offsets, off)
	}

	return children, offsets, nil
}
