//go:build mmapkv_unsafe

package mmapkv

import "encoding/binary"

// Unsafe-fast variant: skips the bounds checks in layout.go for files
// already trusted (e.g. rebuilt by this process's own swap()), per
// §4.D's "build-time option" note. Panics on malformed input instead of
// returning ErrCorrupt -- callers that need Corrupt on open should use
// the default (checked) build.

func readNodeAt(data MMap, offset uint64) (*Node, error) {
	buf := data[offset : offset+NodeSize]
	return &Node{
		LabelID:       binary.LittleEndian.Uint32(buf[NodeLabelIDOffset:]),
		FirstChildPos: int64(binary.LittleEndian.Uint64(buf[NodeFirstChildOffset:])),
		ChildCount:    binary.LittleEndian.Uint32(buf[NodeChildCountOffset:]),
		ValueOffset:   int64(binary.LittleEndian.Uint64(buf[NodeValueOffsetOffset:])),
		ValueLength:   int32(binary.LittleEndian.Uint32(buf[NodeValueLengthOffset:])),
	}, nil
}

func readValueAt(data MMap, valueRegionOffset uint64, node *Node) ([]byte, error) {
	if !node.HasValue() {
		return nil, nil
	}
	start := valueRegionOffset + uint64(node.ValueOffset)
	length := int32(binary.LittleEndian.Uint32(data[start : start+4]))
	payloadStart := start + 4
	return data[payloadStart : payloadStart+uint64(length)], nil
}

func readChildrenAt(data MMap, node *Node) ([]*Node, []uint64, error) {
	if node.ChildCount == 0 {
		return nil, nil, nil
	}

	children := make([]*Node, 0, node.ChildCount)
	offsets := make([]uint64, 0, node.ChildCount)

	base := uint64(node.FirstChildPos)
	for i := uint32(0); i < node.ChildCount; i++ {
		off := base + uint64(i)*NodeSize
		child, _ := readNodeAt(data, off)
		children = append(children, child)
		offsets = append(offsets, off)
	}

	return children, offsets, nil
}
