package mmapkv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	dnstrie "github.com/sirgallo/dnstrie"
	"github.com/sirgallo/dnstrie/internal/log"
)

// flatNode is one entry of the BFS-ordered layout assigned to a
// staging-trie snapshot before serialization (§4.F step 2).
type flatNode struct {
	stg             *stagingNode
	labelID         uint32
	valueOffset     int64
	valueLength     int32
	firstChildIndex int
	childCount      int
}

// layoutBFS assigns a contiguous, per-node-sorted-by-labelID layout to
// a staging trie snapshot, as described in §4.F step 2: "BFS the cloned
// staging to assign a contiguous node region where each node's direct
// children are contiguous and sorted by labelId."
func layoutBFS(root *stagingNode, capHint int64, pool *flatNodePool) []*flatNode {
	flat := make([]*flatNode, 0, max64(1, capHint))

	rootFn := pool.get()
	rootFn.stg, rootFn.labelID, rootFn.firstChildIndex = root, 0, -1
	flat = append(flat, rootFn)

	for i := 0; i < len(flat); i++ {
		cur := flat[i]

		childStart := len(flat)
		count := 0
		for b := 0; b < 256; b++ {
			child := cur.stg.children[b]
			if child == nil {
				continue
			}
			fn := pool.get()
			fn.stg, fn.labelID, fn.firstChildIndex = child, uint32(b), -1
			flat = append(flat, fn)
			count++
		}

		if count > 0 {
			cur.firstChildIndex = childStart
			cur.childCount = count
		}
	}

	return flat
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// valueRegionPadding is written as the first bytes of the value region
// so that no real value ever lands at relative offset 0 -- that offset
// is reserved by Node.ValueOffset to mean "no value" (§3.2).
const valueRegionPadding = 4

// serializeStaging builds the full on-disk image ([Header][NodeArray]
// [ValueBlob]) for a frozen staging-trie snapshot, per §6.2.
func serializeStaging(staging *stagingTrie, nodeCapacityHint, valueCapacityHint int64, pool *flatNodePool) ([]byte, error) {
	flat := layoutBFS(staging.root, nodeCapacityHint, pool)
	defer pool.putAll(flat)

	if len(flat) == 0 {
		return nil, fmt.Errorf("%w: empty layout", dnstrie.ErrCorrupt)
	}

	nodeRegionOffset := uint64(HeaderSize)
	nodeCount := uint64(len(flat))
	valueRegionOffset := nodeRegionOffset + nodeCount*NodeSize

	cursor := int64(valueRegionPadding)
	var valueBuf bytes.Buffer
	valueBuf.Grow(int(max64(valueCapacityHint, valueRegionPadding)))
	valueBuf.Write(make([]byte, valueRegionPadding))

	for _, fn := range flat {
		if !fn.stg.hasValue {
			continue
		}
		fn.valueOffset = cursor
		fn.valueLength = int32(len(fn.stg.value))

		lenPrefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenPrefix, uint32(fn.valueLength))
		valueBuf.Write(lenPrefix)
		valueBuf.Write(fn.stg.value)

		cursor += 4 + int64(fn.valueLength)
	}

	header := &Header{
		Magic:             Magic,
		Version:           FormatVersion,
		Endianness:        LittleEndianMark,
		NodeRegionOffset:  nodeRegionOffset,
		NodeCount:         nodeCount,
		ValueRegionOffset: valueRegionOffset,
	}

	out := bytes.NewBuffer(make([]byte, 0, int(valueRegionOffset)+valueBuf.Len()))
	out.Write(header.Serialize())

	nodeBuf := make([]byte, NodeSize)
	for _, fn := range flat {
		var firstChildPos int64
		if fn.childCount > 0 {
			firstChildPos = int64(nodeRegionOffset) + int64(fn.firstChildIndex)*NodeSize
		}

		binary.LittleEndian.PutUint32(nodeBuf[NodeLabelIDOffset:], fn.labelID)
		binary.LittleEndian.PutUint64(nodeBuf[NodeFirstChildOffset:], uint64(firstChildPos))
		binary.LittleEndian.PutUint32(nodeBuf[NodeChildCountOffset:], uint32(fn.childCount))
		binary.LittleEndian.PutUint64(nodeBuf[NodeValueOffsetOffset:], uint64(fn.valueOffset))
		binary.LittleEndian.PutUint32(nodeBuf[NodeValueLengthOffset:], uint32(fn.valueLength))

		out.Write(nodeBuf)
	}

	out.Write(valueBuf.Bytes())
	return out.Bytes(), nil
}

// writeTempFile writes data to a temp file next to target and fsyncs
// it, returning the temp path (§4.F step 2: "Write header, then the
// node block, then length-prefixed value blobs. Flush to disk.").
func writeTempFile(targetPath string, data []byte) (string, error) {
	tmpPath := targetPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	return tmpPath, nil
}

// replaceAtomically installs tmpPath as targetPath, retaining a
// hardlinked backup at targetPath+".bak" when targetPath already
// exists, per §4.F step 3. Falls back to a non-atomic delete-then-move
// if the platform replace primitive fails.
func replaceAtomically(targetPath, tmpPath string) error {
	backupPath := targetPath + ".bak"

	if _, err := os.Stat(targetPath); err == nil {
		os.Remove(backupPath)
		if linkErr := os.Link(targetPath, backupPath); linkErr != nil {
			log.Warn("mmapkv.swap").Err(linkErr).Msg("failed to hardlink backup before replace")
		}
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		log.Warn("mmapkv.swap").Err(err).Msg("atomic rename failed, falling back to delete-then-move")
		if remErr := os.Remove(targetPath); remErr != nil && !os.IsNotExist(remErr) {
			return fmt.Errorf("mmapkv: fallback replace: remove target: %w", remErr)
		}
		if err := os.Rename(tmpPath, targetPath); err != nil {
			return fmt.Errorf("mmapkv: fallback replace: rename: %w", err)
		}
	}

	return nil
}
