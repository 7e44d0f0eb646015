package mmapkv

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	dnstrie "github.com/sirgallo/dnstrie"
)

// State is an immutable, ref-counted read view of a file mapping
// (component E, §4.E). It is created by mapping the file read-only,
// validating the header, and acquiring a stable base pointer. The
// publisher ref is accounted for the same way a reader's lease is:
// retireAndTryDispose just drops one more ref.
type State struct {
	data       MMap
	header     *Header
	rootOffset uint64
	refCount   int64 // atomic; starts at 1 for the publisher
}

// openState maps path read-only and validates its header, per §4.E.
func openState(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", dnstrie.ErrCorrupt)
	}

	data, err := Map(f, RDONLY, 0)
	if err != nil {
		return nil, err
	}

	if len(data) < HeaderSize {
		data.Unmap()
		return nil, fmt.Errorf("%w: file shorter than header", dnstrie.ErrCorrupt)
	}

	header, err := DeserializeHeader([]byte(data))
	if err != nil {
		data.Unmap()
		return nil, err
	}
	if err := header.Validate(uint64(len(data))); err != nil {
		data.Unmap()
		return nil, err
	}

	s := &State{
		data:       data,
		header:     header,
		rootOffset: header.NodeRegionOffset,
		refCount:   1,
	}

	// bounds-check the root eagerly, per §6.2: "validate magic/version/
	// endianness/offsets; bounds-check root."
	if _, err := readNodeAt(s.data, s.rootOffset); err != nil {
		data.Unmap()
		return nil, err
	}

	return s, nil
}

// addRef bumps the reference count. Called by acquireActive for every
// lease handed to a reader.
func (s *State) addRef() {
	atomic.AddInt64(&s.refCount, 1)
}

// release drops a reference, unmapping the underlying file once the
// count reaches zero so in-flight readers finish safely (§4.E).
func (s *State) release() error {
	if atomic.AddInt64(&s.refCount, -1) == 0 {
		return s.data.Unmap()
	}
	return nil
}

// retireAndTryDispose drops the publisher's own reference, the one
// taken at openState time. The mapping is only unmapped once every
// reader lease has also released.
func (s *State) retireAndTryDispose() error {
	return s.release()
}

// findNode descends from root following the encoded key, binary
// searching each node's sorted children by LabelID (§4.E). It returns
// the offset of the terminal node and whether it carries a value.
func (s *State) findNode(key []byte) (offset uint64, hasValue bool, err error) {
	offset = s.rootOffset
	node, err := readNodeAt(s.data, offset)
	if err != nil {
		return 0, false, err
	}

	for _, b := range key {
		children, offsets, err := readChildrenAt(s.data, node)
		if err != nil {
			return 0, false, err
		}

		idx := sort.Search(len(children), func(i int) bool {
			return children[i].LabelID >= uint32(b)
		})
		if idx == len(children) || children[idx].LabelID != uint32(b) {
			return 0, false, nil
		}

		node = children[idx]
		offset = offsets[idx]
	}

	return offset, node.HasValue(), nil
}

// readValue returns a zero-copy span into the mapping for the value at
// the given node offset. The returned slice's lifetime is bound to the
// caller's lease.
func (s *State) readValue(offset uint64) ([]byte, error) {
	node, err := readNodeAt(s.data, offset)
	if err != nil {
		return nil, err
	}
	return readValueAt(s.data, s.header.ValueRegionOffset, node)
}
