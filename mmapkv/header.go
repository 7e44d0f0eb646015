package mmapkv

import (
	"encoding/binary"
	"fmt"

	dnstrie "github.com/sirgallo/dnstrie"
)

// Serialize packs a Header into its 32-byte on-disk form (§6.2).
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[HeaderMagicOffset:], h.Magic)
	binary.LittleEndian.PutUint16(buf[HeaderVersionOffset:], h.Version)
	binary.LittleEndian.PutUint16(buf[HeaderEndiannessOffset:], h.Endianness)
	binary.LittleEndian.PutUint64(buf[HeaderNodeRegionOffsetOffset:], h.NodeRegionOffset)
	binary.LittleEndian.PutUint64(buf[HeaderNodeCountOffset:], h.NodeCount)
	binary.LittleEndian.PutUint64(buf[HeaderValueRegionOffsetOffset:], h.ValueRegionOffset)
	return buf
}

// DeserializeHeader unpacks and validates a Header from raw bytes. Any
// structural violation (magic, version, endianness, offset ordering)
// surfaces as ErrCorrupt, never silently downgraded (§7).
func DeserializeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: header truncated", dnstrie.ErrCorrupt)
	}

	h := &Header{
		Magic:             binary.LittleEndian.Uint32(buf[HeaderMagicOffset:]),
		Version:           binary.LittleEndian.Uint16(buf[HeaderVersionOffset:]),
		Endianness:        binary.LittleEndian.Uint16(buf[HeaderEndiannessOffset:]),
		NodeRegionOffset:  binary.LittleEndian.Uint64(buf[HeaderNodeRegionOffsetOffset:]),
		NodeCount:         binary.LittleEndian.Uint64(buf[HeaderNodeCountOffset:]),
		ValueRegionOffset: binary.LittleEndian.Uint64(buf[HeaderValueRegionOffsetOffset:]),
	}

	if err := h.Validate(uint64(len(buf))); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the header invariants from §3.2 against a known file
// size. fileSize may be the length of the full mapping.
func (h *Header) Validate(fileSize uint64) error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: bad magic", dnstrie.ErrCorrupt)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", dnstrie.ErrCorrupt, h.Version)
	}
	if h.Endianness != LittleEndianMark {
		return fmt.Errorf("%w: unsupported endianness marker %d", dnstrie.ErrCorrupt, h.Endianness)
	}
	if h.NodeRegionOffset < HeaderSize {
		return fmt.Errorf("%w: nodeRegionOffset %d below header size", dnstrie.ErrCorrupt, h.NodeRegionOffset)
	}
	if h.NodeCount < 1 {
		return fmt.Errorf("%w: nodeCount must be >= 1", dnstrie.ErrCorrupt)
	}

	minValueRegion := h.NodeRegionOffset + h.NodeCount*NodeSize
	if h.ValueRegionOffset < minValueRegion {
		return fmt.Errorf("%w: valueRegionOffset %d overlaps node region (needs >= %d)", dnstrie.ErrCorrupt, h.ValueRegionOffset, minValueRegion)
	}
	if h.ValueRegionOffset > fileSize {
		return fmt.Errorf("%w: valueRegionOffset %d exceeds file size %d", dnstrie.ErrCorrupt, h.ValueRegionOffset, fileSize)
	}

	return nil
}
