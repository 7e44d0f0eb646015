//go:build !windows

package mmapkv

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map memory-maps f starting at offset, honoring the RDONLY/RDWR/COPY/
// EXEC flags declared in types.go. This wraps golang.org/x/sys/unix,
// the one real third-party dependency the teacher's go.mod already
// carries for this exact purpose.
func Map(f *os.File, flags int, offset int64) (MMap, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmapkv: stat: %w", err)
	}

	size := fi.Size()
	if size == 0 {
		return MMap{}, nil
	}

	prot := unix.PROT_READ
	mapFlags := unix.MAP_SHARED

	switch {
	case flags&RDWR != 0:
		prot |= unix.PROT_WRITE
	case flags&COPY != 0:
		prot |= unix.PROT_WRITE
		mapFlags = unix.MAP_PRIVATE
	}
	if flags&EXEC != 0 {
		prot |= unix.PROT_EXEC
	}

	data, err := unix.Mmap(int(f.Fd()), offset, int(size), prot, mapFlags)
	if err != nil {
		return nil, fmt.Errorf("mmapkv: mmap: %w", err)
	}

	return MMap(data), nil
}

// Unmap releases the mapping.
func (m MMap) Unmap() error {
	if len(m) == 0 {
		return nil
	}
	return unix.Munmap(m)
}

// Flush synchronously flushes the mapping's dirty pages to disk.
func (m MMap) Flush() error {
	if len(m) == 0 {
		return nil
	}
	return unix.Msync(m, unix.MS_SYNC)
}
