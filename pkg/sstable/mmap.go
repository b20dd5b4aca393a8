package sstable

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// OpenFile reads a segment file through a memory mapping and validates it
// like Open. The mapping is released before returning; the Reader owns a
// private copy of the blob and stays valid for its whole lifetime.
func OpenFile(path string) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer ra.Close()

	blob := make([]byte, ra.Len())
	if len(blob) > 0 {
		if _, err := ra.ReadAt(blob, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("sstable: read %s: %w", path, err)
		}
	}

	r, err := Open(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
