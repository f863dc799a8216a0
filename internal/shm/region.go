// Package shm exposes read-only views of named shared-memory regions
// published by other processes.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound reports that no region with the requested name exists.
	ErrNotFound = errors.New("shared memory region not found")
	// ErrOutOfBounds reports a read that would cross the mapped capacity.
	ErrOutOfBounds = errors.New("read outside mapped region")
	// ErrClosed reports a read on a released region.
	ErrClosed = errors.New("region closed")
)

// Region is a bounds-checked, read-only view of a mapped region.
type Region struct {
	name    string
	data    []byte
	release func() error

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewRegion wraps an in-memory buffer. The buffer is not copied.
func NewRegion(name string, data []byte) *Region {
	return &Region{name: name, data: data}
}

func newMappedRegion(name string, data []byte, release func() error) *Region {
	return &Region{name: name, data: data, release: release}
}

// Name returns the name the region was opened under.
func (r *Region) Name() string {
	return r.name
}

// Len returns the mapped capacity in bytes.
func (r *Region) Len() int {
	return len(r.data)
}

// ReadU32 reads a little-endian 32-bit value at offset.
func (r *Region) ReadU32(offset int) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkLocked(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[offset : offset+4]), nil
}

// ReadBytes returns a copy of n bytes starting at offset.
func (r *Region) ReadBytes(offset, n int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkLocked(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[offset:offset+n])
	return out, nil
}

func (r *Region) checkLocked(offset, size int) error {
	if r.closed {
		return ErrClosed
	}
	if offset < 0 || size < 0 || offset > len(r.data)-size {
		return fmt.Errorf("%w: offset %d size %d capacity %d", ErrOutOfBounds, offset, size, len(r.data))
	}
	return nil
}

// Close releases the mapping. Safe for repeated use.
func (r *Region) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		if r.release != nil {
			r.closeErr = r.release()
		}
		r.data = nil
	})
	return r.closeErr
}
