//go:build unix

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultDir is where POSIX shared memory objects are exposed as files.
const DefaultDir = "/dev/shm"

// Opener maps regions by name.
type Opener struct {
	// Dir holds the region files. Empty means DefaultDir.
	Dir string
}

// Open maps the named region read-only.
func (o Opener) Open(name string) (*Region, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid region name %q", name)
	}
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open region %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat region %s: %w", name, err)
	}
	size := info.Size()
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap region %s: %w", name, err)
	}

	return newMappedRegion(name, data, func() error {
		return unix.Munmap(data)
	}), nil
}
