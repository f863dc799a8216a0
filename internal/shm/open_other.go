//go:build !unix && !windows

package shm

import "fmt"

// DefaultDir is unused on platforms without shared memory support.
const DefaultDir = ""

// Opener maps regions by name.
type Opener struct {
	Dir string
}

// Open always fails: the platform has no supported mapping primitive.
func (o Opener) Open(name string) (*Region, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
