//go:build windows

package shm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DefaultDir is unused on Windows; named mappings live in the object namespace.
const DefaultDir = ""

var (
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileMappingW = modkernel32.NewProc("OpenFileMappingW")
)

// Opener maps regions by name.
type Opener struct {
	// Dir is ignored on Windows.
	Dir string
}

// Open maps the named file mapping read-only.
func (o Opener) Open(name string) (*Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid region name %q: %w", name, err)
	}

	r0, _, callErr := procOpenFileMappingW.Call(
		uintptr(windows.FILE_MAP_READ),
		0,
		uintptr(unsafe.Pointer(namePtr)),
	)
	handle := windows.Handle(r0)
	if handle == 0 {
		if errors.Is(callErr, windows.ERROR_FILE_NOT_FOUND) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open file mapping %s: %w", name, callErr)
	}

	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ, 0, 0, 0)
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("map view %s: %w", name, err)
	}

	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info)); err != nil {
		_ = windows.UnmapViewOfFile(addr)
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("query view %s: %w", name, err)
	}
	if info.RegionSize == 0 {
		_ = windows.UnmapViewOfFile(addr)
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(info.RegionSize))

	return newMappedRegion(name, data, func() error {
		return errors.Join(
			windows.UnmapViewOfFile(addr),
			windows.CloseHandle(handle),
		)
	}), nil
}
