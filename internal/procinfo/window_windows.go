//go:build windows

package procinfo

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	smCXScreen = 0
	smCYScreen = 1
)

var (
	moduser32                = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextLengthW = moduser32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = moduser32.NewProc("GetWindowTextW")
	procGetWindowRect        = moduser32.NewProc("GetWindowRect")
	procGetSystemMetrics     = moduser32.NewProc("GetSystemMetrics")
)

// Window reports title and placement of pid's window when it owns the
// foreground window.
func (w *Windows) Window(ctx context.Context, pid uint32) (WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return WindowInfo{}, err
	}

	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return WindowInfo{}, nil
	}
	var owner uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err != nil {
		return WindowInfo{}, err
	}
	if owner != pid {
		return WindowInfo{}, nil
	}

	return WindowInfo{
		Title:      windowText(hwnd),
		Foreground: true,
		Fullscreen: coversScreen(hwnd),
	}, nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	copied, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if copied == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:copied])
}

func coversScreen(hwnd windows.HWND) bool {
	var rect windows.Rect
	ok, _, _ := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&rect)))
	if ok == 0 {
		return false
	}
	width, _, _ := procGetSystemMetrics.Call(smCXScreen)
	height, _, _ := procGetSystemMetrics.Call(smCYScreen)
	if width == 0 || height == 0 {
		return false
	}
	return rect.Left <= 0 && rect.Top <= 0 &&
		rect.Right-rect.Left >= int32(width) &&
		rect.Bottom-rect.Top >= int32(height)
}
