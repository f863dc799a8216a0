//go:build !windows

package procinfo

import "context"

// Window returns an empty WindowInfo; window state is only queried on Windows.
func (w *Windows) Window(ctx context.Context, pid uint32) (WindowInfo, error) {
	return WindowInfo{}, ctx.Err()
}
