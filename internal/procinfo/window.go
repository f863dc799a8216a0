package procinfo

// WindowInfo describes the main window of a process as far as it is known.
type WindowInfo struct {
	Title      string `json:"title"`
	Fullscreen bool   `json:"fullscreen"`
	Foreground bool   `json:"foreground"`
}

// Windows queries the desktop for window state. Only the foreground window
// is inspected; other processes report an empty WindowInfo.
type Windows struct{}

// NewWindows returns a Windows inspector.
func NewWindows() *Windows {
	return &Windows{}
}
