package metrics

// Producer application flags.
const (
	FlagAPIMask  uint32 = 0x0000FFFF
	FlagX64      uint32 = 0x00010000
	FlagUWP      uint32 = 0x00020000
	apiUnknown          = "Unknown"
)

var graphicsAPIs = map[uint32]string{
	0x1: "OpenGL",
	0x2: "DirectDraw",
	0x3: "Direct3D 8",
	0x4: "Direct3D 9",
	0x5: "Direct3D 9Ex",
	0x6: "Direct3D 10",
	0x7: "Direct3D 11",
	0x8: "Direct3D 12",
	0x9: "Direct3D 12 AFR",
	0xA: "Vulkan",
}

// GraphicsAPI names the rendering API encoded in flags.
func GraphicsAPI(flags uint32) string {
	if name, ok := graphicsAPIs[flags&FlagAPIMask]; ok {
		return name
	}
	return apiUnknown
}

// Architecture reports the target process architecture.
func Architecture(flags uint32) string {
	if flags&FlagX64 != 0 {
		return "x64"
	}
	return "x86"
}
