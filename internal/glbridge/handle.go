package glbridge

import (
	"fmt"
	"strings"
)

// Platform is the windowing-system binding of a GL context. Values match
// GstGLPlatform.
type Platform uint

const (
	PlatformEGL Platform = 1 << 0
	PlatformGLX Platform = 1 << 1
	PlatformWGL Platform = 1 << 2
)

func (p Platform) String() string {
	switch p {
	case PlatformEGL:
		return "egl"
	case PlatformGLX:
		return "glx"
	case PlatformWGL:
		return "wgl"
	}
	return fmt.Sprintf("platform(%d)", uint(p))
}

// ParsePlatform accepts "egl", "glx" and "wgl".
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "egl":
		return PlatformEGL, nil
	case "glx":
		return PlatformGLX, nil
	case "wgl":
		return PlatformWGL, nil
	}
	return 0, fmt.Errorf("glbridge: unknown platform %q", s)
}

// API is the GL flavour of a context. Values match GstGLAPI.
type API uint

const (
	APIGL    API = 1 << 0
	APIGL3   API = 1 << 1
	APIGLES2 API = 1 << 16
)

func (a API) String() string {
	switch a {
	case APIGL:
		return "gl"
	case APIGL3:
		return "gl3"
	case APIGLES2:
		return "gles2"
	}
	return fmt.Sprintf("api(%d)", uint(a))
}

// ParseAPI accepts "gl", "gl3" and "gles2".
func ParseAPI(s string) (API, error) {
	switch strings.ToLower(s) {
	case "gl":
		return APIGL, nil
	case "gl3":
		return APIGL3, nil
	case "gles2":
		return APIGLES2, nil
	}
	return 0, fmt.Errorf("glbridge: unknown api %q", s)
}

// DisplayType is the kind of display the engine opened. Values match
// GstGLDisplayType.
type DisplayType uint

const (
	DisplayX11            DisplayType = 1 << 0
	DisplayWayland        DisplayType = 1 << 1
	DisplayCocoa          DisplayType = 1 << 2
	DisplayWin32          DisplayType = 1 << 3
	DisplayEGL            DisplayType = 1 << 5
	DisplayGBM            DisplayType = 1 << 7
	DisplayEGLDevice      DisplayType = 1 << 8
	DisplayAndroid        DisplayType = 1 << 11
	DisplayEGLSurfaceless DisplayType = 1 << 12
)

var platformDisplays = map[Platform]DisplayType{
	PlatformEGL: DisplayX11 | DisplayWayland | DisplayEGL | DisplayGBM | DisplayEGLDevice |
		DisplayAndroid | DisplayEGLSurfaceless,
	PlatformGLX: DisplayX11,
	PlatformWGL: DisplayWin32,
}

// Supports reports whether a context of platform p can be wrapped against a
// display of type d.
func Supports(d DisplayType, p Platform) bool {
	return platformDisplays[p]&d != 0
}

// Handle references a GL context created and owned by the host surface.
//
// A Handle never owns the context: the host keeps exclusive ownership and
// lifetime, and the handle is only valid while the host context is alive.
type Handle struct {
	Pointer  uintptr
	Platform Platform
	API      API
}

// IsZero reports whether the handle carries no context.
func (h Handle) IsZero() bool { return h.Pointer == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("gl(%#x, %s/%s, borrowed-from=host)", h.Pointer, h.Platform, h.API)
}
