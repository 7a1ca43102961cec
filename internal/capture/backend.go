package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/tilecap/internal/frame"
)

// Kind selects a capture backend.
type Kind int

const (
	// KindAuto picks a backend from the window and the environment in Init.
	KindAuto Kind = iota
	// KindX11Shm reads X11/XWayland windows through MIT-SHM.
	KindX11Shm
	// KindWaylandScreencopy copies output regions via wlr-screencopy.
	KindWaylandScreencopy
)

func (k Kind) String() string {
	switch k {
	case KindX11Shm:
		return "XWayland/X11"
	case KindWaylandScreencopy:
		return "Wayland"
	default:
		return "Auto"
	}
}

// NativeOrder is the channel order the backend leaves in a frame when it
// does not report one through OrderReporter.
func (k Kind) NativeOrder() frame.ChannelOrder {
	switch k {
	case KindWaylandScreencopy:
		// ARGB8888 little-endian is B,G,R,A in memory.
		return frame.OrderBGRA
	default:
		return frame.OrderBGRX
	}
}

// ParseKind maps a config/flag value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "x11", "x11shm", "x11-shm", "xwayland":
		return KindX11Shm, nil
	case "wayland", "screencopy":
		return KindWaylandScreencopy, nil
	default:
		return KindAuto, fmt.Errorf("unknown capture backend %q", s)
	}
}

var (
	ErrWindowNotFound       = errors.New("window not found")
	ErrNotInitialized       = errors.New("capture not initialized")
	ErrRunning              = errors.New("capture is running")
	ErrExtensionUnavailable = errors.New("required extension unavailable")
	ErrBackendUnavailable   = errors.New("capture backend unavailable")
	ErrCaptureTimeout       = errors.New("capture timed out")

	// ErrBackendBroken means the backend lost its connection; the capture
	// loop closes and initializes it again.
	ErrBackendBroken = errors.New("capture backend connection broken")
)

// Backend produces frames of one window into caller-owned buffers.
//
// Initialize does the one-time native setup sized to the window. Capture is
// then called repeatedly from a single goroutine; it may be slow but must
// not retain out. Close releases everything Initialize acquired and is safe
// to call after a failed Initialize.
type Backend interface {
	Initialize(windowID uint64, width, height int) error
	Capture(out *frame.Buffer) error
	// DiscoverWindow always returns 0: the window-tree scanner owns discovery.
	DiscoverWindow(name string) uint64
	Kind() Kind
	Close() error
}

// OrderReporter is implemented by backends whose channel order depends on
// the pixel format the display server picked.
type OrderReporter interface {
	Order() frame.ChannelOrder
}
