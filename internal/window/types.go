package window

import "fmt"

// Environment variables consulted during discovery.
const (
	EnvSwaySock       = "SWAYSOCK"
	EnvI3Sock         = "I3SOCK"
	EnvWaylandDisplay = "WAYLAND_DISPLAY"
	EnvDisplay        = "DISPLAY"
)

// DisplayServer classifies the session the scanner runs in. It only biases
// backend selection; nothing depends on it for correctness.
type DisplayServer int

const (
	DisplayServerUnknown DisplayServer = iota
	// DisplayServerI3 is i3 on X11.
	DisplayServerI3
	// DisplayServerSway is Sway, a Wayland compositor speaking the i3 IPC.
	DisplayServerSway
	DisplayServerXWayland
	DisplayServerX11
)

func (d DisplayServer) String() string {
	switch d {
	case DisplayServerI3:
		return "i3"
	case DisplayServerSway:
		return "sway"
	case DisplayServerXWayland:
		return "xwayland"
	case DisplayServerX11:
		return "x11"
	default:
		return "unknown"
	}
}

// IsWaylandNative reports whether windows without an X11 id can still be
// found (Sway lists native Wayland clients in its tree).
func (d DisplayServer) IsWaylandNative() bool {
	return d == DisplayServerSway
}

// MarshalText lets DisplayServer print as its name in JSON output.
func (d DisplayServer) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (d *DisplayServer) UnmarshalText(text []byte) error {
	for _, s := range []DisplayServer{
		DisplayServerUnknown,
		DisplayServerI3,
		DisplayServerSway,
		DisplayServerXWayland,
		DisplayServerX11,
	} {
		if string(text) == s.String() {
			*d = s
			return nil
		}
	}
	return fmt.Errorf("unknown display server %q", text)
}

// Geometry is a window rectangle in layout coordinates.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowInfo is the result of a scan.
type WindowInfo struct {
	// ID is the X11 window id, 0 for native Wayland windows.
	ID       uint64        `json:"id"`
	Name     string        `json:"name"`
	Geometry Geometry      `json:"geometry"`
	Found    bool          `json:"found"`
	Server   DisplayServer `json:"server"`
	// AppID is the Wayland app_id; empty when the node has none.
	AppID string `json:"app_id,omitempty"`
}

// IsNativeWayland reports whether the window was found without an X11 id.
func (w WindowInfo) IsNativeWayland() bool {
	return w.Found && w.ID == 0
}

// DetectDisplayServer classifies the session from the environment: Sway's
// socket wins over i3's, then the display variables decide.
func DetectDisplayServer(lookupEnv func(string) (string, bool)) DisplayServer {
	switch {
	case envSet(lookupEnv, EnvSwaySock):
		return DisplayServerSway
	case envSet(lookupEnv, EnvI3Sock):
		return DisplayServerI3
	case envSet(lookupEnv, EnvWaylandDisplay) && envSet(lookupEnv, EnvDisplay):
		return DisplayServerXWayland
	case envSet(lookupEnv, EnvDisplay):
		return DisplayServerX11
	default:
		return DisplayServerUnknown
	}
}

// SocketPath returns the IPC socket path, SWAYSOCK first, or "" when neither
// variable is set.
func SocketPath(lookupEnv func(string) (string, bool)) string {
	for _, key := range []string{EnvSwaySock, EnvI3Sock} {
		if v, ok := lookupEnv(key); ok && v != "" {
			return v
		}
	}
	return ""
}

func envSet(lookupEnv func(string) (string, bool), key string) bool {
	v, ok := lookupEnv(key)
	return ok && v != ""
}
