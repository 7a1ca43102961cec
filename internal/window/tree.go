package window

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rect is a node rectangle as reported by the window manager.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Node is one container in the GET_TREE reply. Name and AppID are kept raw
// because the WM emits null (or nothing) for containers without them.
type Node struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	RawName       json.RawMessage `json:"name"`
	Window        *uint64         `json:"window"`
	RawAppID      json.RawMessage `json:"app_id"`
	Rect          Rect            `json:"rect"`
	Focused       bool            `json:"focused"`
	Nodes         []*Node         `json:"nodes"`
	FloatingNodes []*Node         `json:"floating_nodes"`
}

// ParseTree decodes a GET_TREE payload.
func ParseTree(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse tree: %w", err)
	}
	return &root, nil
}

// Name returns the node name when it is a JSON string.
func (n *Node) Name() (string, bool) {
	return rawString(n.RawName)
}

// AppID returns the Wayland app_id when it is a JSON string.
func (n *Node) AppID() (string, bool) {
	return rawString(n.RawAppID)
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (n *Node) info(server DisplayServer) WindowInfo {
	info := WindowInfo{
		Geometry: Geometry{
			X:      n.Rect.X,
			Y:      n.Rect.Y,
			Width:  n.Rect.Width,
			Height: n.Rect.Height,
		},
		Found:  true,
		Server: server,
	}
	if n.Window != nil {
		info.ID = *n.Window
	}
	info.Name, _ = n.Name()
	info.AppID, _ = n.AppID()
	return info
}

// FindWindow searches the tree depth-first, tiled children before floating
// ones, and returns the first node whose name contains name. A matching node
// without an X11 window only counts on a Wayland-native server; otherwise
// the search continues below it.
func FindWindow(root *Node, name string, server DisplayServer) WindowInfo {
	if root == nil {
		return WindowInfo{Server: server}
	}
	if info, ok := root.find(name, server); ok {
		return info
	}
	return WindowInfo{Server: server}
}

func (n *Node) find(name string, server DisplayServer) (WindowInfo, bool) {
	if nodeName, ok := n.Name(); ok && strings.Contains(nodeName, name) {
		if n.Window != nil || server.IsWaylandNative() {
			return n.info(server), true
		}
	}

	for _, children := range [][]*Node{n.Nodes, n.FloatingNodes} {
		for _, child := range children {
			if child == nil {
				continue
			}
			if info, ok := child.find(name, server); ok {
				return info, true
			}
		}
	}
	return WindowInfo{}, false
}

// Windows lists every client window in depth-first order: nodes carrying an
// X11 window id or a Wayland app_id.
func Windows(root *Node, server DisplayServer) []WindowInfo {
	var out []WindowInfo
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if _, hasApp := n.AppID(); n.Window != nil || hasApp {
			out = append(out, n.info(server))
		}
		for _, c := range n.Nodes {
			walk(c)
		}
		for _, c := range n.FloatingNodes {
			walk(c)
		}
	}
	walk(root)
	return out
}
