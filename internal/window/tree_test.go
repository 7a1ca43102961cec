package window

import "testing"

const nestedTree = `{
  "id": 1, "name": "root", "type": "root", "rect": {"x":0,"y":0,"width":1920,"height":1080},
  "nodes": [
    {"id": 2, "name": "__i3", "type": "output", "window": null,
     "nodes": [{"id": 3, "name": "__i3_scratch", "nodes": []}]},
    {"id": 10, "name": "eDP-1", "type": "output",
     "nodes": [
       {"id": 11, "name": "1", "type": "workspace",
        "nodes": [
          {"id": 12, "name": null, "type": "con", "window": null,
           "nodes": [
             {"id": 13, "name": "Terminal - deep", "window": 111,
              "rect": {"x": 5, "y": 6, "width": 700, "height": 500}}
           ]},
          {"id": 14, "name": "Terminal - shallow", "window": 222,
           "rect": {"x": 1, "y": 2, "width": 3, "height": 4}}
        ],
        "floating_nodes": [
          {"id": 15, "name": "Floating Terminal", "window": 333,
           "rect": {"x": 100, "y": 200, "width": 300, "height": 400}}
        ]}
     ]}
  ]
}`

func mustParse(t *testing.T, data string) *Node {
	t.Helper()
	root, err := ParseTree([]byte(data))
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}
	return root
}

func TestFindWindowFirstDepthFirstMatch(t *testing.T) {
	root := mustParse(t, nestedTree)

	tests := []struct {
		query    string
		wantID   uint64
		wantRect Geometry
	}{
		{"Terminal", 111, Geometry{5, 6, 700, 500}},
		{"shallow", 222, Geometry{1, 2, 3, 4}},
		{"Floating", 333, Geometry{100, 200, 300, 400}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			info := FindWindow(root, tt.query, DisplayServerI3)
			if !info.Found {
				t.Fatalf("%q not found", tt.query)
			}
			if info.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", info.ID, tt.wantID)
			}
			if info.Geometry != tt.wantRect {
				t.Errorf("Geometry = %+v, want %+v", info.Geometry, tt.wantRect)
			}
			if info.Server != DisplayServerI3 {
				t.Errorf("Server = %v", info.Server)
			}
		})
	}
}

func TestFindWindowTiledBeforeFloating(t *testing.T) {
	root := mustParse(t, `{"name":"root","nodes":[
		{"name":"ws","nodes":[],"floating_nodes":[{"name":"Editor float","window":2}]},
		{"name":"ws2","nodes":[{"name":"Editor tiled","window":3}]}
	]}`)

	// ws's floating child is visited before the next sibling subtree.
	if info := FindWindow(root, "Editor", DisplayServerI3); info.ID != 2 {
		t.Fatalf("ID = %d, want 2", info.ID)
	}
}

const waylandTree = `{"name":"root","nodes":[
	{"name":"Firefox","window":null,"app_id":"firefox","rect":{"x":10,"y":20,"width":1280,"height":720}},
	{"name":"Firefox (X)","window":42,"app_id":null,"rect":{"x":0,"y":0,"width":1,"height":1}}
]}`

func TestFindWindowNativeWayland(t *testing.T) {
	root := mustParse(t, waylandTree)

	info := FindWindow(root, "Firefox", DisplayServerSway)
	if !info.Found || info.ID != 0 {
		t.Fatalf("info = %+v, want native Wayland match", info)
	}
	if !info.IsNativeWayland() {
		t.Errorf("IsNativeWayland() = false")
	}
	if info.AppID != "firefox" {
		t.Errorf("AppID = %q", info.AppID)
	}
	if info.Geometry != (Geometry{10, 20, 1280, 720}) {
		t.Errorf("Geometry = %+v", info.Geometry)
	}

	// On i3 a match without an X11 id is skipped and the search moves on.
	info = FindWindow(root, "Firefox", DisplayServerI3)
	if !info.Found || info.ID != 42 {
		t.Fatalf("i3 info = %+v, want the X11 window", info)
	}
	if info.AppID != "" {
		t.Errorf("AppID = %q, want empty for null app_id", info.AppID)
	}
}

func TestFindWindowNoMatch(t *testing.T) {
	root := mustParse(t, nestedTree)
	if info := FindWindow(root, "Nonexistent", DisplayServerI3); info.Found {
		t.Fatalf("unexpected match %+v", info)
	}
	if info := FindWindow(nil, "Terminal", DisplayServerI3); info.Found {
		t.Fatalf("nil root matched")
	}
}

func TestNonStringNameIgnored(t *testing.T) {
	root := mustParse(t, `{"name":"root","nodes":[{"name":123,"window":1},{"name":"123","window":2}]}`)
	if info := FindWindow(root, "123", DisplayServerI3); info.ID != 2 {
		t.Fatalf("ID = %d, want 2", info.ID)
	}
}

func TestParseTreeMalformed(t *testing.T) {
	for _, data := range []string{`{"nodes": [`, `not json`, `{"window": "abc"}`} {
		if _, err := ParseTree([]byte(data)); err == nil {
			t.Errorf("ParseTree(%q) succeeded", data)
		}
	}
}

func TestWindowsListsClients(t *testing.T) {
	root := mustParse(t, nestedTree)
	got := Windows(root, DisplayServerI3)
	want := []uint64{111, 222, 333}
	if len(got) != len(want) {
		t.Fatalf("got %d windows, want %d", len(got), len(want))
	}
	for i, w := range got {
		if w.ID != want[i] {
			t.Errorf("window %d ID = %d, want %d", i, w.ID, want[i])
		}
	}

	wl := Windows(mustParse(t, waylandTree), DisplayServerSway)
	if len(wl) != 2 || wl[0].AppID != "firefox" {
		t.Fatalf("wayland windows = %+v", wl)
	}
}
