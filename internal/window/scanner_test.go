package window

import (
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDetectDisplayServer(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want DisplayServer
	}{
		{"sway", map[string]string{EnvSwaySock: "/run/sway.sock", EnvI3Sock: "/run/i3.sock"}, DisplayServerSway},
		{"i3", map[string]string{EnvI3Sock: "/run/i3.sock", EnvDisplay: ":0"}, DisplayServerI3},
		{"xwayland", map[string]string{EnvWaylandDisplay: "wayland-1", EnvDisplay: ":0"}, DisplayServerXWayland},
		{"x11", map[string]string{EnvDisplay: ":0"}, DisplayServerX11},
		{"wayland only", map[string]string{EnvWaylandDisplay: "wayland-1"}, DisplayServerUnknown},
		{"empty values", map[string]string{EnvSwaySock: "", EnvDisplay: ""}, DisplayServerUnknown},
		{"nothing", nil, DisplayServerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDisplayServer(envMap(tt.env)); got != tt.want {
				t.Errorf("DetectDisplayServer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSocketPathPrefersSway(t *testing.T) {
	env := envMap(map[string]string{EnvSwaySock: "/a", EnvI3Sock: "/b"})
	if got := SocketPath(env); got != "/a" {
		t.Fatalf("SocketPath() = %q", got)
	}
	env = envMap(map[string]string{EnvSwaySock: "", EnvI3Sock: "/b"})
	if got := SocketPath(env); got != "/b" {
		t.Fatalf("SocketPath() = %q", got)
	}
}

func TestWindowInfoJSONRoundTrip(t *testing.T) {
	for _, server := range []DisplayServer{
		DisplayServerUnknown,
		DisplayServerI3,
		DisplayServerSway,
		DisplayServerXWayland,
		DisplayServerX11,
	} {
		t.Run(server.String(), func(t *testing.T) {
			in := WindowInfo{ID: 7, Name: "term", Found: true, Server: server, AppID: "foot"}
			data, err := json.Marshal(in)
			if err != nil {
				t.Fatal(err)
			}
			want := `"server":"` + server.String() + `"`
			if !strings.Contains(string(data), want) {
				t.Errorf("json = %s, want %s", data, want)
			}
			var out WindowInfo
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("Unmarshal(%s): %v", data, err)
			}
			if out != in {
				t.Errorf("round trip = %+v, want %+v", out, in)
			}
		})
	}

	var d DisplayServer
	if err := d.UnmarshalText([]byte("weston")); err == nil {
		t.Error("UnmarshalText accepted an unknown name")
	}
}

// fakeWM serves one GET_TREE reply per connection, then hangs up.
type fakeWM struct {
	ln      net.Listener
	tree    []byte
	accepts atomic.Int32
	wg      sync.WaitGroup
}

func startFakeWM(t *testing.T, tree string) (*fakeWM, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	wm := &fakeWM{ln: ln, tree: []byte(tree)}
	wm.wg.Add(1)
	go wm.serve()
	t.Cleanup(func() {
		ln.Close()
		wm.wg.Wait()
	})
	return wm, path
}

func (f *fakeWM) serve() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.accepts.Add(1)
		f.handle(conn)
	}
}

func (f *fakeWM) handle(conn net.Conn) {
	defer conn.Close()
	msgType, _, err := ReadMessage(conn)
	if err != nil || msgType != MessageGetTree {
		return
	}
	// Split the reply so the client sees partial reads.
	wire := frameMessage(MessageGetTree, f.tree)
	for len(wire) > 0 {
		n := 5
		if n > len(wire) {
			n = len(wire)
		}
		if _, err := conn.Write(wire[:n]); err != nil {
			return
		}
		wire = wire[n:]
		time.Sleep(time.Millisecond)
	}
}

const swayTree = `{"id":1,"name":"root","nodes":[
	{"id":2,"name":"Terminal","window":12345,"rect":{"x":0,"y":0,"width":800,"height":600}}
]}`

func TestScannerScan(t *testing.T) {
	_, path := startFakeWM(t, swayTree)

	s := NewScanner(WithLookupEnv(envMap(map[string]string{EnvSwaySock: path})))
	defer s.Close()

	if s.Server() != DisplayServerSway {
		t.Fatalf("Server() = %v", s.Server())
	}
	if s.SocketPath() != path {
		t.Fatalf("SocketPath() = %q, want %q", s.SocketPath(), path)
	}

	info := s.Scan("Term")
	if !info.Found {
		t.Fatal("window not found")
	}
	want := WindowInfo{
		ID:       12345,
		Name:     "Terminal",
		Geometry: Geometry{0, 0, 800, 600},
		Found:    true,
		Server:   DisplayServerSway,
	}
	if info != want {
		t.Fatalf("Scan() = %+v, want %+v", info, want)
	}
}

func TestScannerReconnectsAfterHangup(t *testing.T) {
	wm, path := startFakeWM(t, swayTree)

	s := NewScanner(WithLookupEnv(envMap(map[string]string{EnvI3Sock: path})))
	defer s.Close()

	if info := s.Scan("Terminal"); !info.Found {
		t.Fatal("first scan failed")
	}
	// The fake hung up after replying, so this request fails and drops
	// the connection.
	if info := s.Scan("Terminal"); info.Found {
		t.Fatal("second scan unexpectedly succeeded")
	}
	if info := s.Scan("Terminal"); !info.Found {
		t.Fatal("scan after reconnect failed")
	}
	if got := wm.accepts.Load(); got != 2 {
		t.Fatalf("accepts = %d, want 2", got)
	}
}

func TestScannerNoSocket(t *testing.T) {
	s := NewScanner(WithLookupEnv(envMap(map[string]string{EnvDisplay: ":0"})))
	defer s.Close()

	if info := s.Scan("Terminal"); info.Found {
		t.Fatalf("Scan() = %+v, want not found", info)
	}
	if _, err := s.Tree(); !errors.Is(err, ErrNoSocket) {
		t.Fatalf("Tree() err = %v, want ErrNoSocket", err)
	}
	if s.Server() != DisplayServerX11 {
		t.Fatalf("Server() = %v", s.Server())
	}
}

func TestScannerTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := NewScanner(
		WithLookupEnv(envMap(map[string]string{EnvI3Sock: "/unused"})),
		WithDialer(func(string) (net.Conn, error) { return client, nil }),
		WithTimeout(50*time.Millisecond),
	)
	defer s.Close()

	// Drain the request but never answer.
	go func() {
		ReadMessage(server)
	}()

	start := time.Now()
	if info := s.Scan("Terminal"); info.Found {
		t.Fatal("scan succeeded without a reply")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("scan took %v, deadline not applied", elapsed)
	}
}

func TestScannerMalformedReply(t *testing.T) {
	_, path := startFakeWM(t, `{"nodes": [`)
	s := NewScanner(WithLookupEnv(envMap(map[string]string{EnvSwaySock: path})))
	defer s.Close()

	if info := s.Scan("Terminal"); info.Found {
		t.Fatal("malformed tree produced a match")
	}
}
