package window

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bryanchriswhite/tilecap/internal/logger"
)

// ErrNoSocket is returned when neither SWAYSOCK nor I3SOCK is set.
var ErrNoSocket = errors.New("i3/sway socket path not set")

// DefaultTimeout bounds a single IPC request/response exchange.
const DefaultTimeout = 5 * time.Second

// Dialer opens the IPC connection for a socket path.
type Dialer func(path string) (net.Conn, error)

// Scanner finds windows through the i3/Sway IPC tree. Scan can be called
// repeatedly; the connection is kept open between calls and reopened after
// an I/O error.
type Scanner struct {
	lookupEnv func(string) (string, bool)
	dial      Dialer
	timeout   time.Duration
	server    DisplayServer

	mu   sync.Mutex
	conn net.Conn
	path string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(s *Scanner) { s.lookupEnv = lookup }
}

// WithDialer replaces the unix socket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Scanner) { s.dial = d }
}

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.timeout = d }
}

// NewScanner classifies the display server and tries to connect. A failed
// connection is logged and retried on the first Scan.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		lookupEnv: os.LookupEnv,
		dial: func(path string) (net.Conn, error) {
			return net.Dial("unix", path)
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	log := logger.WithComponent("scanner")
	s.server = DetectDisplayServer(s.lookupEnv)
	log.Info().Str("server", s.server.String()).Msg("Detected display server")

	s.mu.Lock()
	if err := s.connectLocked(); err != nil {
		log.Warn().Err(err).Msg("Could not connect to window manager")
	}
	s.mu.Unlock()
	return s
}

// Server returns the display server detected at construction.
func (s *Scanner) Server() DisplayServer {
	return s.server
}

// SocketPath returns the path of the current connection, if any.
func (s *Scanner) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Scanner) connectLocked() error {
	if s.conn != nil {
		return nil
	}
	path := SocketPath(s.lookupEnv)
	if path == "" {
		return ErrNoSocket
	}
	conn, err := s.dial(path)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", path, err)
	}
	s.conn = conn
	s.path = path
	logger.WithComponent("scanner").Info().Str("socket", path).Msg("Connected to window manager")
	return nil
}

func (s *Scanner) dropLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// request performs one IPC exchange and returns the reply payload.
func (s *Scanner) request(msgType uint32, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		s.conn.SetDeadline(time.Now().Add(s.timeout))
	}

	if err := WriteMessage(s.conn, msgType, payload); err != nil {
		s.dropLocked()
		return nil, err
	}
	_, reply, err := ReadMessage(s.conn)
	if err != nil {
		s.dropLocked()
		return nil, err
	}
	if s.timeout > 0 {
		s.conn.SetDeadline(time.Time{})
	}
	return reply, nil
}

// Tree fetches and decodes the current layout tree.
func (s *Scanner) Tree() (*Node, error) {
	data, err := s.request(MessageGetTree, nil)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("get tree: empty reply")
	}
	return ParseTree(data)
}

// Scan looks up the first window whose name contains name. Every failure
// (no socket, I/O, malformed JSON, no match) yields Found=false.
func (s *Scanner) Scan(name string) WindowInfo {
	log := logger.WithComponent("scanner")

	root, err := s.Tree()
	if err != nil {
		log.Error().Err(err).Str("window", name).Msg("Window discovery failed")
		return WindowInfo{Server: s.server}
	}

	info := FindWindow(root, name, s.server)
	if !info.Found {
		log.Warn().Str("window", name).Msg("Window not found in tree")
		return info
	}

	ev := log.Info().
		Str("window", info.Name).
		Uint64("xid", info.ID).
		Int("x", info.Geometry.X).
		Int("y", info.Geometry.Y).
		Int("width", info.Geometry.Width).
		Int("height", info.Geometry.Height)
	if info.AppID != "" {
		ev = ev.Str("app_id", info.AppID)
	}
	ev.Bool("native_wayland", info.IsNativeWayland()).Msg("Found window")
	return info
}

// Close releases the IPC connection.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
