package capture

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/logger"
	"github.com/bryanchriswhite/tilecap/internal/window"
)

// bufferCount is the number of frame slots the manager rotates through.
const bufferCount = 3

// State is the lifecycle position of a Manager.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// Options tunes backend selection and the capture loop.
type Options struct {
	Backend Kind
	// FailureLogInterval logs every Nth consecutive failure after the first.
	// Zero logs only the first.
	FailureLogInterval int
	// BackoffThreshold is the number of consecutive failures tolerated
	// before the loop starts sleeping BackoffDelay between attempts.
	BackoffThreshold int
	BackoffDelay     time.Duration
	WaylandTimeout   time.Duration
	// X11Display overrides $DISPLAY for the X11 backend.
	X11Display string
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Backend:            KindAuto,
		FailureLogInterval: 100,
		BackoffThreshold:   10,
		BackoffDelay:       10 * time.Millisecond,
		WaylandTimeout:     2 * time.Second,
	}
}

// WindowScanner finds a window by name.
type WindowScanner interface {
	Scan(name string) window.WindowInfo
}

// BackendFactory constructs backends. Kinds lists what this build can
// construct, in preference order.
type BackendFactory interface {
	Kinds() []Kind
	New(kind Kind, win window.WindowInfo, opts Options) (Backend, error)
}

type bufferSet [bufferCount]*frame.Buffer

// Manager drives one backend from a dedicated goroutine and publishes the
// most recent complete frame through an atomic index over three buffers.
//
// Lifecycle methods are serialized; ActiveBuffer, Snapshot, FrameCount,
// State and ConsecutiveFailures never block and are safe from any
// goroutine.
type Manager struct {
	name      string
	opts      Options
	scanner   WindowScanner
	factory   BackendFactory
	lookupEnv func(string) (string, bool)

	mu      sync.Mutex
	kind    Kind
	backend Backend
	win     window.WindowInfo
	done    chan struct{}

	state    atomic.Int32
	buffers  atomic.Pointer[bufferSet]
	latest   atomic.Int32
	running  atomic.Bool
	frames   atomic.Uint64
	failures atomic.Uint64

	// copyFrame copies a published slot out in Snapshot.
	copyFrame func(src, dst *frame.Buffer)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOptions replaces the default options.
func WithOptions(opts Options) ManagerOption {
	return func(m *Manager) { m.opts = opts }
}

// WithScanner injects the window scanner. The manager does not close it.
func WithScanner(s WindowScanner) ManagerOption {
	return func(m *Manager) { m.scanner = s }
}

// WithBackendFactory replaces the platform backend factory.
func WithBackendFactory(f BackendFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// WithLookupEnv replaces os.LookupEnv for backend auto-detection.
func WithLookupEnv(lookup func(string) (string, bool)) ManagerOption {
	return func(m *Manager) { m.lookupEnv = lookup }
}

// NewManager creates a manager for the first window whose name contains
// windowName. Nothing is touched until Init.
func NewManager(windowName string, opts ...ManagerOption) *Manager {
	m := &Manager{
		name:      windowName,
		opts:      DefaultOptions(),
		factory:   nativeFactory{},
		lookupEnv: os.LookupEnv,
		copyFrame: (*frame.Buffer).CopyTo,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init discovers the window, selects and initializes a backend and
// allocates the frame buffers. It may be called again while not running
// to rediscover the window; the previous backend is released first, even
// when discovery then fails.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return ErrRunning
	}
	log := logger.WithComponent("capture-manager")

	// A failed Init leaves the manager in StateCreated with nothing from
	// the previous target.
	if err := m.resetLocked(); err != nil {
		log.Warn().Err(err).Msg("Failed to release previous backend")
	}
	m.win = window.WindowInfo{}

	info := m.scan()
	if !info.Found {
		return fmt.Errorf("%w: %q", ErrWindowNotFound, m.name)
	}
	if info.Geometry.Width <= 0 || info.Geometry.Height <= 0 {
		return fmt.Errorf("%w: %q has empty geometry %dx%d",
			ErrWindowNotFound, m.name, info.Geometry.Width, info.Geometry.Height)
	}

	available := m.factory.Kinds()
	kind := resolveKind(m.opts.Backend, info, m.lookupEnv, available)
	if kind == KindAuto {
		return fmt.Errorf("%w: no usable backend (requested %s) for %q",
			ErrBackendUnavailable, m.opts.Backend, m.name)
	}

	backend, err := m.open(kind, info)
	if err != nil {
		if m.opts.Backend != KindAuto {
			return err
		}
		alt := fallbackKind(kind, info, available)
		if alt == KindAuto {
			return err
		}
		log.Warn().Err(err).
			Str("backend", kind.String()).
			Str("fallback", alt.String()).
			Msg("Backend initialization failed, trying fallback")

		var altErr error
		backend, altErr = m.open(alt, info)
		if altErr != nil {
			return errors.Join(err, altErr)
		}
		kind = alt
	}

	var set bufferSet
	for i := range set {
		set[i] = frame.New(info.Geometry.Width, info.Geometry.Height)
	}
	m.buffers.Store(&set)
	m.latest.Store(0)
	m.frames.Store(0)
	m.failures.Store(0)

	m.kind = kind
	m.backend = backend
	m.win = info
	m.state.Store(int32(StateInitialized))

	log.Info().
		Str("window", info.Name).
		Str("backend", kind.String()).
		Int("width", info.Geometry.Width).
		Int("height", info.Geometry.Height).
		Msg("Capture initialized")
	return nil
}

func (m *Manager) scan() window.WindowInfo {
	if m.scanner != nil {
		return m.scanner.Scan(m.name)
	}
	s := window.NewScanner(window.WithLookupEnv(m.lookupEnv))
	defer s.Close()
	return s.Scan(m.name)
}

func (m *Manager) open(kind Kind, info window.WindowInfo) (Backend, error) {
	b, err := m.factory.New(kind, info, m.opts)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", kind, err)
	}
	if err := b.Initialize(info.ID, info.Geometry.Width, info.Geometry.Height); err != nil {
		b.Close()
		return nil, fmt.Errorf("initialize %s backend: %w", kind, err)
	}
	return b, nil
}

// Start launches the capture goroutine. It is a no-op when already running.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return nil
	}
	set := m.buffers.Load()
	if m.backend == nil || set == nil {
		return ErrNotInitialized
	}

	m.running.Store(true)
	m.done = make(chan struct{})
	go m.loop(m.backend, set, m.win, m.done)
	m.state.Store(int32(StateRunning))

	logger.WithComponent("capture-manager").Info().
		Str("backend", m.kind.String()).
		Msg("Capture started")
	return nil
}

// Stop signals the capture goroutine and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.running.Load() {
		return
	}
	m.running.Store(false)
	<-m.done
	m.done = nil
	m.state.Store(int32(StateStopped))

	logger.WithComponent("capture-manager").Info().
		Uint64("frames", m.frames.Load()).
		Msg("Capture stopped")
}

// SetBackend changes the backend selection. The current backend and buffers
// are discarded and Init must be called again.
func (m *Manager) SetBackend(kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return ErrRunning
	}
	m.opts.Backend = kind
	return m.resetLocked()
}

func (m *Manager) resetLocked() error {
	var err error
	if m.backend != nil {
		err = m.backend.Close()
	}
	m.backend = nil
	m.kind = KindAuto
	m.buffers.Store(nil)
	m.state.Store(int32(StateCreated))
	return err
}

// Close stops capture and releases the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	return m.resetLocked()
}

// Backend returns the resolved backend kind, KindAuto before Init.
func (m *Manager) Backend() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kind
}

// BackendName returns a human-readable name of the resolved backend.
func (m *Manager) BackendName() string {
	return m.Backend().String()
}

// Window returns the window found by Init, or the zero value when the
// last Init failed.
func (m *Manager) Window() window.WindowInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.win
}

// FrameCount returns the number of frames published since Init.
func (m *Manager) FrameCount() uint64 {
	return m.frames.Load()
}

// ConsecutiveFailures returns the current run of failed captures.
func (m *Manager) ConsecutiveFailures() uint64 {
	return m.failures.Load()
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// ActiveBuffer returns the most recently published frame, or nil before
// Init. The writer gets this slot back at the next publish and starts
// overwriting it right away, so a running manager's buffer is only stable
// until then. Use Snapshot to copy a frame out safely.
func (m *Manager) ActiveBuffer() *frame.Buffer {
	set := m.buffers.Load()
	if set == nil {
		return nil
	}
	return set[m.latest.Load()]
}

// Snapshot copies the most recently published frame into dst, resizing it
// when needed, and returns that frame's number. It reports false when
// nothing has been published. A copy that overlapped a publish is retried.
func (m *Manager) Snapshot(dst *frame.Buffer) (uint64, bool) {
	for {
		set := m.buffers.Load()
		before := m.frames.Load()
		if set == nil || before == 0 {
			return 0, false
		}
		m.copyFrame(set[m.latest.Load()], dst)
		if m.frames.Load() == before && m.buffers.Load() == set {
			return before, true
		}
	}
}

// Order returns the channel order of published frames. Backends that
// negotiate a pixel format report it; otherwise the kind's default applies.
func (m *Manager) Order() frame.ChannelOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.backend.(OrderReporter); ok {
		return r.Order()
	}
	return m.kind.NativeOrder()
}

func (m *Manager) loop(b Backend, set *bufferSet, win window.WindowInfo, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	log := logger.WithComponent("capture-loop")
	every := uint64(max(m.opts.FailureLogInterval, 0))
	threshold := uint64(max(m.opts.BackoffThreshold, 0))

	writeIdx := (m.latest.Load() + 1) % bufferCount
	var (
		failures  uint64
		reconnect bool
	)

	for m.running.Load() {
		var err error
		if reconnect {
			err = m.reopen(b, win)
			reconnect = err != nil
		}
		if err == nil {
			err = b.Capture(set[writeIdx])
		}
		if err != nil {
			failures++
			m.failures.Store(failures)
			if errors.Is(err, ErrBackendBroken) {
				reconnect = true
			}
			if failures == 1 || (every > 0 && (failures-1)%every == 0) {
				log.Warn().Err(err).
					Str("backend", b.Kind().String()).
					Uint64("consecutive_failures", failures).
					Bool("reconnecting", reconnect).
					Msg("Capture failed")
			}
			if failures > threshold && m.opts.BackoffDelay > 0 {
				time.Sleep(m.opts.BackoffDelay)
			}
		} else {
			if failures > 0 {
				log.Debug().Uint64("after_failures", failures).Msg("Capture recovered")
				failures = 0
				m.failures.Store(0)
			}
			writeIdx = m.latest.Swap(writeIdx)
			m.frames.Add(1)
		}
		runtime.Gosched()
	}
}

// reopen closes a backend whose connection is gone and initializes it
// again for the same window.
func (m *Manager) reopen(b Backend, win window.WindowInfo) error {
	if err := b.Close(); err != nil {
		logger.WithComponent("capture-loop").Debug().Err(err).Msg("Close broken backend")
	}
	if err := b.Initialize(win.ID, win.Geometry.Width, win.Geometry.Height); err != nil {
		return fmt.Errorf("reinitialize %s backend: %w", b.Kind(), err)
	}
	logger.WithComponent("capture-loop").Info().
		Str("backend", b.Kind().String()).
		Msg("Backend reconnected")
	return nil
}
