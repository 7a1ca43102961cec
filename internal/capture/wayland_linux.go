//go:build linux

package capture

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/logger"
	"github.com/bryanchriswhite/tilecap/internal/wayland/screencopy"
)

const (
	shmInterfaceName    = "wl_shm"
	outputInterfaceName = "wl_output"

	shmFormatARGB8888 uint32 = 0
	shmFormatXRGB8888 uint32 = 1
)

// WaylandOptions configures a WaylandBackend.
type WaylandOptions struct {
	// Origin is the window position in compositor layout coordinates.
	Origin image.Point
	// Region restricts each frame to the window rectangle instead of the
	// whole output.
	Region bool
	// Timeout bounds every wait on the compositor. Zero waits forever.
	Timeout time.Duration
}

type waylandOutput struct {
	proxy  *client.Output
	global uint32
	x, y   int32
	width  int32
	height int32
	scale  int32
}

// contains reports whether p, in layout coordinates, lies on the output.
func (o *waylandOutput) contains(p image.Point) bool {
	scale := max(o.scale, 1)
	r := image.Rect(int(o.x), int(o.y), int(o.x+o.width/scale), int(o.y+o.height/scale))
	return p.In(r)
}

// shmTarget is the wl_buffer the compositor copies into.
type shmTarget struct {
	region memfdRegion
	pool   *client.ShmPool
	buffer *client.Buffer
	format uint32
	width  int
	height int
	stride int
}

func (t *shmTarget) matches(format uint32, width, height, stride int) bool {
	return t != nil && t.format == format && t.width == width && t.height == height && t.stride == stride
}

// WaylandBackend copies the window's region of an output using the
// wlr-screencopy protocol into a memfd-backed wl_shm buffer.
type WaylandBackend struct {
	opts WaylandOptions

	mu       sync.Mutex
	display  *client.Display
	ctx      *client.Context
	registry *client.Registry
	shm      *client.Shm
	manager  *screencopy.Manager
	version  uint32
	outputs  []*waylandOutput
	output   *waylandOutput
	width    int
	height   int
	target   *shmTarget
	resource releaser

	broken atomic.Bool
	// format is the wl_shm format of the last completed copy.
	format atomic.Uint32
}

// NewWaylandBackend returns an unconnected screencopy backend.
func NewWaylandBackend(opts WaylandOptions) *WaylandBackend {
	return &WaylandBackend{opts: opts}
}

// Kind implements Backend.
func (b *WaylandBackend) Kind() Kind { return KindWaylandScreencopy }

// DiscoverWindow implements Backend.
func (b *WaylandBackend) DiscoverWindow(string) uint64 { return 0 }

// Initialize implements Backend. windowID is ignored; the window is located
// by its geometry.
func (b *WaylandBackend) Initialize(_ uint64, width, height int) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return fmt.Errorf("wayland backend already initialized")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", width, height)
	}
	b.width, b.height = width, height

	log := logger.WithComponent("wayland")
	defer func() {
		if err != nil {
			if rerr := b.resource.release(); rerr != nil {
				log.Debug().Err(rerr).Msg("Cleanup after failed initialization")
			}
		}
	}()

	display, err := client.Connect("")
	if err != nil {
		return fmt.Errorf("%w: connect to compositor: %v", ErrBackendUnavailable, err)
	}
	b.display = display
	b.ctx = display.Context()
	b.broken.Store(false)
	b.format.Store(shmFormatARGB8888)
	b.resource.push("wayland connection", b.closeConnection)

	registry, err := display.GetRegistry()
	if err != nil {
		return fmt.Errorf("get registry: %w", err)
	}
	b.registry = registry
	registry.SetGlobalHandler(b.handleGlobal)

	// First roundtrip delivers the globals, the second the wl_output state
	// sent in response to our binds.
	if err := b.roundtrip(); err != nil {
		return err
	}
	if b.manager != nil {
		b.resource.push("screencopy manager", b.protocol(b.manager.Destroy))
	}

	switch {
	case b.shm == nil:
		return fmt.Errorf("%w: compositor has no %s", ErrExtensionUnavailable, shmInterfaceName)
	case len(b.outputs) == 0:
		return fmt.Errorf("%w: compositor has no %s", ErrExtensionUnavailable, outputInterfaceName)
	case b.manager == nil:
		return fmt.Errorf("%w: compositor has no %s", ErrExtensionUnavailable, screencopy.ManagerInterfaceName)
	}

	if err := b.roundtrip(); err != nil {
		return err
	}
	b.output = b.pickOutput()

	if err := b.ensureTarget(shmFormatARGB8888, width, height, width*frame.BytesPerPixel); err != nil {
		return err
	}
	b.resource.push("shm buffer", b.releaseTarget)

	log.Info().
		Uint32("screencopy_version", b.version).
		Int32("output_x", b.output.x).
		Int32("output_y", b.output.y).
		Int32("output_width", b.output.width).
		Int32("output_height", b.output.height).
		Int("width", width).
		Int("height", height).
		Bool("region", b.opts.Region).
		Msg("Screencopy capture ready")
	return nil
}

func (b *WaylandBackend) handleGlobal(e client.RegistryGlobalEvent) {
	switch e.Interface {
	case shmInterfaceName:
		shm := client.NewShm(b.ctx)
		if err := b.registry.Bind(e.Name, e.Interface, 1, shm); err == nil {
			b.shm = shm
		}

	case outputInterfaceName:
		output := client.NewOutput(b.ctx)
		version := min(e.Version, 2)
		if err := b.registry.Bind(e.Name, e.Interface, version, output); err != nil {
			return
		}
		o := &waylandOutput{proxy: output, global: e.Name, scale: 1}
		output.SetGeometryHandler(func(ev client.OutputGeometryEvent) {
			o.x, o.y = ev.X, ev.Y
		})
		output.SetModeHandler(func(ev client.OutputModeEvent) {
			if ev.Flags&uint32(client.OutputModeCurrent) == 0 {
				return
			}
			o.width, o.height = ev.Width, ev.Height
		})
		output.SetScaleHandler(func(ev client.OutputScaleEvent) {
			o.scale = ev.Factor
		})
		b.outputs = append(b.outputs, o)

	case screencopy.ManagerInterfaceName:
		m := screencopy.NewManager(b.ctx)
		version := min(e.Version, screencopy.ManagerMaxVersion)
		if err := b.registry.Bind(e.Name, e.Interface, version, m); err == nil {
			b.manager = m
			b.version = version
		}
	}
}

// pickOutput returns the output containing the window origin, else the
// first one.
func (b *WaylandBackend) pickOutput() *waylandOutput {
	for _, o := range b.outputs {
		if o.contains(b.opts.Origin) {
			return o
		}
	}
	return b.outputs[0]
}

func (b *WaylandBackend) roundtrip() error {
	cb, err := b.display.Sync()
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	defer cb.Destroy()

	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	return b.dispatchUntil(func() bool { return done })
}

// dispatchUntil dispatches events until done reports true. A watchdog
// closes the connection when the compositor does not answer in time; the
// backend then fails with ErrBackendBroken until it is closed and
// initialized again.
func (b *WaylandBackend) dispatchUntil(done func() bool) error {
	var fired atomic.Bool
	if b.opts.Timeout > 0 {
		ctx := b.ctx
		timer := time.AfterFunc(b.opts.Timeout, func() {
			fired.Store(true)
			b.broken.Store(true)
			ctx.Close()
		})
		defer timer.Stop()
	}

	for !done() {
		if err := b.ctx.Dispatch(); err != nil {
			b.broken.Store(true)
			if fired.Load() {
				return fmt.Errorf("%w after %s: %w", ErrCaptureTimeout, b.opts.Timeout, ErrBackendBroken)
			}
			return fmt.Errorf("%w: dispatch: %v", ErrBackendBroken, err)
		}
	}
	return nil
}

// protocol wraps a destructor request so it is skipped once the
// connection is gone.
func (b *WaylandBackend) protocol(destroy func() error) func() error {
	return func() error {
		if b.broken.Load() {
			return nil
		}
		return destroy()
	}
}

func (b *WaylandBackend) closeConnection() error {
	ctx := b.ctx
	b.ctx, b.display, b.registry = nil, nil, nil
	b.shm, b.manager, b.outputs, b.output = nil, nil, nil, nil
	if ctx == nil {
		return nil
	}
	err := ctx.Close()
	if b.broken.Load() {
		// The watchdog already closed it.
		return nil
	}
	return err
}

// ensureTarget makes the wl_buffer match the layout the compositor asked
// for, reallocating it when any parameter changed.
func (b *WaylandBackend) ensureTarget(format uint32, width, height, stride int) error {
	if b.target.matches(format, width, height, stride) {
		return nil
	}
	if err := b.releaseTarget(); err != nil {
		logger.WithComponent("wayland").Debug().Err(err).Msg("Release previous shm buffer")
	}

	size := stride * height
	fd, err := createMemfd("tilecap-screencopy", size)
	if err != nil {
		return err
	}
	t := &shmTarget{region: memfdRegion{fd: fd}, format: format, width: width, height: height, stride: stride}

	var rel releaser
	rel.push("memfd", t.region.close)
	if err := t.region.mmap(size); err != nil {
		rel.release()
		return err
	}
	rel.push("memfd mapping", t.region.unmap)

	pool, err := b.shm.CreatePool(fd, int32(size))
	if err != nil {
		rel.release()
		return fmt.Errorf("create shm pool: %w", err)
	}
	t.pool = pool

	buffer, err := pool.CreateBuffer(0, int32(width), int32(height), int32(stride), format)
	if err != nil {
		pool.Destroy()
		rel.release()
		return fmt.Errorf("create wl_buffer: %w", err)
	}
	t.buffer = buffer
	b.target = t
	return nil
}

func (b *WaylandBackend) releaseTarget() error {
	t := b.target
	if t == nil {
		return nil
	}
	b.target = nil

	var rel releaser
	rel.push("memfd", t.region.close)
	rel.push("memfd mapping", t.region.unmap)
	if t.pool != nil {
		rel.push("shm pool", b.protocol(t.pool.Destroy))
	}
	if t.buffer != nil {
		rel.push("wl_buffer", b.protocol(t.buffer.Destroy))
	}
	return rel.release()
}

func (b *WaylandBackend) requestFrame() (*screencopy.Frame, error) {
	if !b.opts.Region {
		return b.manager.CaptureOutput(0, b.output.proxy)
	}
	x := int32(b.opts.Origin.X) - b.output.x
	y := int32(b.opts.Origin.Y) - b.output.y
	return b.manager.CaptureOutputRegion(0, b.output.proxy, x, y, int32(b.width), int32(b.height))
}

// Capture implements Backend.
func (b *WaylandBackend) Capture(out *frame.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken.Load() {
		return ErrBackendBroken
	}
	if b.ctx == nil || b.manager == nil {
		return ErrNotInitialized
	}

	sc, err := b.requestFrame()
	if err != nil {
		b.broken.Store(true)
		return fmt.Errorf("%w: request frame: %v", ErrBackendBroken, err)
	}

	req := newFrameRequest(b.version, func(e screencopy.FrameBufferEvent) error {
		if err := b.ensureTarget(e.Format, int(e.Width), int(e.Height), int(e.Stride)); err != nil {
			return err
		}
		if err := sc.Copy(b.target.buffer); err != nil {
			return fmt.Errorf("frame copy: %w", err)
		}
		return nil
	})
	req.attach(sc)

	if err := b.dispatchUntil(req.done); err != nil {
		return err
	}
	if err := sc.Destroy(); err != nil {
		return fmt.Errorf("destroy frame: %w", err)
	}
	if err := req.result(); err != nil {
		return err
	}

	t := b.target
	b.format.Store(t.format)
	if req.inverted {
		copyPixelsInverted(out, t.region.data, t.stride, t.height)
	} else {
		copyPixels(out, t.region.data, t.stride, t.height)
	}
	return nil
}

// Order implements OrderReporter from the format of the last copy.
func (b *WaylandBackend) Order() frame.ChannelOrder {
	return shmFormatOrder(b.format.Load())
}

// Close implements Backend. The backend may be initialized again afterwards.
func (b *WaylandBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.resource.release()
	b.broken.Store(false)
	return err
}
