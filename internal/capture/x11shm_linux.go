//go:build linux

package capture

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/shm"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/logger"
)

// shmImage describes the ZPixmap layout the server writes into the segment.
type shmImage struct {
	seg          shm.Seg
	depth        byte
	bitsPerPixel byte
	bytesPerLine int
	width        int
	height       int
}

func (img *shmImage) size() int {
	return img.bytesPerLine * img.height
}

// X11ShmBackend captures an X11 or XWayland window through the MIT-SHM
// extension: the server copies pixels into a SysV segment we share with it.
type X11ShmBackend struct {
	display string

	mu       sync.Mutex
	conn     *xgb.Conn
	win      xproto.Window
	img      *shmImage
	segment  sysvSegment
	resource releaser
}

// NewX11ShmBackend returns a backend for the given X display ("" uses
// $DISPLAY). Nothing is opened until Initialize.
func NewX11ShmBackend(display string) *X11ShmBackend {
	return &X11ShmBackend{display: display, segment: sysvSegment{id: -1}}
}

// Kind implements Backend.
func (b *X11ShmBackend) Kind() Kind { return KindX11Shm }

// DiscoverWindow implements Backend.
func (b *X11ShmBackend) DiscoverWindow(string) uint64 { return 0 }

// Initialize implements Backend.
func (b *X11ShmBackend) Initialize(windowID uint64, width, height int) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return fmt.Errorf("x11 backend already initialized")
	}
	if windowID == 0 || windowID > 0xffffffff {
		return fmt.Errorf("invalid X11 window id %#x", windowID)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", width, height)
	}

	log := logger.WithComponent("x11-shm")
	defer func() {
		if err != nil {
			if rerr := b.resource.release(); rerr != nil {
				log.Warn().Err(rerr).Msg("Cleanup after failed initialization")
			}
			b.conn, b.img = nil, nil
		}
	}()

	conn, err := xgb.NewConnDisplay(b.display)
	if err != nil {
		return fmt.Errorf("%w: connect to X server %q: %v", ErrBackendUnavailable, b.display, err)
	}
	b.conn = conn
	b.resource.push("x connection", func() error {
		conn.Close()
		b.conn = nil
		return nil
	})

	if err := shm.Init(conn); err != nil {
		return fmt.Errorf("%w: MIT-SHM: %v", ErrExtensionUnavailable, err)
	}

	b.win = xproto.Window(windowID)
	b.redirect(conn)

	img, err := b.describeImage(width, height)
	if err != nil {
		return err
	}
	b.img = img
	b.resource.push("image descriptor", func() error {
		b.img = nil
		return nil
	})

	id, err := createSysvSegment(img.size())
	if err != nil {
		return err
	}
	b.segment = sysvSegment{id: id}
	b.resource.push("shm segment", b.segment.remove)

	if err := b.segment.attach(); err != nil {
		return err
	}
	b.resource.push("shm mapping", b.segment.detach)

	if err := shm.AttachChecked(conn, img.seg, uint32(id), false).Check(); err != nil {
		return fmt.Errorf("%w: attach shm segment: %v", ErrExtensionUnavailable, err)
	}
	b.resource.push("x shm attachment", func() error {
		return shm.DetachChecked(conn, img.seg).Check()
	})

	log.Info().
		Uint64("xid", windowID).
		Int("width", img.width).
		Int("height", img.height).
		Uint8("depth", img.depth).
		Int("bytes_per_line", img.bytesPerLine).
		Msg("MIT-SHM capture ready")
	return nil
}

// redirect asks the server to keep the window contents in an off-screen
// pixmap so obscured parts still read back. Capture works without it.
func (b *X11ShmBackend) redirect(conn *xgb.Conn) {
	log := logger.WithComponent("x11-shm")
	if err := composite.Init(conn); err != nil {
		log.Warn().Err(err).Msg("Composite extension not available - obscured window regions may read back empty")
		return
	}
	win := b.win
	if err := composite.RedirectWindowChecked(conn, win, composite.RedirectAutomatic).Check(); err != nil {
		log.Warn().Err(err).Uint32("xid", uint32(win)).Msg("Failed to redirect window via Composite")
		return
	}
	b.resource.push("composite redirect", func() error {
		return composite.UnredirectWindowChecked(conn, win, composite.RedirectAutomatic).Check()
	})
}

// describeImage sizes the shared image from the window and the server's
// pixmap formats. The capture area is clipped to the X window so GetImage
// never reads outside it.
func (b *X11ShmBackend) describeImage(width, height int) (*shmImage, error) {
	setup := xproto.Setup(b.conn)
	depth := setup.DefaultScreen(b.conn).RootDepth

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(b.win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("get geometry of window %#x: %w", uint32(b.win), err)
	}
	if geom.Depth != 0 {
		depth = geom.Depth
	}
	width = min(width, int(geom.Width))
	height = min(height, int(geom.Height))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("window %#x is not mapped", uint32(b.win))
	}

	var format *xproto.Format
	for i := range setup.PixmapFormats {
		if setup.PixmapFormats[i].Depth == depth {
			format = &setup.PixmapFormats[i]
			break
		}
	}
	if format == nil {
		return nil, fmt.Errorf("no pixmap format for depth %d", depth)
	}
	if format.BitsPerPixel != 32 {
		return nil, fmt.Errorf("unsupported pixel size %d bpp at depth %d", format.BitsPerPixel, depth)
	}

	seg, err := shm.NewSegId(b.conn)
	if err != nil {
		return nil, fmt.Errorf("allocate shm segment id: %w", err)
	}

	pad := int(format.ScanlinePad)
	bitsPerLine := width * int(format.BitsPerPixel)
	bitsPerLine = (bitsPerLine + pad - 1) / pad * pad

	return &shmImage{
		seg:          seg,
		depth:        depth,
		bitsPerPixel: format.BitsPerPixel,
		bytesPerLine: bitsPerLine / 8,
		width:        width,
		height:       height,
	}, nil
}

// Capture implements Backend.
func (b *X11ShmBackend) Capture(out *frame.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.img == nil || b.segment.data == nil {
		return ErrNotInitialized
	}

	_, err := shm.GetImage(b.conn, xproto.Drawable(b.win),
		0, 0, uint16(b.img.width), uint16(b.img.height),
		0xffffffff, xproto.ImageFormatZPixmap,
		b.img.seg, 0).Reply()
	if err != nil {
		return fmt.Errorf("shm get image: %w", err)
	}

	copyPixels(out, b.segment.data[:b.img.size()], b.img.bytesPerLine, b.img.height)
	return nil
}

// Close implements Backend.
func (b *X11ShmBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resource.release()
}
