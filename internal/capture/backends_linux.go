//go:build linux

package capture

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/tilecap/internal/window"
)

// nativeFactory builds the backends compiled into this binary.
type nativeFactory struct{}

func (nativeFactory) Kinds() []Kind {
	return []Kind{KindX11Shm, KindWaylandScreencopy}
}

func (nativeFactory) New(kind Kind, win window.WindowInfo, opts Options) (Backend, error) {
	switch kind {
	case KindX11Shm:
		return NewX11ShmBackend(opts.X11Display), nil
	case KindWaylandScreencopy:
		return NewWaylandBackend(WaylandOptions{
			Origin:  image.Pt(win.Geometry.X, win.Geometry.Y),
			Region:  true,
			Timeout: opts.WaylandTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, kind)
	}
}
