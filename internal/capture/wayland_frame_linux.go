//go:build linux

package capture

import (
	"fmt"

	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/wayland/screencopy"
)

// shmFormatOrder maps a wl_shm format to the byte order it leaves in memory.
// Both formats are little-endian words, so blue comes first.
func shmFormatOrder(format uint32) frame.ChannelOrder {
	if format == shmFormatXRGB8888 {
		return frame.OrderBGRX
	}
	return frame.OrderBGRA
}

// frameRequest follows the events of one screencopy frame. The first
// ARGB8888 or XRGB8888 layout the compositor offers is handed to copyInto
// once: right away on version 1 and 2, at buffer_done from version 3.
type frameRequest struct {
	version  uint32
	copyInto func(layout screencopy.FrameBufferEvent) error

	announced *screencopy.FrameBufferEvent
	requested bool
	inverted  bool
	ready     bool
	failed    bool
	err       error
}

func newFrameRequest(version uint32, copyInto func(screencopy.FrameBufferEvent) error) *frameRequest {
	return &frameRequest{version: version, copyInto: copyInto}
}

func (r *frameRequest) attach(sc *screencopy.Frame) {
	sc.SetBufferHandler(r.onBuffer)
	sc.SetBufferDoneHandler(r.onBufferDone)
	sc.SetFlagsHandler(r.onFlags)
	sc.SetReadyHandler(func(screencopy.FrameReadyEvent) { r.ready = true })
	sc.SetFailedHandler(func(screencopy.FrameFailedEvent) { r.failed = true })
}

func (r *frameRequest) onBuffer(e screencopy.FrameBufferEvent) {
	if r.announced != nil || (e.Format != shmFormatARGB8888 && e.Format != shmFormatXRGB8888) {
		return
	}
	r.announced = &e
	if r.version < 3 {
		r.start()
	}
}

func (r *frameRequest) onBufferDone(screencopy.FrameBufferDoneEvent) {
	r.start()
}

func (r *frameRequest) onFlags(e screencopy.FrameFlagsEvent) {
	r.inverted = e.Flags&screencopy.FrameFlagsYInvert != 0
}

func (r *frameRequest) start() {
	if r.requested {
		return
	}
	r.requested = true
	if r.announced == nil {
		r.err = fmt.Errorf("compositor offered no shm buffer format")
		r.failed = true
		return
	}
	if err := r.copyInto(*r.announced); err != nil {
		r.err = err
		r.failed = true
	}
}

func (r *frameRequest) done() bool {
	return r.ready || r.failed
}

// result is nil once the compositor reported the copy ready.
func (r *frameRequest) result() error {
	switch {
	case r.err != nil:
		return r.err
	case r.failed:
		return fmt.Errorf("compositor rejected frame")
	case !r.ready:
		return fmt.Errorf("frame not ready")
	}
	return nil
}
