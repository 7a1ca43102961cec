// Package screencopy is a client binding for the wlr-screencopy-unstable-v1
// protocol on top of go-wayland, in the shape of go-wayland's generated code.
//
// The protocol lets a client ask the compositor to copy an output, or a
// region of it, into a client-provided wl_buffer.
package screencopy

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// ManagerInterfaceName is the global name advertised by the compositor.
const ManagerInterfaceName = "zwlr_screencopy_manager_v1"

// ManagerMaxVersion is the newest protocol version this binding speaks.
const ManagerMaxVersion = 3

// Manager is the zwlr_screencopy_manager_v1 global.
type Manager struct {
	client.BaseProxy
}

// NewManager creates a manager proxy; bind it through wl_registry.
func NewManager(ctx *client.Context) *Manager {
	m := &Manager{}
	ctx.Register(m)
	return m
}

// CaptureOutput requests a frame of the whole output.
func (i *Manager) CaptureOutput(overlayCursor int32, output *client.Output) (*Frame, error) {
	frame := NewFrame(i.Context())
	const opcode = 0
	const reqBufLen = 8 + 4 + 4 + 4
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	l += 4
	client.PutUint32(reqBuf[l:l+4], frame.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(overlayCursor))
	l += 4
	client.PutUint32(reqBuf[l:l+4], output.ID())
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return frame, err
}

// CaptureOutputRegion requests a frame of a region in output-local logical
// coordinates. The region is clipped to the output by the compositor.
func (i *Manager) CaptureOutputRegion(overlayCursor int32, output *client.Output, x, y, width, height int32) (*Frame, error) {
	frame := NewFrame(i.Context())
	const opcode = 1
	const reqBufLen = 8 + 4 + 4 + 4 + 4 + 4 + 4 + 4
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	l += 4
	client.PutUint32(reqBuf[l:l+4], frame.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(overlayCursor))
	l += 4
	client.PutUint32(reqBuf[l:l+4], output.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(x))
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(y))
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(width))
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(height))
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return frame, err
}

// Destroy releases the manager. Frames already requested stay valid.
func (i *Manager) Destroy() error {
	defer i.Context().Unregister(i)
	const opcode = 2
	const reqBufLen = 8
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return err
}

// FrameFlags is the bitfield carried by the flags event.
type FrameFlags uint32

// FrameFlagsYInvert means the contents are stored bottom-up.
const FrameFlagsYInvert FrameFlags = 1

// Frame is a zwlr_screencopy_frame_v1: one pending copy of an output.
type Frame struct {
	client.BaseProxy
	bufferHandler      FrameBufferHandlerFunc
	flagsHandler       FrameFlagsHandlerFunc
	readyHandler       FrameReadyHandlerFunc
	failedHandler      FrameFailedHandlerFunc
	damageHandler      FrameDamageHandlerFunc
	linuxDmabufHandler FrameLinuxDmabufHandlerFunc
	bufferDoneHandler  FrameBufferDoneHandlerFunc
}

// NewFrame creates a frame proxy. Managers do this for each capture request.
func NewFrame(ctx *client.Context) *Frame {
	f := &Frame{}
	if ctx != nil {
		ctx.Register(f)
	}
	return f
}

// Copy asks the compositor to copy the frame into buffer. The buffer must
// match the format, size and stride announced by the buffer event.
func (i *Frame) Copy(buffer *client.Buffer) error {
	const opcode = 0
	const reqBufLen = 8 + 4
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	l += 4
	client.PutUint32(reqBuf[l:l+4], buffer.ID())
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return err
}

// Destroy discards the frame. It may be sent at any time.
func (i *Frame) Destroy() error {
	defer i.Context().Unregister(i)
	const opcode = 1
	const reqBufLen = 8
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return err
}

// CopyWithDamage is Copy, but the compositor waits for the output to be
// damaged before copying (version 2).
func (i *Frame) CopyWithDamage(buffer *client.Buffer) error {
	const opcode = 2
	const reqBufLen = 8 + 4
	var reqBuf [reqBufLen]byte
	l := 0
	client.PutUint32(reqBuf[l:4], i.ID())
	l += 4
	client.PutUint32(reqBuf[l:l+4], uint32(reqBufLen<<16|opcode&0x0000ffff))
	l += 4
	client.PutUint32(reqBuf[l:l+4], buffer.ID())
	err := i.Context().WriteMsg(reqBuf[:], nil)
	return err
}

// FrameBufferEvent announces a wl_shm buffer layout the compositor can
// copy into.
type FrameBufferEvent struct {
	Format uint32
	Width  uint32
	Height uint32
	Stride uint32
}
type FrameBufferHandlerFunc func(FrameBufferEvent)

// SetBufferHandler sets the handler for the buffer event.
func (i *Frame) SetBufferHandler(f FrameBufferHandlerFunc) {
	i.bufferHandler = f
}

type FrameFlagsEvent struct {
	Flags FrameFlags
}
type FrameFlagsHandlerFunc func(FrameFlagsEvent)

// SetFlagsHandler sets the handler for the flags event.
func (i *Frame) SetFlagsHandler(f FrameFlagsHandlerFunc) {
	i.flagsHandler = f
}

// FrameReadyEvent is sent once the copy has completed. The timestamp is
// the presentation time of the copied content.
type FrameReadyEvent struct {
	TvSecHi uint32
	TvSecLo uint32
	TvNsec  uint32
}
type FrameReadyHandlerFunc func(FrameReadyEvent)

// SetReadyHandler sets the handler for the ready event.
func (i *Frame) SetReadyHandler(f FrameReadyHandlerFunc) {
	i.readyHandler = f
}

type FrameFailedEvent struct{}
type FrameFailedHandlerFunc func(FrameFailedEvent)

// SetFailedHandler sets the handler for the failed event.
func (i *Frame) SetFailedHandler(f FrameFailedHandlerFunc) {
	i.failedHandler = f
}

type FrameDamageEvent struct {
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}
type FrameDamageHandlerFunc func(FrameDamageEvent)

// SetDamageHandler sets the handler for the damage event.
func (i *Frame) SetDamageHandler(f FrameDamageHandlerFunc) {
	i.damageHandler = f
}

// FrameLinuxDmabufEvent announces a dmabuf layout (version 3).
type FrameLinuxDmabufEvent struct {
	Format uint32
	Width  uint32
	Height uint32
}
type FrameLinuxDmabufHandlerFunc func(FrameLinuxDmabufEvent)

// SetLinuxDmabufHandler sets the handler for the linux_dmabuf event.
func (i *Frame) SetLinuxDmabufHandler(f FrameLinuxDmabufHandlerFunc) {
	i.linuxDmabufHandler = f
}

// FrameBufferDoneEvent ends the list of buffer types (version 3).
type FrameBufferDoneEvent struct{}
type FrameBufferDoneHandlerFunc func(FrameBufferDoneEvent)

// SetBufferDoneHandler sets the handler for the buffer_done event.
func (i *Frame) SetBufferDoneHandler(f FrameBufferDoneHandlerFunc) {
	i.bufferDoneHandler = f
}

// Dispatch decodes one event addressed to this frame.
func (i *Frame) Dispatch(opcode uint16, fd int, data []byte) {
	switch opcode {
	case 0:
		if i.bufferHandler == nil {
			return
		}
		var e FrameBufferEvent
		l := 0
		e.Format = client.Uint32(data[l : l+4])
		l += 4
		e.Width = client.Uint32(data[l : l+4])
		l += 4
		e.Height = client.Uint32(data[l : l+4])
		l += 4
		e.Stride = client.Uint32(data[l : l+4])
		i.bufferHandler(e)
	case 1:
		if i.flagsHandler == nil {
			return
		}
		var e FrameFlagsEvent
		e.Flags = FrameFlags(client.Uint32(data[0:4]))
		i.flagsHandler(e)
	case 2:
		if i.readyHandler == nil {
			return
		}
		var e FrameReadyEvent
		l := 0
		e.TvSecHi = client.Uint32(data[l : l+4])
		l += 4
		e.TvSecLo = client.Uint32(data[l : l+4])
		l += 4
		e.TvNsec = client.Uint32(data[l : l+4])
		i.readyHandler(e)
	case 3:
		if i.failedHandler == nil {
			return
		}
		i.failedHandler(FrameFailedEvent{})
	case 4:
		if i.damageHandler == nil {
			return
		}
		var e FrameDamageEvent
		l := 0
		e.X = client.Uint32(data[l : l+4])
		l += 4
		e.Y = client.Uint32(data[l : l+4])
		l += 4
		e.Width = client.Uint32(data[l : l+4])
		l += 4
		e.Height = client.Uint32(data[l : l+4])
		i.damageHandler(e)
	case 5:
		if i.linuxDmabufHandler == nil {
			return
		}
		var e FrameLinuxDmabufEvent
		l := 0
		e.Format = client.Uint32(data[l : l+4])
		l += 4
		e.Width = client.Uint32(data[l : l+4])
		l += 4
		e.Height = client.Uint32(data[l : l+4])
		i.linuxDmabufHandler(e)
	case 6:
		if i.bufferDoneHandler == nil {
			return
		}
		i.bufferDoneHandler(FrameBufferDoneEvent{})
	}
}
