// Package frame holds the fixed-format pixel container shared between the
// capture backends and their readers.
package frame

// BytesPerPixel is fixed for every buffer: four 8-bit channels.
const BytesPerPixel = 4

// ChannelOrder describes how the four bytes of a pixel are laid out in
// memory. Buffers never convert between orders; it is up to the reader to
// interpret the bytes.
type ChannelOrder int

const (
	OrderRGBA ChannelOrder = iota
	OrderBGRA
	// OrderBGRX is BGRA with an undefined fourth byte (X11 depth 24).
	OrderBGRX
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderRGBA:
		return "rgba"
	case OrderBGRA:
		return "bgra"
	case OrderBGRX:
		return "bgrx"
	default:
		return "unknown"
	}
}

// ParseChannelOrder maps "rgba", "bgra" or "bgrx" to a ChannelOrder.
func ParseChannelOrder(s string) (ChannelOrder, bool) {
	switch s {
	case "rgba":
		return OrderRGBA, true
	case "bgra":
		return OrderBGRA, true
	case "bgrx":
		return OrderBGRX, true
	}
	return OrderRGBA, false
}

// Buffer is a resizable block of width*height 32-bit pixels with a row
// stride of exactly width*4 bytes.
type Buffer struct {
	width  int
	height int
	stride int
	pix    []byte
}

// New allocates a zeroed buffer of the given size.
func New(width, height int) *Buffer {
	b := &Buffer{}
	b.Resize(width, height)
	return b
}

// Resize reallocates the backing store. Previous contents are discarded even
// when the size does not change.
func (b *Buffer) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	b.width = width
	b.height = height
	b.stride = width * BytesPerPixel
	b.pix = make([]byte, b.stride*b.height)
}

func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }
func (b *Buffer) Stride() int { return b.stride }

// Len is the size of the backing store in bytes (Stride()*Height()).
func (b *Buffer) Len() int { return len(b.pix) }

// Pix exposes the raw backing store. Writes through the returned slice are
// writes to the buffer.
func (b *Buffer) Pix() []byte { return b.pix }

// Row returns row y, or nil when y is out of range.
func (b *Buffer) Row(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	off := y * b.stride
	return b.pix[off : off+b.stride]
}

// CopyTo copies the pixels into dst, resizing dst first when its geometry
// differs.
func (b *Buffer) CopyTo(dst *Buffer) {
	if dst.width != b.width || dst.height != b.height {
		dst.Resize(b.width, b.height)
	}
	copy(dst.pix, b.pix)
}

// Clone returns an independent copy.
func (b *Buffer) Clone() *Buffer {
	dst := New(b.width, b.height)
	copy(dst.pix, b.pix)
	return dst
}
