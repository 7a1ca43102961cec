package output

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/tilecap/internal/frame"
)

// ToRGBA copies a frame into a new image.RGBA, reordering channels. BGRX
// frames get an opaque alpha channel.
func ToRGBA(buf *frame.Buffer, order frame.ChannelOrder) *image.RGBA {
	w, h := buf.Width(), buf.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		src := buf.Row(y)
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		switch order {
		case frame.OrderRGBA:
			copy(dst, src)
		case frame.OrderBGRA:
			for i := 0; i < len(src); i += 4 {
				dst[i+0] = src[i+2]
				dst[i+1] = src[i+1]
				dst[i+2] = src[i+0]
				dst[i+3] = src[i+3]
			}
		default:
			for i := 0; i < len(src); i += 4 {
				dst[i+0] = src[i+2]
				dst[i+1] = src[i+1]
				dst[i+2] = src[i+0]
				dst[i+3] = 0xff
			}
		}
	}
	return img
}

// Scale downsizes img to at most maxWidth pixels wide. Narrower images and
// maxWidth <= 0 return img unchanged.
func Scale(img *image.RGBA, maxWidth int) *image.RGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := max(b.Dy()*maxWidth/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
