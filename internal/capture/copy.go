package capture

import "github.com/bryanchriswhite/tilecap/internal/frame"

// copyPixels copies a native image of height rows, srcStride bytes apart,
// into out. It never writes past out's pixels or reads past src, and copies
// row by row when the strides differ. It returns the number of bytes copied.
func copyPixels(out *frame.Buffer, src []byte, srcStride, height int) int {
	dst := out.Pix()
	if srcStride <= 0 || height <= 0 || len(dst) == 0 {
		return 0
	}

	if srcStride == out.Stride() {
		n := min(srcStride*height, len(src), len(dst))
		return copy(dst[:n], src[:n])
	}

	rowLen := min(srcStride, out.Stride())
	rows := min(height, out.Height())
	copied := 0
	for y := 0; y < rows; y++ {
		start := y * srcStride
		if start >= len(src) {
			break
		}
		end := min(start+rowLen, len(src))
		copied += copy(out.Row(y), src[start:end])
	}
	return copied
}

// copyPixelsInverted is copyPixels for images stored bottom-up.
func copyPixelsInverted(out *frame.Buffer, src []byte, srcStride, height int) int {
	if srcStride <= 0 || height <= 0 || out.Len() == 0 {
		return 0
	}
	rowLen := min(srcStride, out.Stride())
	rows := min(height, out.Height())
	copied := 0
	for y := 0; y < rows; y++ {
		start := (height - 1 - y) * srcStride
		if start >= len(src) {
			continue
		}
		end := min(start+rowLen, len(src))
		copied += copy(out.Row(y), src[start:end])
	}
	return copied
}
