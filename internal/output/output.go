package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/tilecap/internal/frame"
)

// Format is a still-image encoding for snapshots.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
)

// JPEGQuality matches what the preview endpoints have always served.
const JPEGQuality = 90

func (f Format) String() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "png"
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ParseFormat accepts "png", "jpeg" or "jpg". Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return FormatPNG, fmt.Errorf("unknown image format %q", s)
	}
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatPNG
	}
	return f
}

// Options controls how a frame is turned into an image.
type Options struct {
	// Order is the channel order of the frame's bytes.
	Order frame.ChannelOrder
	// MaxWidth downscales wider frames, keeping the aspect ratio. Zero
	// keeps the native size.
	MaxWidth int
	Format   Format
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatJPEG:
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	}
	return nil
}

// Snapshot converts buf and encodes it to w.
func Snapshot(w io.Writer, buf *frame.Buffer, opts Options) error {
	if buf == nil || buf.Len() == 0 {
		return fmt.Errorf("no frame available")
	}
	img := Scale(ToRGBA(buf, opts.Order), opts.MaxWidth)
	return Encode(w, img, opts.Format)
}

// WriteFile writes a snapshot of buf to path, choosing the format from
// the extension.
func WriteFile(path string, buf *frame.Buffer, opts Options) error {
	opts.Format = FormatForPath(path)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := Snapshot(f, buf, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
