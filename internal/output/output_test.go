package output

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/tilecap/internal/frame"
)

func oneBGRAPixel() *frame.Buffer {
	buf := frame.New(1, 1)
	copy(buf.Pix(), []byte{0x10, 0x20, 0x30, 0x40}) // B G R A
	return buf
}

func TestToRGBA(t *testing.T) {
	tests := []struct {
		order frame.ChannelOrder
		want  [4]byte
	}{
		{frame.OrderRGBA, [4]byte{0x10, 0x20, 0x30, 0x40}},
		{frame.OrderBGRA, [4]byte{0x30, 0x20, 0x10, 0x40}},
		{frame.OrderBGRX, [4]byte{0x30, 0x20, 0x10, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			img := ToRGBA(oneBGRAPixel(), tt.order)
			if got := [4]byte(img.Pix[:4]); got != tt.want {
				t.Errorf("pixel = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestScale(t *testing.T) {
	img := ToRGBA(frame.New(800, 600), frame.OrderBGRX)

	if got := Scale(img, 0); got != img {
		t.Error("Scale(0) allocated a new image")
	}
	if got := Scale(img, 1024); got != img {
		t.Error("Scale to a larger width allocated a new image")
	}

	small := Scale(img, 200)
	if b := small.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Fatalf("scaled bounds = %v, want 200x150", b)
	}
	if small.Pix[3] != 0xff {
		t.Errorf("alpha lost while scaling: %#x", small.Pix[3])
	}
}

func TestSnapshotFormats(t *testing.T) {
	buf := frame.New(16, 8)

	var pngOut bytes.Buffer
	if err := Snapshot(&pngOut, buf, Options{Order: frame.OrderBGRX}); err != nil {
		t.Fatalf("png snapshot: %v", err)
	}
	img, err := png.Decode(&pngOut)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("png bounds = %v", b)
	}

	var jpgOut bytes.Buffer
	if err := Snapshot(&jpgOut, buf, Options{Order: frame.OrderBGRX, Format: FormatJPEG, MaxWidth: 8}); err != nil {
		t.Fatalf("jpeg snapshot: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(&jpgOut)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 4 {
		t.Errorf("jpeg size = %dx%d, want 8x4", cfg.Width, cfg.Height)
	}
}

func TestSnapshotRejectsEmptyFrame(t *testing.T) {
	var out bytes.Buffer
	if err := Snapshot(&out, nil, Options{}); err == nil {
		t.Error("nil frame accepted")
	}
	if err := Snapshot(&out, frame.New(0, 0), Options{}); err == nil {
		t.Error("empty frame accepted")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.jpg")
	if err := WriteFile(path, frame.New(4, 4), Options{Order: frame.OrderBGRA}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := jpeg.DecodeConfig(f); err != nil {
		t.Fatalf("snapshot is not a JPEG: %v", err)
	}

	bad := filepath.Join(dir, "empty.png")
	if err := WriteFile(bad, nil, Options{}); err == nil {
		t.Fatal("WriteFile accepted a nil frame")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("failed snapshot left %s behind", bad)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatPNG, "PNG": FormatPNG, "jpg": FormatJPEG, "jpeg": FormatJPEG} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("gif"); err == nil {
		t.Error("ParseFormat(gif) succeeded")
	}
	if FormatForPath("/tmp/a.JPG") != FormatJPEG || FormatForPath("a.bmp") != FormatPNG {
		t.Error("FormatForPath")
	}
}
