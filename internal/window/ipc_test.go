package window

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestEncodeHeaderGetTree(t *testing.T) {
	h := EncodeHeader(MessageGetTree, 0)
	want := []byte{'i', '3', '-', 'i', 'p', 'c', 0, 0, 0, 0, 4, 0, 0, 0}
	if !bytes.Equal(h[:], want) {
		t.Fatalf("header = %v, want %v", h[:], want)
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, MessageRunCommand, []byte("focus left")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	b := buf.Bytes()
	if len(b) != headerLen+10 {
		t.Fatalf("wrote %d bytes, want %d", len(b), headerLen+10)
	}
	if got := binary.LittleEndian.Uint32(b[6:10]); got != 10 {
		t.Errorf("length field = %d, want 10", got)
	}
	if got := binary.LittleEndian.Uint32(b[10:14]); got != MessageRunCommand {
		t.Errorf("type field = %d", got)
	}
}

func frameMessage(msgType uint32, payload []byte) []byte {
	var buf bytes.Buffer
	WriteMessage(&buf, msgType, payload)
	return buf.Bytes()
}

func TestReadMessagePartialReads(t *testing.T) {
	payload := []byte(`{"id":1,"name":"root","nodes":[{"id":2,"name":"Terminal","window":12345}]}`)
	wire := frameMessage(MessageGetTree, payload)

	readers := map[string]func(io.Reader) io.Reader{
		"one byte":  iotest.OneByteReader,
		"half":      iotest.HalfReader,
		"data eof":  iotest.DataErrReader,
		"unchanged": func(r io.Reader) io.Reader { return r },
	}

	for name, wrap := range readers {
		t.Run(name, func(t *testing.T) {
			msgType, got, err := ReadMessage(wrap(bytes.NewReader(wire)))
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if msgType != MessageGetTree {
				t.Errorf("type = %d, want %d", msgType, MessageGetTree)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("payload = %q, want %q", got, payload)
			}
		})
	}
}

func TestReadMessageFailures(t *testing.T) {
	full := frameMessage(MessageGetTree, []byte(`{"nodes":[]}`))
	badMagic := append([]byte("i4-ipc"), full[6:]...)

	tests := []struct {
		name    string
		wire    []byte
		wantErr error
	}{
		{"empty", nil, io.EOF},
		{"short header", full[:9], io.ErrUnexpectedEOF},
		{"short payload", full[:len(full)-3], io.ErrUnexpectedEOF},
		{"bad magic", badMagic, ErrBadMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadMessage(bytes.NewReader(tt.wire))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadMessageRejectsHugeLength(t *testing.T) {
	h := EncodeHeader(MessageGetTree, maxPayload+1)
	_, _, err := ReadMessage(bytes.NewReader(h[:]))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}
