package window

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// i3 IPC framing: "i3-ipc" | uint32 length | uint32 type | payload, both
// integers little-endian (i3 uses host order; every supported host is LE).
const (
	ipcMagic     = "i3-ipc"
	headerLen    = len(ipcMagic) + 4 + 4
	maxPayload   = 64 << 20
	lengthOffset = len(ipcMagic)
	typeOffset   = lengthOffset + 4
)

// Message types understood by i3 and Sway.
const (
	MessageRunCommand uint32 = 0
	MessageGetTree    uint32 = 4
)

var (
	ErrBadMagic        = errors.New("ipc: bad magic")
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

// EncodeHeader returns the 14-byte header for a message.
func EncodeHeader(msgType uint32, payloadLen int) [headerLen]byte {
	var h [headerLen]byte
	copy(h[:], ipcMagic)
	binary.LittleEndian.PutUint32(h[lengthOffset:], uint32(payloadLen))
	binary.LittleEndian.PutUint32(h[typeOffset:], msgType)
	return h
}

// WriteMessage sends one framed message.
func WriteMessage(w io.Writer, msgType uint32, payload []byte) error {
	h := EncodeHeader(msgType, len(payload))
	msg := make([]byte, 0, headerLen+len(payload))
	msg = append(msg, h[:]...)
	msg = append(msg, payload...)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write ipc message: %w", err)
	}
	return nil
}

// ReadMessage reads exactly one framed message. Partial reads are retried
// until the header and payload are complete; EOF before that is an error.
func ReadMessage(r io.Reader) (uint32, []byte, error) {
	var h [headerLen]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return 0, nil, fmt.Errorf("read ipc header: %w", err)
	}
	if string(h[:lengthOffset]) != ipcMagic {
		return 0, nil, fmt.Errorf("%w: %q", ErrBadMagic, h[:lengthOffset])
	}

	length := binary.LittleEndian.Uint32(h[lengthOffset:])
	msgType := binary.LittleEndian.Uint32(h[typeOffset:])
	if length > maxPayload {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read ipc payload (%d bytes): %w", length, err)
	}
	return msgType, payload, nil
}
