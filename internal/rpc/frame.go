package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire framing: a 4-byte big-endian unsigned length followed by a UTF-8
// JSON payload. Oversized messages are a framing violation and abort the
// connection.
const (
	headerSize     = 4
	maxMessageSize = 1 << 20 // 1 MiB
)

// ErrMessageTooLarge marks a length prefix above the 1 MiB cap.
var ErrMessageTooLarge = errors.New("message too large")

// ReadMessage reads one length-prefixed message. io.EOF is returned
// unwrapped when the peer closed between messages.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, n, maxMessageSize)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return buf, nil
}

// WriteMessage writes one length-prefixed message.
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
