package wireamqp

import (
	"encoding/binary"
	"io"

	"go.bryk.io/pkg/errors"
)

// frameType distinguishes AMQP performative frames from the SASL frames
// exchanged during the initial handshake.
type frameType uint8

const (
	frameTypeAMQP frameType = 0
	frameTypeSASL frameType = 1
)

// frameHeaderSize is the fixed 8-byte header carried by every frame:
// 4-byte total size, 1-byte data offset (always 2, in 4-byte words),
// 1-byte type, 2-byte channel.
const frameHeaderSize = 8

const doffWords = 2

// maxFrameSize bounds a single frame body to keep a malformed peer from
// forcing an unbounded allocation.
const maxFrameSize = 16 * 1024 * 1024

// writeFrame writes a complete frame (header + body) to w.
func writeFrame(w io.Writer, typ frameType, channel uint16, body []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(frameHeaderSize+len(body)))
	header[4] = doffWords
	header[5] = byte(typ)
	binary.BigEndian.PutUint16(header[6:8], channel)
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	return nil
}

// readFrame blocks until a complete frame has been read from r.
func readFrame(r io.Reader) (frameType, uint16, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, err
	}
	size := binary.BigEndian.Uint32(header[0:4])
	if size < frameHeaderSize || size > maxFrameSize {
		return 0, 0, nil, errors.Wrap(ErrMalformed, "invalid frame size")
	}
	typ := frameType(header[5])
	channel := binary.BigEndian.Uint16(header[6:8])
	bodyLen := size - frameHeaderSize
	var body []byte
	if bodyLen > 0 {
		body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, 0, nil, err
		}
	}
	return typ, channel, body, nil
}
