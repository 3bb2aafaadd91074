// Frame codec for GoLanShare TCP connections
// A frame is a 4-byte little-endian length prefix followed by exactly that
// many payload bytes. The reader never delivers a partial frame upward.
package p2p

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const frameHeaderSize = 4

// DefaultMaxFrameBytes caps the length prefix a reader will accept.
const DefaultMaxFrameBytes uint32 = 64 << 20

// ErrFrameTooLarge is returned when a length prefix exceeds the configured
// maximum. The connection carrying the frame is closed.
var ErrFrameTooLarge = errors.New("frame length exceeds maximum")

// writeFrame prefixes payload with its length and writes both in a single
// Write call so the frame reaches the socket as one unit.
func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	return nil
}

// readFrame reads one complete frame from r, looping through short reads.
// The payload buffer is only allocated after the length passes the maxBytes
// guard, so an oversized prefix cannot trigger a huge allocation.
func readFrame(r io.Reader, maxBytes uint32) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length > maxBytes {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return payload, nil
}
