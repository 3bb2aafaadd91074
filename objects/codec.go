// Wire codec primitives for GoLanShare
// Every value on the wire is little-endian: fixed-width integers, u16
// length-prefixed strings, u32 length-prefixed byte arrays, bool as one byte.
// The envelope and all registered object types share these primitives.
package objects

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrMalformedEnvelope is returned when wire bytes end before a required
// field is complete.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Writer serializes primitive values in wire order.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns everything written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteUint16 appends a little-endian u16.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint32 appends a little-endian u32.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint64 appends a little-endian u64.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteBool appends one byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteString appends a u16 length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if len(s) > math.MaxUint16 {
		return errors.Errorf("string of %d bytes exceeds wire limit", len(s))
	}
	w.WriteUint16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

// WriteBytes appends a u32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) error {
	if uint64(len(b)) > math.MaxUint32 {
		return errors.Errorf("byte array of %d bytes exceeds wire limit", len(b))
	}
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
	return nil
}

// Reader deserializes primitive values from a wire buffer. Trailing bytes
// beyond what a decoder consumes are ignored, so newer senders can append
// fields without breaking older receivers.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data for reading.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// take consumes the next n bytes.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "need %d bytes, have %d", n, len(r.data)-r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint16 consumes a little-endian u16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 consumes a little-endian u32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 consumes a little-endian u64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBool consumes one byte; any nonzero value reads as true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadString consumes a u16 length prefix and that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes consumes a u32 length prefix and that many bytes. The returned
// slice is a copy, safe to keep after the frame buffer is reused.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
