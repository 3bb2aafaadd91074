// Unit tests for the frame codec
// Verifies the length-prefix layout, short-read handling, and the oversize
// guard that protects the reader from hostile length prefixes.
package p2p

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip checks that every frame written is read back whole:
// same bytes, no duplication, no split, no merge.
func TestFrameRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 100_000),
	}
	for _, p := range payloads {
		require.NoError(t, writeFrame(buf, p))
	}

	for _, want := range payloads {
		got, err := readFrame(buf, DefaultMaxFrameBytes)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Nothing left over after the last frame.
	_, err := readFrame(buf, DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.EOF)
}

// TestFrameWireLayout pins the header to 4 little-endian length bytes.
func TestFrameWireLayout(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, writeFrame(buf, []byte("abc")))

	raw := buf.Bytes()
	require.Len(t, raw, 7)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[:4]))
	assert.Equal(t, []byte("abc"), raw[4:])
}

// TestFrameTooLarge checks that an oversized length prefix is rejected
// before any payload allocation happens.
func TestFrameTooLarge(t *testing.T) {
	buf := new(bytes.Buffer)
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := readFrame(buf, DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestFrameTruncated checks that EOF mid-frame surfaces as an error rather
// than a partial delivery.
func TestFrameTruncated(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, writeFrame(buf, []byte("full payload")))

	// Chop the last byte off.
	raw := buf.Bytes()[:buf.Len()-1]

	_, err := readFrame(bytes.NewReader(raw), DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// A lone partial header fails the same way.
	_, err = readFrame(bytes.NewReader(raw[:2]), DefaultMaxFrameBytes)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestBroadcastAddr checks the directed broadcast derivation from a mask.
func TestBroadcastAddr(t *testing.T) {
	cases := []struct {
		ip   string
		mask net.IPMask
		want string
	}{
		{"192.168.1.17", net.IPv4Mask(255, 255, 255, 0), "192.168.1.255"},
		{"10.4.0.9", net.IPv4Mask(255, 255, 0, 0), "10.4.255.255"},
	}
	for _, c := range cases {
		got := broadcastAddr(net.ParseIP(c.ip), c.mask)
		assert.Equal(t, c.want, got.String())
	}
}
