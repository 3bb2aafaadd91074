// Tests for the file-protocol wire types
package fileshare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshSinghSonkhia/GoLanShare/objects"
)

// TestFileSendMetadataRoundTrip covers the multi-file request shape.
func TestFileSendMetadataRoundTrip(t *testing.T) {
	meta := &FileSendMetadata{
		Files: []FileMetadata{
			{FileName: "a.bin", FilePath: "/data/a.bin", FileSize: 10_000},
			{FileName: "b.txt", FilePath: "/data/b.txt", FileSize: 0},
		},
		BufferSize: 4096,
		SenderIP:   "192.168.1.7",
	}

	payload, err := meta.MarshalWire()
	require.NoError(t, err)

	obj, err := decodeFileSendMetadata(payload)
	require.NoError(t, err)
	assert.Equal(t, meta, obj)
}

// TestFilePartObjRoundTrip covers a data part and the empty last part an
// empty file produces.
func TestFilePartObjRoundTrip(t *testing.T) {
	part := &FilePartObj{
		Metadata: FileMetadata{FileName: "a.bin", FilePath: "/data/a.bin", FileSize: 9},
		Offset:   4096,
		Data:     []byte("chunkdata"),
		IsLast:   true,
	}

	payload, err := part.MarshalWire()
	require.NoError(t, err)

	obj, err := decodeFilePartObj(payload)
	require.NoError(t, err)
	assert.Equal(t, part, obj)

	empty := &FilePartObj{
		Metadata: FileMetadata{FileName: "empty"},
		Data:     []byte{},
		IsLast:   true,
	}
	payload, err = empty.MarshalWire()
	require.NoError(t, err)

	obj, err = decodeFilePartObj(payload)
	require.NoError(t, err)
	got := obj.(*FilePartObj)
	assert.Empty(t, got.Data)
	assert.True(t, got.IsLast)
}

// TestFileReqAckRoundTrip covers both answers.
func TestFileReqAckRoundTrip(t *testing.T) {
	for _, accepted := range []bool{true, false} {
		payload, err := (&FileReqAck{Accepted: accepted}).MarshalWire()
		require.NoError(t, err)

		obj, err := decodeFileReqAck(payload)
		require.NoError(t, err)
		assert.Equal(t, accepted, obj.(*FileReqAck).Accepted)
	}
}

// TestTruncatedPartRejected checks a short buffer fails instead of decoding
// a part with missing fields.
func TestTruncatedPartRejected(t *testing.T) {
	part := &FilePartObj{
		Metadata: FileMetadata{FileName: "a.bin", FileSize: 9},
		Data:     []byte("chunkdata"),
	}
	payload, err := part.MarshalWire()
	require.NoError(t, err)

	// Drop the trailing is_last byte.
	_, err = decodeFilePartObj(payload[:len(payload)-1])
	assert.ErrorIs(t, err, objects.ErrMalformedEnvelope)
}

// TestRegisterFileTypes checks the registry decodes a registered file tag
// and rejects a tag that was never registered.
func TestRegisterFileTypes(t *testing.T) {
	reg := objects.NewRegistry()
	RegisterFileTypes(reg)

	payload, err := (&FileReqAck{Accepted: true}).MarshalWire()
	require.NoError(t, err)

	obj, err := reg.Decode(TagFileReqAck, payload)
	require.NoError(t, err)
	assert.IsType(t, &FileReqAck{}, obj)

	_, err = reg.Decode("NotAFileType", payload)
	assert.ErrorIs(t, err, objects.ErrUnknownType)
}
