// Transfer state records for GoLanShare
// One FileTransfer per file per direction; send and receive records group
// them per peer.
package fileshare

import (
	"go.uber.org/atomic"
)

// FileTransfer tracks one file moving in one direction. The byte stream is
// owned by the containing record and closed exactly once, when the transfer
// completes or the record is dropped.
type FileTransfer struct {
	Metadata   FileMetadata
	BufferSize uint32

	bytesProcessed atomic.Uint64

	stream File
	path   string // Destination path, receiving side only
	eof    bool   // All bytes moved, stream closed

	closed atomic.Bool // Guards double-close between dispatch and streaming
}

// BytesProcessed reports how many bytes have moved so far.
func (t *FileTransfer) BytesProcessed() uint64 {
	return t.bytesProcessed.Load()
}

func (t *FileTransfer) closeStream() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if t.stream != nil {
		t.stream.Close()
	}
}

type sendState int

const (
	sendAwaitingAck sendState = iota
	sendStreaming
	sendDone
	sendRejected
)

// sendRecord is one outgoing request. At most one exists per target IP.
type sendRecord struct {
	targetIP  string
	transfers []*FileTransfer
	state     sendState
}

func (r *sendRecord) closeAll() {
	for _, t := range r.transfers {
		t.closeStream()
	}
}

// receiveRecord is one incoming request, uniquely indexed by sender IP while
// active.
type receiveRecord struct {
	senderIP  string
	transfers []*FileTransfer
}

// find locates the transfer a part belongs to by file name and size.
func (r *receiveRecord) find(name string, size uint64) *FileTransfer {
	for _, t := range r.transfers {
		if t.Metadata.FileName == name && t.Metadata.FileSize == size {
			return t
		}
	}
	return nil
}

// done reports whether every file in the record has completed.
func (r *receiveRecord) done() bool {
	for _, t := range r.transfers {
		if !t.eof {
			return false
		}
	}
	return true
}

func (r *receiveRecord) closeAll() {
	for _, t := range r.transfers {
		t.closeStream()
	}
}
