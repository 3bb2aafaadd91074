// File layer client for GoLanShare
// Chunked, ordered file transfer on top of the object layer: request/accept
// handshake, sequential part streaming with live progress, write-through to
// the receiving store.
package fileshare

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/AnshSinghSonkhia/GoLanShare/objects"
	"github.com/AnshSinghSonkhia/GoLanShare/p2p"
)

// DefaultBufferSize is the part payload size used when a send request leaves
// it zero. It also bounds the resident bytes per transfer direction.
const DefaultBufferSize uint32 = 102400

var (
	// ErrFileNotFound is returned from SendFiles when a source file cannot
	// be opened.
	ErrFileNotFound = errors.New("source file not found")

	// ErrBusy is returned from SendFiles while another send to the same
	// peer is active.
	ErrBusy = errors.New("transfer to peer already active")

	// ErrCancelled is returned when Stop aborts an in-flight transfer.
	ErrCancelled = errors.New("transfer cancelled")
)

// AcceptPolicy decides whether an incoming transfer request is taken.
// It runs on the dispatch goroutine, so it must not block.
type AcceptPolicy func(meta *FileSendMetadata) bool

// AcceptAll is the default policy.
func AcceptAll(*FileSendMetadata) bool { return true }

// ClientOpts holds configuration for the file layer.
//
//	Objects    - Object layer to run over (required)
//	FS         - Filesystem abstraction (default: the host filesystem)
//	TempDir    - Directory for received files (default "./temp")
//	BufferSize - Default part size for outgoing transfers (default 102400)
//	Accept     - Incoming request policy (default: accept everything)
type ClientOpts struct {
	Objects    *objects.Client
	FS         FileSystem
	TempDir    string
	BufferSize uint32
	Accept     AcceptPolicy
}

// Client is the file layer. It consumes the object layer's events, reacts to
// the file-protocol messages, and re-exposes everything else.
type Client struct {
	ClientOpts

	store *Store

	mu       sync.Mutex
	sends    map[string]*sendRecord
	receives map[string]*receiveRecord
	started  bool
	stopped  bool

	progressch chan Progress
	receivedch chan Received
	objch      chan objects.Event
	peerch     chan p2p.PeerEvent

	quitch chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates the file layer over an object client and registers the
// file-protocol types in its registry.
func NewClient(opts ClientOpts) *Client {
	if opts.FS == nil {
		opts.FS = OSFileSystem{}
	}
	if opts.TempDir == "" {
		opts.TempDir = DefaultTempDir
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Accept == nil {
		opts.Accept = AcceptAll
	}

	RegisterFileTypes(opts.Objects.Registry)

	return &Client{
		ClientOpts: opts,
		store:      NewStore(StoreOpts{Root: opts.TempDir, FS: opts.FS}),
		sends:      make(map[string]*sendRecord),
		receives:   make(map[string]*receiveRecord),
		progressch: make(chan Progress, 1024),
		receivedch: make(chan Received, 64),
		objch:      make(chan objects.Event, 1024),
		peerch:     make(chan p2p.PeerEvent, 64),
		quitch:     make(chan struct{}),
	}
}

// Progress returns the live per-part progress channel. Callers must drain it
// while transfers run.
func (c *Client) Progress() <-chan Progress {
	return c.progressch
}

// Received returns the completed-file channel.
func (c *Client) Received() <-chan Received {
	return c.receivedch
}

// Objects re-exposes object events that are not part of the file protocol.
func (c *Client) Objects() <-chan objects.Event {
	return c.objch
}

// PeerEvents re-exposes the transport's peer transitions.
func (c *Client) PeerEvents() <-chan p2p.PeerEvent {
	return c.peerch
}

// Busy reports whether a send to targetIP is currently active.
func (c *Client) Busy(targetIP string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sends[targetIP]
	return ok
}

// Start starts the layers below and the event loop.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("file client already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.ClientOpts.Objects.Start(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.loop()
	return nil
}

// Stop aborts in-flight transfers, stops the layers below, and closes every
// open stream.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.quitch)
	c.mu.Unlock()

	err := c.ClientOpts.Objects.Stop()
	c.wg.Wait()

	c.mu.Lock()
	sends, receives := c.sends, c.receives
	c.sends = make(map[string]*sendRecord)
	c.receives = make(map[string]*receiveRecord)
	c.mu.Unlock()

	for _, rec := range sends {
		rec.closeAll()
	}
	for _, rec := range receives {
		rec.closeAll()
	}
	return err
}

// SendFiles opens every path, transmits the transfer request, and returns.
// Streaming begins in the background once the peer accepts. bufferSize zero
// means the configured default. Fails fast with ErrFileNotFound when any
// source file is inaccessible and with ErrBusy while a send to the same peer
// is active.
func (c *Client) SendFiles(targetIP string, paths []string, bufferSize uint32) error {
	if bufferSize == 0 {
		bufferSize = c.BufferSize
	}

	localIP, err := c.ClientOpts.Objects.LocalIP()
	if err != nil {
		return err
	}

	var transfers []*FileTransfer
	closeAll := func() {
		for _, t := range transfers {
			t.closeStream()
		}
	}

	for _, path := range paths {
		size, err := c.FS.Stat(path)
		if err != nil {
			closeAll()
			return errors.Wrap(ErrFileNotFound, path)
		}
		f, err := c.FS.Open(path)
		if err != nil {
			closeAll()
			return errors.Wrap(ErrFileNotFound, path)
		}

		transfers = append(transfers, &FileTransfer{
			Metadata: FileMetadata{
				FileName: filepath.Base(path),
				FilePath: path,
				FileSize: uint64(size),
			},
			BufferSize: bufferSize,
			stream:     f,
		})
	}

	rec := &sendRecord{
		targetIP:  targetIP,
		transfers: transfers,
		state:     sendAwaitingAck,
	}

	c.mu.Lock()
	if _, ok := c.sends[targetIP]; ok {
		c.mu.Unlock()
		closeAll()
		return errors.Wrap(ErrBusy, targetIP)
	}
	c.sends[targetIP] = rec
	c.mu.Unlock()

	meta := &FileSendMetadata{
		BufferSize: bufferSize,
		SenderIP:   localIP,
	}
	for _, t := range transfers {
		meta.Files = append(meta.Files, t.Metadata)
	}

	if err := c.ClientOpts.Objects.SendTCP(targetIP, meta); err != nil {
		c.dropSend(targetIP)
		return errors.Wrapf(err, "requesting transfer to %s", targetIP)
	}
	return nil
}

// loop is the single consumer of the object layer's events.
func (c *Client) loop() {
	defer c.wg.Done()

	for {
		select {
		case ev := <-c.ClientOpts.Objects.Objects():
			c.handleObject(ev)
		case pe := <-c.ClientOpts.Objects.PeerEvents():
			c.handlePeerEvent(pe)
		case <-c.quitch:
			return
		}
	}
}

// handleObject reacts to the file-protocol messages and forwards everything
// else to the application.
func (c *Client) handleObject(ev objects.Event) {
	switch obj := ev.Object.(type) {
	case *FileSendMetadata:
		c.handleSendRequest(ev.SourceIP, obj)
	case *FileReqAck:
		c.handleAck(ev.SourceIP, obj)
	case *FilePartObj:
		c.handlePart(ev.SourceIP, obj)
	default:
		select {
		case c.objch <- ev:
		case <-c.quitch:
		}
	}
}

// handleSendRequest validates an incoming request, opens the receiving
// streams, and answers with an ack. A new request from a sender with an
// active record replaces it; the replaced streams are closed and partial
// files stay on disk.
func (c *Client) handleSendRequest(from string, meta *FileSendMetadata) {
	if !c.Accept(meta) {
		c.sendAck(from, false)
		return
	}

	c.mu.Lock()
	old := c.receives[from]
	delete(c.receives, from)
	c.mu.Unlock()
	if old != nil {
		log.Printf("replacing active transfer from %s", from)
		old.closeAll()
	}

	rec := &receiveRecord{senderIP: from}
	for _, fm := range meta.Files {
		f, path, err := c.store.Create(fm.FileName)
		if err != nil {
			log.Printf("rejecting transfer from %s: %v", from, err)
			rec.closeAll()
			c.sendAck(from, false)
			return
		}
		rec.transfers = append(rec.transfers, &FileTransfer{
			Metadata:   fm,
			BufferSize: meta.BufferSize,
			stream:     f,
			path:       path,
		})
	}

	c.mu.Lock()
	c.receives[from] = rec
	c.mu.Unlock()

	c.sendAck(from, true)
}

func (c *Client) sendAck(to string, accepted bool) {
	if err := c.ClientOpts.Objects.SendTCP(to, &FileReqAck{Accepted: accepted}); err != nil {
		log.Printf("sending ack to %s failed: %v", to, err)
	}
}

// handleAck moves a send record out of awaiting-ack: rejected requests drop
// the record, accepted ones start the streaming goroutine.
func (c *Client) handleAck(from string, ack *FileReqAck) {
	c.mu.Lock()
	rec := c.sends[from]
	if rec == nil || rec.state != sendAwaitingAck {
		c.mu.Unlock()
		log.Printf("unexpected ack from %s", from)
		return
	}

	if !ack.Accepted {
		rec.state = sendRejected
		delete(c.sends, from)
		c.mu.Unlock()
		rec.closeAll()
		log.Printf("transfer to %s rejected by peer", from)
		return
	}

	rec.state = sendStreaming
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.streamRecord(rec)
}

// streamRecord pushes every file of a send record in declared order. File
// N+1 begins only after file N's last part went out.
func (c *Client) streamRecord(rec *sendRecord) {
	defer c.wg.Done()

	for _, tr := range rec.transfers {
		if err := c.streamFile(rec.targetIP, tr); err != nil {
			log.Printf("transfer to %s failed: %v", rec.targetIP, err)
			c.dropSend(rec.targetIP)
			return
		}
	}

	c.mu.Lock()
	rec.state = sendDone
	if c.sends[rec.targetIP] == rec {
		delete(c.sends, rec.targetIP)
	}
	c.mu.Unlock()
	rec.closeAll()
}

// streamFile reads successive bufferSize blocks and sends one part per
// block. The last block may be shorter; an empty file still produces exactly
// one part so the receiver observes is_last.
func (c *Client) streamFile(targetIP string, tr *FileTransfer) error {
	remaining := tr.Metadata.FileSize
	var offset uint64

	for {
		select {
		case <-c.quitch:
			return ErrCancelled
		default:
		}

		n := uint64(tr.BufferSize)
		if remaining < n {
			n = remaining
		}

		data := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(tr.stream, data); err != nil {
				return errors.Wrapf(err, "reading %s at %d", tr.Metadata.FilePath, offset)
			}
		}

		last := remaining == n
		part := &FilePartObj{
			Metadata: tr.Metadata,
			Offset:   offset,
			Data:     data,
			IsLast:   last,
		}
		if err := c.ClientOpts.Objects.SendTCP(targetIP, part); err != nil {
			return err
		}

		offset += n
		remaining -= n
		tr.bytesProcessed.Store(offset)
		c.emitProgress(Progress{
			Direction:      Sending,
			FileName:       tr.Metadata.FileName,
			FileLength:     tr.Metadata.FileSize,
			BytesProcessed: offset,
		})

		if last {
			return nil
		}
	}
}

// handlePart writes one inbound chunk at its offset, updates progress, and
// finishes the file on is_last.
func (c *Client) handlePart(from string, part *FilePartObj) {
	c.mu.Lock()
	rec := c.receives[from]
	c.mu.Unlock()
	if rec == nil {
		log.Printf("dropping part from %s: no active transfer", from)
		return
	}

	tr := rec.find(part.Metadata.FileName, part.Metadata.FileSize)
	if tr == nil || tr.eof {
		log.Printf("dropping part from %s: no matching file %q", from, part.Metadata.FileName)
		return
	}

	if _, err := tr.stream.Seek(int64(part.Offset), io.SeekStart); err != nil {
		c.failReceive(from, rec, err)
		return
	}
	if _, err := tr.stream.Write(part.Data); err != nil {
		c.failReceive(from, rec, err)
		return
	}

	processed := part.Offset + uint64(len(part.Data))
	tr.bytesProcessed.Store(processed)
	c.emitProgress(Progress{
		Direction:      Receiving,
		FileName:       tr.Metadata.FileName,
		FileLength:     tr.Metadata.FileSize,
		BytesProcessed: processed,
	})

	if !part.IsLast {
		return
	}

	tr.eof = true
	tr.closeStream()
	c.emitReceived(Received{FileName: tr.Metadata.FileName, Path: tr.path})

	if rec.done() {
		c.mu.Lock()
		if c.receives[from] == rec {
			delete(c.receives, from)
		}
		c.mu.Unlock()
	}
}

// failReceive tears down a receive record after a write error. The sender
// learns only via connection loss; there is no negative ack mid-transfer.
func (c *Client) failReceive(from string, rec *receiveRecord, err error) {
	log.Printf("transfer from %s failed: %v", from, err)

	c.mu.Lock()
	if c.receives[from] == rec {
		delete(c.receives, from)
	}
	c.mu.Unlock()
	rec.closeAll()
}

// handlePeerEvent drops any records that depended on a lost connection and
// forwards the event.
func (c *Client) handlePeerEvent(pe p2p.PeerEvent) {
	if !pe.Active {
		c.dropSend(pe.Addr)
		c.dropReceive(pe.Addr)
	}

	select {
	case c.peerch <- pe:
	default:
	}
}

// dropSend removes and closes the send record for targetIP, if any.
func (c *Client) dropSend(targetIP string) {
	c.mu.Lock()
	rec := c.sends[targetIP]
	delete(c.sends, targetIP)
	c.mu.Unlock()

	if rec != nil {
		rec.closeAll()
	}
}

// dropReceive removes and closes the receive record for senderIP, if any.
// Partial files stay in the temp directory.
func (c *Client) dropReceive(senderIP string) {
	c.mu.Lock()
	rec := c.receives[senderIP]
	delete(c.receives, senderIP)
	c.mu.Unlock()

	if rec != nil {
		log.Printf("dropping transfer from %s: connection lost", senderIP)
		rec.closeAll()
	}
}

func (c *Client) emitProgress(p Progress) {
	select {
	case c.progressch <- p:
	case <-c.quitch:
	}
}

func (c *Client) emitReceived(r Received) {
	select {
	case c.receivedch <- r:
	case <-c.quitch:
	}
}
