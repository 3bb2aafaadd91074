// LAN transport implementation for GoLanShare peer networking
// This file provides the production Transport: a TCP listener plus a UDP
// socket on one port, per-connection framed reader loops, peer lifecycle
// tracking, and subnet broadcast for discovery.
package p2p

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultPort is the port both the TCP listener and the UDP socket bind
// when the options leave it zero.
const DefaultPort uint16 = 8080

// dialTimeout bounds outbound connection attempts.
const dialTimeout = 5 * time.Second

// maxDatagramSize is the receive buffer for one UDP datagram.
const maxDatagramSize = 64 << 10

// ErrTransportClosed is returned by send calls after Stop.
var ErrTransportClosed = errors.New("transport is stopped")

// LANTransportOpts holds configuration for LANTransport.
//
//	Port          - TCP and UDP port to bind (default 8080)
//	ForwardAll    - When false, datagrams sourced from the local IP are dropped
//	MaxFrameBytes - Largest length prefix a reader accepts (default 64 MiB)
type LANTransportOpts struct {
	Port          uint16
	ForwardAll    bool
	MaxFrameBytes uint32
}

// LANTransport manages TCP connections and UDP datagrams between peers on a
// common IP network. It implements the Transport interface.
type LANTransport struct {
	LANTransportOpts

	listener net.Listener
	udp      *net.UDPConn

	table   *peerTable
	rpcch   chan RPC
	eventch chan PeerEvent

	ipOnce sync.Once
	local  *localNetwork
	ipErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	quitch  chan struct{}
	wg      sync.WaitGroup
}

// NewLANTransport creates a new LANTransport with the given options.
// The rpcch channel buffers inbound messages for consumption.
func NewLANTransport(opts LANTransportOpts) *LANTransport {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.MaxFrameBytes == 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}

	return &LANTransport{
		LANTransportOpts: opts,
		table:            newPeerTable(),
		rpcch:            make(chan RPC, 1024),
		eventch:          make(chan PeerEvent, 64),
		quitch:           make(chan struct{}),
	}
}

// Consume returns a read-only channel of inbound messages (Transport interface).
func (t *LANTransport) Consume() <-chan RPC {
	return t.rpcch
}

// PeerEvents returns a read-only channel of peer transitions (Transport interface).
func (t *LANTransport) PeerEvents() <-chan PeerEvent {
	return t.eventch
}

// LocalIP resolves this host's IPv4 address. The result is memoized after the
// first call (Transport interface).
func (t *LANTransport) LocalIP() (string, error) {
	t.ipOnce.Do(func() {
		t.local, t.ipErr = resolveLocalNetwork()
	})
	if t.ipErr != nil {
		return "", t.ipErr
	}
	return t.local.ip.String(), nil
}

// Start binds the TCP listener and the UDP socket, launches the accept and
// datagram loops, and announces presence with an empty broadcast.
// It fails with ErrNoNetworkInterface when no connected interface exists;
// bind failures are fatal for the layer and surface here.
func (t *LANTransport) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	if _, err := t.LocalIP(); err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(int(t.Port))

	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return errors.Wrapf(err, "binding TCP listener on %s", addr)
	}
	t.listener = listener

	udp, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(t.Port)})
	if err != nil {
		listener.Close()
		return errors.Wrapf(err, "binding UDP socket on %s", addr)
	}
	t.udp = udp

	t.wg.Add(2)
	go t.acceptLoop()
	go t.datagramLoop()

	log.Printf("LAN transport listening on port %d", t.Port)

	// Announce presence so peers already on the subnet learn this address.
	if err := t.SendBroadcast(nil); err != nil {
		log.Printf("presence broadcast failed: %v", err)
	}

	return nil
}

// Stop closes the listener, the UDP socket, and every tracked connection,
// then clears the peer table. In-flight reader loops drain before return.
func (t *LANTransport) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	close(t.quitch)
	t.mu.Unlock()

	if t.listener != nil {
		t.listener.Close()
	}
	if t.udp != nil {
		t.udp.Close()
	}

	for _, p := range t.table.drain() {
		p.connMu.Lock()
		if p.conn != nil {
			p.conn.Close()
			p.conn = nil
		}
		p.connMu.Unlock()
	}

	t.wg.Wait()
	return nil
}

func (t *LANTransport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// SendTCP ensures a connection to targetIP exists, then frames and writes
// payload on it. The per-peer mutex serializes concurrent senders so frame
// boundaries are never interleaved (Transport interface).
func (t *LANTransport) SendTCP(targetIP string, payload []byte) error {
	if t.isStopped() {
		return ErrTransportClosed
	}

	peer := t.table.touch(targetIP)

	peer.connMu.Lock()
	defer peer.connMu.Unlock()

	if peer.conn == nil {
		conn, err := net.DialTimeout("tcp4", net.JoinHostPort(targetIP, strconv.Itoa(int(t.Port))), dialTimeout)
		if err != nil {
			return errors.Wrapf(err, "connecting to %s", targetIP)
		}
		if !t.spawnReader(peer, conn) {
			conn.Close()
			return ErrTransportClosed
		}
		peer.conn = conn
		t.markActive(targetIP)
	}

	if err := writeFrame(peer.conn, payload); err != nil {
		peer.conn.Close()
		peer.conn = nil
		if t.table.deactivate(targetIP) {
			t.emit(PeerEvent{Addr: targetIP, Active: false})
		}
		return err
	}
	return nil
}

// SendUDP fires one datagram at targetIP. No delivery guarantee (Transport interface).
func (t *LANTransport) SendUDP(targetIP string, payload []byte) error {
	if t.isStopped() {
		return ErrTransportClosed
	}

	if t.udp == nil {
		return errors.New("transport not started")
	}

	ip := net.ParseIP(targetIP)
	if ip == nil {
		return errors.Errorf("invalid target address %q", targetIP)
	}

	_, err := t.udp.WriteToUDP(payload, &net.UDPAddr{IP: ip, Port: int(t.Port)})
	return errors.Wrapf(err, "sending datagram to %s", targetIP)
}

// SendBroadcast fires one datagram at the subnet broadcast address (Transport interface).
func (t *LANTransport) SendBroadcast(payload []byte) error {
	if t.isStopped() {
		return ErrTransportClosed
	}
	if t.udp == nil {
		return errors.New("transport not started")
	}
	if _, err := t.LocalIP(); err != nil {
		return err
	}

	_, err := t.udp.WriteToUDP(payload, &net.UDPAddr{IP: t.local.broadcast, Port: int(t.Port)})
	return errors.Wrap(err, "sending broadcast")
}

// SendTCPAll sends payload to every peer in the current table snapshot.
// Per-peer failures are logged and do not stop the iteration; the first
// error is returned (Transport interface).
func (t *LANTransport) SendTCPAll(payload []byte) error {
	var first error
	for _, addr := range t.table.snapshot() {
		if err := t.SendTCP(addr, payload); err != nil {
			log.Printf("send to %s failed: %v", addr, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// SendUDPAll sends a datagram to every peer in the current table snapshot (Transport interface).
func (t *LANTransport) SendUDPAll(payload []byte) error {
	var first error
	for _, addr := range t.table.snapshot() {
		if err := t.SendUDP(addr, payload); err != nil {
			log.Printf("datagram to %s failed: %v", addr, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// DirectConnect opens a TCP connection to targetIP without sending anything
// (Transport interface).
func (t *LANTransport) DirectConnect(targetIP string) error {
	if t.isStopped() {
		return ErrTransportClosed
	}

	peer := t.table.touch(targetIP)

	peer.connMu.Lock()
	defer peer.connMu.Unlock()

	if peer.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp4", net.JoinHostPort(targetIP, strconv.Itoa(int(t.Port))), dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", targetIP)
	}
	if !t.spawnReader(peer, conn) {
		conn.Close()
		return ErrTransportClosed
	}
	peer.conn = conn
	t.markActive(targetIP)
	return nil
}

// spawnReader launches the frame reader for conn unless the transport is
// already stopping. Guarding the WaitGroup under the mutex keeps Stop's Wait
// from racing a late Add.
func (t *LANTransport) spawnReader(peer *Peer, conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.wg.Add(1)
	go t.readLoop(peer, conn)
	return true
}

// acceptLoop continuously accepts inbound TCP connections until the listener
// closes.
func (t *LANTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("TCP accept error: %v", err)
			continue
		}

		t.adoptConn(conn)
	}
}

// adoptConn registers an inbound connection under the remote IP. A prior
// established connection from the same IP is replaced and closed.
func (t *LANTransport) adoptConn(conn net.Conn) {
	ip := hostOf(conn.RemoteAddr())
	peer := t.table.touch(ip)

	peer.connMu.Lock()
	if peer.conn != nil {
		peer.conn.Close()
	}
	peer.conn = conn
	spawned := t.spawnReader(peer, conn)
	if !spawned {
		conn.Close()
		peer.conn = nil
	}
	peer.connMu.Unlock()

	if spawned {
		t.markActive(ip)
	}
}

// readLoop reads frames off one connection and forwards them upward. Any read
// error, including EOF mid-frame and an oversized length prefix, drops only
// this connection and marks the peer inactive.
func (t *LANTransport) readLoop(peer *Peer, conn net.Conn) {
	defer t.wg.Done()

	for {
		payload, err := readFrame(conn, t.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				log.Printf("dropping connection to %s: %v", peer.Addr, err)
			}
			t.dropConn(peer, conn)
			return
		}

		t.markActive(peer.Addr)

		select {
		case t.rpcch <- RPC{From: peer.Addr, Payload: payload}:
		case <-t.quitch:
			t.dropConn(peer, conn)
			return
		}
	}
}

// dropConn closes conn and, when it is still the peer's current connection,
// clears the handle and emits the inactive transition. A connection that was
// already replaced by a newer one goes away silently.
func (t *LANTransport) dropConn(peer *Peer, conn net.Conn) {
	conn.Close()

	peer.connMu.Lock()
	current := peer.conn == conn
	if current {
		peer.conn = nil
	}
	peer.connMu.Unlock()

	if current && t.table.deactivate(peer.Addr) {
		t.emit(PeerEvent{Addr: peer.Addr, Active: false})
	}
}

// datagramLoop receives UDP datagrams and forwards each as one RPC.
// A fresh buffer is allocated per packet because the payload is passed upward.
func (t *LANTransport) datagramLoop() {
	defer t.wg.Done()

	for {
		buf := make([]byte, maxDatagramSize)
		n, sender, err := t.udp.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("UDP receive error: %v", err)
			continue
		}

		ip := sender.IP.String()
		if t.dropOwnDatagram(ip) {
			continue
		}

		t.markActive(ip)

		select {
		case t.rpcch <- RPC{From: ip, Payload: buf[:n], UDP: true}:
		case <-t.quitch:
			return
		}
	}
}

// dropOwnDatagram reports whether a datagram sourced from ip must be
// discarded. Broadcasts loop back to the sender; unless ForwardAll is set,
// the local echo never reaches the upper layers.
func (t *LANTransport) dropOwnDatagram(ip string) bool {
	if t.ForwardAll {
		return false
	}
	local, err := t.LocalIP()
	return err == nil && ip == local
}

// markActive flips the peer active and emits the transition if it changed.
func (t *LANTransport) markActive(addr string) {
	if _, changed := t.table.activate(addr); changed {
		t.emit(PeerEvent{Addr: addr, Active: true})
	}
}

// emit delivers a peer event without ever blocking a reader loop. Events are
// dropped when the subscriber lags behind the buffer.
func (t *LANTransport) emit(ev PeerEvent) {
	select {
	case t.eventch <- ev:
	default:
	}
}

// hostOf extracts the IP portion of a network address.
func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
