// Peer tracking for GoLanShare
// This file provides the Peer record and the known-peers table shared by the
// transport's reader and writer paths.
package p2p

import (
	"net"
	"sync"
	"time"
)

// Peer represents a remote participant, identified by its IPv4 address.
// Activity flags and timestamps are guarded by the owning table's mutex;
// the TCP connection handle is guarded by the peer's own connMu so writes
// on one connection are serialized without holding the table lock.
type Peer struct {
	Addr     string    // IPv4 address, table key
	LastSeen time.Time // Time of the most recent inbound traffic or new connection
	Active   bool      // False once the TCP connection drops

	connMu sync.Mutex // Serializes dial, frame writes, and replacement
	conn   net.Conn   // Established TCP connection, nil when none
}

// peerTable is the known-peers mapping. All reads and writes go through one
// mutex; snapshots for broadcast iteration are taken under the lock and
// released before any I/O happens.
type peerTable struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[string]*Peer)}
}

// touch returns the peer for addr, creating an inactive record if none exists.
func (t *peerTable) touch(addr string) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[addr]
	if !ok {
		p = &Peer{Addr: addr}
		t.peers[addr] = p
	}
	return p
}

// activate marks addr active and stamps LastSeen, creating the peer if
// needed. It reports whether the active flag actually flipped, so callers
// emit a peer-change event only on real transitions.
func (t *peerTable) activate(addr string) (*Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[addr]
	if !ok {
		p = &Peer{Addr: addr}
		t.peers[addr] = p
	}
	changed := !p.Active
	p.Active = true
	p.LastSeen = time.Now()
	return p, changed
}

// deactivate clears the active flag for addr and reports whether it flipped.
func (t *peerTable) deactivate(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[addr]
	if !ok || !p.Active {
		return false
	}
	p.Active = false
	return true
}

// snapshot returns the current peer addresses. The slice is built under the
// lock so iteration for send-to-all never races with table mutation.
func (t *peerTable) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	addrs := make([]string, 0, len(t.peers))
	for addr := range t.peers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// drain empties the table and hands back every peer so the transport can
// close their connections outside the lock.
func (t *peerTable) drain() []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	peers := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.peers = make(map[string]*Peer)
	return peers
}
