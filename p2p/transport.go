// Transport abstractions for GoLanShare peer networking
// This file defines the raw message unit, peer lifecycle events, and the
// transport contract implemented by LANTransport.
package p2p

// RPC represents one raw message delivered by a transport.
// It is the main data structure handed upward to the object layer.
// Fields:
//   From    - The sender's IPv4 address
//   Payload - One complete frame (TCP) or one datagram (UDP)
//   UDP     - True when the message arrived as a UDP datagram
type RPC struct {
	From    string // Sender IPv4 address
	Payload []byte // Frame or datagram payload
	UDP     bool   // Datagram flag
}

// PeerEvent reports a peer becoming active or inactive.
// Active transitions fire on any inbound traffic from a new or dormant peer;
// inactive transitions fire when the peer's TCP connection closes or errors.
type PeerEvent struct {
	Addr   string // Peer IPv4 address
	Active bool   // True when the peer became active
}

// Transport abstracts the socket layer between peers on a common IP network.
// It owns the peer table, framing, and broadcast discovery:
//   Start() error                       - Bind sockets and launch background loops
//   Stop() error                        - Close sockets and clear the peer table
//   SendTCP(string, []byte) error       - Frame and write bytes on a (possibly new) TCP connection
//   SendUDP(string, []byte) error       - Fire a single datagram, no delivery guarantee
//   SendBroadcast([]byte) error         - Datagram to the subnet broadcast address
//   SendTCPAll([]byte) error            - SendTCP to every known peer
//   SendUDPAll([]byte) error            - SendUDP to every known peer
//   DirectConnect(string) error         - Open a TCP connection eagerly without sending
//   LocalIP() (string, error)           - This host's IPv4 address, memoized
//   Consume() <-chan RPC                - Read-only channel of inbound messages
//   PeerEvents() <-chan PeerEvent       - Read-only channel of peer transitions
type Transport interface {
	Start() error
	Stop() error
	SendTCP(targetIP string, payload []byte) error
	SendUDP(targetIP string, payload []byte) error
	SendBroadcast(payload []byte) error
	SendTCPAll(payload []byte) error
	SendUDPAll(payload []byte) error
	DirectConnect(targetIP string) error
	LocalIP() (string, error)
	Consume() <-chan RPC
	PeerEvents() <-chan PeerEvent
}
