// Object layer client for GoLanShare
// Wraps outbound objects in envelopes, unwraps and dispatches inbound ones
// by type tag, and re-exposes the transport's peer events.
package objects

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/AnshSinghSonkhia/GoLanShare/p2p"
)

// Event is one decoded object delivered to the application.
type Event struct {
	SourceIP string // From the envelope
	TypeTag  string // Registered type name
	UDP      bool   // True when carried by a datagram
	Object   Object // The decoded inner object
}

// ClientOpts holds configuration for Client.
//
//	Transport - The socket layer to run over (required)
//	Registry  - Type registry; a fresh one is created when nil
type ClientOpts struct {
	Transport p2p.Transport
	Registry  *Registry
}

// Client is the object layer. It is a strict client of one Transport:
// outbound objects are serialized and framed through it, inbound raw
// messages are decoded and dispatched in arrival order.
type Client struct {
	ClientOpts

	localIP string

	objch  chan Event
	peerch chan p2p.PeerEvent

	mu      sync.Mutex
	started bool
	stopped bool
	quitch  chan struct{}
	wg      sync.WaitGroup
}

// NewClient creates an object client over the given transport.
func NewClient(opts ClientOpts) *Client {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	return &Client{
		ClientOpts: opts,
		objch:      make(chan Event, 1024),
		peerch:     make(chan p2p.PeerEvent, 64),
		quitch:     make(chan struct{}),
	}
}

// Objects returns a read-only channel of decoded inbound objects.
func (c *Client) Objects() <-chan Event {
	return c.objch
}

// PeerEvents re-exposes the transport's peer transitions.
func (c *Client) PeerEvents() <-chan p2p.PeerEvent {
	return c.peerch
}

// LocalIP returns the transport's local address.
func (c *Client) LocalIP() (string, error) {
	return c.Transport.LocalIP()
}

// Start starts the underlying transport and the dispatch loop.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("object client already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.Transport.Start(); err != nil {
		return err
	}

	ip, err := c.Transport.LocalIP()
	if err != nil {
		c.Transport.Stop()
		return err
	}
	c.localIP = ip

	c.wg.Add(1)
	go c.dispatchLoop()
	return nil
}

// Stop halts dispatch and stops the underlying transport.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.quitch)
	c.mu.Unlock()

	err := c.Transport.Stop()
	c.wg.Wait()
	return err
}

// SendTCP serializes obj, wraps it in an envelope naming this host as the
// source, and writes it on a reliable connection to targetIP.
func (c *Client) SendTCP(targetIP string, obj Object) error {
	data, err := c.wrap(obj)
	if err != nil {
		return err
	}
	return c.Transport.SendTCP(targetIP, data)
}

// SendUDP sends obj to targetIP as a single datagram.
func (c *Client) SendUDP(targetIP string, obj Object) error {
	data, err := c.wrap(obj)
	if err != nil {
		return err
	}
	return c.Transport.SendUDP(targetIP, data)
}

// SendBroadcast sends obj to the subnet broadcast address.
func (c *Client) SendBroadcast(obj Object) error {
	data, err := c.wrap(obj)
	if err != nil {
		return err
	}
	return c.Transport.SendBroadcast(data)
}

// SendTCPAll sends obj to every known peer over TCP.
func (c *Client) SendTCPAll(obj Object) error {
	data, err := c.wrap(obj)
	if err != nil {
		return err
	}
	return c.Transport.SendTCPAll(data)
}

// SendUDPAll sends obj to every known peer as datagrams.
func (c *Client) SendUDPAll(obj Object) error {
	data, err := c.wrap(obj)
	if err != nil {
		return err
	}
	return c.Transport.SendUDPAll(data)
}

// wrap serializes obj and its envelope.
func (c *Client) wrap(obj Object) ([]byte, error) {
	payload, err := obj.MarshalWire()
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling %s", obj.TypeTag())
	}

	env := &Envelope{
		SourceIP: c.localIP,
		TypeTag:  obj.TypeTag(),
		Payload:  payload,
	}
	return env.MarshalWire()
}

// dispatchLoop is the single consumer of the transport's channels. Running
// decode and dispatch on one goroutine preserves per-sender message order.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case rpc := <-c.Transport.Consume():
			c.handleRPC(rpc)
		case pe := <-c.Transport.PeerEvents():
			select {
			case c.peerch <- pe:
			default:
			}
		case <-c.quitch:
			return
		}
	}
}

// handleRPC decodes one raw message. Malformed envelopes and unknown tags
// are logged and dropped without touching the connection.
func (c *Client) handleRPC(rpc p2p.RPC) {
	env, err := UnmarshalEnvelope(rpc.Payload)
	if err != nil {
		log.Printf("dropping message from %s: %v", rpc.From, err)
		return
	}

	obj, err := c.Registry.Decode(env.TypeTag, env.Payload)
	if err != nil {
		log.Printf("dropping %q envelope from %s: %v", env.TypeTag, rpc.From, err)
		return
	}

	ev := Event{
		SourceIP: env.SourceIP,
		TypeTag:  env.TypeTag,
		UDP:      rpc.UDP,
		Object:   obj,
	}

	select {
	case c.objch <- ev:
	case <-c.quitch:
	}
}
