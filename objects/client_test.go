// Tests for the object client's dispatch over a fake transport
package objects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshSinghSonkhia/GoLanShare/p2p"
)

// ping is a minimal registered type for dispatch tests.
type ping struct {
	Note string
}

func (p *ping) TypeTag() string { return "Ping" }

func (p *ping) MarshalWire() ([]byte, error) {
	w := NewWriter()
	if err := w.WriteString(p.Note); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func decodePing(payload []byte) (Object, error) {
	r := NewReader(payload)
	note, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &ping{Note: note}, nil
}

// fakeTransport is an in-memory Transport that records sends and lets tests
// inject inbound traffic.
type fakeTransport struct {
	ip      string
	sent    chan []byte
	rpcch   chan p2p.RPC
	eventch chan p2p.PeerEvent
}

func newFakeTransport(ip string) *fakeTransport {
	return &fakeTransport{
		ip:      ip,
		sent:    make(chan []byte, 64),
		rpcch:   make(chan p2p.RPC, 64),
		eventch: make(chan p2p.PeerEvent, 64),
	}
}

func (f *fakeTransport) Start() error { return nil }
func (f *fakeTransport) Stop() error  { return nil }

func (f *fakeTransport) SendTCP(string, []byte) error {
	return nil
}

func (f *fakeTransport) SendUDP(string, []byte) error    { return nil }
func (f *fakeTransport) SendBroadcast(p []byte) error    { f.sent <- p; return nil }
func (f *fakeTransport) SendTCPAll([]byte) error         { return nil }
func (f *fakeTransport) SendUDPAll([]byte) error         { return nil }
func (f *fakeTransport) DirectConnect(string) error      { return nil }
func (f *fakeTransport) LocalIP() (string, error)        { return f.ip, nil }
func (f *fakeTransport) Consume() <-chan p2p.RPC         { return f.rpcch }
func (f *fakeTransport) PeerEvents() <-chan p2p.PeerEvent {
	return f.eventch
}

func startClient(t *testing.T, tr p2p.Transport) *Client {
	t.Helper()

	c := NewClient(ClientOpts{Transport: tr})
	c.Registry.Register("Ping", decodePing)
	require.NoError(t, c.Start())
	t.Cleanup(func() {
		require.NoError(t, c.Stop())
	})
	return c
}

func waitObject(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case ev := <-c.Objects():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for object event")
		return Event{}
	}
}

// TestSendWrapsEnvelope checks an outbound object is wrapped with this
// host's address and the registered tag.
func TestSendWrapsEnvelope(t *testing.T) {
	tr := newFakeTransport("10.9.9.9")
	c := startClient(t, tr)

	require.NoError(t, c.SendBroadcast(&ping{Note: "anyone there"}))

	var raw []byte
	select {
	case raw = <-tr.sent:
	case <-time.After(time.Second):
		t.Fatal("nothing sent")
	}

	env, err := UnmarshalEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", env.SourceIP)
	assert.Equal(t, "Ping", env.TypeTag)

	obj, err := c.Registry.Decode(env.TypeTag, env.Payload)
	require.NoError(t, err)
	assert.Equal(t, &ping{Note: "anyone there"}, obj)
}

// TestDispatchDecodesInOrder checks inbound envelopes come out decoded, in
// arrival order, with their envelope metadata.
func TestDispatchDecodesInOrder(t *testing.T) {
	tr := newFakeTransport("10.9.9.9")
	c := startClient(t, tr)

	for _, note := range []string{"one", "two", "three"} {
		env := &Envelope{SourceIP: "10.0.0.5", TypeTag: "Ping"}
		payload, err := (&ping{Note: note}).MarshalWire()
		require.NoError(t, err)
		env.Payload = payload

		raw, err := env.MarshalWire()
		require.NoError(t, err)
		tr.rpcch <- p2p.RPC{From: "10.0.0.5", Payload: raw, UDP: true}
	}

	for _, want := range []string{"one", "two", "three"} {
		ev := waitObject(t, c)
		assert.Equal(t, "10.0.0.5", ev.SourceIP)
		assert.Equal(t, "Ping", ev.TypeTag)
		assert.True(t, ev.UDP)
		assert.Equal(t, &ping{Note: want}, ev.Object)
	}
}

// TestBadTrafficDropped checks unknown tags and malformed envelopes are
// dropped without killing dispatch: a healthy message behind them still
// arrives.
func TestBadTrafficDropped(t *testing.T) {
	tr := newFakeTransport("10.9.9.9")
	c := startClient(t, tr)

	// Unknown tag.
	unknown := &Envelope{SourceIP: "10.0.0.5", TypeTag: "Mystery", Payload: []byte{1}}
	raw, err := unknown.MarshalWire()
	require.NoError(t, err)
	tr.rpcch <- p2p.RPC{From: "10.0.0.5", Payload: raw}

	// Garbage bytes.
	tr.rpcch <- p2p.RPC{From: "10.0.0.5", Payload: []byte{0xFF}}

	// Healthy message behind the bad ones.
	payload, err := (&ping{Note: "still alive"}).MarshalWire()
	require.NoError(t, err)
	good := &Envelope{SourceIP: "10.0.0.5", TypeTag: "Ping", Payload: payload}
	raw, err = good.MarshalWire()
	require.NoError(t, err)
	tr.rpcch <- p2p.RPC{From: "10.0.0.5", Payload: raw}

	ev := waitObject(t, c)
	assert.Equal(t, &ping{Note: "still alive"}, ev.Object)
}

// TestPeerEventsForwarded checks the transport's peer transitions surface on
// the object client.
func TestPeerEventsForwarded(t *testing.T) {
	tr := newFakeTransport("10.9.9.9")
	c := startClient(t, tr)

	tr.eventch <- p2p.PeerEvent{Addr: "10.0.0.5", Active: true}

	select {
	case ev := <-c.PeerEvents():
		assert.Equal(t, "10.0.0.5", ev.Addr)
		assert.True(t, ev.Active)
	case <-time.After(time.Second):
		t.Fatal("peer event not forwarded")
	}
}
