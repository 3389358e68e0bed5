package rlink

import (
	"testing"
	"time"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/transport"
)

// waitFor polls cond until it returns true or the deadline elapses,
// mirroring the transport package's own test helper.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EstablishmentTimeout = 2 * time.Second
	return cfg
}

// linkedPair wires two transport engines over an in-process pipe, gives the
// responder side a SINGLE destination that accepts links, and waits for
// the initiator to learn a path to it via a normal announce.
type linkedPair struct {
	e1, e2 *transport.TransportEngine
	m1, m2 *Manager
	d2     *destination.Destination
}

func newLinkedPair(t *testing.T, cfg Config) *linkedPair {
	t.Helper()
	a, b := riface.NewPipePair("init-out", "resp-in", 1500, 10_000, riface.Full, riface.Full, riface.IfacConfig{}, riface.IfacConfig{})
	t.Cleanup(func() { a.Close(); b.Close() })

	e1 := transport.New(nil)
	e2 := transport.New(nil)
	if err := e1.RegisterInterface(a, 10); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := e2.RegisterInterface(b, 10); err != nil {
		t.Fatalf("register b: %v", err)
	}

	m1 := NewManager(e1, cfg, nil)
	m2 := NewManager(e2, cfg, nil)

	id2, err := identity.New(nil)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	d2, err := destination.New(destination.Single, id2, "rlinktest", "chat")
	if err != nil {
		t.Fatalf("new destination: %v", err)
	}
	e2.RegisterLocalDestination(d2)
	m2.RegisterDestination(d2)

	if err := e2.Announce(d2, nil, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		e1.DrainQueues()
		e2.DrainQueues()
		_, ok := e1.PathTable().Lookup(d2.Hash())
		return ok
	})

	return &linkedPair{e1: e1, e2: e2, m1: m1, m2: m2, d2: d2}
}

func TestInitiateFailsWithoutKnownPath(t *testing.T) {
	e := transport.New(nil)
	m := NewManager(e, testConfig(), nil)
	var destHash identity.Hash
	copy(destHash[:], []byte("unreachable012345"))

	if _, err := m.Initiate(destHash); err != ErrNoPath {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestLinkEstablishmentAndDataRoundTrip(t *testing.T) {
	p := newLinkedPair(t, testConfig())

	accepted := make(chan *Link, 1)
	p.d2.AcceptsLinks(func(l destination.LinkHandle) {
		accepted <- l.(*Link)
	})

	l1, err := p.m1.Initiate(p.d2.Hash())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if l1.State() != Active {
		t.Fatalf("expected initiator link to be active, got %s", l1.State())
	}
	if !l1.Initiator() {
		t.Fatalf("expected initiator flag to be set on the originating side")
	}

	var l2 *Link
	select {
	case l2 = <-accepted:
	case <-time.After(time.Second):
		t.Fatalf("responder never observed the accepted link")
	}
	if l2.State() != Active {
		t.Fatalf("expected responder link to be active, got %s", l2.State())
	}
	if l2.Initiator() {
		t.Fatalf("responder side must not report itself as initiator")
	}
	if l1.LinkID() != l2.LinkID() {
		t.Fatalf("both ends must agree on link_id: %x vs %x", l1.LinkID(), l2.LinkID())
	}

	waitFor(t, time.Second, func() bool { return l1.RTT() > 0 })

	received := make(chan []byte, 1)
	l2.SetDataHandler(func(payload []byte) { received <- payload })

	payload := []byte("hello over the link")
	if err := l1.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Fatalf("responder received %q, want %q", got, payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("responder never received the data payload")
	}

	if err := l1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, time.Second, func() bool { return l2.State() == Closed })
	if _, ok := p.m1.Link(identity.Hash(l1.LinkID())); ok {
		t.Fatalf("expected closed link to be dropped from the initiator's manager")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	p := newLinkedPair(t, testConfig())
	p.d2.AcceptsLinks(func(l destination.LinkHandle) {})
	p.d2.SetRequestHandler("ping", func(path string, requestID [identity.HashSize]byte, payload []byte) []byte {
		return []byte("pong:" + string(payload))
	})

	l1, err := p.m1.Initiate(p.d2.Hash())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	resp, err := l1.Request("ping", []byte("hi"), time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(resp) != "pong:hi" {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestRequestTimesOutWithoutHandler(t *testing.T) {
	p := newLinkedPair(t, testConfig())
	p.d2.AcceptsLinks(func(l destination.LinkHandle) {})

	l1, err := p.m1.Initiate(p.d2.Hash())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if _, err := l1.Request("no/such/path", nil, 50*time.Millisecond); err != ErrRequestTimeout {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
}

func TestEstablishmentTimesOutWhenDestinationDoesNotAcceptLinks(t *testing.T) {
	cfg := testConfig()
	cfg.EstablishmentTimeout = 50 * time.Millisecond
	p := newLinkedPair(t, cfg)
	// Deliberately never call p.d2.AcceptsLinks.

	if _, err := p.m1.Initiate(p.d2.Hash()); err != ErrEstablishmentTimeout {
		t.Fatalf("expected ErrEstablishmentTimeout, got %v", err)
	}
}

func TestHandleInboundDropsOnMacFailure(t *testing.T) {
	p := newLinkedPair(t, testConfig())
	accepted := make(chan *Link, 1)
	p.d2.AcceptsLinks(func(l destination.LinkHandle) { accepted <- l.(*Link) })

	l1, err := p.m1.Initiate(p.d2.Hash())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	var l2 *Link
	select {
	case l2 = <-accepted:
	case <-time.After(time.Second):
		t.Fatalf("responder never observed the accepted link")
	}

	received := make(chan []byte, 1)
	l2.SetDataHandler(func(payload []byte) { received <- payload })

	l2.mu.Lock()
	recvKeysBefore := *l2.recvKeys
	l2.mu.Unlock()

	// A link-addressed DATA packet whose payload cannot possibly decrypt
	// under the current receive key.
	bogus := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestLink,
		PacketType:  rnpacket.Data,
		ContextFlag: true,
		Context:     ContextData,
		Addr1:       l1.LinkID(),
		Payload:     []byte("not a valid token ciphertext"),
	}
	l2.handleInbound(bogus)

	select {
	case <-received:
		t.Fatalf("expected the forged packet to be dropped, not delivered")
	case <-time.After(50 * time.Millisecond):
	}

	l2.mu.Lock()
	recvKeysAfter := *l2.recvKeys
	l2.mu.Unlock()
	if recvKeysBefore != recvKeysAfter {
		t.Fatalf("a MAC failure must not advance the receive ratchet")
	}
}
