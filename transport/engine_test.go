package transport

import (
	"testing"
	"time"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
	"github.com/cvsouth/reticulum-go/rnpacket"
)

func announcePacketForTest(destHash identity.Hash, ap *destination.AnnouncePayload) *rnpacket.Packet {
	return &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Broadcast,
		DestType:    rnpacket.DestSingle,
		PacketType:  rnpacket.Announce,
		Addr1:       [16]byte(destHash),
		Payload:     ap.Encode(),
	}
}

func mustEncode(t *testing.T, p *rnpacket.Packet) []byte {
	t.Helper()
	raw, err := rnpacket.Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func mustRegister(t *testing.T, e *TransportEngine, iface riface.Interface) {
	t.Helper()
	if err := e.RegisterInterface(iface, 10); err != nil {
		t.Fatalf("register interface: %v", err)
	}
}

// waitFor polls cond until it returns true or the deadline elapses.
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

// TestAnnounceConvergesAcrossTwoHops builds N1 -- N2 -- N3 and checks that
// after N1 announces, N3 learns a 2-hop path to the destination (spec.md §8
// scenario S1).
func TestAnnounceConvergesAcrossTwoHops(t *testing.T) {
	n1, n2a := riface.NewPipePair("n1-out", "n2-in", 1500, 10_000, riface.Full, riface.Full, riface.IfacConfig{}, riface.IfacConfig{})
	n2b, n3 := riface.NewPipePair("n2-out", "n3-in", 1500, 10_000, riface.Full, riface.Full, riface.IfacConfig{}, riface.IfacConfig{})
	defer n1.Close()
	defer n2a.Close()
	defer n2b.Close()
	defer n3.Close()

	e1 := New(nil)
	e2 := New(nil)
	e3 := New(nil)
	mustRegister(t, e1, n1)
	mustRegister(t, e2, n2a)
	mustRegister(t, e2, n2b)
	mustRegister(t, e3, n3)

	id, _ := identity.New(nil)
	d, _ := destination.New(destination.Single, id, "chat", "room")

	if err := e1.Announce(d, nil, false); err != nil {
		t.Fatalf("announce: %v", err)
	}

	// Drive propagation by repeatedly draining each engine's queues.
	waitFor(t, 2*time.Second, func() bool {
		e1.drainQueues()
		e2.drainQueues()
		e3.drainQueues()
		_, ok := e3.PathTable().Lookup(d.Hash())
		return ok
	})

	entry, ok := e3.PathTable().Lookup(d.Hash())
	if !ok {
		t.Fatalf("expected N3 to learn a path to the destination")
	}
	if entry.Hops != 2 {
		t.Fatalf("expected 2 hops at N3, got %d", entry.Hops)
	}
}

// TestIfacMismatchDropsSilently is scenario S4: interfaces with different
// passphrases cannot hear each other's traffic.
func TestIfacMismatchDropsSilently(t *testing.T) {
	a, b := riface.NewPipePair("alpha", "beta", 1500, 10_000, riface.Full, riface.Full,
		riface.IfacConfig{NetworkName: "mesh", Passphrase: "alpha", Bits: 64},
		riface.IfacConfig{NetworkName: "mesh", Passphrase: "beta", Bits: 64})
	defer a.Close()
	defer b.Close()

	e1 := New(nil)
	e2 := New(nil)
	mustRegister(t, e1, a)
	mustRegister(t, e2, b)

	id, _ := identity.New(nil)
	d, _ := destination.New(destination.Single, id, "chat", "room")
	if err := e1.Announce(d, nil, false); err != nil {
		t.Fatalf("announce: %v", err)
	}
	e1.drainQueues()

	time.Sleep(20 * time.Millisecond)
	if _, ok := e2.PathTable().Lookup(d.Hash()); ok {
		t.Fatalf("expected mismatched-passphrase interface to drop the announce")
	}
	if e2.AnnounceCache().Len() != 0 {
		t.Fatalf("expected announce cache on the mismatched side to stay empty")
	}
}

// TestDuplicateAnnounceLeavesPathTableUnchanged is invariant 5 from spec.md
// §8: redelivering the same announce must not mutate table state further.
func TestDuplicateAnnounceLeavesPathTableUnchanged(t *testing.T) {
	e := New(nil)
	id, _ := identity.New(nil)
	d, _ := destination.New(destination.Single, id, "chat", "room")
	ap, err := d.BuildAnnounce(nil, false)
	if err != nil {
		t.Fatalf("build announce: %v", err)
	}

	a, b := riface.NewPipePair("a", "b", 1500, 10_000, riface.Full, riface.Full, riface.IfacConfig{}, riface.IfacConfig{})
	defer a.Close()
	defer b.Close()
	mustRegister(t, e, b)

	pkt := announcePacketForTest(d.Hash(), ap)
	raw := mustEncode(t, pkt)

	if err := a.Send(raw); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, ok := e.PathTable().Lookup(d.Hash())
		return ok
	})
	before, _ := e.PathTable().Lookup(d.Hash())

	if err := a.Send(raw); err != nil {
		t.Fatalf("resend: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	after, _ := e.PathTable().Lookup(d.Hash())
	if before != after {
		t.Fatalf("expected path table entry to be unchanged after duplicate announce: %+v vs %+v", before, after)
	}
}
