package rnpacket

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func samplePacket(payloadLen int) *Packet {
	p := &Packet{
		Header:      OneAddress,
		Propagation: Broadcast,
		DestType:    DestSingle,
		PacketType:  Data,
		Hops:        3,
		Context:     0x01,
		Payload:     bytes.Repeat([]byte{0xAB}, payloadLen),
	}
	for i := range p.Addr1 {
		p.Addr1[i] = byte(i)
	}
	return p
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := samplePacket(100)
	wire, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(wire, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header != p.Header || got.DestType != p.DestType || got.PacketType != p.PacketType {
		t.Fatalf("header fields mismatch: %+v vs %+v", got, p)
	}
	if got.Hops != p.Hops || got.Context != p.Context {
		t.Fatalf("hops/context mismatch")
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch")
	}
	if got.Addr1 != p.Addr1 {
		t.Fatalf("addr1 mismatch")
	}
}

func TestTwoAddressRoundTrip(t *testing.T) {
	p := samplePacket(10)
	p.Header = TwoAddress
	p.DestType = DestLink
	for i := range p.Addr2 {
		p.Addr2[i] = byte(255 - i)
	}
	wire, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(wire, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Addr2 != p.Addr2 {
		t.Fatalf("addr2 mismatch")
	}
}

func TestMaxPayloadAccepted(t *testing.T) {
	p := samplePacket(MaxPayloadLen)
	if _, err := Encode(p); err != nil {
		t.Fatalf("465-byte payload should be accepted: %v", err)
	}
}

func TestOverPayloadRejected(t *testing.T) {
	p := samplePacket(MaxPayloadLen + 1)
	if _, err := Encode(p); err == nil {
		t.Fatalf("466-byte payload should be rejected")
	}
}

func TestDecodeOverPayloadRejected(t *testing.T) {
	p := samplePacket(MaxPayloadLen)
	wire, _ := Encode(p)
	wire = append(wire, 0x00) // one extra payload byte, still a structurally valid frame
	if _, err := Decode(wire, 0); err == nil {
		t.Fatalf("expected malformed packet for over-length payload")
	}
}

func TestDecodeTooShortRejected(t *testing.T) {
	if _, err := Decode([]byte{0x00, 0x00}, 0); err == nil {
		t.Fatalf("expected malformed packet for short input")
	}
}

func TestPacketHashExcludesHopsAndIfac(t *testing.T) {
	p := samplePacket(20)
	h1 := p.Hash()
	p.Hops = 200
	h2 := p.Hash()
	if h1 != h2 {
		t.Fatalf("packet hash must not depend on hop count")
	}
	p.IFAC = []byte{1, 2, 3, 4}
	if p.Hash() != h1 {
		t.Fatalf("packet hash must not depend on the ifac field")
	}
}

func TestPacketHashChangesWithPayload(t *testing.T) {
	p1 := samplePacket(20)
	p2 := samplePacket(21)
	if p1.Hash() == p2.Hash() {
		t.Fatalf("expected different hashes for different payloads")
	}
}

func TestShouldForwardBoundary(t *testing.T) {
	p := samplePacket(10)
	p.Hops = 127
	if !p.ShouldForward() {
		t.Fatalf("hop 127 should still forward")
	}
	p.Hops = 128
	if p.ShouldForward() {
		t.Fatalf("hop 128 must not forward")
	}
}

func TestIfacRoundTrip(t *testing.T) {
	priv, _, err := IfacKey("alpha-net", "correct-horse")
	if err != nil {
		t.Fatalf("ifac key: %v", err)
	}
	p := samplePacket(10)
	p.IfacFlag = true
	sig, err := SignIFAC(priv, p, ed25519.SignatureSize)
	if err != nil {
		t.Fatalf("sign ifac: %v", err)
	}
	p.IFAC = sig
	if !VerifyIFAC(priv, p, sig) {
		t.Fatalf("expected ifac to verify")
	}
}

func TestIfacDifferentPassphraseFails(t *testing.T) {
	privA, _, _ := IfacKey("alpha-net", "correct-horse")
	privB, _, _ := IfacKey("alpha-net", "wrong-horse")
	p := samplePacket(10)
	p.IfacFlag = true
	sig, _ := SignIFAC(privA, p, ed25519.SignatureSize)
	if VerifyIFAC(privB, p, sig) {
		t.Fatalf("ifac must not verify under a different passphrase")
	}
}

func TestIfacTamperedPacketFails(t *testing.T) {
	priv, _, _ := IfacKey("alpha-net", "correct-horse")
	p := samplePacket(10)
	p.IfacFlag = true
	sig, _ := SignIFAC(priv, p, ed25519.SignatureSize)
	p.Payload[0] ^= 0xFF
	if VerifyIFAC(priv, p, sig) {
		t.Fatalf("ifac must not verify over a tampered payload")
	}
}
