// Package rnpacket implements the Reticulum packet wire format: the header
// bit layout, address fields, IFAC framing and packet hash described in
// spec.md §3–§4.1.
//
// Grounded on the teacher's cell package (fixed/variable-length wire
// records with a Reader/Writer pair), generalized from Tor's 514-byte
// fixed cell + variable CERTS-style cell into Reticulum's bit-packed
// single-byte header with a 0–465 byte payload.
package rnpacket

import (
	"errors"
	"fmt"

	"github.com/cvsouth/reticulum-go/xcrypto"
)

// MaxPayloadLen is the maximum packet payload, spec.md §4.1 — chosen so a
// two-address packet without IFAC (2 header bytes, 32 address bytes, 1
// context byte) exactly fills a 500-byte physical MTU; IFAC bytes come on
// top of that.
const MaxPayloadLen = 465

// AddrSize is the length in bytes of one destination/link address field.
const AddrSize = 16

// ErrMalformedPacket is returned for any length, field-combination or
// boundary violation while decoding.
var ErrMalformedPacket = errors.New("rnpacket: malformed packet")

// DestinationType occupies header-byte-1 bits 3-2.
type DestinationType uint8

const (
	DestSingle DestinationType = 0b00
	DestGroup  DestinationType = 0b01
	DestPlain  DestinationType = 0b10
	DestLink   DestinationType = 0b11
)

// Type occupies header-byte-1 bits 1-0 (named Type, not PacketType, to read
// naturally as rnpacket.Type alongside rnpacket.DestinationType).
type Type uint8

const (
	Data         Type = 0b00
	Announce     Type = 0b01
	LinkRequest  Type = 0b10
	Proof        Type = 0b11
)

// HeaderFormat occupies header-byte-1 bit 6: one 16-byte address field, or
// two (used when a packet must carry both a transport-hop address and a
// final destination address).
type HeaderFormat uint8

const (
	OneAddress HeaderFormat = 0
	TwoAddress HeaderFormat = 1
)

// Propagation occupies header-byte-1 bit 4.
type Propagation uint8

const (
	Broadcast Propagation = 0
	Transport Propagation = 1
)

// MaxForwardedHops is the hop count at and beyond which a packet must not
// be forwarded further, spec.md §4.4 step 4 / §8 boundary behavior. The hop
// count byte itself can still hold up to 255 (saturating) for diagnostics.
const MaxForwardedHops = 128

// Packet is a fully decoded Reticulum packet.
type Packet struct {
	IfacFlag    bool
	Header      HeaderFormat
	ContextFlag bool
	Propagation Propagation
	DestType    DestinationType
	PacketType  Type

	Hops uint8

	// IFAC holds the raw access-code signature bytes for this packet, sized
	// per the interface's configured IFAC length (spec.md §4.6). Nil when
	// IfacFlag is false.
	IFAC []byte

	Addr1 [AddrSize]byte
	Addr2 [AddrSize]byte // valid only when Header == TwoAddress

	Context byte
	Payload []byte
}

// Addresses returns the address fields actually present on the wire (one or
// two, per Header).
func (p *Packet) Addresses() [][AddrSize]byte {
	if p.Header == TwoAddress {
		return [][AddrSize]byte{p.Addr1, p.Addr2}
	}
	return [][AddrSize]byte{p.Addr1}
}

// IncrementHops advances the hop count by one, saturating at 255 so a
// packet that has already circulated widely never wraps back to 0.
func (p *Packet) IncrementHops() {
	if p.Hops < 255 {
		p.Hops++
	}
}

// ShouldForward reports whether a transport node may still re-emit this
// packet, per spec.md §4.4 step 4 ("If hop_count ≥ 128, do not forward").
func (p *Packet) ShouldForward() bool {
	return p.Hops < MaxForwardedHops
}

// Hash computes the wire-level packet_hash: SHA-256 of the packet with the
// hop-count byte and the IFAC field excluded (spec.md §3), so relays that
// only alter hop count or re-sign IFAC do not change the identity of a
// packet for duplicate-detection purposes.
func (p *Packet) Hash() [32]byte {
	buf := make([]byte, 0, 1+2*AddrSize+1+len(p.Payload))
	buf = append(buf, p.headerByte1())
	for _, a := range p.Addresses() {
		buf = append(buf, a[:]...)
	}
	buf = append(buf, p.Context)
	buf = append(buf, p.Payload...)
	return xcrypto.SHA256(buf)
}

func (p *Packet) headerByte1() byte {
	var b byte
	if p.IfacFlag {
		b |= 1 << 7
	}
	if p.Header == TwoAddress {
		b |= 1 << 6
	}
	if p.ContextFlag {
		b |= 1 << 5
	}
	if p.Propagation == Transport {
		b |= 1 << 4
	}
	b |= byte(p.DestType) << 2
	b |= byte(p.PacketType)
	return b
}

// String renders a packet_hash as a short hex prefix for logging.
func (p *Packet) String() string {
	h := p.Hash()
	return fmt.Sprintf("packet(type=%d dest=%d hops=%d hash=%x)", p.PacketType, p.DestType, p.Hops, h[:8])
}
