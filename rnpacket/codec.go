package rnpacket

import "fmt"

// Encode serializes a Packet to its wire representation. It fails with
// ErrMalformedPacket if the payload exceeds MaxPayloadLen or the IFAC field
// length doesn't match IfacFlag.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds max %d", ErrMalformedPacket, len(p.Payload), MaxPayloadLen)
	}
	if p.IfacFlag && len(p.IFAC) == 0 {
		return nil, fmt.Errorf("%w: ifac flag set with empty ifac field", ErrMalformedPacket)
	}
	if !p.IfacFlag && len(p.IFAC) != 0 {
		return nil, fmt.Errorf("%w: ifac field present without ifac flag", ErrMalformedPacket)
	}

	addrLen := AddrSize
	if p.Header == TwoAddress {
		addrLen = 2 * AddrSize
	}

	out := make([]byte, 0, 2+len(p.IFAC)+addrLen+1+len(p.Payload))
	out = append(out, p.headerByte1(), p.Hops)
	out = append(out, p.IFAC...)
	out = append(out, p.Addr1[:]...)
	if p.Header == TwoAddress {
		out = append(out, p.Addr2[:]...)
	}
	out = append(out, p.Context)
	out = append(out, p.Payload...)
	return out, nil
}

// Decode parses raw wire bytes into a Packet. ifacSize is the number of IFAC
// bytes to expect if the IFAC flag bit is set — the interface the packet
// arrived on knows this from its own configuration (spec.md §4.6); it is not
// self-describing on the wire.
func Decode(raw []byte, ifacSize int) (*Packet, error) {
	if len(raw) < 2+AddrSize+1 {
		return nil, fmt.Errorf("%w: %d bytes too short for a minimal packet", ErrMalformedPacket, len(raw))
	}

	b1 := raw[0]
	p := &Packet{
		IfacFlag:    b1&(1<<7) != 0,
		Header:      HeaderFormat((b1 >> 6) & 1),
		ContextFlag: b1&(1<<5) != 0,
		Propagation: Propagation((b1 >> 4) & 1),
		DestType:    DestinationType((b1 >> 2) & 0b11),
		PacketType:  Type(b1 & 0b11),
		Hops:        raw[1],
	}

	pos := 2
	if p.IfacFlag {
		if ifacSize <= 0 {
			return nil, fmt.Errorf("%w: ifac flag set but no ifac configured on receiving interface", ErrMalformedPacket)
		}
		if len(raw) < pos+ifacSize {
			return nil, fmt.Errorf("%w: truncated ifac field", ErrMalformedPacket)
		}
		p.IFAC = append([]byte{}, raw[pos:pos+ifacSize]...)
		pos += ifacSize
	}

	addrLen := AddrSize
	if p.Header == TwoAddress {
		addrLen = 2 * AddrSize
	}
	if len(raw) < pos+addrLen+1 {
		return nil, fmt.Errorf("%w: truncated address/context fields", ErrMalformedPacket)
	}
	copy(p.Addr1[:], raw[pos:pos+AddrSize])
	pos += AddrSize
	if p.Header == TwoAddress {
		copy(p.Addr2[:], raw[pos:pos+AddrSize])
		pos += AddrSize
	}

	p.Context = raw[pos]
	pos++

	payload := raw[pos:]
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds max %d", ErrMalformedPacket, len(payload), MaxPayloadLen)
	}
	p.Payload = append([]byte{}, payload...)

	return p, nil
}
