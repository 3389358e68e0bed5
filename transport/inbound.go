package transport

import (
	"time"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
	"github.com/cvsouth/reticulum-go/rnpacket"
)

// Context byte values the engine assigns to DATA packets it originates for
// path discovery (spec.md §4.5). These are a transport-internal protocol,
// not part of the packet codec's header bits, and reuse the existing
// ANNOUNCE machinery for the response rather than defining a new wire
// payload: a PATH_RESPONSE is simply the cached announce for the requested
// destination, sent once back on the interface the request arrived on
// (the path-response piggyback feature).
const (
	ContextPathRequest byte = 0xF0
)

// announceRetry is spec.md §4.4 step 7's r=1.
const announceRetry = 1

// retransmitGrace is spec.md §4.4 step 7's t=10s.
const retransmitGrace = 10 * time.Second

// handleInbound is the callback wired to every registered interface: decode,
// verify IFAC if configured, and dispatch by packet type.
func (e *TransportEngine) handleInbound(fromName string, raw []byte, stats riface.Stats) {
	e.mu.RLock()
	ri, ok := e.interfaces[fromName]
	e.mu.RUnlock()
	if !ok {
		return
	}

	ifacSize := 0
	if ri.descriptor.Ifac.Enabled() {
		ifacSize = rnpacket.IfacLenBytes(ri.descriptor.Ifac.Bits)
	}

	p, err := rnpacket.Decode(raw, ifacSize)
	if err != nil {
		e.logger.Debug("malformed packet", "interface", fromName, "err", err)
		return
	}

	if ri.descriptor.Ifac.Enabled() {
		priv, _, kerr := rnpacket.IfacKey(ri.descriptor.Ifac.NetworkName, ri.descriptor.Ifac.Passphrase)
		if kerr != nil || !rnpacket.VerifyIFAC(priv, p, p.IFAC) {
			e.logger.Debug("ifac mismatch, dropping", "interface", fromName)
			return
		}
	}

	switch p.PacketType {
	case rnpacket.Announce:
		e.handleAnnounce(fromName, p)
	case rnpacket.Data:
		e.handleData(fromName, p)
	case rnpacket.LinkRequest:
		e.handleLinkRequest(fromName, p)
	case rnpacket.Proof:
		e.handleProof(fromName, p)
	}
}

// handleAnnounce implements spec.md §4.4 steps 1-8.
func (e *TransportEngine) handleAnnounce(fromName string, p *rnpacket.Packet) {
	now := e.now()
	packetHash := p.Hash()
	if e.announceCache.Seen(packetHash) {
		return // step 1
	}

	destHash := identity.Hash(p.Addr1)
	ap, err := destination.DecodeAnnounce(p.Payload)
	if err != nil {
		e.logger.Debug("malformed announce payload", "err", err)
		return
	}
	if !ap.Validate(destHash) {
		e.logger.Debug("announce signature/collision check failed", "dest", destHash.String())
		return // step 3
	}

	e.mu.RLock()
	fromMode := riface.Full
	if ri, ok := e.interfaces[fromName]; ok {
		fromMode = ri.descriptor.Mode
	}
	e.mu.RUnlock()

	// The received hop count is how many hops the announce had travelled
	// when the neighbour emitted it; this node is one hop further away.
	hops := p.Hops
	if hops < 255 {
		hops++
	}
	nextHop := identity.HashFromKeys(ap.PublicKeys())
	e.pathTable.Update(destHash, nextHop, fromName, hops, fromMode, now) // step 2

	rec := AnnounceRecord{
		DestHash:           destHash,
		PacketHash:         packetHash,
		Payload:            ap,
		Hops:               hops,
		ReceivedVia:        fromName,
		Timestamp:          now,
		RetransmitDeadline: now.Add(RetransmitDelay(p.Hops)),
	}
	if !e.announceCache.Record(rec) {
		return
	}

	e.mu.RLock()
	handlers := append([]AnnounceHandler{}, e.announceHandlers...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(rec)
	}

	// step 9 (supplemented): flush anything waiting on a path for this
	// destination now that we have one.
	e.flushPending(destHash, fromName, now)

	if p.Hops >= rnpacket.MaxForwardedHops {
		return // step 4
	}

	e.enqueueForward(fromName, fromMode, destHash, p, packetHash, now)
}

// enqueueForward re-hops p and enqueues it on every interface eligible per
// the propagation matrix (spec.md §4.4 step 5, §6).
func (e *TransportEngine) enqueueForward(fromName string, fromMode riface.Mode, destHash identity.Hash, p *rnpacket.Packet, packetHash [32]byte, now time.Time) {
	forwarded := *p
	forwarded.IncrementHops()
	raw, err := rnpacket.Encode(&forwarded)
	if err != nil {
		e.logger.Debug("re-encode for forward failed", "err", err)
		return
	}

	priority := Priority(forwarded.Hops)
	item := &QueuedAnnounce{
		PacketHash:         packetHash,
		DestHash:           destHash,
		Raw:                raw,
		Hops:               forwarded.Hops,
		Priority:           priority,
		EnqueuedAt:         now,
		RetransmitDeadline: now.Add(RetransmitDelay(forwarded.Hops) + retransmitGrace),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for name, ri := range e.interfaces {
		if name == fromName {
			continue
		}
		if !EligibleToForward(fromMode, ri.descriptor.Mode) {
			continue
		}
		signed := e.signIfNeeded(ri, &forwarded, raw)
		cp := *item
		cp.Raw = signed
		ri.queue.Push(&cp)
	}
}

// signIfNeeded re-signs an outbound frame's IFAC for the given interface if
// it requires one.
func (e *TransportEngine) signIfNeeded(ri *registeredInterface, p *rnpacket.Packet, plainRaw []byte) []byte {
	if !ri.descriptor.Ifac.Enabled() {
		return plainRaw
	}
	priv, _, err := rnpacket.IfacKey(ri.descriptor.Ifac.NetworkName, ri.descriptor.Ifac.Passphrase)
	if err != nil {
		return plainRaw
	}
	signed := *p
	signed.IfacFlag = true
	sig, err := rnpacket.SignIFAC(priv, &signed, rnpacket.IfacLenBytes(ri.descriptor.Ifac.Bits))
	if err != nil {
		return plainRaw
	}
	signed.IFAC = sig
	raw, err := rnpacket.Encode(&signed)
	if err != nil {
		return plainRaw
	}
	return raw
}

// flushPending re-forwards any DATA packets queued on a path miss for
// destHash, now that a path or announce has arrived for it.
func (e *TransportEngine) flushPending(destHash identity.Hash, viaInterface string, now time.Time) {
	pkts := e.pending.flush(destHash, now)
	if len(pkts) == 0 {
		return
	}
	entry, ok := e.pathTable.Lookup(destHash)
	if !ok {
		return
	}
	e.mu.RLock()
	ri, ok := e.interfaces[entry.ViaInterface]
	e.mu.RUnlock()
	if !ok {
		return
	}
	for _, p := range pkts {
		raw, err := rnpacket.Encode(p)
		if err != nil {
			continue
		}
		if err := ri.iface.Send(e.signIfNeeded(ri, p, raw)); err != nil {
			e.logger.Debug("flush pending send failed", "err", err)
		}
	}
}
