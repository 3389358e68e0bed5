package transport

import (
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
)

// handleData implements spec.md §4.5: local delivery, path-table
// forwarding, or path-request-and-queue on a miss.
func (e *TransportEngine) handleData(fromName string, p *rnpacket.Packet) {
	if p.DestType == rnpacket.DestLink {
		e.handleLinkData(fromName, p)
		return
	}

	now := e.now()
	destHash := identity.Hash(p.Addr1)

	if p.Context == ContextPathRequest {
		e.handlePathRequest(fromName, destHash, p, now)
		return
	}

	e.mu.RLock()
	_, isLocal := e.localDest[destHash]
	handlers := append([]DataHandler{}, e.dataHandlers...)
	e.mu.RUnlock()
	if isLocal {
		for _, h := range handlers {
			h(p)
		}
		return
	}

	if p.Propagation != rnpacket.Transport {
		return // UnknownDestination on a BROADCAST packet: drop (spec.md §7)
	}

	if entry, ok := e.pathTable.Lookup(destHash); ok {
		e.forwardData(entry, p)
		return
	}

	// UnknownDestination on a TRANSPORT packet: queue and ask (spec.md §4.5).
	e.pending.add(destHash, p, now)
	e.broadcastPathRequest(fromName, destHash)
}

// handleLinkData implements spec.md §4.8's forwarding side: a DATA packet
// addressed by link_id (destination-type LINK) is routed using the link
// table, not the path table, since forwarders along an established link
// know only its two neighbouring interfaces, not the identity of either
// endpoint. If no link table entry matches, this node is one of the
// link's own endpoints (a forwarder always records an entry for a link it
// relays; an endpoint never does for its own link), so the packet is
// delivered to registered link handlers instead.
func (e *TransportEngine) handleLinkData(fromName string, p *rnpacket.Packet) {
	linkID := identity.Hash(p.Addr1)

	entry, ok := e.linkTable.Lookup(linkID)
	if !ok {
		e.mu.RLock()
		handlers := append([]LinkDataHandler{}, e.linkDataHandlers...)
		e.mu.RUnlock()
		for _, h := range handlers {
			h(p, fromName)
		}
		return
	}
	if !p.ShouldForward() {
		return
	}

	nextIface := entry.NextHopInterface
	if fromName == entry.NextHopInterface {
		nextIface = entry.PrevHopInterface
	}
	fwd := *p
	fwd.IncrementHops()
	raw, err := rnpacket.Encode(&fwd)
	if err != nil {
		e.logger.Debug("re-encode link data for forward failed", "err", err)
		return
	}
	e.mu.RLock()
	ri, ok := e.interfaces[nextIface]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if err := ri.iface.Send(e.signIfNeeded(ri, &fwd, raw)); err != nil {
		e.logger.Debug("link data forward failed", "err", err)
	}
}

func (e *TransportEngine) forwardData(entry PathEntry, p *rnpacket.Packet) {
	if !p.ShouldForward() {
		return
	}
	fwd := *p
	fwd.IncrementHops()
	raw, err := rnpacket.Encode(&fwd)
	if err != nil {
		e.logger.Debug("re-encode data for forward failed", "err", err)
		return
	}
	e.mu.RLock()
	ri, ok := e.interfaces[entry.ViaInterface]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if err := ri.iface.Send(e.signIfNeeded(ri, &fwd, raw)); err != nil {
		e.logger.Debug("forward send failed", "err", err)
	}
}

// broadcastPathRequest emits a PATH_REQUEST (a DATA packet flagged with
// ContextPathRequest, addressed to destHash) on every interface besides the
// one the originating packet arrived on.
func (e *TransportEngine) broadcastPathRequest(exceptInterface string, destHash identity.Hash) {
	pr := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestSingle,
		PacketType:  rnpacket.Data,
		Context:     ContextPathRequest,
		Addr1:       [16]byte(destHash),
	}
	raw, err := rnpacket.Encode(pr)
	if err != nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for name, ri := range e.interfaces {
		if name == exceptInterface {
			continue
		}
		if err := ri.iface.Send(e.signIfNeeded(ri, pr, raw)); err != nil {
			e.logger.Debug("path request send failed", "interface", name, "err", err)
		}
	}
}

// handlePathRequest answers from the announce cache when possible
// (path-response piggyback), otherwise forwards the request onward.
func (e *TransportEngine) handlePathRequest(fromName string, destHash identity.Hash, p *rnpacket.Packet, now time.Time) {
	if rec, ok := e.announceCache.Latest(destHash); ok {
		e.mu.RLock()
		ri, ok := e.interfaces[fromName]
		e.mu.RUnlock()
		if !ok {
			return
		}
		resp := &rnpacket.Packet{
			Header:      rnpacket.OneAddress,
			Propagation: rnpacket.Broadcast,
			DestType:    rnpacket.DestSingle,
			PacketType:  rnpacket.Announce,
			Hops:        rec.Hops,
			Addr1:       [16]byte(destHash),
			Payload:     rec.Payload.Encode(),
		}
		raw, err := rnpacket.Encode(resp)
		if err != nil {
			return
		}
		if err := ri.iface.Send(e.signIfNeeded(ri, resp, raw)); err != nil {
			e.logger.Debug("path response send failed", "err", err)
		}
		return
	}

	if !p.ShouldForward() {
		return
	}
	fwd := *p
	fwd.IncrementHops()
	raw, err := rnpacket.Encode(&fwd)
	if err != nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for name, ri := range e.interfaces {
		if name == fromName {
			continue
		}
		if err := ri.iface.Send(e.signIfNeeded(ri, &fwd, raw)); err != nil {
			e.logger.Debug("path request forward failed", "interface", name, "err", err)
		}
	}
}
