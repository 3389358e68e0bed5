package transport

import (
	"fmt"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
	"github.com/cvsouth/reticulum-go/rnpacket"
)

// Announce builds and originates an ANNOUNCE for d (spec.md §4.3
// `announce(app_data?, path_response=false)`). A path-response announce
// bypasses the priority queue and retransmit schedule entirely, sending
// once on every interface immediately (SPEC_FULL.md's piggyback feature);
// a normal announce is enqueued on every interface eligible to carry
// traffic originated locally (treated as a FULL-mode source for the
// propagation matrix).
func (e *TransportEngine) Announce(d *destination.Destination, appData []byte, pathResponse bool) error {
	ap, err := d.BuildAnnounce(appData, false)
	if err != nil {
		return fmt.Errorf("transport: build announce: %w", err)
	}
	destHash := d.Hash()

	pkt := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Broadcast,
		DestType:    rnpacket.DestSingle,
		PacketType:  rnpacket.Announce,
		Addr1:       [16]byte(destHash),
		Payload:     ap.Encode(),
	}
	raw, err := rnpacket.Encode(pkt)
	if err != nil {
		return fmt.Errorf("transport: encode announce: %w", err)
	}

	now := e.now()
	packetHash := pkt.Hash()
	selfIdentity := identity.HashFromKeys(ap.PublicKeys())
	e.pathTable.Update(destHash, selfIdentity, "local", 0, riface.Full, now)
	e.announceCache.Record(AnnounceRecord{
		DestHash:    destHash,
		PacketHash:  packetHash,
		Payload:     ap,
		Hops:        0,
		ReceivedVia: "local",
		Timestamp:   now,
	})

	e.mu.RLock()
	handlers := append([]AnnounceHandler{}, e.announceHandlers...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(AnnounceRecord{DestHash: destHash, PacketHash: packetHash, Payload: ap, Hops: 0, ReceivedVia: "local", Timestamp: now})
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ri := range e.interfaces {
		if !EligibleToForward(riface.Full, ri.descriptor.Mode) {
			continue
		}
		signed := e.signIfNeeded(ri, pkt, raw)
		if pathResponse {
			if err := ri.iface.Send(signed); err != nil {
				e.logger.Debug("path-response announce send failed", "interface", ri.descriptor.Name, "err", err)
			}
			continue
		}
		ri.queue.Push(&QueuedAnnounce{
			PacketHash:         packetHash,
			DestHash:           destHash,
			Raw:                signed,
			Hops:               0,
			Priority:           Priority(0),
			EnqueuedAt:         now,
			RetransmitDeadline: now.Add(RetransmitDelay(0) + retransmitGrace),
		})
	}
	return nil
}

// SendViaPath transmits pkt toward destHash using the current path table
// entry if one exists; otherwise, for TRANSPORT-propagation packets, it
// queues pkt and triggers a PATH_REQUEST (spec.md §4.5). BROADCAST packets
// with no known path fail immediately with PathExpired semantics.
func (e *TransportEngine) SendViaPath(destHash identity.Hash, pkt *rnpacket.Packet) error {
	if entry, ok := e.pathTable.Lookup(destHash); ok {
		raw, err := rnpacket.Encode(pkt)
		if err != nil {
			return fmt.Errorf("transport: encode packet: %w", err)
		}
		e.mu.RLock()
		ri, ok := e.interfaces[entry.ViaInterface]
		e.mu.RUnlock()
		if !ok {
			return fmt.Errorf("transport: interface %s no longer registered", entry.ViaInterface)
		}
		return ri.iface.Send(e.signIfNeeded(ri, pkt, raw))
	}
	if pkt.Propagation == rnpacket.Transport {
		e.pending.add(destHash, pkt, e.now())
		e.broadcastPathRequest("", destHash)
		return nil
	}
	return fmt.Errorf("transport: no path known to destination %s", destHash.String())
}

// SendOnInterface encodes, IFAC-signs if required, and transmits pkt
// directly on the named interface, bypassing path lookup and the announce
// queue. Used for link-layer return traffic (a LINK_PROOF travels back the
// literal way its LINK_REQUEST arrived, not via a fresh path-table lookup)
// and for already-established link traffic bound to a known interface.
func (e *TransportEngine) SendOnInterface(name string, pkt *rnpacket.Packet) error {
	e.mu.RLock()
	ri, ok := e.interfaces[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: interface %s not registered", name)
	}
	raw, err := rnpacket.Encode(pkt)
	if err != nil {
		return fmt.Errorf("transport: encode packet: %w", err)
	}
	return ri.iface.Send(e.signIfNeeded(ri, pkt, raw))
}
