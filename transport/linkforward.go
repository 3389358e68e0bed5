package transport

import (
	"crypto/ed25519"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// linkStaleInterval is how long a forwarder keeps a proven link table entry
// alive (spec.md §4.7 step 4: "expires_at = now + link_stale_interval"),
// matching the link layer's own stale_time (spec.md §4.8, frozen at 720s in
// SPEC_FULL.md §4).
const linkStaleInterval = 720 * time.Second

// handleLinkRequest implements spec.md §4.7 step 2: record an unproven
// forwarding entry keyed by link_id = truncated SHA-256 of the request
// packet, and forward toward the destination per the path table, or
// deliver locally if this node owns the destination.
func (e *TransportEngine) handleLinkRequest(fromName string, p *rnpacket.Packet) {
	destHash := identity.Hash(p.Addr1)
	linkID := linkIDFromRequest(p)

	e.mu.RLock()
	_, isLocal := e.localDest[destHash]
	handlers := append([]LinkRequestHandler{}, e.linkRequestHandlers...)
	e.mu.RUnlock()
	if isLocal {
		for _, h := range handlers {
			h(linkID, fromName, p)
		}
		return
	}

	entry, ok := e.pathTable.Lookup(destHash)
	if !ok || !p.ShouldForward() {
		return
	}

	e.linkTable.RecordRequest(linkID, destHash, fromName, entry.ViaInterface, p.Hops, e.now())

	fwd := *p
	fwd.IncrementHops()
	raw, err := rnpacket.Encode(&fwd)
	if err != nil {
		return
	}
	e.mu.RLock()
	ri, ok := e.interfaces[entry.ViaInterface]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if err := ri.iface.Send(e.signIfNeeded(ri, &fwd, raw)); err != nil {
		e.logger.Debug("link request forward failed", "err", err)
	}
}

// linkIDFromRequest computes link_id = truncated SHA-256(link_request
// packet) (spec.md §4.7 step 2), reusing Packet.Hash's exclusion of hop
// count and IFAC so every forwarder along the path computes the same value
// regardless of its own hop-count view or IFAC segment.
func linkIDFromRequest(p *rnpacket.Packet) identity.Hash {
	h := p.Hash()
	var id identity.Hash
	copy(id[:], h[:identity.HashSize])
	return id
}

// handleProof implements spec.md §4.7 steps 4-5 on a forwarder: verify the
// LINK_PROOF signature against the destination's known signing key (from
// the announce cache), mark the link table entry proven, and forward back
// along prev_hop_interface. If this node holds no forwarding entry for the
// link_id, it is the link's initiator and the proof is delivered locally
// instead.
func (e *TransportEngine) handleProof(fromName string, p *rnpacket.Packet) {
	linkID := identity.Hash(p.Addr1)

	entry, ok := e.linkTable.Lookup(linkID)
	if !ok {
		e.mu.RLock()
		handlers := append([]ProofHandler{}, e.proofHandlers...)
		e.mu.RUnlock()
		for _, h := range handlers {
			h(linkID, p)
		}
		return
	}

	if rec, ok := e.announceCache.Latest(entry.DestHash); ok {
		if !verifyLinkProof(rec.Payload.SigPub, linkID, p.Payload) {
			e.logger.Debug("link proof signature invalid, dropping", "link_id", linkID.String())
			return // spec.md §4.7: forwarder drops the proof, lets the entry expire
		}
	}

	e.linkTable.MarkProven(linkID, p.Payload, linkStaleInterval, e.now())

	fwd := *p
	fwd.IncrementHops()
	raw, err := rnpacket.Encode(&fwd)
	if err != nil {
		return
	}
	e.mu.RLock()
	ri, ok := e.interfaces[entry.PrevHopInterface]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if err := ri.iface.Send(e.signIfNeeded(ri, &fwd, raw)); err != nil {
		e.logger.Debug("link proof forward failed", "err", err)
	}
}

// linkProofMinLen is encPub(32) + sigPub(32) + Ed25519 signature(64).
const linkProofMinLen = 32 + ed25519.PublicKeySize + ed25519.SignatureSize

// verifyLinkProof checks a LINK_PROOF payload's embedded signature over
// link_id || responder_encryption_pub || responder_signing_pub against the
// destination's long-term signing key known from its cached announce
// (spec.md §4.7 step 4).
func verifyLinkProof(destSigPub ed25519.PublicKey, linkID identity.Hash, payload []byte) bool {
	if len(payload) < linkProofMinLen {
		return false
	}
	encPub := payload[0:32]
	sigPub := payload[32 : 32+ed25519.PublicKeySize]
	sig := payload[32+ed25519.PublicKeySize : linkProofMinLen]

	msg := make([]byte, 0, identity.HashSize+32+ed25519.PublicKeySize)
	msg = append(msg, linkID[:]...)
	msg = append(msg, encPub...)
	msg = append(msg, sigPub...)
	return xcrypto.Verify(destSigPub, msg, sig)
}
