package rlink

import (
	"fmt"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// send encrypts plaintext under the current send key, transmits it as a
// link-addressed DATA packet on the interface the link is bound to, and
// advances the send ratchet (spec.md §4.8: "a per-packet ratchet advances
// the key after each transmission").
func (l *Link) send(ctx byte, plaintext []byte) error {
	l.mu.Lock()
	keys := l.sendKeys
	state := l.state
	l.mu.Unlock()
	if keys == nil || state == Closed {
		return fmt.Errorf("rlink: link %s is not active", l.id.String())
	}

	token, err := xcrypto.EncryptToken(keys, plaintext)
	if err != nil {
		return fmt.Errorf("rlink: encrypt link packet: %w", err)
	}
	pkt := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestLink,
		PacketType:  rnpacket.Data,
		ContextFlag: true,
		Context:     ctx,
		Addr1:       [16]byte(l.id),
		Payload:     token,
	}
	if err := l.manager.engine.SendOnInterface(l.viaInterface, pkt); err != nil {
		return fmt.Errorf("rlink: send link packet: %w", err)
	}

	packetHash := pkt.Hash()
	l.noteOutbound(l.manager.now())
	l.mu.Lock()
	if next, rerr := ratchetAdvance(l.sendKeys, packetHash); rerr == nil {
		l.sendKeys = next
	}
	l.mu.Unlock()
	return nil
}

// Send transmits an ordinary application payload over the link
// (ContextData).
func (l *Link) Send(payload []byte) error {
	return l.send(ContextData, payload)
}

// SendRaw transmits payload under a caller-chosen context byte. Package
// resource uses this to carry its own advertise/accept/reject/part/ack
// messages over an established link without rlink needing to know their
// shape (spec.md §4.9).
func (l *Link) SendRaw(ctx byte, payload []byte) error {
	return l.send(ctx, payload)
}

// Close tears the link down immediately via an explicit LINK_CLOSE
// context value (spec.md §4.8), idempotently.
func (l *Link) Close() error {
	var sendErr error
	l.closeOnce.Do(func() {
		sendErr = l.send(ContextClose, nil)
		l.setState(Closed)
		l.manager.dropLink(l.id)
	})
	return sendErr
}

// ProbeRTT sends the post-activation RTT probe (spec.md §4.7: "immediately
// after activation, the initiator sends a small RTT probe; the responder
// echoes").
func (l *Link) ProbeRTT() error {
	l.mu.Lock()
	l.rttProbeSentAt = l.manager.now()
	l.mu.Unlock()
	return l.send(ContextRTTProbe, nil)
}

// Keepalive sends an idle-link keepalive (spec.md §4.8).
func (l *Link) Keepalive() error {
	return l.send(ContextKeepalive, nil)
}

// Identify sends the optional post-activation IDENTIFY packet: the
// caller's long-term identity public keys and a signature over link_id,
// authenticating it to the other end without revealing identity to
// forwarders (spec.md §4.8).
func (l *Link) Identify(id *identity.Identity) error {
	return l.send(ContextIdentify, encodeIdentify(l.id, id))
}

// handleInbound decrypts and dispatches one link-addressed DATA packet
// (spec.md §4.8): a packet that fails the MAC check, LINK_CLOSE included,
// is dropped silently without touching link state, and everything else is
// routed by its context byte.
func (l *Link) handleInbound(p *rnpacket.Packet) {
	now := l.manager.now()

	l.mu.Lock()
	keys := l.recvKeys
	l.mu.Unlock()
	if keys == nil {
		return
	}

	plaintext, err := xcrypto.DecryptToken(keys, p.Payload)
	if err != nil {
		l.manager.logger.Debug("link mac failure, dropping", "link_id", l.id.String())
		return // spec.md §4.8: MAC failure on a link packet => drop silently
	}

	l.noteInbound(now)

	packetHash := p.Hash()
	l.mu.Lock()
	if next, rerr := ratchetAdvance(l.recvKeys, packetHash); rerr == nil {
		l.recvKeys = next
	}
	l.mu.Unlock()

	switch p.Context {
	case ContextClose:
		l.setState(Closed)
		l.manager.dropLink(l.id)
	case ContextRTTProbe:
		_ = l.send(ContextRTTEcho, nil)
	case ContextRTTEcho:
		l.mu.Lock()
		sentAt := l.rttProbeSentAt
		l.mu.Unlock()
		if !sentAt.IsZero() {
			l.sampleRTT(now.Sub(sentAt))
		}
	case ContextKeepalive:
		// noteInbound above already reset staleness.
	case ContextIdentify:
		l.manager.handleIdentify(l, plaintext)
	case ContextRequest:
		l.manager.handleRequest(l, plaintext)
	case ContextResponse:
		l.manager.handleResponse(l, plaintext)
	case ContextData:
		l.mu.Lock()
		h := l.dataHandler
		l.mu.Unlock()
		if h != nil {
			h(plaintext)
		}
	case ContextResourceAdvertise, ContextResourceAccept, ContextResourceReject, ContextResourcePart, ContextResourceAck:
		l.mu.Lock()
		h := l.resourceHandler
		l.mu.Unlock()
		if h != nil {
			h(p.Context, plaintext)
		}
	}
}
