package rlink

import (
	"sync"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// pendingEphemerals holds an initiator's ephemeral keypairs between
// sending a LINK_REQUEST and receiving its LINK_PROOF, keyed by link_id.
// Kept separate from Link itself so a Link value never carries private
// key material once establishment completes.
type pendingEphemerals struct {
	mu      sync.Mutex
	entries map[identity.Hash]pendingEph
}

type pendingEph struct {
	enc *xcrypto.X25519KeyPair
	sig *xcrypto.Ed25519KeyPair
}

func newPendingEphemerals() *pendingEphemerals {
	return &pendingEphemerals{entries: make(map[identity.Hash]pendingEph)}
}

func (p *pendingEphemerals) store(linkID identity.Hash, enc *xcrypto.X25519KeyPair, sig *xcrypto.Ed25519KeyPair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[linkID] = pendingEph{enc: enc, sig: sig}
}

func (p *pendingEphemerals) load(linkID identity.Hash) (*xcrypto.X25519KeyPair, *xcrypto.Ed25519KeyPair, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[linkID]
	if !ok {
		return nil, nil, false
	}
	return e.enc, e.sig, true
}

func (p *pendingEphemerals) delete(linkID identity.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, linkID)
}
