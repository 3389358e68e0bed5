package rlink

import (
	"fmt"
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// State is a link's position in the lifecycle spec.md §4.7/§4.8 describe:
// PENDING while a LINK_REQUEST is outstanding, ACTIVE once the LINK_PROOF
// validates, STALE after Config.StaleTime passes with no inbound traffic,
// and CLOSED on explicit teardown or once twice StaleTime has passed with
// no inbound traffic.
type State uint8

const (
	Pending State = iota
	Active
	Stale
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Stale:
		return "STALE"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ratchetInfo is the HKDF context string for the per-packet link ratchet
// (spec.md §4.8: "HKDF input = previous key ∥ packet_hash").
const ratchetInfo = "reticulum.link.ratchet"

// ratchetAdvance derives the next directional token-key pair from the
// current one and the packet_hash of the packet just sent or received,
// giving the link continuous forward secrecy one packet at a time.
func ratchetAdvance(prev *xcrypto.TokenKeys, packetHash [32]byte) (*xcrypto.TokenKeys, error) {
	combined := make([]byte, 0, xcrypto.TokenKeyLen+len(packetHash))
	combined = append(combined, prev.EncKey[:]...)
	combined = append(combined, prev.MACKey[:]...)
	combined = append(combined, packetHash[:]...)
	next, err := xcrypto.DeriveTokenKeys(combined, nil, []byte(ratchetInfo))
	xcrypto.Zero(combined)
	if err != nil {
		return nil, fmt.Errorf("rlink: ratchet advance: %w", err)
	}
	return next, nil
}

// Link is one end of an established Reticulum link: a pair of ratcheting
// directional keys over a specific interface, addressed by link_id.
type Link struct {
	mu sync.Mutex

	id           identity.Hash
	destHash     identity.Hash
	initiator    bool
	viaInterface string

	state State

	sendKeys *xcrypto.TokenKeys
	recvKeys *xcrypto.TokenKeys

	createdAt    time.Time
	lastInbound  time.Time
	lastOutbound time.Time

	rtt            time.Duration
	rttEWMA        float64   // milliseconds, 0 until the first sample (SPEC_FULL.md §3 RTT sampling)
	rttProbeSentAt time.Time

	dataHandler     func([]byte)
	resourceHandler func(ctx byte, payload []byte)
	peerIdentity    *identity.PublicKeys // set once a valid IDENTIFY arrives

	pendingRequests map[identity.Hash]chan []byte

	establishedCh chan struct{}
	establishErr  error
	closeOnce     sync.Once

	manager *Manager
	cfg     Config
}

// LinkID satisfies destination.LinkHandle.
func (l *Link) LinkID() [identity.HashSize]byte { return l.id }

// DestHash returns the destination this link connects to.
func (l *Link) DestHash() identity.Hash { return l.destHash }

// State reports the link's current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initiator reports whether this end originated the link.
func (l *Link) Initiator() bool { return l.initiator }

// PeerIdentity returns the long-term public keys the other end proved
// ownership of via IDENTIFY, if any.
func (l *Link) PeerIdentity() (identity.PublicKeys, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peerIdentity == nil {
		return identity.PublicKeys{}, false
	}
	return *l.peerIdentity, true
}

// SetDataHandler registers the callback invoked for every plaintext
// payload arriving with ContextData (ordinary application traffic over
// the link, as opposed to a Request/Response exchange).
func (l *Link) SetDataHandler(h func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dataHandler = h
}

// SetResourceHandler registers the callback invoked for every resource
// transfer context (advertise/accept/reject/part/ack, spec.md §4.9),
// letting package resource implement its own sub-protocol on top of a
// plain Link without rlink needing to know its wire shape.
func (l *Link) SetResourceHandler(h func(ctx byte, payload []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resourceHandler = h
}

// RTT returns the most recently measured round-trip time, or 0 if no
// sample has been taken yet.
func (l *Link) RTT() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rtt
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Link) noteInbound(now time.Time) {
	l.mu.Lock()
	l.lastInbound = now
	if l.state == Stale {
		l.state = Active
	}
	l.mu.Unlock()
}

func (l *Link) noteOutbound(now time.Time) {
	l.mu.Lock()
	l.lastOutbound = now
	l.mu.Unlock()
}

// sampleRTT folds a fresh round-trip measurement into the smoothed
// estimate (simple EWMA). Samples come only from RTT-probe echoes;
// keepalives are not echoed and do not update the estimate.
func (l *Link) sampleRTT(sample time.Duration) {
	const alpha = 0.2
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rtt = sample
	ms := float64(sample.Milliseconds())
	if l.rttEWMA == 0 {
		l.rttEWMA = ms
	} else {
		l.rttEWMA = alpha*ms + (1-alpha)*l.rttEWMA
	}
}

// EWMARTT returns the smoothed round-trip estimate in milliseconds, for
// scaling resource-transfer timeouts (spec.md §4.9).
func (l *Link) EWMARTT() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.rttEWMA) * time.Millisecond
}
