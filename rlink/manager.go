package rlink

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/transport"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// ErrEstablishmentTimeout is returned by Initiate when no LINK_PROOF
// arrives within cfg.EstablishmentTimeout (spec.md §4.7 failure semantics).
var ErrEstablishmentTimeout = errors.New("rlink: establishment timeout")

// Manager owns every link this node is a party to — initiated or
// accepted — and is the bridge between the transport engine's packet
// dispatch and Link's state machine. Grounded on the teacher's circuit
// package, which plays the analogous role of turning CREATE2/CREATED2
// cells arriving at a link.Link into a keyed Circuit.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	engine *transport.TransportEngine
	logger *slog.Logger

	destinations map[identity.Hash]*destination.Destination
	links        map[identity.Hash]*Link
	pendingEph   *pendingEphemerals

	now func() time.Time
}

// NewManager wires a Manager to an already-running transport engine,
// registering the handlers that dispatch LINK_REQUEST, LINK_PROOF and
// link-addressed DATA traffic into per-link state.
func NewManager(e *transport.TransportEngine, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:          cfg,
		engine:       e,
		logger:       logger,
		destinations: make(map[identity.Hash]*destination.Destination),
		links:        make(map[identity.Hash]*Link),
		pendingEph:   newPendingEphemerals(),
		now:          time.Now,
	}
	e.RegisterLinkRequestHandler(m.onLinkRequest)
	e.RegisterProofHandler(m.onProof)
	e.RegisterLinkDataHandler(m.onLinkData)
	return m
}

// RegisterDestination makes d eligible to receive LINK_REQUESTs; whether it
// actually accepts one still depends on d.AcceptsLinks having been called.
func (m *Manager) RegisterDestination(d *destination.Destination) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destinations[d.Hash()] = d
}

// Link looks up a known link by its id.
func (m *Manager) Link(linkID identity.Hash) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[linkID]
	return l, ok
}

func (m *Manager) addLink(l *Link) {
	m.mu.Lock()
	m.links[l.id] = l
	m.mu.Unlock()
}

func (m *Manager) dropLink(linkID identity.Hash) {
	m.mu.Lock()
	delete(m.links, linkID)
	m.mu.Unlock()
}

// ErrNoPath is returned by Initiate when the transport engine holds no
// path table entry for destHash yet: a link always rides a specific
// interface end to end, so establishing one requires that a path already
// be known (e.g. from a prior announce), the same precondition real
// Reticulum expresses as "has_path(destination)".
var ErrNoPath = errors.New("rlink: no known path to destination")

// Initiate establishes a new link to destHash: it generates an ephemeral
// keypair, emits a LINK_REQUEST, and blocks until the LINK_PROOF arrives,
// cfg.EstablishmentTimeout elapses, or ctx-equivalent cancellation isn't
// offered here since spec.md ties this strictly to a wall-clock timeout
// (spec.md §4.7 steps 1/5).
func (m *Manager) Initiate(destHash identity.Hash) (*Link, error) {
	entry, hasPath := m.engine.PathTable().Lookup(destHash)
	if !hasPath {
		return nil, ErrNoPath
	}

	eph, err := xcrypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("rlink: generate ephemeral encryption key: %w", err)
	}
	ephSig, err := xcrypto.GenerateEd25519()
	if err != nil {
		return nil, fmt.Errorf("rlink: generate ephemeral signing key: %w", err)
	}

	payload := encodeLinkRequest(linkRequestPayload{EncPub: eph.Public, SigPub: ephSig.Public})
	pkt := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestSingle,
		PacketType:  rnpacket.LinkRequest,
		Addr1:       [16]byte(destHash),
		Payload:     payload,
	}
	linkID := linkIDFromPacket(pkt)

	l := &Link{
		id:              linkID,
		destHash:        destHash,
		initiator:       true,
		viaInterface:    entry.ViaInterface,
		state:           Pending,
		createdAt:       m.now(),
		establishedCh:   make(chan struct{}),
		pendingRequests: make(map[identity.Hash]chan []byte),
		manager:         m,
		cfg:             m.cfg,
	}
	m.addLink(l)
	m.pendingEph.store(linkID, eph, ephSig)

	if err := m.engine.SendViaPath(destHash, pkt); err != nil {
		m.dropLink(linkID)
		m.pendingEph.delete(linkID)
		return nil, fmt.Errorf("rlink: send link request: %w", err)
	}

	select {
	case <-l.establishedCh:
		if l.establishErr != nil {
			m.dropLink(linkID)
			return nil, l.establishErr
		}
		return l, nil
	case <-time.After(m.cfg.EstablishmentTimeout):
		m.dropLink(linkID)
		m.pendingEph.delete(linkID)
		return nil, ErrEstablishmentTimeout
	}
}

// onLinkRequest is the responder side of spec.md §4.7 steps 1-3: if the
// targeted destination is locally registered and accepts links, perform
// ECDH, derive directional keys, and reply with a LINK_PROOF.
func (m *Manager) onLinkRequest(linkID identity.Hash, viaInterface string, p *rnpacket.Packet) {
	destHash := identity.Hash(p.Addr1)

	m.mu.Lock()
	d, ok := m.destinations[destHash]
	m.mu.Unlock()
	if !ok || d.LinkAcceptCallback() == nil {
		return
	}

	req, err := decodeLinkRequest(p.Payload)
	if err != nil {
		m.logger.Debug("malformed link request", "err", err)
		return
	}

	eph, err := xcrypto.GenerateX25519()
	if err != nil {
		m.logger.Debug("generate responder ephemeral key failed", "err", err)
		return
	}
	shared, err := xcrypto.ECDH(eph.Private, req.EncPub)
	if err != nil {
		m.logger.Debug("link ecdh failed", "err", err)
		return
	}
	defer xcrypto.Zero(shared)
	i2r, r2i, err := deriveDirectionalKeys(shared)
	if err != nil {
		m.logger.Debug("derive link keys failed", "err", err)
		return
	}

	longTerm := d.Identity.LongTermPublicKeys()
	proof := linkProofPayload{EncPub: eph.Public, SigPub: append(ed25519.PublicKey{}, longTerm.SigPub...)}
	proof.Signature = d.Identity.Sign(linkProofSignedMessage(linkID, proof))

	proofPkt := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestLink,
		PacketType:  rnpacket.Proof,
		Addr1:       [16]byte(linkID),
		Payload:     encodeLinkProof(proof),
	}

	l := &Link{
		id:              linkID,
		destHash:        destHash,
		initiator:       false,
		viaInterface:    viaInterface,
		state:           Active,
		createdAt:       m.now(),
		lastInbound:     m.now(),
		sendKeys:        r2i,
		recvKeys:        i2r,
		establishedCh:   make(chan struct{}),
		pendingRequests: make(map[identity.Hash]chan []byte),
		manager:         m,
		cfg:             m.cfg,
	}
	close(l.establishedCh)
	m.addLink(l)

	if err := m.engine.SendOnInterface(viaInterface, proofPkt); err != nil {
		m.logger.Debug("send link proof failed", "err", err)
		m.dropLink(linkID)
		return
	}

	if cb := d.LinkAcceptCallback(); cb != nil {
		cb(l)
	}
}

// onProof is the initiator side of spec.md §4.7 step 5: verify the
// LINK_PROOF against the destination's known long-term signing key
// (learned from this node's own announce cache), derive the same
// directional keys, and transition the pending link to ACTIVE.
func (m *Manager) onProof(linkID identity.Hash, p *rnpacket.Packet) {
	l, ok := m.Link(linkID)
	if !ok {
		return
	}
	eph, ephSig, ok := m.pendingEph.load(linkID)
	defer m.pendingEph.delete(linkID)
	if !ok {
		return
	}
	_ = ephSig // part of the LINK_REQUEST wire format (spec.md §4.7 step 1); only
	// the responder authenticates during establishment, so this implementation
	// does not need the initiator's ephemeral signing key for anything itself

	proof, err := decodeLinkProof(p.Payload)
	if err != nil {
		m.failInitiation(l, fmt.Errorf("rlink: malformed link proof: %w", err))
		return
	}

	rec, ok := m.engine.AnnounceCache().Latest(l.destHash)
	if !ok {
		m.failInitiation(l, fmt.Errorf("rlink: no known signing key for destination %s", l.destHash.String()))
		return
	}
	if !xcrypto.Verify(rec.Payload.SigPub, linkProofSignedMessage(linkID, proof), proof.Signature) {
		m.failInitiation(l, fmt.Errorf("rlink: link proof signature invalid"))
		return
	}

	shared, err := xcrypto.ECDH(eph.Private, proof.EncPub)
	if err != nil {
		m.failInitiation(l, fmt.Errorf("rlink: link ecdh failed: %w", err))
		return
	}
	defer xcrypto.Zero(shared)
	i2r, r2i, err := deriveDirectionalKeys(shared)
	if err != nil {
		m.failInitiation(l, err)
		return
	}

	l.mu.Lock()
	l.sendKeys = i2r
	l.recvKeys = r2i
	l.state = Active
	l.lastInbound = m.now()
	l.mu.Unlock()
	close(l.establishedCh)

	if err := l.ProbeRTT(); err != nil {
		m.logger.Debug("initial rtt probe failed", "link_id", linkID.String(), "err", err)
	}
}

func (m *Manager) failInitiation(l *Link, err error) {
	l.mu.Lock()
	l.establishErr = err
	l.mu.Unlock()
	close(l.establishedCh)
}

// onLinkData dispatches inbound DATA-over-link traffic (RTT probes,
// keepalives, closes, requests/responses and ordinary payload) to the
// owning Link, once we've recovered it is genuinely one of our own
// endpoints (the transport engine only calls this for link ids it has no
// forwarding entry for).
func (m *Manager) onLinkData(p *rnpacket.Packet, viaInterface string) {
	linkID := identity.Hash(p.Addr1)
	l, ok := m.Link(linkID)
	if !ok {
		return
	}
	l.handleInbound(p)
}
