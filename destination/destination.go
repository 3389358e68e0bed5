// Package destination implements Reticulum destinations: named, hashed
// endpoints that bind an optional identity to an aspect path.
//
// Grounded on the teacher's descriptor.RelayInfo (a small, hashed, named
// record describing a reachable endpoint) generalized from "one relay
// descriptor fetched from a directory" to "any of the four destination
// kinds spec.md §3 names".
package destination

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// Type is the destination kind, spec.md §3.
type Type uint8

const (
	Single Type = iota
	Group
	Plain
	Link
)

func (t Type) String() string {
	switch t {
	case Single:
		return "SINGLE"
	case Group:
		return "GROUP"
	case Plain:
		return "PLAIN"
	case Link:
		return "LINK"
	default:
		return "UNKNOWN"
	}
}

// LinkHandle is the subset of Link behavior a registered request/accept
// callback needs. Defining it here (rather than importing package rlink)
// keeps destination free of a dependency on the link-establishment package,
// matching the tagged-variant design in spec.md §9.
type LinkHandle interface {
	LinkID() [identity.HashSize]byte
	Close() error
}

// RequestHandler answers an application-level request arriving over an
// established link: given the request path and payload, it returns a
// response payload.
type RequestHandler func(path string, requestID [identity.HashSize]byte, payload []byte) []byte

// LinkAcceptCallback is invoked when a LINK_REQUEST destined for this
// destination has produced a proven link, letting the application decide
// whether to keep it.
type LinkAcceptCallback func(l LinkHandle)

// Destination names a reachable endpoint: a type, an app name, an ordered
// aspect path, and — for SINGLE — the identity that owns it.
type Destination struct {
	mu sync.RWMutex

	Type     Type
	AppName  string
	Aspects  []string
	Identity *identity.Identity // non-nil only for SINGLE
	GroupKey [32]byte           // pre-shared key, GROUP only

	linkAccept      LinkAcceptCallback
	requestHandlers map[string]RequestHandler

	announcesSinceRotate int
}

// New creates a destination. For SINGLE destinations id must be non-nil;
// aspects must not carry user-unique data (spec.md §4.3) — the identity's
// public key already provides per-owner uniqueness.
func New(dtype Type, id *identity.Identity, appName string, aspects ...string) (*Destination, error) {
	if dtype == Single && id == nil {
		return nil, fmt.Errorf("destination: SINGLE destination requires an identity")
	}
	if appName == "" {
		return nil, fmt.Errorf("destination: app name must not be empty")
	}
	return &Destination{
		Type:            dtype,
		AppName:         appName,
		Aspects:         append([]string{}, aspects...),
		Identity:        id,
		requestHandlers: make(map[string]RequestHandler),
	}, nil
}

// FullName joins app name and aspects with '.' the way spec.md §3 describes
// the hash preimage: "app.aspect1.aspect2…".
func (d *Destination) FullName() string {
	return FullName(d.AppName, d.Aspects)
}

func FullName(appName string, aspects []string) string {
	parts := append([]string{appName}, aspects...)
	return strings.Join(parts, ".")
}

// Hash computes the destination_hash from the name hash of the UTF-8 full
// name, additionally mixed with the owning identity's hash for SINGLE
// destinations so that two SINGLE destinations with identical aspects but
// different identities never collide (spec.md §3 invariant). ComputeHash
// documents the exact preimage.
func (d *Destination) Hash() identity.Hash {
	var pk *identity.PublicKeys
	if d.Type == Single && d.Identity != nil {
		keys := d.Identity.LongTermPublicKeys()
		pk = &keys
	}
	return ComputeHash(d.Type, d.AppName, d.Aspects, pk)
}

// ComputeHash is the free-function form of Hash, usable by callers (e.g. the
// transport engine validating an announce) who only have a name_hash and
// public keys, not a live Destination value. The preimage is
// name_hash(10) || identity_hash(16) for SINGLE destinations (so a receiver
// can recompute it entirely from an announce payload's transmitted fields),
// or name_hash alone for GROUP/PLAIN, which carry no identity.
func ComputeHash(dtype Type, appName string, aspects []string, pk *identity.PublicKeys) identity.Hash {
	nameHash := NameHash(appName, aspects)
	return hashFromNameHash(dtype, nameHash, pk)
}

func hashFromNameHash(dtype Type, nameHash [nameHashLen]byte, pk *identity.PublicKeys) identity.Hash {
	buf := append([]byte{}, nameHash[:]...)
	if dtype == Single && pk != nil {
		idHash := identity.HashFromKeys(*pk)
		buf = append(buf, idHash[:]...)
	}
	digest := xcrypto.SHA256(buf)
	var h identity.Hash
	copy(h[:], digest[:identity.HashSize])
	return h
}

// AcceptsLinks registers the callback invoked when an incoming link proves
// successfully against this destination.
func (d *Destination) AcceptsLinks(cb LinkAcceptCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkAccept = cb
}

// LinkAcceptCallback returns the registered link-accept callback, if any.
func (d *Destination) LinkAcceptCallback() LinkAcceptCallback {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.linkAccept
}

// SetRequestHandler registers a handler for requests arriving at the given
// application path over any link to this destination.
func (d *Destination) SetRequestHandler(path string, cb RequestHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestHandlers[path] = cb
}

// HandlerFor looks up a registered request handler by path.
func (d *Destination) HandlerFor(path string) (RequestHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.requestHandlers[path]
	return h, ok
}

// AnnouncesSinceRotate returns how many announces have been sent since the
// identity's encryption key was last rotated, for RatchetPolicy evaluation.
func (d *Destination) AnnouncesSinceRotate() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.announcesSinceRotate
}

// NoteAnnounceSent increments the announce counter; NoteRotated resets it.
func (d *Destination) NoteAnnounceSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.announcesSinceRotate++
}

func (d *Destination) NoteRotated() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.announcesSinceRotate = 0
}
