// Package rlink implements Reticulum link establishment and operation:
// the LINK_REQUEST/LINK_PROOF/RTT-probe handshake (spec.md §4.7) and the
// encrypted, ratcheting, keepalive-maintained connection that follows
// (spec.md §4.8).
//
// Grounded on the teacher's circuit package for its per-hop crypto state
// and mutex discipline (Circuit.Hops / Hop{kf,kb,df,db}, generalized here
// from a multi-hop AES-CTR/SHA-1 onion layer into a single AES-CBC+HMAC
// directional pair per link) and its ntor package for the handshake/KDF
// shape, adapted from ntor's HMAC AUTH tag into Reticulum's Ed25519-signed
// LINK_PROOF.
package rlink

import "time"

// Config carries the interface-bitrate-dependent defaults spec.md §9
// leaves open, frozen in SPEC_FULL.md §4: a LoRa-class interface wants
// long keepalives and a generous establishment timeout; a fast interface
// can override every field here without touching the link state machine.
type Config struct {
	// PartSize is the resource-transfer chunk size in bytes (spec.md §4.9).
	PartSize int
	// KeepaliveInterval is how often an idle ACTIVE link sends a keepalive.
	KeepaliveInterval time.Duration
	// StaleTime is how long without inbound traffic before a link is
	// marked STALE; a further StaleTime without traffic closes it.
	StaleTime time.Duration
	// EstablishmentTimeout bounds how long an initiator waits for a
	// LINK_PROOF before failing with ErrEstablishmentTimeout.
	EstablishmentTimeout time.Duration
}

// DefaultConfig returns the frozen defaults from SPEC_FULL.md §4.
func DefaultConfig() Config {
	return Config{
		PartSize:             128,
		KeepaliveInterval:    360 * time.Second,
		StaleTime:            720 * time.Second,
		EstablishmentTimeout: 15 * time.Second,
	}
}
