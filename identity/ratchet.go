package identity

import (
	"time"

	"github.com/cvsouth/reticulum-go/xcrypto"
)

// defaultRatchetDepth bounds how many rotated-past encryption keys an
// identity keeps around to decrypt straggling in-flight packets.
const defaultRatchetDepth = 4

// RatchetPolicy controls when a destination rotates its asymmetric
// encryption key to provide forward secrecy on a per-announce basis
// (spec.md §4.2, §9: cadence is "per-destination policy controlled by the
// destination owner", deliberately left unspecified by the source material).
type RatchetPolicy struct {
	RotateEveryAnnounces int           // rotate after this many announces; 0 disables
	RotateEvery          time.Duration // rotate after this much wall-clock time; 0 disables
}

// DefaultRatchetPolicy rotates on every 10th announce or every 24 hours,
// whichever comes first — the frozen default chosen per spec.md §9.
func DefaultRatchetPolicy() RatchetPolicy {
	return RatchetPolicy{RotateEveryAnnounces: 10, RotateEvery: 24 * time.Hour}
}

// ShouldRotate reports whether policy requires a rotation given the number
// of announces sent since the last rotation and the time elapsed since.
func (p RatchetPolicy) ShouldRotate(announcesSinceRotate int, elapsed time.Duration) bool {
	if p.RotateEveryAnnounces > 0 && announcesSinceRotate >= p.RotateEveryAnnounces {
		return true
	}
	if p.RotateEvery > 0 && elapsed >= p.RotateEvery {
		return true
	}
	return false
}

// RatchetLog is a small ring buffer of previously-rotated encryption
// keypairs, newest first, used so packets encrypted against a key this
// identity has since rotated past remain decryptable for a grace window.
type RatchetLog struct {
	depth   int
	entries []*xcrypto.X25519KeyPair
}

func newRatchetLog(depth int) *RatchetLog {
	return &RatchetLog{depth: depth}
}

func (l *RatchetLog) push(kp *xcrypto.X25519KeyPair) {
	l.entries = append([]*xcrypto.X25519KeyPair{kp}, l.entries...)
	if len(l.entries) > l.depth {
		l.entries = l.entries[:l.depth]
	}
}

func (l *RatchetLog) head() *xcrypto.X25519KeyPair {
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[0]
}

func (l *RatchetLog) privateKeys() [][xcrypto.X25519KeySize]byte {
	out := make([][xcrypto.X25519KeySize]byte, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Private)
	}
	return out
}
