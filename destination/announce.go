package destination

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// Wire layout of an ANNOUNCE packet payload, frozen per spec.md §4.4:
//
//	flags(1) | enc_pub(32) | sig_pub(32) | name_hash(10) | random_blob(10) |
//	[ratchet_key(32) if flags&flagHasRatchet] | signature(64) | app_data(...)
//
// flags bit 0 signals the optional ratchet_key field is present.
const (
	nameHashLen   = 10
	randomBlobLen = 10
	flagHasRatchet = 1 << 0
)

// AnnouncePayload is the parsed payload of an ANNOUNCE packet, independent
// of the transport-level record (destination_hash, hops, received-via, …)
// that wraps it — that record belongs to the transport engine's announce
// cache (spec.md §3 "Announce record").
type AnnouncePayload struct {
	EncPub     [xcrypto.X25519KeySize]byte
	SigPub     ed25519.PublicKey
	NameHash   [nameHashLen]byte
	RandomBlob [randomBlobLen]byte
	RatchetKey *[xcrypto.X25519KeySize]byte // nil if this announce carries no ratchet rotation
	Signature  []byte
	AppData    []byte
}

// NameHash truncates SHA-256(full_name) to nameHashLen bytes, letting a
// receiver that already knows a destination's name associate an announce
// with it before the full destination_hash is known (real Reticulum permits
// discovering a destination by name hash alone; this implementation simply
// computes and carries it for that purpose).
func NameHash(appName string, aspects []string) [nameHashLen]byte {
	digest := xcrypto.SHA256([]byte(FullName(appName, aspects)))
	var h [nameHashLen]byte
	copy(h[:], digest[:nameHashLen])
	return h
}

// BuildAnnounce constructs and signs an ANNOUNCE payload for d. rotate
// forces a ratchet rotation to be embedded in this announce regardless of
// policy; otherwise the identity's RatchetPolicy decides from the number of
// announces sent since the last rotation. Only that count is evaluated: the
// elapsed time handed to the policy is always zero, so RotateEvery never
// triggers a rotation here.
func (d *Destination) BuildAnnounce(appData []byte, rotate bool) (*AnnouncePayload, error) {
	if d.Type != Single || d.Identity == nil {
		return nil, fmt.Errorf("destination: only SINGLE destinations can announce")
	}

	ap := &AnnouncePayload{
		NameHash: NameHash(d.AppName, d.Aspects),
		AppData:  append([]byte{}, appData...),
	}
	if _, err := rand.Read(ap.RandomBlob[:]); err != nil {
		return nil, fmt.Errorf("announce random blob: %w", err)
	}

	pk := d.Identity.LongTermPublicKeys()
	ap.EncPub = pk.EncPub
	ap.SigPub = append(ed25519.PublicKey{}, pk.SigPub...)

	shouldRotate := rotate || d.Identity.Policy().ShouldRotate(d.AnnouncesSinceRotate(), 0)
	if shouldRotate {
		newPub, _, err := d.Identity.Rotate()
		if err != nil {
			return nil, fmt.Errorf("announce ratchet rotation: %w", err)
		}
		ap.RatchetKey = &newPub
		d.NoteRotated()
	} else {
		d.NoteAnnounceSent()
	}

	destHash := d.Hash()
	signed := announceSignedMessage(destHash, ap)
	ap.Signature = d.Identity.Sign(signed)

	return ap, nil
}

// announceSignedMessage builds dest_hash||pubkeys||name_hash||random||app_data
// (optionally including the ratchet key, which is itself independently
// signed by Identity.Rotate — here it is additionally covered by the outer
// announce signature so a forwarder cannot splice in a different rotation).
func announceSignedMessage(destHash identity.Hash, ap *AnnouncePayload) []byte {
	buf := make([]byte, 0, len(destHash)+64+nameHashLen+randomBlobLen+32+len(ap.AppData))
	buf = append(buf, destHash[:]...)
	buf = append(buf, ap.EncPub[:]...)
	buf = append(buf, ap.SigPub...)
	buf = append(buf, ap.NameHash[:]...)
	buf = append(buf, ap.RandomBlob[:]...)
	if ap.RatchetKey != nil {
		buf = append(buf, ap.RatchetKey[:]...)
	}
	buf = append(buf, ap.AppData...)
	return buf
}

// Encode serializes an AnnouncePayload to the wire layout documented above.
func (ap *AnnouncePayload) Encode() []byte {
	var flags byte
	if ap.RatchetKey != nil {
		flags |= flagHasRatchet
	}
	out := make([]byte, 0, 1+64+nameHashLen+randomBlobLen+32+64+len(ap.AppData))
	out = append(out, flags)
	out = append(out, ap.EncPub[:]...)
	out = append(out, ap.SigPub...)
	out = append(out, ap.NameHash[:]...)
	out = append(out, ap.RandomBlob[:]...)
	if ap.RatchetKey != nil {
		out = append(out, ap.RatchetKey[:]...)
	}
	out = append(out, ap.Signature...)
	out = append(out, ap.AppData...)
	return out
}

// DecodeAnnounce parses the wire layout produced by Encode.
func DecodeAnnounce(raw []byte) (*AnnouncePayload, error) {
	minLen := 1 + xcrypto.X25519KeySize + ed25519.PublicKeySize + nameHashLen + randomBlobLen + ed25519.SignatureSize
	if len(raw) < minLen {
		return nil, fmt.Errorf("destination: announce payload too short (%d bytes)", len(raw))
	}
	pos := 0
	flags := raw[pos]
	pos++

	ap := &AnnouncePayload{}
	copy(ap.EncPub[:], raw[pos:pos+xcrypto.X25519KeySize])
	pos += xcrypto.X25519KeySize

	ap.SigPub = append(ed25519.PublicKey{}, raw[pos:pos+ed25519.PublicKeySize]...)
	pos += ed25519.PublicKeySize

	copy(ap.NameHash[:], raw[pos:pos+nameHashLen])
	pos += nameHashLen

	copy(ap.RandomBlob[:], raw[pos:pos+randomBlobLen])
	pos += randomBlobLen

	if flags&flagHasRatchet != 0 {
		if len(raw) < pos+xcrypto.X25519KeySize {
			return nil, fmt.Errorf("destination: announce payload truncated ratchet key")
		}
		var rk [xcrypto.X25519KeySize]byte
		copy(rk[:], raw[pos:pos+xcrypto.X25519KeySize])
		ap.RatchetKey = &rk
		pos += xcrypto.X25519KeySize
	}

	if len(raw) < pos+ed25519.SignatureSize {
		return nil, fmt.Errorf("destination: announce payload truncated signature")
	}
	ap.Signature = append([]byte{}, raw[pos:pos+ed25519.SignatureSize]...)
	pos += ed25519.SignatureSize

	ap.AppData = append([]byte{}, raw[pos:]...)
	return ap, nil
}

// PublicKeys extracts the PublicKeys pair embedded in an announce payload,
// for identity-hash comparison and signature verification.
func (ap *AnnouncePayload) PublicKeys() identity.PublicKeys {
	return identity.PublicKeys{EncPub: ap.EncPub, SigPub: ap.SigPub}
}

// Validate checks the announce's signature and the hash-collision defense
// invariant from spec.md §4.4 step 3 / §8 invariant 1: recomputing the
// destination_hash from the announce's own name_hash and the identity_hash
// derived from its embedded public keys must reproduce destHash exactly,
// and the embedded Ed25519 signature over
// dest_hash||pubkeys||name_hash||random||app_data must verify. Either
// failure means the announce is forged or corrupted and must be rejected
// without mutating any table (spec.md §8 invariant 1, scenario S5).
func (ap *AnnouncePayload) Validate(destHash identity.Hash) bool {
	recomputed := hashFromNameHash(Single, ap.NameHash, &identity.PublicKeys{EncPub: ap.EncPub, SigPub: ap.SigPub})
	if recomputed != destHash {
		return false
	}
	signed := announceSignedMessage(destHash, ap)
	return identity.Verify(ap.SigPub, signed, ap.Signature)
}
