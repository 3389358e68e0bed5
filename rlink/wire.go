package rlink

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/xcrypto"
)

// Context byte values for DATA packets addressed to a link_id (spec.md
// §4.8: "an explicit LINK_CLOSE context value on a link packet tears it
// down immediately"; the others are this implementation's concrete
// assignment of the RTT probe/echo, keepalive, identify and
// request/response traffic spec.md names but does not itself enumerate a
// byte value for).
const (
	ContextData      byte = 0x00
	ContextRTTProbe  byte = 0x01
	ContextRTTEcho   byte = 0x02
	ContextKeepalive byte = 0x03
	ContextClose     byte = 0x04
	ContextIdentify  byte = 0x05
	ContextRequest   byte = 0x06
	ContextResponse  byte = 0x07

	// The resource-transfer contexts (spec.md §4.9): advertise, accept,
	// reject, a single numbered part, and a windowed bitmap ack. Dispatched
	// to whatever handler package resource installs via
	// Link.SetResourceHandler rather than interpreted here.
	ContextResourceAdvertise byte = 0x08
	ContextResourceAccept    byte = 0x09
	ContextResourceReject    byte = 0x0A
	ContextResourcePart      byte = 0x0B
	ContextResourceAck       byte = 0x0C
)

// initiatorToResponderInfo/responderToInitiatorInfo are the HKDF context strings deriving the two
// directional token-key pairs from one ECDH shared secret (spec.md §4.7:
// "directional sub-keys via HKDF with context strings
// initiator→responder / responder→initiator").
const (
	initiatorToResponderInfo = "reticulum.link.initiator->responder"
	responderToInitiatorInfo = "reticulum.link.responder->initiator"
)

// linkRequestPayload is (encryption_pub ∥ signing_pub) per spec.md §4.7
// step 1. The ephemeral signing key is carried on the wire only; nothing in
// this package reads it (only the responder authenticates at handshake
// time, and IDENTIFY carries the caller's long-term keys instead).
type linkRequestPayload struct {
	EncPub [xcrypto.X25519KeySize]byte
	SigPub ed25519.PublicKey
}

func encodeLinkRequest(p linkRequestPayload) []byte {
	out := make([]byte, 0, xcrypto.X25519KeySize+ed25519.PublicKeySize)
	out = append(out, p.EncPub[:]...)
	out = append(out, p.SigPub...)
	return out
}

func decodeLinkRequest(raw []byte) (linkRequestPayload, error) {
	var p linkRequestPayload
	if len(raw) < xcrypto.X25519KeySize+ed25519.PublicKeySize {
		return p, fmt.Errorf("rlink: link request payload too short")
	}
	copy(p.EncPub[:], raw[:xcrypto.X25519KeySize])
	p.SigPub = append(ed25519.PublicKey{}, raw[xcrypto.X25519KeySize:xcrypto.X25519KeySize+ed25519.PublicKeySize]...)
	return p, nil
}

// linkProofPayload is (responder_encryption_pub ∥ responder_signing_pub ∥
// signature) per spec.md §4.7 step 3, where responder_signing_pub is the
// destination's long-term signing key (the same key forwarders already
// know from its cached announce) and the signature covers
// link_id ∥ responder_pubs under that same long-term key.
type linkProofPayload struct {
	EncPub    [xcrypto.X25519KeySize]byte
	SigPub    ed25519.PublicKey
	Signature []byte
}

const linkProofMinLen = xcrypto.X25519KeySize + ed25519.PublicKeySize + ed25519.SignatureSize

func encodeLinkProof(p linkProofPayload) []byte {
	out := make([]byte, 0, linkProofMinLen)
	out = append(out, p.EncPub[:]...)
	out = append(out, p.SigPub...)
	out = append(out, p.Signature...)
	return out
}

func decodeLinkProof(raw []byte) (linkProofPayload, error) {
	var p linkProofPayload
	if len(raw) < linkProofMinLen {
		return p, fmt.Errorf("rlink: link proof payload too short")
	}
	copy(p.EncPub[:], raw[:xcrypto.X25519KeySize])
	pos := xcrypto.X25519KeySize
	p.SigPub = append(ed25519.PublicKey{}, raw[pos:pos+ed25519.PublicKeySize]...)
	pos += ed25519.PublicKeySize
	p.Signature = append([]byte{}, raw[pos:pos+ed25519.SignatureSize]...)
	return p, nil
}

func linkProofSignedMessage(linkID identity.Hash, p linkProofPayload) []byte {
	msg := make([]byte, 0, identity.HashSize+xcrypto.X25519KeySize+ed25519.PublicKeySize)
	msg = append(msg, linkID[:]...)
	msg = append(msg, p.EncPub[:]...)
	msg = append(msg, p.SigPub...)
	return msg
}

// identifyPayload carries a caller's long-term identity public keys and a
// signature over link_id, proving ownership to the link's other end
// without exposing identity to any forwarder (spec.md §4.8 "Identify").
type identifyPayload struct {
	EncPub    [xcrypto.X25519KeySize]byte
	SigPub    ed25519.PublicKey
	Signature []byte
}

const identifyMinLen = xcrypto.X25519KeySize + ed25519.PublicKeySize + ed25519.SignatureSize

func encodeIdentify(linkID identity.Hash, id *identity.Identity) []byte {
	pk := id.LongTermPublicKeys()
	sig := id.Sign(linkID[:])
	out := make([]byte, 0, identifyMinLen)
	out = append(out, pk.EncPub[:]...)
	out = append(out, pk.SigPub...)
	out = append(out, sig...)
	return out
}

func decodeIdentify(raw []byte) (identifyPayload, error) {
	var p identifyPayload
	if len(raw) < identifyMinLen {
		return p, fmt.Errorf("rlink: identify payload too short")
	}
	copy(p.EncPub[:], raw[:xcrypto.X25519KeySize])
	pos := xcrypto.X25519KeySize
	p.SigPub = append(ed25519.PublicKey{}, raw[pos:pos+ed25519.PublicKeySize]...)
	pos += ed25519.PublicKeySize
	p.Signature = append([]byte{}, raw[pos:pos+ed25519.SignatureSize]...)
	return p, nil
}

// linkIDFromPacket computes link_id = truncated SHA-256(link_request
// packet), spec.md §4.7 step 2. Packet.Hash already excludes hop count and
// IFAC, so every participant — initiator, forwarders and responder —
// computes the same value regardless of how many hops the packet has
// travelled or which interface it arrived on.
func linkIDFromPacket(p *rnpacket.Packet) identity.Hash {
	h := p.Hash()
	var id identity.Hash
	copy(id[:], h[:identity.HashSize])
	return id
}

// deriveDirectionalKeys turns one ECDH shared secret into the initiator's
// and responder's send/receive key pairs (spec.md §4.7: "derives a
// symmetric key via HKDF" / "both endpoints derive directional sub-keys").
func deriveDirectionalKeys(shared []byte) (i2r, r2i *xcrypto.TokenKeys, err error) {
	i2r, err = xcrypto.DeriveTokenKeys(shared, nil, []byte(initiatorToResponderInfo))
	if err != nil {
		return nil, nil, fmt.Errorf("rlink: derive initiator->responder key: %w", err)
	}
	r2i, err = xcrypto.DeriveTokenKeys(shared, nil, []byte(responderToInitiatorInfo))
	if err != nil {
		return nil, nil, fmt.Errorf("rlink: derive responder->initiator key: %w", err)
	}
	return i2r, r2i, nil
}
