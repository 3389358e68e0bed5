package rnpacket

import (
	"crypto/ed25519"
	"crypto/subtle"
	"fmt"

	"github.com/cvsouth/reticulum-go/xcrypto"
)

// ifacInfo is the HKDF context string deriving an interface's Ed25519 IFAC
// signing keypair from its configured network name and passphrase
// (spec.md §4.6).
const ifacInfo = "reticulum.ifac.signing-key"

// MinIfacBits and MaxIfacBits bound the configurable signature truncation
// length named in spec.md §4.6.
const (
	MinIfacBits = 8
	MaxIfacBits = 512
)

// IfacKey derives the Ed25519 signing keypair an interface uses to sign and
// verify IFAC fields, from its configured name and passphrase. Because both
// sides of a virtual network derive the keypair from the same preshared
// (name, passphrase) pair, IFAC verification is symmetric: the verifier
// re-derives the identical keypair and re-signs, rather than checking a
// public-key signature it could not otherwise validate once truncated.
func IfacKey(networkName, passphrase string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	seed := []byte(networkName + "\x00" + passphrase)
	material, err := xcrypto.HKDF(seed, nil, []byte(ifacInfo), ed25519.SeedSize)
	if err != nil {
		return nil, nil, fmt.Errorf("derive ifac key: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(material)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// IfacLenBytes converts a configured bit length (8-512) to a byte count,
// rounding up, and clamps to the valid range.
func IfacLenBytes(bits int) int {
	if bits < MinIfacBits {
		bits = MinIfacBits
	}
	if bits > MaxIfacBits {
		bits = MaxIfacBits
	}
	return (bits + 7) / 8
}

// SignIFAC signs everything IFAC authenticates (header byte 1, address
// fields, context, payload — hop count and the IFAC field itself excluded,
// same exclusion as the packet hash) and truncates the signature to
// ifacLen bytes.
func SignIFAC(priv ed25519.PrivateKey, p *Packet, ifacLen int) ([]byte, error) {
	sig := xcrypto.Sign(priv, ifacMessage(p))
	if ifacLen > len(sig) {
		ifacLen = len(sig)
	}
	return sig[:ifacLen], nil
}

// VerifyIFAC re-derives the signature for p under priv (the receiving
// interface's own copy of the shared IFAC key) and compares it, in constant
// time, against the received truncated field. Any length or content
// mismatch is a silent drop per spec.md §4.6/§7 (IfacMismatch).
func VerifyIFAC(priv ed25519.PrivateKey, p *Packet, receivedSig []byte) bool {
	if len(receivedSig) == 0 || len(receivedSig) > ed25519.SignatureSize {
		return false
	}
	expected, err := SignIFAC(priv, p, len(receivedSig))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, receivedSig) == 1
}

// ifacMessage builds the signed/verified byte string: header byte 1 (with
// the IFAC flag bit as it will actually be transmitted), address fields,
// context byte and payload — the same exclusions (hop count, IFAC field
// itself) as Packet.Hash.
func ifacMessage(p *Packet) []byte {
	buf := make([]byte, 0, 1+2*AddrSize+1+len(p.Payload))
	buf = append(buf, p.headerByte1())
	for _, a := range p.Addresses() {
		buf = append(buf, a[:]...)
	}
	buf = append(buf, p.Context)
	buf = append(buf, p.Payload...)
	return buf
}
