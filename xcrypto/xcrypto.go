// Package xcrypto implements the primitive cryptographic operations shared by
// identity, link and packet-codec code: X25519 ECDH, Ed25519 signing, HKDF
// key derivation and the SHA-256/512 hashes the wire format is built on.
//
// The pure-language crypto fallback of the reference implementation is not
// reproduced here; every primitive below is backed by a vetted library
// (golang.org/x/crypto, crypto/ed25519, filippo.io/edwards25519).
package xcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	X25519KeySize  = 32
	Ed25519PubSize = ed25519.PublicKeySize
	Ed25519SigSize = ed25519.SignatureSize
)

// X25519KeyPair holds an ephemeral or long-term Diffie-Hellman keypair.
type X25519KeyPair struct {
	Private [X25519KeySize]byte
	Public  [X25519KeySize]byte
}

// GenerateX25519 creates a fresh X25519 keypair from the OS RNG.
func GenerateX25519() (*X25519KeyPair, error) {
	var priv [X25519KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("generate x25519 private key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive x25519 public key: %w", err)
	}
	kp := &X25519KeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ECDH performs a Diffie-Hellman exchange and rejects degenerate (all-zero)
// results, which would indicate a small-subgroup or invalid peer point.
func ECDH(priv, peerPub [X25519KeySize]byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return nil, fmt.Errorf("x25519 exchange: %w", err)
	}
	if isZero(shared) {
		return nil, fmt.Errorf("x25519 exchange produced all-zeros point")
	}
	return shared, nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

// Ed25519KeyPair holds a signing keypair.
type Ed25519KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateEd25519 creates a fresh Ed25519 signing keypair.
func GenerateEd25519() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Ed25519KeyPair{Private: priv, Public: pub}, nil
}

// Sign produces an Ed25519 signature over msg.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify checks an Ed25519 signature. It first rejects public keys that do
// not decode to a valid point on the curve, the same defense the teacher
// applies to onion-address public keys before use.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA512 returns the SHA-512 digest of data.
func SHA512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// HKDF derives length bytes from secret using HKDF-SHA256 with the given
// salt and context info. Every symmetric key in this codebase (per-packet
// token keys, link directional sub-keys, ratchet advances, IFAC signing
// keys) is produced through this one function.
func HKDF(secret, salt, info []byte, length int) ([]byte, error) {
	kdf := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// Zero overwrites a byte slice in place. Call on every sensitive
// intermediate once it is no longer needed.
func Zero(b []byte) {
	clear(b)
}
