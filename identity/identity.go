// Package identity implements Reticulum identities: the X25519/Ed25519
// keypairs an endpoint uses to prove itself, sign announces, and decrypt
// packets addressed to it.
//
// Grounded on the teacher's descriptor package (parsing and holding the key
// material a remote endpoint published) and onion/decrypt.go (the
// salt/ciphertext/MAC layout of a per-recipient encrypted blob, adapted here
// into the Fernet-style token xcrypto.EncryptToken/DecryptToken implements).
package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cvsouth/reticulum-go/xcrypto"
)

// HashSize is the length in bytes of a truncated identity/destination hash.
const HashSize = 16

// Hash identifies an Identity by the first HashSize bytes of
// SHA-256(encryption_pub || signing_pub).
type Hash [HashSize]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Identity owns one encryption keypair (X25519, also the ratchet base) and
// one signing keypair (Ed25519). Only the owner ever holds the private
// halves; everyone else references an Identity by its public keys, obtained
// from an announce or handed to them out of band.
type Identity struct {
	enc *xcrypto.X25519KeyPair
	sig *xcrypto.Ed25519KeyPair

	ratchets *RatchetLog
	policy   RatchetPolicy

	logger *slog.Logger
}

// PublicKeys is the wire-visible portion of an Identity: what gets embedded
// in an announce payload or handed out for Destination construction.
type PublicKeys struct {
	EncPub [xcrypto.X25519KeySize]byte
	SigPub ed25519.PublicKey
}

// New generates a fresh Identity from the OS RNG.
func New(logger *slog.Logger) (*Identity, error) {
	enc, err := xcrypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("generate identity encryption key: %w", err)
	}
	sig, err := xcrypto.GenerateEd25519()
	if err != nil {
		return nil, fmt.Errorf("generate identity signing key: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		enc:      enc,
		sig:      sig,
		ratchets: newRatchetLog(defaultRatchetDepth),
		policy:   DefaultRatchetPolicy(),
		logger:   logger,
	}, nil
}

// PublicKeys returns the identity's current public key material. The
// encryption key returned is the *current ratchet head* — the key a peer
// should use to encrypt_for this identity right now.
func (id *Identity) PublicKeys() PublicKeys {
	pk := PublicKeys{SigPub: append(ed25519.PublicKey{}, id.sig.Public...)}
	if head := id.ratchets.head(); head != nil {
		pk.EncPub = head.Public
	} else {
		pk.EncPub = id.enc.Public
	}
	return pk
}

// LongTermPublicKeys returns the never-rotated long-term keys, used to
// validate the identity_hash embedded in announces (spec.md §4.4 step 3).
func (id *Identity) LongTermPublicKeys() PublicKeys {
	return PublicKeys{EncPub: id.enc.Public, SigPub: append(ed25519.PublicKey{}, id.sig.Public...)}
}

// HashFromKeys computes the identity_hash for a given set of public keys: the first
// HashSize bytes of SHA-256(enc_pub || sig_pub).
func HashFromKeys(pk PublicKeys) Hash {
	buf := make([]byte, 0, len(pk.EncPub)+len(pk.SigPub))
	buf = append(buf, pk.EncPub[:]...)
	buf = append(buf, pk.SigPub...)
	digest := xcrypto.SHA256(buf)
	var h Hash
	copy(h[:], digest[:HashSize])
	return h
}

// Hash returns this identity's long-term identity_hash.
func (id *Identity) Hash() Hash {
	return HashFromKeys(id.LongTermPublicKeys())
}

// Sign produces an Ed25519 signature over msg using the identity's signing
// key.
func (id *Identity) Sign(msg []byte) []byte {
	return xcrypto.Sign(id.sig.Private, msg)
}

// Verify checks a signature against arbitrary (possibly remote) public key
// material — a free function since the verifier rarely owns the signer's
// Identity.
func Verify(sigPub ed25519.PublicKey, msg, sig []byte) bool {
	return xcrypto.Verify(sigPub, msg, sig)
}

// tokenInfo is the HKDF context string binding a per-packet token to the
// Reticulum per-packet encryption scheme, distinguishing it from link and
// IFAC key derivations that share the same HKDF primitive.
const tokenInfo = "reticulum.packet.token"

// EncryptFor encrypts plaintext for delivery to a SINGLE destination whose
// current public encryption key is peerEncPub. It generates an ephemeral
// X25519 keypair, performs ECDH, derives token keys via HKDF-SHA256, and
// returns ephemeral_pub || token (spec.md §4.2).
func EncryptFor(peerEncPub [xcrypto.X25519KeySize]byte, plaintext []byte) ([]byte, error) {
	eph, err := xcrypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	shared, err := xcrypto.ECDH(eph.Private, peerEncPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer xcrypto.Zero(shared)

	keys, err := xcrypto.DeriveTokenKeys(shared, nil, []byte(tokenInfo))
	if err != nil {
		return nil, fmt.Errorf("derive token keys: %w", err)
	}
	token, err := xcrypto.EncryptToken(keys, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}

	out := make([]byte, 0, len(eph.Public)+len(token))
	out = append(out, eph.Public[:]...)
	out = append(out, token...)
	return out, nil
}

// ErrDecryptionError is returned when a packet cannot be decrypted against
// any of this identity's current or recently-ratcheted encryption keys.
var ErrDecryptionError = fmt.Errorf("identity: decryption error")

// Decrypt reverses EncryptFor. It tries the current ratchet head first, then
// each entry in the ratchet log (newest to oldest), and finally the
// long-term key, so packets encrypted against a key this identity has since
// rotated past can still be opened for a grace window.
func (id *Identity) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < xcrypto.X25519KeySize {
		return nil, ErrDecryptionError
	}
	var ephPub [xcrypto.X25519KeySize]byte
	copy(ephPub[:], ciphertext[:xcrypto.X25519KeySize])
	token := ciphertext[xcrypto.X25519KeySize:]

	for _, candidate := range id.decryptionKeys() {
		shared, err := xcrypto.ECDH(candidate, ephPub)
		if err != nil {
			continue
		}
		keys, err := xcrypto.DeriveTokenKeys(shared, nil, []byte(tokenInfo))
		xcrypto.Zero(shared)
		if err != nil {
			continue
		}
		plaintext, err := xcrypto.DecryptToken(keys, token)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrDecryptionError
}

// decryptionKeys returns the candidate private encryption keys to try, most
// recently rotated first, ending with the long-term key.
func (id *Identity) decryptionKeys() [][xcrypto.X25519KeySize]byte {
	keys := id.ratchets.privateKeys()
	keys = append(keys, id.enc.Private)
	return keys
}

// Rotate advances the ratchet: a fresh X25519 keypair becomes the new
// encryption head, and the previous head is retained in the ratchet log so
// in-flight packets encrypted against it remain decryptable. Returns the new
// public key and a signature over it (signed with the long-term signing
// key), ready to embed in the next announce as the ratchet_key field.
func (id *Identity) Rotate() (newPub [xcrypto.X25519KeySize]byte, signature []byte, err error) {
	fresh, err := xcrypto.GenerateX25519()
	if err != nil {
		return newPub, nil, fmt.Errorf("rotate: generate key: %w", err)
	}
	id.ratchets.push(fresh)
	signature = id.Sign(fresh.Public[:])
	return fresh.Public, signature, nil
}

// Policy returns the identity's ratchet rotation policy.
func (id *Identity) Policy() RatchetPolicy { return id.policy }

// SetPolicy installs a new ratchet rotation policy (spec.md §9: "per-destination
// policy controlled by the destination owner").
func (id *Identity) SetPolicy(p RatchetPolicy) { id.policy = p }

// persistedIdentity is the on-disk JSON layout for an Identity, following
// the teacher's directory.Cache convention of small JSON snapshot files.
type persistedIdentity struct {
	EncPriv [xcrypto.X25519KeySize]byte `json:"enc_priv"`
	EncPub  [xcrypto.X25519KeySize]byte `json:"enc_pub"`
	SigPriv []byte                      `json:"sig_priv"`
	SigPub  []byte                      `json:"sig_pub"`
}

// Save writes the identity's private key material to w as JSON. Callers are
// responsible for writing to a file with restrictive permissions; the
// on-disk format itself is implementation-defined per spec.md §6.
func (id *Identity) Save(w io.Writer) error {
	p := persistedIdentity{
		EncPriv: id.enc.Private,
		EncPub:  id.enc.Public,
		SigPriv: append([]byte{}, id.sig.Private...),
		SigPub:  append([]byte{}, id.sig.Public...),
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	return nil
}

// Load reconstructs an Identity previously written by Save.
func Load(r io.Reader, logger *slog.Logger) (*Identity, error) {
	var p persistedIdentity
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if len(p.SigPriv) != ed25519.PrivateKeySize || len(p.SigPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decode identity: malformed signing key")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		enc: &xcrypto.X25519KeyPair{Private: p.EncPriv, Public: p.EncPub},
		sig: &xcrypto.Ed25519KeyPair{
			Private: ed25519.PrivateKey(p.SigPriv),
			Public:  ed25519.PublicKey(p.SigPub),
		},
		ratchets: newRatchetLog(defaultRatchetDepth),
		policy:   DefaultRatchetPolicy(),
		logger:   logger,
	}, nil
}
