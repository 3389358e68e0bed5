package identity

import (
	"bytes"
	"testing"
	"time"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	id, err := New(nil)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	plaintext := []byte("hello reticulum")
	ciphertext, err := EncryptFor(id.PublicKeys().EncPub, plaintext)
	if err != nil {
		t.Fatalf("encrypt for: %v", err)
	}
	got, err := id.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptWrongIdentityFails(t *testing.T) {
	a, _ := New(nil)
	b, _ := New(nil)
	ciphertext, err := EncryptFor(a.PublicKeys().EncPub, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Fatalf("expected decryption to fail for wrong identity")
	}
}

func TestSignVerify(t *testing.T) {
	id, _ := New(nil)
	msg := []byte("announce payload")
	sig := id.Sign(msg)
	if !Verify(id.LongTermPublicKeys().SigPub, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestHashStableForSameKeys(t *testing.T) {
	id, _ := New(nil)
	h1 := id.Hash()
	h2 := HashFromKeys(id.LongTermPublicKeys())
	if h1 != h2 {
		t.Fatalf("hash mismatch: %v != %v", h1, h2)
	}
}

func TestRatchetRotationKeepsOldKeyDecryptable(t *testing.T) {
	id, _ := New(nil)
	// Encrypt against the long-term key before any rotation.
	ciphertext, err := EncryptFor(id.PublicKeys().EncPub, []byte("pre-rotation"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	newPub, sig, err := id.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !Verify(id.LongTermPublicKeys().SigPub, newPub[:], sig) {
		t.Fatalf("rotation signature does not verify")
	}
	if id.PublicKeys().EncPub == id.LongTermPublicKeys().EncPub {
		t.Fatalf("expected ratchet head to differ from long-term key after rotation")
	}

	// The packet encrypted before rotation must still decrypt.
	got, err := id.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt pre-rotation packet after rotate: %v", err)
	}
	if string(got) != "pre-rotation" {
		t.Fatalf("unexpected plaintext: %q", got)
	}

	// New packets should now target the rotated key.
	fresh, err := EncryptFor(id.PublicKeys().EncPub, []byte("post-rotation"))
	if err != nil {
		t.Fatalf("encrypt post-rotation: %v", err)
	}
	got, err = id.Decrypt(fresh)
	if err != nil {
		t.Fatalf("decrypt post-rotation packet: %v", err)
	}
	if string(got) != "post-rotation" {
		t.Fatalf("unexpected plaintext: %q", got)
	}
}

func TestRatchetPolicyDefaults(t *testing.T) {
	p := DefaultRatchetPolicy()
	if !p.ShouldRotate(10, 0) {
		t.Fatalf("expected rotation after 10 announces")
	}
	if !p.ShouldRotate(0, 24*time.Hour) {
		t.Fatalf("expected rotation after 24h")
	}
	if p.ShouldRotate(1, time.Minute) {
		t.Fatalf("did not expect rotation yet")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	id, _ := New(nil)
	var buf bytes.Buffer
	if err := id.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(&buf, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Hash() != id.Hash() {
		t.Fatalf("loaded identity hash mismatch")
	}
}
