package destination

import (
	"bytes"
	"testing"

	"github.com/cvsouth/reticulum-go/identity"
)

func TestBuildAnnounceValidates(t *testing.T) {
	id, _ := identity.New(nil)
	d, err := New(Single, id, "example", "chat")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ap, err := d.BuildAnnounce([]byte("hello"), false)
	if err != nil {
		t.Fatalf("build announce: %v", err)
	}

	if !ap.Validate(d.Hash()) {
		t.Fatalf("expected announce to validate")
	}
}

func TestAnnounceEncodeDecodeRoundTrip(t *testing.T) {
	id, _ := identity.New(nil)
	d, _ := New(Single, id, "example", "chat")

	ap, err := d.BuildAnnounce([]byte("payload data"), false)
	if err != nil {
		t.Fatalf("build announce: %v", err)
	}
	wire := ap.Encode()
	got, err := DecodeAnnounce(wire)
	if err != nil {
		t.Fatalf("decode announce: %v", err)
	}
	if !bytes.Equal(got.AppData, ap.AppData) {
		t.Fatalf("app data mismatch")
	}
	if got.EncPub != ap.EncPub {
		t.Fatalf("enc pub mismatch")
	}
	if !got.Validate(d.Hash()) {
		t.Fatalf("decoded announce failed to validate")
	}
}

func TestAnnounceWithRatchetKeyRoundTrip(t *testing.T) {
	id, _ := identity.New(nil)
	d, _ := New(Single, id, "example", "chat")

	ap, err := d.BuildAnnounce(nil, true)
	if err != nil {
		t.Fatalf("build announce: %v", err)
	}
	if ap.RatchetKey == nil {
		t.Fatalf("expected ratchet key to be present")
	}
	wire := ap.Encode()
	got, err := DecodeAnnounce(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RatchetKey == nil || *got.RatchetKey != *ap.RatchetKey {
		t.Fatalf("ratchet key mismatch")
	}
	if !got.Validate(d.Hash()) {
		t.Fatalf("expected ratcheted announce to validate")
	}
}

func TestAnnounceForgedPublicKeyRejected(t *testing.T) {
	idA, _ := identity.New(nil)
	idB, _ := identity.New(nil)
	d, _ := New(Single, idA, "example", "chat")

	ap, err := d.BuildAnnounce(nil, false)
	if err != nil {
		t.Fatalf("build announce: %v", err)
	}

	// Attacker swaps in a different identity's public keys but cannot
	// produce a valid signature for them over the original dest hash.
	forged := *ap
	forgedKeys := idB.LongTermPublicKeys()
	forged.EncPub = forgedKeys.EncPub
	forged.SigPub = forgedKeys.SigPub

	if forged.Validate(d.Hash()) {
		t.Fatalf("expected forged announce to be rejected")
	}
}

func TestAnnounceTamperedSignatureRejected(t *testing.T) {
	id, _ := identity.New(nil)
	d, _ := New(Single, id, "example", "chat")
	ap, _ := d.BuildAnnounce(nil, false)
	ap.Signature[0] ^= 0xFF
	if ap.Validate(d.Hash()) {
		t.Fatalf("expected tampered signature to be rejected")
	}
}
