package destination

import (
	"testing"

	"github.com/cvsouth/reticulum-go/identity"
)

func TestSingleDestinationsWithSameAspectsDifferentIdentitiesDiffer(t *testing.T) {
	idA, _ := identity.New(nil)
	idB, _ := identity.New(nil)

	dA, err := New(Single, idA, "example", "aspect1", "aspect2")
	if err != nil {
		t.Fatalf("new dA: %v", err)
	}
	dB, err := New(Single, idB, "example", "aspect1", "aspect2")
	if err != nil {
		t.Fatalf("new dB: %v", err)
	}

	if dA.Hash() == dB.Hash() {
		t.Fatalf("expected different hashes for different identities with identical aspects")
	}
}

func TestSingleRequiresIdentity(t *testing.T) {
	if _, err := New(Single, nil, "example"); err == nil {
		t.Fatalf("expected error creating SINGLE destination without an identity")
	}
}

func TestPlainDestinationHashStable(t *testing.T) {
	d1, err := New(Plain, nil, "example", "a", "b")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d2, err := New(Plain, nil, "example", "a", "b")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d1.Hash() != d2.Hash() {
		t.Fatalf("expected identical hashes for identical PLAIN destinations")
	}
}

func TestRequestHandlerRegistration(t *testing.T) {
	id, _ := identity.New(nil)
	d, _ := New(Single, id, "example")
	called := false
	d.SetRequestHandler("/ping", func(path string, reqID [identity.HashSize]byte, payload []byte) []byte {
		called = true
		return []byte("pong")
	})
	h, ok := d.HandlerFor("/ping")
	if !ok {
		t.Fatalf("expected handler to be registered")
	}
	resp := h("/ping", [identity.HashSize]byte{}, nil)
	if !called || string(resp) != "pong" {
		t.Fatalf("handler did not run as expected")
	}
}
