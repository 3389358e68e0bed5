package rlink

import (
	"bytes"
	"testing"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
	"github.com/cvsouth/reticulum-go/xcrypto"
	"github.com/google/uuid"
)

func TestLinkRequestPayloadRoundTrip(t *testing.T) {
	enc, err := xcrypto.GenerateX25519()
	if err != nil {
		t.Fatalf("generate x25519: %v", err)
	}
	sig, err := xcrypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("generate ed25519: %v", err)
	}
	want := linkRequestPayload{EncPub: enc.Public, SigPub: sig.Public}

	got, err := decodeLinkRequest(encodeLinkRequest(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EncPub != want.EncPub || !bytes.Equal(got.SigPub, want.SigPub) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDecodeLinkRequestTooShort(t *testing.T) {
	if _, err := decodeLinkRequest([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding truncated link request")
	}
}

func TestLinkProofPayloadRoundTrip(t *testing.T) {
	enc, _ := xcrypto.GenerateX25519()
	sig, _ := xcrypto.GenerateEd25519()
	want := linkProofPayload{
		EncPub:    enc.Public,
		SigPub:    sig.Public,
		Signature: xcrypto.Sign(sig.Private, []byte("whatever is signed")),
	}

	got, err := decodeLinkProof(encodeLinkProof(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EncPub != want.EncPub || !bytes.Equal(got.SigPub, want.SigPub) || !bytes.Equal(got.Signature, want.Signature) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLinkProofSignatureVerifies(t *testing.T) {
	var linkID identity.Hash
	copy(linkID[:], []byte("0123456789abcdef"))

	enc, _ := xcrypto.GenerateX25519()
	sig, _ := xcrypto.GenerateEd25519()
	proof := linkProofPayload{EncPub: enc.Public, SigPub: sig.Public}
	proof.Signature = xcrypto.Sign(sig.Private, linkProofSignedMessage(linkID, proof))

	if !xcrypto.Verify(sig.Public, linkProofSignedMessage(linkID, proof), proof.Signature) {
		t.Fatalf("expected link proof signature to verify")
	}

	// Tampering with the link id must invalidate the signature.
	var otherID identity.Hash
	copy(otherID[:], []byte("fedcba9876543210"))
	if xcrypto.Verify(sig.Public, linkProofSignedMessage(otherID, proof), proof.Signature) {
		t.Fatalf("signature must not verify against a different link id")
	}
}

func TestIdentifyPayloadRoundTrip(t *testing.T) {
	id, err := identity.New(nil)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	var linkID identity.Hash
	copy(linkID[:], []byte("abcdef0123456789"))

	raw := encodeIdentify(linkID, id)
	p, err := decodeIdentify(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !xcrypto.Verify(p.SigPub, linkID[:], p.Signature) {
		t.Fatalf("expected identify signature to verify against link id")
	}
	longTerm := id.LongTermPublicKeys()
	if p.EncPub != longTerm.EncPub || !bytes.Equal(p.SigPub, longTerm.SigPub) {
		t.Fatalf("identify payload carried unexpected public keys")
	}
}

func TestLinkIDFromPacketIgnoresHopsAndIfac(t *testing.T) {
	var destHash identity.Hash
	copy(destHash[:], []byte("destination012345"))

	base := &rnpacket.Packet{
		Header:      rnpacket.OneAddress,
		Propagation: rnpacket.Transport,
		DestType:    rnpacket.DestSingle,
		PacketType:  rnpacket.LinkRequest,
		Addr1:       [16]byte(destHash),
		Payload:     []byte("a link request payload"),
	}

	hopped := *base
	hopped.Hops = 3
	hopped.IFAC = []byte{1, 2, 3, 4}

	id1 := linkIDFromPacket(base)
	id2 := linkIDFromPacket(&hopped)
	if id1 != id2 {
		t.Fatalf("link id must be stable across hop count and ifac signature: %x vs %x", id1, id2)
	}

	other := *base
	other.Payload = []byte("a different payload entirely")
	if linkIDFromPacket(&other) == id1 {
		t.Fatalf("link id must change when the request payload changes")
	}
}

func TestDeriveDirectionalKeysMatchBothSides(t *testing.T) {
	initEph, _ := xcrypto.GenerateX25519()
	respEph, _ := xcrypto.GenerateX25519()

	sharedInit, err := xcrypto.ECDH(initEph.Private, respEph.Public)
	if err != nil {
		t.Fatalf("ecdh (initiator): %v", err)
	}
	sharedResp, err := xcrypto.ECDH(respEph.Private, initEph.Public)
	if err != nil {
		t.Fatalf("ecdh (responder): %v", err)
	}

	i2rA, r2iA, err := deriveDirectionalKeys(sharedInit)
	if err != nil {
		t.Fatalf("derive (initiator side): %v", err)
	}
	i2rB, r2iB, err := deriveDirectionalKeys(sharedResp)
	if err != nil {
		t.Fatalf("derive (responder side): %v", err)
	}

	if *i2rA != *i2rB {
		t.Fatalf("initiator->responder keys must match on both ends")
	}
	if *r2iA != *r2iB {
		t.Fatalf("responder->initiator keys must match on both ends")
	}
	if *i2rA == *r2iA {
		t.Fatalf("the two directional keys must not be identical")
	}
}

func TestRequestResponseWireRoundTrip(t *testing.T) {
	id := uuid.New()
	body := []byte("please do the thing")

	gotID, gotPath, gotBody, err := decodeRequest(encodeRequest(id, "app/do-thing", body))
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if gotID != id || gotPath != "app/do-thing" || !bytes.Equal(gotBody, body) {
		t.Fatalf("request round trip mismatch: id=%v path=%q body=%q", gotID, gotPath, gotBody)
	}

	respBody := []byte("done")
	gotRespID, gotRespBody, err := decodeResponse(encodeResponse(id, respBody))
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if gotRespID != id || !bytes.Equal(gotRespBody, respBody) {
		t.Fatalf("response round trip mismatch: id=%v body=%q", gotRespID, gotRespBody)
	}
}

func TestDecodeRequestTruncatedPath(t *testing.T) {
	id := uuid.New()
	raw := append(id[:], byte(200)) // claims a 200-byte path with nothing following
	if _, _, _, err := decodeRequest(raw); err == nil {
		t.Fatalf("expected error decoding request with truncated path")
	}
}
