package rnpacket

import "testing"

func FuzzDecode(f *testing.F) {
	seed := samplePacket(32)
	wire, _ := Encode(seed)
	f.Add(wire, 0)

	twoAddr := samplePacket(10)
	twoAddr.Header = TwoAddress
	wire2, _ := Encode(twoAddr)
	f.Add(wire2, 0)

	f.Add([]byte{}, 0)
	f.Add([]byte{0xFF, 0xFF}, 16)

	f.Fuzz(func(t *testing.T, data []byte, ifacSize int) {
		if ifacSize < 0 || ifacSize > 64 {
			return
		}
		p, err := Decode(data, ifacSize)
		if err != nil {
			return
		}
		// Any packet Decode accepts must survive a re-encode/re-decode cycle
		// with the payload length invariant intact (spec.md §8 round-trip law).
		wire, err := Encode(p)
		if err != nil {
			t.Fatalf("re-encode of accepted packet failed: %v", err)
		}
		p2, err := Decode(wire, len(p.IFAC))
		if err != nil {
			t.Fatalf("re-decode of re-encoded packet failed: %v", err)
		}
		if p2.Hash() != p.Hash() {
			t.Fatalf("packet hash changed across re-encode/decode")
		}
	})
}
