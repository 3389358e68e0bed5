package resource

import "crypto/sha256"

// splitParts divides data into PartSize-byte chunks, the last one possibly
// shorter. A zero-length resource still advertises a single empty part so
// total_parts is never zero.
func splitParts(data []byte, partSize int) [][]byte {
	if partSize <= 0 {
		partSize = 1
	}
	parts := make([][]byte, 0, (len(data)+partSize-1)/partSize)
	for i := 0; i < len(data); i += partSize {
		end := i + partSize
		if end > len(data) {
			end = len(data)
		}
		parts = append(parts, data[i:end])
	}
	if len(parts) == 0 {
		parts = append(parts, nil)
	}
	return parts
}

// segmentHashmapRoot is SHA-256 over the concatenation of every part's own
// SHA-256, the value RESOURCE_ADVERTISE carries (spec.md §4.9 step 1).
// Receive does not check anything against it; integrity is verified
// against the whole-resource hash after assembly.
func segmentHashmapRoot(parts [][]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		sum := sha256.Sum256(p)
		h.Write(sum[:])
	}
	var root [32]byte
	copy(root[:], h.Sum(nil))
	return root
}
