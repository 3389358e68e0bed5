package resource

import (
	"encoding/binary"
	"fmt"
)

// advertisePayload is RESOURCE_ADVERTISE's wire payload (spec.md §4.9 step
// 1): resource_hash ∥ total_parts ∥ part_size ∥ flags ∥ segment_hashmap_root.
type advertisePayload struct {
	ResourceHash       [32]byte
	TotalParts         uint32
	PartSize           uint16
	Compressed         bool
	SegmentHashmapRoot [32]byte
}

const (
	flagCompressed byte = 1 << 0
)

const advertiseLen = 32 + 4 + 2 + 1 + 32

func encodeAdvertise(a advertisePayload) []byte {
	out := make([]byte, 0, advertiseLen)
	out = append(out, a.ResourceHash[:]...)
	var buf4 [4]byte
	binary.BigEndian.PutUint32(buf4[:], a.TotalParts)
	out = append(out, buf4[:]...)
	var buf2 [2]byte
	binary.BigEndian.PutUint16(buf2[:], a.PartSize)
	out = append(out, buf2[:]...)
	var flags byte
	if a.Compressed {
		flags |= flagCompressed
	}
	out = append(out, flags)
	out = append(out, a.SegmentHashmapRoot[:]...)
	return out
}

func decodeAdvertise(raw []byte) (advertisePayload, error) {
	var a advertisePayload
	if len(raw) != advertiseLen {
		return a, fmt.Errorf("resource: malformed advertise payload (%d bytes)", len(raw))
	}
	copy(a.ResourceHash[:], raw[0:32])
	a.TotalParts = binary.BigEndian.Uint32(raw[32:36])
	a.PartSize = binary.BigEndian.Uint16(raw[36:38])
	a.Compressed = raw[38]&flagCompressed != 0
	copy(a.SegmentHashmapRoot[:], raw[39:71])
	return a, nil
}

// RejectReason is RESOURCE_REJECT's single-byte payload (spec.md §7:
// InsufficientResources / UserRejected).
type RejectReason byte

const (
	RejectInsufficientResources RejectReason = 0
	RejectUserRejected          RejectReason = 1
)

func (r RejectReason) String() string {
	switch r {
	case RejectInsufficientResources:
		return "insufficient resources"
	case RejectUserRejected:
		return "user rejected"
	default:
		return "unknown reject reason"
	}
}

func encodeReject(r RejectReason) []byte { return []byte{byte(r)} }

func decodeReject(raw []byte) (RejectReason, error) {
	if len(raw) != 1 {
		return 0, fmt.Errorf("resource: malformed reject payload")
	}
	return RejectReason(raw[0]), nil
}

// encodePart/decodePart carry one RESOURCE_PART: index ∥ data.
func encodePart(index uint32, data []byte) []byte {
	out := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(out, index)
	return append(out, data...)
}

func decodePart(raw []byte) (uint32, []byte, error) {
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("resource: malformed part payload")
	}
	return binary.BigEndian.Uint32(raw[:4]), raw[4:], nil
}

// encodeAck/decodeAck implement the frozen RESOURCE_ACK bitmap layout:
// window_base ∥ window_size ∥ bitmap, one bit per part index relative to
// window_base, big-endian throughout.
func encodeAck(windowBase uint32, windowSize uint16, bitmap []byte) []byte {
	out := make([]byte, 6, 6+len(bitmap))
	binary.BigEndian.PutUint32(out[0:4], windowBase)
	binary.BigEndian.PutUint16(out[4:6], windowSize)
	return append(out, bitmap...)
}

func decodeAck(raw []byte) (windowBase uint32, windowSize uint16, bitmap []byte, err error) {
	if len(raw) < 6 {
		return 0, 0, nil, fmt.Errorf("resource: malformed ack payload")
	}
	windowBase = binary.BigEndian.Uint32(raw[0:4])
	windowSize = binary.BigEndian.Uint16(raw[4:6])
	expect := bitmapBytes(int(windowSize))
	if len(raw) < 6+expect {
		return 0, 0, nil, fmt.Errorf("resource: truncated ack bitmap")
	}
	bitmap = append([]byte{}, raw[6:6+expect]...)
	return windowBase, windowSize, bitmap, nil
}

func bitmapBytes(windowSize int) int { return (windowSize + 7) / 8 }

func bitmapSet(bitmap []byte, i int)      { bitmap[i/8] |= 1 << uint(7-i%8) }
func bitmapGet(bitmap []byte, i int) bool { return bitmap[i/8]&(1<<uint(7-i%8)) != 0 }
