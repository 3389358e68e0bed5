// Package resource implements Reticulum's windowed reliable transfer over an
// established link (spec.md §4.9): advertise, accept/reject, a windowed
// part transfer acknowledged by bitmap, and full-hash verified assembly.
// It is grounded on the teacher's stream package (flow.go's SENDME-style
// windowed flow control, generalized here to arbitrary-size transfers with
// bitmap acks instead of per-N-cells counters).
package resource

import "time"

// Config carries the windowed-transfer parameters spec.md §4.9 names.
type Config struct {
	// PartSize is the size in bytes of every part but the last.
	PartSize int

	// MinWindow and MaxWindow bound the adaptive window (spec.md §4.9:
	// "the transfer window adapts between a minimum and maximum size").
	MinWindow int
	MaxWindow int

	// BaseTimeout is the floor for the RTT-scaled per-window wait; a link
	// with no RTT sample yet (or an unusually fast one) still gets at
	// least this long before a window is retried.
	BaseTimeout time.Duration
}

// DefaultConfig mirrors SPEC_FULL.md's frozen defaults: 128-byte parts (the
// same LoRa-class figure rlink.DefaultConfig uses for its PartSize), and a
// window that starts at one part and grows to at most 16 parts in flight.
func DefaultConfig() Config {
	return Config{
		PartSize:    128,
		MinWindow:   1,
		MaxWindow:   16,
		BaseTimeout: 5 * time.Second,
	}
}
