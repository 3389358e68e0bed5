// Package riface defines the upward interface-driver contract the core
// transport engine talks to (spec.md §6): name, MTU, bitrate, mode, IFAC
// configuration, and the send/on_receive operations. The concrete serial,
// TCP, UDP, I2P and LoRa/RNode drivers are deliberately out of scope
// (spec.md §1) — this package only defines the contract plus a minimal
// in-process implementation used for engine tests.
//
// Grounded on the teacher's link package: an OR connection is "one physical
// channel to one relay, with framed read/write and a deadline", generalized
// here from "one TLS connection" to "any half-duplex channel a driver
// wraps".
package riface

import (
	"fmt"
	"sync"
)

// Mode is the interface's role in announce propagation and path-expiry
// policy (spec.md §6, §4.5).
type Mode uint8

const (
	Full Mode = iota
	Gateway
	AP
	Roaming
	Boundary
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "FULL"
	case Gateway:
		return "GATEWAY"
	case AP:
		return "AP"
	case Roaming:
		return "ROAMING"
	case Boundary:
		return "BOUNDARY"
	default:
		return "UNKNOWN"
	}
}

// MinMTU is the minimum physical MTU spec.md §6 requires of a driver.
const MinMTU = 500

// IfacConfig configures an interface's access-code virtual-network
// membership, spec.md §4.6. An interface with an empty NetworkName and
// Passphrase runs open (IfacFlag never set on outbound packets).
type IfacConfig struct {
	NetworkName string
	Passphrase  string
	Bits        int // 8-512, truncation length of the IFAC signature
}

// Enabled reports whether this interface authenticates its traffic.
func (c IfacConfig) Enabled() bool {
	return c.NetworkName != "" || c.Passphrase != ""
}

// Stats carries optional link-quality telemetry a driver may attach to an
// inbound packet (spec.md §6).
type Stats struct {
	RSSI float64
	SNR  float64
	Have bool
}

// ReceiveFunc is how a driver hands inbound bytes and optional stats to the
// core.
type ReceiveFunc func(raw []byte, stats Stats)

// Interface is the upward contract every driver implements. The core
// transport engine calls Send to emit bytes and invokes the registered
// ReceiveFunc whenever the driver produces inbound bytes; drivers must
// preserve frame boundaries (spec.md §6: "the core does not re-synchronise").
type Interface interface {
	Name() string
	MTU() int
	Bitrate() int // bits/sec, observed or declared
	Mode() Mode
	IfacConfig() IfacConfig
	Send(raw []byte) error
	SetReceiveCallback(fn ReceiveFunc)
}

// Descriptor is a plain-data snapshot of an Interface's static attributes,
// used by the transport engine to make routing/propagation decisions
// without holding a reference to the live driver.
type Descriptor struct {
	Name    string
	MTU     int
	Bitrate int
	Mode    Mode
	Ifac    IfacConfig
}

// Describe snapshots an Interface's static attributes.
func Describe(i Interface) Descriptor {
	return Descriptor{Name: i.Name(), MTU: i.MTU(), Bitrate: i.Bitrate(), Mode: i.Mode(), Ifac: i.IfacConfig()}
}

// Validate checks the minimum requirements spec.md §6 places on a driver.
func Validate(d Descriptor) error {
	if d.MTU < MinMTU {
		return fmt.Errorf("riface: mtu %d below minimum %d", d.MTU, MinMTU)
	}
	if d.Name == "" {
		return fmt.Errorf("riface: interface name must not be empty")
	}
	return nil
}

// baseInterface factors the bookkeeping every concrete Interface below
// shares: name/mtu/bitrate/mode/ifac config and the registered receive
// callback.
type baseInterface struct {
	mu       sync.RWMutex
	name     string
	mtu      int
	bitrate  int
	mode     Mode
	ifac     IfacConfig
	receiver ReceiveFunc
}

func (b *baseInterface) Name() string           { return b.name }
func (b *baseInterface) MTU() int               { return b.mtu }
func (b *baseInterface) Bitrate() int           { return b.bitrate }
func (b *baseInterface) Mode() Mode             { return b.mode }
func (b *baseInterface) IfacConfig() IfacConfig { return b.ifac }

func (b *baseInterface) SetReceiveCallback(fn ReceiveFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiver = fn
}

func (b *baseInterface) deliver(raw []byte, stats Stats) {
	b.mu.RLock()
	fn := b.receiver
	b.mu.RUnlock()
	if fn != nil {
		fn(raw, stats)
	}
}

// SetBitrate updates the observed bitrate, for drivers that measure it
// rather than declare it statically (spec.md §6).
func (b *baseInterface) SetBitrate(bps int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bitrate = bps
}
