package riface

import (
	"fmt"
	"sync"
)

// PipeInterface is a loopback driver connecting two in-process endpoints by
// a buffered (64-frame), order-preserving channel; Send blocks while the
// peer's buffer is full. It stands in for a real
// serial/TCP/LoRa driver in engine tests, the way the teacher's tests dial a
// local *onion.Server instead of a real relay: a matched pair, built with
// NewPipePair, delivers whatever one side Sends to the other side's
// receive callback.
type PipeInterface struct {
	baseInterface
	peer   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewPipePair builds two PipeInterfaces wired to each other.
func NewPipePair(nameA, nameB string, mtu, bitrate int, modeA, modeB Mode, ifacA, ifacB IfacConfig) (*PipeInterface, *PipeInterface) {
	toA := make(chan []byte, 64)
	toB := make(chan []byte, 64)
	a := &PipeInterface{
		baseInterface: baseInterface{name: nameA, mtu: mtu, bitrate: bitrate, mode: modeA, ifac: ifacA},
		peer:          toB,
		closed:        make(chan struct{}),
	}
	b := &PipeInterface{
		baseInterface: baseInterface{name: nameB, mtu: mtu, bitrate: bitrate, mode: modeB, ifac: ifacB},
		peer:          toA,
		closed:        make(chan struct{}),
	}
	go a.pump(toA)
	go b.pump(toB)
	return a, b
}

func (p *PipeInterface) pump(in <-chan []byte) {
	for {
		select {
		case raw := <-in:
			p.deliver(raw, Stats{})
		case <-p.closed:
			return
		}
	}
}

// Send hands raw to the peer endpoint's receive callback. It rejects frames
// larger than the declared MTU, mirroring the size check a real driver's
// hardware would perform.
func (p *PipeInterface) Send(raw []byte) error {
	if len(raw) > p.MTU() {
		return fmt.Errorf("riface: frame of %d bytes exceeds mtu %d", len(raw), p.MTU())
	}
	select {
	case <-p.closed:
		return fmt.Errorf("riface: interface %s is closed", p.Name())
	default:
	}
	select {
	case p.peer <- append([]byte{}, raw...):
		return nil
	case <-p.closed:
		return fmt.Errorf("riface: interface %s is closed", p.Name())
	}
}

// Close stops delivery on this endpoint. Idempotent.
func (p *PipeInterface) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

var _ Interface = (*PipeInterface)(nil)
