package resource

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/cvsouth/reticulum-go/rlink"
)

var (
	// ErrResourceRejected is returned by Send when the receiver declines
	// the advertisement (spec.md §7: InsufficientResources/UserRejected).
	ErrResourceRejected = errors.New("resource: rejected by receiver")

	// ErrResourceTimeout is returned when the link dies mid-transfer. A
	// merely slow link does not time out (spec.md §4.9: "timeouts scale
	// with measured link RTT and link bitrate"); this is only raised once
	// the underlying link itself is no longer Active.
	ErrResourceTimeout = errors.New("resource: link closed before transfer completed")

	// ErrIntegrityFailure is returned by Receive when the assembled data's
	// SHA-256 does not match the advertised resource_hash (spec.md §7).
	ErrIntegrityFailure = errors.New("resource: assembled data failed integrity check")
)

// Meta describes an incoming resource advertisement (spec.md §4.9 step 1),
// enough for Receive's accept policy to decide whether to take it.
type Meta struct {
	ResourceHash [32]byte
	TotalParts   uint32
	PartSize     uint16
}

// event funnels whichever resource-transfer context arrives next on the
// link this transfer owns.
type event struct {
	ctx     byte
	payload []byte
}

func subscribe(l *rlink.Link) (<-chan event, func()) {
	events := make(chan event, 32)
	l.SetResourceHandler(func(ctx byte, payload []byte) {
		select {
		case events <- event{ctx, payload}:
		default:
			// A stalled consumer drops the incoming event rather
			// than blocking the link's inbound dispatch goroutine.
		}
	})
	return events, func() { l.SetResourceHandler(nil) }
}

// windowWait scales the per-window wait with the link's smoothed RTT, with
// cfg.BaseTimeout as a floor for links with no sample yet.
func windowWait(cfg Config, l *rlink.Link) time.Duration {
	rtt := l.EWMARTT()
	scaled := rtt * 10
	if scaled > cfg.BaseTimeout {
		return scaled
	}
	return cfg.BaseTimeout
}

// Send transfers data over an established link as a Reticulum resource:
// advertise, wait for accept/reject, then a windowed part transfer
// acknowledged by bitmap at each window boundary (spec.md §4.9). It
// returns once every part has been acknowledged, or the link itself closes
// or goes stale, or the receiver rejects the advertisement.
func Send(l *rlink.Link, data []byte, cfg Config) error {
	parts := splitParts(data, cfg.PartSize)
	root := segmentHashmapRoot(parts)
	hash := sha256.Sum256(data)

	events, unsubscribe := subscribe(l)
	defer unsubscribe()

	adv := advertisePayload{
		ResourceHash:       hash,
		TotalParts:         uint32(len(parts)),
		PartSize:           uint16(cfg.PartSize),
		SegmentHashmapRoot: root,
	}
	if err := l.SendRaw(rlink.ContextResourceAdvertise, encodeAdvertise(adv)); err != nil {
		return fmt.Errorf("resource: send advertise: %w", err)
	}

	if err := awaitAccept(l, events, cfg); err != nil {
		return err
	}

	win := newWindowState(cfg)
	base := 0
	for base < len(parts) {
		end := base + win.size
		if end > len(parts) {
			end = len(parts)
		}
		if err := sendWindow(l, events, cfg, parts, base, end, win); err != nil {
			return err
		}
		base = end
	}
	return nil
}

func awaitAccept(l *rlink.Link, events <-chan event, cfg Config) error {
	for {
		select {
		case ev := <-events:
			switch ev.ctx {
			case rlink.ContextResourceAccept:
				return nil
			case rlink.ContextResourceReject:
				reason, _ := decodeReject(ev.payload)
				return fmt.Errorf("%w: %s", ErrResourceRejected, reason)
			}
		case <-time.After(windowWait(cfg, l)):
			if l.State() != rlink.Active {
				return ErrResourceTimeout
			}
			// Slow link: re-advertise is unnecessary, just keep waiting.
		}
	}
}

// sendWindow transmits parts[base:end], retransmitting whatever the
// receiver's ack bitmap reports missing until the whole window is
// acknowledged, shrinking the window on every retransmission and growing
// it by one once a window completes cleanly (spec.md §4.9 step 3).
func sendWindow(l *rlink.Link, events <-chan event, cfg Config, parts [][]byte, base, end int, win *windowState) error {
	n := end - base
	acked := make([]bool, n)
	remaining := n
	retransmitted := false

	for i := base; i < end; i++ {
		if err := l.SendRaw(rlink.ContextResourcePart, encodePart(uint32(i), parts[i])); err != nil {
			return fmt.Errorf("resource: send part %d: %w", i, err)
		}
	}

	for remaining > 0 {
		select {
		case ev := <-events:
			if ev.ctx != rlink.ContextResourceAck {
				continue
			}
			windowBase, windowSize, bitmap, err := decodeAck(ev.payload)
			if err != nil {
				continue
			}
			missing := make([]int, 0)
			for i := base; i < end; i++ {
				if acked[i-base] {
					continue
				}
				rel := int(int64(i) - int64(windowBase))
				if rel >= 0 && rel < int(windowSize) && bitmapGet(bitmap, rel) {
					acked[i-base] = true
					remaining--
				} else {
					missing = append(missing, i)
				}
			}
			if len(missing) > 0 && remaining > 0 {
				retransmitted = true
				win.shrinkOnRetransmit()
				for _, i := range missing {
					if err := l.SendRaw(rlink.ContextResourcePart, encodePart(uint32(i), parts[i])); err != nil {
						return fmt.Errorf("resource: retransmit part %d: %w", i, err)
					}
				}
			}
		case <-time.After(windowWait(cfg, l)):
			if l.State() != rlink.Active {
				return ErrResourceTimeout
			}
		}
	}

	if !retransmitted {
		win.grow()
	}
	return nil
}

// Receive waits for the next RESOURCE_ADVERTISE on l, hands its metadata to
// accept for an admit/reject decision (spec.md §4.9 step 2), then assembles
// the windowed transfer and verifies it against the advertised
// resource_hash before returning the reassembled data.
func Receive(l *rlink.Link, accept func(Meta) bool, cfg Config) ([]byte, error) {
	events, unsubscribe := subscribe(l)
	defer unsubscribe()

	adv, err := awaitAdvertise(l, events, cfg)
	if err != nil {
		return nil, err
	}

	meta := Meta{ResourceHash: adv.ResourceHash, TotalParts: adv.TotalParts, PartSize: adv.PartSize}
	if !accept(meta) {
		_ = l.SendRaw(rlink.ContextResourceReject, encodeReject(RejectUserRejected))
		return nil, ErrResourceRejected
	}
	if err := l.SendRaw(rlink.ContextResourceAccept, nil); err != nil {
		return nil, fmt.Errorf("resource: send accept: %w", err)
	}

	total := int(adv.TotalParts)
	parts := make([][]byte, total)
	win := newWindowState(cfg)
	base := 0

	for base < total {
		end := base + win.size
		if end > total {
			end = total
		}
		if err := receiveWindow(l, events, cfg, parts, base, end); err != nil {
			return nil, err
		}
		win.grow()
		base = end
	}

	assembled := make([]byte, 0, total*cfg.PartSize)
	for _, p := range parts {
		assembled = append(assembled, p...)
	}
	if sha256.Sum256(assembled) != adv.ResourceHash {
		return nil, ErrIntegrityFailure
	}
	return assembled, nil
}

func awaitAdvertise(l *rlink.Link, events <-chan event, cfg Config) (advertisePayload, error) {
	for {
		select {
		case ev := <-events:
			if ev.ctx != rlink.ContextResourceAdvertise {
				continue
			}
			return decodeAdvertise(ev.payload)
		case <-time.After(windowWait(cfg, l)):
			if l.State() != rlink.Active {
				return advertisePayload{}, ErrResourceTimeout
			}
		}
	}
}

// receiveWindow collects parts[base:end] and sends a bitmap ack once the
// window is complete, or whenever the per-window wait elapses with parts
// still missing so the sender can retransmit them.
func receiveWindow(l *rlink.Link, events <-chan event, cfg Config, parts [][]byte, base, end int) error {
	windowSize := end - base

	for {
		timedOut := false
		select {
		case ev := <-events:
			if ev.ctx == rlink.ContextResourcePart {
				idx, data, err := decodePart(ev.payload)
				if err == nil && int(idx) >= base && int(idx) < end && parts[idx] == nil {
					parts[idx] = append([]byte{}, data...)
				}
			}
		case <-time.After(windowWait(cfg, l)):
			if l.State() != rlink.Active {
				return ErrResourceTimeout
			}
			timedOut = true
		}

		bitmap := make([]byte, bitmapBytes(windowSize))
		allHave := true
		for i := base; i < end; i++ {
			if parts[i] != nil {
				bitmapSet(bitmap, i-base)
			} else {
				allHave = false
			}
		}
		if !allHave && !timedOut {
			continue
		}
		_ = l.SendRaw(rlink.ContextResourceAck, encodeAck(uint32(base), uint16(windowSize), bitmap))
		if allHave {
			return nil
		}
	}
}
