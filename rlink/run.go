package rlink

import (
	"context"
	"time"
)

// Run drives every link's keepalive and staleness bookkeeping until ctx is
// cancelled (spec.md §4.8: "keepalive packets are sent every
// keepalive_interval" / "if no inbound is received within stale_time, the
// link transitions to STALE; a further interval without traffic
// transitions to CLOSED").
func (m *Manager) Run(ctx context.Context) {
	tick := time.NewTicker(m.cfg.KeepaliveInterval / 4)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.now()

	m.mu.Lock()
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		l.mu.Lock()
		state := l.state
		sinceIn := now.Sub(l.lastInbound)
		sinceOut := now.Sub(l.lastOutbound)
		l.mu.Unlock()

		switch state {
		case Active:
			if sinceIn >= 2*m.cfg.StaleTime {
				l.setState(Closed)
				m.dropLink(l.id)
				continue
			}
			if sinceIn >= m.cfg.StaleTime {
				l.setState(Stale)
			}
			if sinceOut >= m.cfg.KeepaliveInterval {
				_ = l.Keepalive()
			}
		case Stale:
			if sinceIn >= 2*m.cfg.StaleTime {
				l.setState(Closed)
				m.dropLink(l.id)
				continue
			}
			_ = l.Keepalive()
		case Closed:
			m.dropLink(l.id)
		}
	}
}
