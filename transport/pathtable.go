// Package transport implements the engine spec.md §4.4-§4.5 describe: the
// announce propagation algorithm, the path and link tables it maintains,
// and the forwarding decision made for every DATA packet. It is the
// process-wide state spec.md §9 says must be owned by a single
// TransportEngine value; mutation goes through the engine's and the tables'
// own locks rather than a command loop.
//
// Grounded on the teacher's directory package for the JSON snapshot
// persistence idiom (small, timestamped, validity-windowed records) and its
// pathselect package for weighted/tie-broken candidate selection, here
// generalized from "pick a 3-hop circuit from a consensus" to "pick the best
// next hop for a destination and prioritise announce retransmission".
package transport

import (
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
)

// PathEntry is a path table row, spec.md §3 "Path table entry".
type PathEntry struct {
	DestHash        identity.Hash
	NextHopIdentity identity.Hash
	ViaInterface    string
	Hops            uint8
	LastUpdated     time.Time
	ExpiresAt       time.Time
}

// PathTable maps destination_hash to the locally-known best next hop.
// Concurrent lookups are safe against concurrent updates (spec.md §5:
// "concurrent readers obtain read snapshots"). Updates arrive from every
// interface's receive callback and from local announces, possibly on
// different goroutines, and the lock serialises them.
type PathTable struct {
	mu      sync.RWMutex
	entries map[identity.Hash]PathEntry
}

func NewPathTable() *PathTable {
	return &PathTable{entries: make(map[identity.Hash]PathEntry)}
}

// Lookup returns the current best entry for a destination, if any.
func (t *PathTable) Lookup(dest identity.Hash) (PathEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[dest]
	return e, ok
}

// pathExpiry returns how long a path learned via an interface in the given
// mode should live before GC reclaims it. Roaming and access-point
// interfaces see churn on the order of minutes; full/gateway nodes are
// assumed stable for days (spec.md §4.5, §6).
func pathExpiry(mode riface.Mode) time.Duration {
	switch mode {
	case riface.Roaming, riface.AP:
		return 15 * time.Minute
	default:
		return 7 * 24 * time.Hour
	}
}

// Update applies a newly-heard path to the table, per spec.md §4.4 step 2
// and §4.5's tie-break rule: prefer fewer hops, then the more recently
// updated entry. Returns true if the table changed.
func (t *PathTable) Update(dest, nextHop identity.Hash, via string, hops uint8, mode riface.Mode, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expires := now.Add(pathExpiry(mode))
	existing, ok := t.entries[dest]
	if !ok || hops < existing.Hops || (hops == existing.Hops && now.After(existing.LastUpdated)) {
		t.entries[dest] = PathEntry{
			DestHash:        dest,
			NextHopIdentity: nextHop,
			ViaInterface:    via,
			Hops:            hops,
			LastUpdated:     now,
			ExpiresAt:       expires,
		}
		return true
	}
	return false
}

// Drop removes an entry administratively (e.g. InterfaceDown handling).
func (t *PathTable) Drop(dest identity.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, dest)
}

// DropVia removes every entry routed through the named interface, for
// InterfaceDown handling (spec.md §7).
func (t *PathTable) DropVia(iface string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if e.ViaInterface == iface {
			delete(t.entries, k)
		}
	}
}

// GC evicts entries past their expiry.
func (t *PathTable) GC(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for k, e := range t.entries {
		if now.After(e.ExpiresAt) {
			delete(t.entries, k)
			evicted++
		}
	}
	return evicted
}

// Len reports the current table size, for diagnostics and tests.
func (t *PathTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
