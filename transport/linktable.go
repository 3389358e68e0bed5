package transport

import (
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
)

// LinkEntry is a link table row, spec.md §3 "Link table entry" — held by
// every forwarding node on a link's path until its LINK_PROOF validates or
// the unproven entry times out (spec.md §4.7 step 2).
type LinkEntry struct {
	LinkID           identity.Hash
	DestHash         identity.Hash
	NextHopInterface string
	PrevHopInterface string
	Hops             uint8
	Proven           bool
	ProofMaterial    []byte
	ValidatedAt      time.Time
	ExpiresAt        time.Time
}

// unprovenTimeout bounds how long a forwarder holds a link table entry
// before its LINK_PROOF is expected to arrive (spec.md §4.7 step 2: "a
// short unproven-timeout").
const unprovenTimeout = 15 * time.Second

// LinkTable is the forwarding-side bookkeeping for in-flight and active
// links, keyed by link_id (spec.md §3).
type LinkTable struct {
	mu      sync.RWMutex
	entries map[identity.Hash]*LinkEntry
}

func NewLinkTable() *LinkTable {
	return &LinkTable{entries: make(map[identity.Hash]*LinkEntry)}
}

// RecordRequest stores an unproven forwarding entry for a freshly-seen
// LINK_REQUEST (spec.md §4.7 step 2).
func (t *LinkTable) RecordRequest(linkID, destHash identity.Hash, prevHop, nextHop string, hops uint8, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[linkID] = &LinkEntry{
		LinkID:           linkID,
		DestHash:         destHash,
		PrevHopInterface: prevHop,
		NextHopInterface: nextHop,
		Hops:             hops,
		Proven:           false,
		ExpiresAt:        now.Add(unprovenTimeout),
	}
}

// MarkProven transitions an entry to proven on receipt of a valid
// LINK_PROOF (spec.md §4.7 step 4), extending its lifetime to
// staleInterval.
func (t *LinkTable) MarkProven(linkID identity.Hash, proof []byte, staleInterval time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[linkID]
	if !ok {
		return false
	}
	e.Proven = true
	e.ProofMaterial = proof
	e.ValidatedAt = now
	e.ExpiresAt = now.Add(staleInterval)
	return true
}

// Lookup returns the current entry for a link_id.
func (t *LinkTable) Lookup(linkID identity.Hash) (LinkEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[linkID]
	if !ok {
		return LinkEntry{}, false
	}
	return *e, true
}

// Drop removes a link table entry (teardown or expiry).
func (t *LinkTable) Drop(linkID identity.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, linkID)
}

// GC evicts unproven entries whose timeout has elapsed; proven entries are
// swept on their own expiry the same way.
func (t *LinkTable) GC(now time.Time) int {
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

func (t *LinkTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
