package transport

import (
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/destination"
	"github.com/cvsouth/reticulum-go/identity"
)

// AnnounceRecord caches one observed announce, spec.md §3 "Announce
// record". Uniqueness key is PacketHash; duplicates are ignored (spec.md
// §4.4 step 1, invariant 5 in §8).
type AnnounceRecord struct {
	DestHash          identity.Hash
	PacketHash        [32]byte
	Payload           *destination.AnnouncePayload
	Hops              uint8
	ReceivedVia       string
	Timestamp         time.Time
	RetransmitDeadline time.Time
}

// AnnounceCache deduplicates announces by packet_hash and retains the
// latest record seen per destination for diagnostics and path-response
// piggybacking.
type AnnounceCache struct {
	mu      sync.RWMutex
	seen    map[[32]byte]AnnounceRecord
	latest  map[identity.Hash][32]byte
}

func NewAnnounceCache() *AnnounceCache {
	return &AnnounceCache{
		seen:   make(map[[32]byte]AnnounceRecord),
		latest: make(map[identity.Hash][32]byte),
	}
}

// Seen reports whether packetHash has already been recorded (spec.md §4.4
// step 1: "if already seen ... drop silently").
func (c *AnnounceCache) Seen(packetHash [32]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[packetHash]
	return ok
}

// Record stores a newly-seen announce. Calling Record for an
// already-cached packet_hash is a no-op, preserving invariant 5: replaying
// a duplicate announce leaves cache and path-table-driving state
// unchanged.
func (c *AnnounceCache) Record(rec AnnounceRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[rec.PacketHash]; ok {
		return false
	}
	c.seen[rec.PacketHash] = rec
	c.latest[rec.DestHash] = rec.PacketHash
	return true
}

// Latest returns the most recently recorded announce for a destination.
func (c *AnnounceCache) Latest(dest identity.Hash) (AnnounceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.latest[dest]
	if !ok {
		return AnnounceRecord{}, false
	}
	return c.seen[h], true
}

// GC evicts cache entries older than maxAge, bounding memory on a
// long-running node (spec.md §7: "partial state is periodically swept by a
// GC pass").
func (c *AnnounceCache) GC(now time.Time, maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for h, rec := range c.seen {
		if now.Sub(rec.Timestamp) > maxAge {
			delete(c.seen, h)
			if c.latest[rec.DestHash] == h {
				delete(c.latest, rec.DestHash)
			}
			evicted++
		}
	}
	return evicted
}

func (c *AnnounceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}
