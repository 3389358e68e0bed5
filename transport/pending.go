package transport

import (
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/rnpacket"
)

// pathRequestWait is how long a DATA packet with no known path waits for a
// PATH_RESPONSE/announce to arrive before it is dropped (spec.md §4.5: "a
// short deadline").
const pathRequestWait = 10 * time.Second

// pendingPacket is a DATA packet held awaiting path discovery.
type pendingPacket struct {
	destHash identity.Hash
	pkt      *rnpacket.Packet
	deadline time.Time
}

// pendingQueue holds DATA packets queued on path-miss until a matching
// announce or PATH_RESPONSE flushes them, or their deadline passes
// (spec.md §4.5).
type pendingQueue struct {
	mu    sync.Mutex
	byDest map[identity.Hash][]pendingPacket
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{byDest: make(map[identity.Hash][]pendingPacket)}
}

func (q *pendingQueue) add(dest identity.Hash, pkt *rnpacket.Packet, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byDest[dest] = append(q.byDest[dest], pendingPacket{destHash: dest, pkt: pkt, deadline: now.Add(pathRequestWait)})
}

// flush removes and returns every non-expired pending packet for dest.
func (q *pendingQueue) flush(dest identity.Hash, now time.Time) []*rnpacket.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.byDest[dest]
	delete(q.byDest, dest)
	var out []*rnpacket.Packet
	for _, p := range pending {
		if now.Before(p.deadline) {
			out = append(out, p.pkt)
		}
	}
	return out
}

// sweep drops expired entries across all destinations, returning the count
// dropped.
func (q *pendingQueue) sweep(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	for dest, pending := range q.byDest {
		kept := pending[:0]
		for _, p := range pending {
			if now.Before(p.deadline) {
				kept = append(kept, p)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(q.byDest, dest)
		} else {
			q.byDest[dest] = kept
		}
	}
	return dropped
}
