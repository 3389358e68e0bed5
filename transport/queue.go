package transport

import (
	"sync"
	"time"

	"github.com/cvsouth/reticulum-go/identity"
	"github.com/cvsouth/reticulum-go/riface"
)

// QueuedAnnounce is one pending outbound (re)transmission of an announce on
// a specific interface (spec.md §4.4 steps 5-8).
type QueuedAnnounce struct {
	PacketHash         [32]byte
	DestHash           identity.Hash
	Raw                []byte
	Hops               uint8
	Priority           float64 // 1/d, d = 2^hops
	EnqueuedAt         time.Time
	Retries            int
	RetransmitDeadline time.Time
}

// RetransmitDelay computes d = c^h seconds for c=2 (spec.md §4.4 step 5).
func RetransmitDelay(hops uint8) time.Duration {
	d := 1.0
	for i := uint8(0); i < hops; i++ {
		d *= 2
	}
	return time.Duration(d * float64(time.Second))
}

// Priority is 1/d: closer hops (smaller d) sort first.
func Priority(hops uint8) float64 {
	return 1.0 / RetransmitDelay(hops).Seconds()
}

// AnnounceQueue is a per-interface priority queue of pending announce
// (re)transmissions, with per-destination rate penalties (spec.md §4.4
// steps 6 and the announce-rate-control paragraph). It never permanently
// blocks a destination — an over-announcer is merely down-prioritised.
type AnnounceQueue struct {
	mu          sync.Mutex
	items       []*QueuedAnnounce
	posByDest   map[identity.Hash]int
	rateCaps    map[identity.Hash]*riface.AnnounceCap
	rateTarget  float64 // announces/sec a single destination may sustain at full priority
}

// NewAnnounceQueue builds an empty queue. rateTarget is the
// announce_rate_target (spec.md §4.4): destinations announcing faster than
// this see their queued priority penalised, per spec's
// announce_rate_penalty without ever being dropped outright.
func NewAnnounceQueue(rateTarget float64) *AnnounceQueue {
	return &AnnounceQueue{
		posByDest: make(map[identity.Hash]int),
		rateCaps:  make(map[identity.Hash]*riface.AnnounceCap),
		rateTarget: rateTarget,
	}
}

// Push enqueues a new announce, or — if one for the same destination is
// already queued — replaces its payload in place while retaining the
// original queue position (spec.md §4.4 step 8).
func (q *AnnounceQueue) Push(item *QueuedAnnounce) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx, ok := q.posByDest[item.DestHash]; ok {
		existing := q.items[idx]
		existing.Raw = item.Raw
		existing.PacketHash = item.PacketHash
		existing.Hops = item.Hops
		existing.Priority = item.Priority
		return
	}
	q.items = append(q.items, item)
	q.posByDest[item.DestHash] = len(q.items) - 1
}

func (q *AnnounceQueue) destCap(dest identity.Hash) *riface.AnnounceCap {
	c, ok := q.rateCaps[dest]
	if !ok {
		c = riface.NewAnnounceCap(q.rateTarget, q.rateTarget*2)
		q.rateCaps[dest] = c
	}
	return c
}

// PopNext removes and returns the highest-priority item the interface's
// announce_cap currently admits, applying a penalty (halved effective
// priority) to destinations exceeding their own rate target. Returns false
// if the cap denies all remaining items or the queue is empty.
func (q *AnnounceQueue) PopNext(cap *riface.AnnounceCap, now time.Time) (*QueuedAnnounce, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}

	bestIdx := -1
	bestPriority := -1.0
	for i, it := range q.items {
		eff := it.Priority
		if !q.destCap(it.DestHash).Peek(now) {
			eff /= 2 // penalised, never dropped
		}
		if eff > bestPriority {
			bestPriority = eff
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, false
	}
	if !cap.AllowAt(now) {
		return nil, false
	}
	q.destCap(q.items[bestIdx].DestHash).AllowAt(now)

	item := q.items[bestIdx]
	q.items = append(q.items[:bestIdx], q.items[bestIdx+1:]...)
	delete(q.posByDest, item.DestHash)
	for dest, idx := range q.posByDest {
		if idx > bestIdx {
			q.posByDest[dest] = idx - 1
		}
	}
	return item, true
}

func (q *AnnounceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
