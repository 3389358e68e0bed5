package transport

import (
	"testing"
	"time"

	"github.com/cvsouth/reticulum-go/rnpacket"
)

func TestPendingQueueFlushReturnsQueuedPackets(t *testing.T) {
	q := newPendingQueue()
	dest := hashOf(1)
	now := time.Now()
	q.add(dest, &rnpacket.Packet{Context: 1}, now)
	q.add(dest, &rnpacket.Packet{Context: 2}, now)

	flushed := q.flush(dest, now)
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed packets, got %d", len(flushed))
	}
	if len(q.flush(dest, now)) != 0 {
		t.Fatalf("expected flush to drain the queue")
	}
}

func TestPendingQueueExpiredPacketsDropped(t *testing.T) {
	q := newPendingQueue()
	dest := hashOf(1)
	now := time.Now()
	q.add(dest, &rnpacket.Packet{}, now)

	flushed := q.flush(dest, now.Add(pathRequestWait+time.Second))
	if len(flushed) != 0 {
		t.Fatalf("expected expired packet to be dropped on flush, got %d", len(flushed))
	}
}

func TestPendingQueueSweepDropsExpired(t *testing.T) {
	q := newPendingQueue()
	now := time.Now()
	q.add(hashOf(1), &rnpacket.Packet{}, now)
	q.add(hashOf(2), &rnpacket.Packet{}, now)

	dropped := q.sweep(now.Add(pathRequestWait + time.Second))
	if dropped != 2 {
		t.Fatalf("expected both entries to be swept, got %d", dropped)
	}
}
