package transport

import (
	"testing"
	"time"
)

func TestAnnounceCacheDedup(t *testing.T) {
	c := NewAnnounceCache()
	rec := AnnounceRecord{DestHash: hashOf(1), PacketHash: [32]byte{1}, Timestamp: time.Now()}

	if !c.Record(rec) {
		t.Fatalf("expected first record to be accepted")
	}
	if c.Record(rec) {
		t.Fatalf("expected duplicate packet_hash to be rejected")
	}
	if c.Len() != 1 {
		t.Fatalf("expected exactly one cached record, got %d", c.Len())
	}
}

func TestAnnounceCacheSeen(t *testing.T) {
	c := NewAnnounceCache()
	hash := [32]byte{7}
	if c.Seen(hash) {
		t.Fatalf("expected unseen hash to report false")
	}
	c.Record(AnnounceRecord{DestHash: hashOf(1), PacketHash: hash, Timestamp: time.Now()})
	if !c.Seen(hash) {
		t.Fatalf("expected recorded hash to report true")
	}
}

func TestAnnounceCacheLatestTracksMostRecent(t *testing.T) {
	c := NewAnnounceCache()
	dest := hashOf(1)
	c.Record(AnnounceRecord{DestHash: dest, PacketHash: [32]byte{1}, Hops: 3, Timestamp: time.Now()})
	c.Record(AnnounceRecord{DestHash: dest, PacketHash: [32]byte{2}, Hops: 1, Timestamp: time.Now()})

	latest, ok := c.Latest(dest)
	if !ok || latest.PacketHash != ([32]byte{2}) {
		t.Fatalf("expected latest record to be the second one recorded, got %+v", latest)
	}
}

func TestAnnounceCacheGC(t *testing.T) {
	c := NewAnnounceCache()
	now := time.Now()
	c.Record(AnnounceRecord{DestHash: hashOf(1), PacketHash: [32]byte{1}, Timestamp: now.Add(-2 * time.Hour)})
	evicted := c.GC(now, time.Hour)
	if evicted != 1 || c.Len() != 0 {
		t.Fatalf("expected stale record to be evicted")
	}
}
