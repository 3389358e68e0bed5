package resource

import "testing"

func TestWindowGrowsToMax(t *testing.T) {
	w := newWindowState(Config{MinWindow: 1, MaxWindow: 4})
	if w.size != 1 {
		t.Fatalf("expected initial window of 1, got %d", w.size)
	}
	for i := 0; i < 10; i++ {
		w.grow()
	}
	if w.size != 4 {
		t.Fatalf("expected window capped at max=4, got %d", w.size)
	}
}

func TestWindowHalvesOnRetransmitAndFloorsAtMin(t *testing.T) {
	w := newWindowState(Config{MinWindow: 1, MaxWindow: 16})
	for i := 0; i < 10; i++ {
		w.grow()
	}
	if w.size != 11 {
		t.Fatalf("expected window at 11 after 10 grows, got %d", w.size)
	}
	w.shrinkOnRetransmit()
	if w.size != 5 {
		t.Fatalf("expected window halved to 5, got %d", w.size)
	}
	for i := 0; i < 10; i++ {
		w.shrinkOnRetransmit()
	}
	if w.size != 1 {
		t.Fatalf("expected window floored at min=1, got %d", w.size)
	}
}

func TestWindowStateInvalidConfigIsSanitized(t *testing.T) {
	w := newWindowState(Config{MinWindow: 0, MaxWindow: -5})
	if w.min != 1 || w.max != 1 || w.size != 1 {
		t.Fatalf("expected sanitized window state {1,1,1}, got %+v", w)
	}
}
