package rms

import "testing"

func TestHistoryRingChronologicalOrder(t *testing.T) {
	h := NewHistoryRing(3)
	h.Push(1)
	h.Push(2)
	h.Push(3)
	h.Push(4) // evicts 1

	got := h.Last(3)
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Last(3) = %v, want %v", got, want)
		}
	}
}

func TestHistoryRingReturnsCopy(t *testing.T) {
	h := NewHistoryRing(2)
	h.Push(10)
	h.Push(20)
	got := h.Last(2)
	got[0] = 999
	got2 := h.Last(2)
	if got2[0] == 999 {
		t.Fatalf("Last returned an alias into internal state")
	}
}

func TestHistoryRingPartialFillLeadsWithZeros(t *testing.T) {
	h := NewHistoryRing(4)
	h.Push(7)
	got := h.Last(4)
	want := []float64{0, 0, 0, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Last(4) with one push = %v, want %v", got, want)
		}
	}
}

func TestHistoryRingLatest(t *testing.T) {
	h := NewHistoryRing(2)
	if h.Latest() != 0 {
		t.Fatalf("Latest() on empty ring = %v, want 0", h.Latest())
	}
	h.Push(5)
	h.Push(9)
	if h.Latest() != 9 {
		t.Fatalf("Latest() = %v, want 9", h.Latest())
	}
}
