package rms

import "testing"

func sumsFor(vals []int16) (int64, int64) {
	var sx, sx2 int64
	for _, v := range vals {
		sx += int64(v)
		sx2 += int64(v) * int64(v)
	}
	return sx, sx2
}

func TestRingBufferSumsMatchContents(t *testing.T) {
	r := NewRingBuffer(4)
	pushed := []int16{0, 1000, 0, -1000, 500, -500}
	for i, v := range pushed {
		r.Push(v)
		window := pushed[:i+1]
		if len(window) > 4 {
			window = window[len(window)-4:]
		}
		wantX, wantX2 := sumsFor(window)
		count, sumX, sumX2 := r.Snapshot()
		if count != len(window) || sumX != wantX || sumX2 != wantX2 {
			t.Fatalf("after push %d: got (count=%d sumX=%d sumX2=%d), want (count=%d sumX=%d sumX2=%d)",
				i, count, sumX, sumX2, len(window), wantX, wantX2)
		}
	}
}

func TestRingBufferCountSaturates(t *testing.T) {
	r := NewRingBuffer(3)
	for i := 0; i < 10; i++ {
		r.Push(int16(i))
	}
	count, _, _ := r.Snapshot()
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
