package uplink

import "testing"

func TestAggregatorDuplicateOverride(t *testing.T) {
	a := NewAggregator()
	a.Offer(Payload{SensorID: 2, Bytes: []byte{1}})
	a.Offer(Payload{SensorID: 2, Bytes: []byte{2}})

	drained := a.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected one payload after duplicate override, got %d", len(drained))
	}
	if drained[0].Bytes[0] != 2 {
		t.Fatalf("expected the later payload to win, got %v", drained[0].Bytes)
	}
}

func TestAggregatorDrainEmptiesWindow(t *testing.T) {
	a := NewAggregator()
	a.Offer(Payload{SensorID: 0, Bytes: []byte{1}})
	a.Drain()
	if got := a.Drain(); got != nil {
		t.Fatalf("second drain should be empty, got %v", got)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(1)
	if !q.Enqueue([]byte{1}) {
		t.Fatalf("first enqueue should succeed")
	}
	if q.Enqueue([]byte{2}) {
		t.Fatalf("enqueue into a full queue should be dropped")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue([]byte{1})
	q.Enqueue([]byte{2})
	first, _ := q.Dequeue()
	if first[0] != 1 {
		t.Fatalf("Dequeue returned %v, want [1]", first)
	}
}
