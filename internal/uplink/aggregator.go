// Package uplink builds the unified binary frame uplinked over LoRaWAN: a time-windowed
// aggregator collects normalized payloads, the frame builder packs them per the wire format, and
// a bounded queue hands finished frames to the radio driver.
package uplink

import "sync"

// Payload is one sensor's normalized bytes, ready to be placed in a frame.
type Payload struct {
	SensorID int
	Bytes    []byte
	Packed   bool // true if Bytes is BitPacker output (PKD)
	Samples  int  // samples per channel, for DATA_LENGTH
}

// DefaultWindowMillis is the aggregation window's default period in milliseconds (6.1s).
const DefaultWindowMillis = 6100

// Aggregator collects payloads non-blockingly during a window; a later payload for the same
// sensorID overrides an earlier one within the same window.
type Aggregator struct {
	mu   sync.Mutex
	byID map[int]Payload
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[int]Payload)}
}

// Offer adds or overrides a payload for the current window. Safe to call from the formatter's
// goroutine concurrently with Drain.
func (a *Aggregator) Offer(p Payload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[p.SensorID] = p
}

// Drain empties the aggregator and returns everything collected since the last Drain, in no
// particular order (build_frame's activate-byte logic imposes the ascending-bit ordering).
func (a *Aggregator) Drain() []Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.byID) == 0 {
		return nil
	}
	out := make([]Payload, 0, len(a.byID))
	for _, p := range a.byID {
		out = append(out, p)
	}
	a.byID = make(map[int]Payload)
	return out
}
