// Package clock provides the monotonic millisecond clock shared by the scheduler and the RMS
// publication pipeline. Comparisons are signed-difference based so a 32-bit wrap of the
// underlying counter never reads as "overdue forever" or "never due".
package clock

import "time"

// Millis is a monotonic millisecond timestamp. It wraps modulo 2^32, matching the embedded
// systems this design is modeled on, so all comparisons between two Millis values must go
// through Before/After/Since rather than direct relational operators.
type Millis uint32

// Clock is the source of monotonic time. Production code uses SystemClock; tests substitute a
// manual clock to exercise wrap-around without waiting for it.
type Clock interface {
	Now() Millis
}

// SystemClock reports milliseconds since the clock was constructed, via the monotonic part of
// time.Now(). It never jumps backward, but its 32-bit truncation does wrap every ~49.7 days.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored to the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns milliseconds elapsed since the clock was created, truncated to 32 bits.
func (c *SystemClock) Now() Millis {
	return Millis(uint32(time.Since(c.start).Milliseconds()))
}

// Before reports whether a is strictly earlier than b, correctly across a wrap of the counter.
func Before(a, b Millis) bool {
	return int32(a-b) < 0
}

// After reports whether a is strictly later than b, correctly across a wrap of the counter.
func After(a, b Millis) bool {
	return int32(a-b) > 0
}

// Since returns how many milliseconds have elapsed from earlier to now, correctly across a wrap
// of the counter. The result is negative if now is actually before earlier.
func Since(now, earlier Millis) int32 {
	return int32(now - earlier)
}

// Add returns m advanced by delta milliseconds, wrapping as Millis always does.
func Add(m Millis, delta int64) Millis {
	return Millis(int64(m) + delta)
}
