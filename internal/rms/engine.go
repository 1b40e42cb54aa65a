// Package rms implements the slave's per-channel ring buffer, RMS computation with adaptive
// smoothing, and the bounded history that RegisterPublisher later drains into the Modbus window.
package rms

import (
	"math"
	"sync"
)

const (
	alphaMin    = 0.05
	alphaMax    = 0.30
	deltaRelMax = 0.30
	epsilon     = 0.01
)

// Sample is one raw reading off a channel, as delivered by a SampleSource.
type Sample struct {
	Channel int
	Raw     int16
}

// ChannelConfig fixes the per-channel scaling applied when turning a variance into volts.
type ChannelConfig struct {
	VoltsPerBit float64
	Gain        float64
}

type channelState struct {
	mu       sync.Mutex
	ring     *RingBuffer
	cfg      ChannelConfig
	history  *HistoryRing
	lastRMS  float64
	smoothed bool
}

// Engine owns one RingBuffer and one HistoryRing per channel and applies the fixed RMS formula
// plus adaptive EMA smoothing on every Tick.
type Engine struct {
	channels []*channelState
}

// NewEngine builds an engine for numChannels channels, each with a RingBuffer of capacity
// ringSize and a HistoryRing of capacity historySize.
func NewEngine(numChannels, ringSize, historySize int, cfgs []ChannelConfig) *Engine {
	e := &Engine{channels: make([]*channelState, numChannels)}
	for c := 0; c < numChannels; c++ {
		cfg := ChannelConfig{VoltsPerBit: 1, Gain: 1}
		if c < len(cfgs) {
			cfg = cfgs[c]
		}
		e.channels[c] = &channelState{
			ring:    NewRingBuffer(ringSize),
			cfg:     cfg,
			history: NewHistoryRing(historySize),
		}
	}
	return e
}

// Ingest is the ISR-side entry point: it pushes one sample into its channel's ring under a short
// critical section and returns immediately. It never touches the history mutex.
func (e *Engine) Ingest(s Sample) {
	if s.Channel < 0 || s.Channel >= len(e.channels) {
		return
	}
	ch := e.channels[s.Channel]
	ch.mu.Lock()
	ch.ring.Push(s.Raw)
	ch.mu.Unlock()
}

// Tick runs one RMS processing cycle over every channel: snapshot sums, compute RMS, apply
// adaptive smoothing, and push the smoothed value onto that channel's history. Channels with no
// samples yet are skipped, per the "history not advanced" rule.
func (e *Engine) Tick() {
	for _, ch := range e.channels {
		ch.mu.Lock()
		count, sumX, sumX2 := ch.ring.Snapshot()
		ch.mu.Unlock()
		if count == 0 {
			continue
		}
		x := rawRMS(count, sumX, sumX2, ch.cfg)

		ch.mu.Lock()
		var y float64
		if !ch.smoothed {
			y = x
			ch.smoothed = true
		} else {
			y = smooth(x, ch.lastRMS)
		}
		ch.lastRMS = y
		ch.mu.Unlock()

		ch.history.Push(y)
	}
}

// rawRMS computes the fixed formula: rms = sqrt(max(0, sumX2/count - mean^2)) * voltsPerBit * gain.
func rawRMS(count int, sumX, sumX2 int64, cfg ChannelConfig) float64 {
	n := float64(count)
	mean := float64(sumX) / n
	variance := float64(sumX2)/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance) * cfg.VoltsPerBit * cfg.Gain
}

// smooth applies the relative-change-adaptive EMA described for publication smoothing.
func smooth(x, yPrev float64) float64 {
	deltaRel := math.Abs(x-yPrev) / (math.Abs(yPrev) + epsilon)
	alpha := alphaMin + (alphaMax-alphaMin)*deltaRel/deltaRelMax
	if alpha < alphaMin {
		alpha = alphaMin
	}
	if alpha > alphaMax {
		alpha = alphaMax
	}
	return alpha*x + (1-alpha)*yPrev
}

// LastRMS returns the most recently smoothed value published for channel c, or 0 if it has never
// been published.
func (e *Engine) LastRMS(c int) float64 {
	if c < 0 || c >= len(e.channels) {
		return 0
	}
	ch := e.channels[c]
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.lastRMS
}

// History returns the channel's HistoryRing for direct reads by RegisterPublisher.
func (e *Engine) History(c int) *HistoryRing {
	if c < 0 || c >= len(e.channels) {
		return nil
	}
	return e.channels[c].history
}

// NumChannels reports how many channels this engine was configured with.
func (e *Engine) NumChannels() int {
	return len(e.channels)
}
