// Package scheduler fires (slaveID, sensorID) sampling events at per-sensor intervals derived
// from each sensor's descriptor, using wrap-safe millisecond comparisons throughout.
package scheduler

import (
	"sync"
	"time"

	"github.com/fieldmon/monitor/internal/clock"
)

// Entry is one scheduled sampling slot.
type Entry struct {
	SlaveID    int
	SensorID   int
	IntervalMs int
	NextDueMs  clock.Millis
}

// key uniquely identifies an entry within the schedule.
type key struct {
	slaveID, sensorID int
}

// Scheduler owns the schedule list under its own mutex; it is the only mutator of that list
// outside of explicit control operations (Add/Remove), which also take the mutex.
type Scheduler struct {
	mu      sync.Mutex
	clk     clock.Clock
	entries map[key]*Entry
	paused  bool
}

// New builds an empty scheduler against the given clock (use clock.NewSystemClock() in
// production; tests substitute a manual clock to exercise wrap-around deterministically).
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clk: clk, entries: make(map[key]*Entry)}
}

// Add installs or replaces a schedule entry, due immediately (fires on the next tick).
func (s *Scheduler) Add(slaveID, sensorID, intervalMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{slaveID, sensorID}] = &Entry{
		SlaveID:    slaveID,
		SensorID:   sensorID,
		IntervalMs: intervalMs,
		NextDueMs:  s.clk.Now(),
	}
}

// Remove drops every entry belonging to slaveID, used on eviction and unregister_slave.
func (s *Scheduler) Remove(slaveID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.slaveID == slaveID {
			delete(s.entries, k)
		}
	}
}

// Pause suspends new dispatches; Tick still runs but always returns an empty due list.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume undoes Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Tick snapshots every due entry under the mutex, advances its NextDueMs, and returns the
// snapshot for the caller to process outside the lock. It also returns how long the caller should
// sleep before the next call.
func (s *Scheduler) Tick() (due []Entry, sleep time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if s.paused {
		return nil, time.Second
	}

	var minWait clock.Millis
	haveMin := false

	for _, e := range s.entries {
		if !clock.After(e.NextDueMs, now) { // NextDueMs <= now
			due = append(due, *e)
			e.NextDueMs = clock.Add(now, int64(e.IntervalMs))
		}
		wait := clock.Since(e.NextDueMs, now)
		if wait < 0 {
			wait = 0
		}
		if !haveMin || clock.Millis(wait) < minWait {
			minWait = clock.Millis(wait)
			haveMin = true
		}
	}

	if !haveMin {
		return due, time.Second
	}
	sleep = time.Duration(minWait) * time.Millisecond
	if sleep <= 0 {
		sleep = 10 * time.Millisecond
	}
	return due, sleep
}

// Len reports the number of entries currently scheduled, for tests and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
