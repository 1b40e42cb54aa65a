package scheduler

import (
	"testing"

	"github.com/fieldmon/monitor/internal/clock"
)

type manualClock struct {
	now clock.Millis
}

func (m *manualClock) Now() clock.Millis { return m.now }

func TestNewEntryFiresImmediately(t *testing.T) {
	clk := &manualClock{now: 1000}
	s := New(clk)
	s.Add(5, 2, 100)

	due, _ := s.Tick()
	if len(due) != 1 || due[0].SlaveID != 5 {
		t.Fatalf("expected the new entry to be due on its first tick: %v", due)
	}
}

func TestTickInvariantNextDueAfterNow(t *testing.T) {
	clk := &manualClock{now: 1000}
	s := New(clk)
	s.Add(5, 2, 100)
	s.Tick()

	clk.now = 1050
	due, _ := s.Tick()
	if len(due) != 0 {
		t.Fatalf("entry fired early: %v", due)
	}
}

func TestPauseSuspendsDispatch(t *testing.T) {
	clk := &manualClock{now: 1000}
	s := New(clk)
	s.Add(5, 2, 100)
	s.Pause()

	due, _ := s.Tick()
	if len(due) != 0 {
		t.Fatalf("paused scheduler should not dispatch: %v", due)
	}
	s.Resume()
	due, _ = s.Tick()
	if len(due) != 1 {
		t.Fatalf("resumed scheduler should dispatch the due entry")
	}
}

func TestWrapAroundDueEntry(t *testing.T) {
	clk := &manualClock{now: 0xFFFFFFFF}
	s := New(clk)
	s.Add(5, 2, 100)
	s.Tick() // consumes the immediate fire, sets NextDueMs = 0xFFFFFFFF+100 (wraps)

	clk.now = clock.Add(0xFFFFFFFF, 2)
	due, _ := s.Tick()
	if len(due) != 0 {
		t.Fatalf("entry should not be due only 2ms after being scheduled 100ms out: %v", due)
	}

	clk.now = clock.Add(0xFFFFFFFF, 100)
	due, _ = s.Tick()
	if len(due) != 1 {
		t.Fatalf("entry should be due after the wrap once the interval elapses: %v", due)
	}
}

func TestRemoveDropsAllEntriesForSlave(t *testing.T) {
	clk := &manualClock{now: 0}
	s := New(clk)
	s.Add(5, 1, 100)
	s.Add(5, 2, 200)
	s.Add(6, 1, 100)
	s.Remove(5)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after removing slave 5", s.Len())
	}
}
