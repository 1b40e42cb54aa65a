package control

import (
	"testing"
	"time"

	"github.com/fieldmon/monitor/internal/clock"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
	"github.com/fieldmon/monitor/internal/scheduler"
	"github.com/fieldmon/monitor/modbus"
)

type fakeMaster struct {
	unit  int
	regs  []int
	fails bool
}

func (f *fakeMaster) UnitID() int { return f.unit }

func (f *fakeMaster) ReadHoldings(from, count int, tout time.Duration) (*modbus.X03xReadHolding, error) {
	if f.fails {
		return nil, errFake
	}
	return &modbus.X03xReadHolding{Address: from, Values: f.regs}, nil
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "no response" }

func newSurface(masters map[int]*fakeMaster) *Surface {
	bus := gwbus.NewClient(4, func(slaveID int) modbus.Client { return masters[slaveID] })
	reg := registry.New()
	sch := scheduler.New(clock.NewSystemClock())
	return New(bus, reg, sch)
}

func TestRegisterSlaveAddsSchedulerEntry(t *testing.T) {
	regs := []int{0x0002, 0x0003, 0x000A, 0x0012, 0x03E8, 0x0001, 0x0001, 0x0000}
	masters := map[int]*fakeMaster{7: {unit: 7, regs: regs}}
	s := newSurface(masters)

	if err := s.RegisterSlave(7); err != nil {
		t.Fatalf("RegisterSlave: %v", err)
	}
	if s.sch.Len() != 1 {
		t.Fatalf("expected one scheduler entry, got %d", s.sch.Len())
	}
	if !s.reg.Contains(7) {
		t.Fatalf("slave 7 should be tracked in the registry")
	}
}

func TestRegisterSlaveReportsNotResponding(t *testing.T) {
	masters := map[int]*fakeMaster{9: {unit: 9, fails: true}}
	s := newSurface(masters)

	if err := s.RegisterSlave(9); err == nil {
		t.Fatalf("expected an error for an unresponsive slave")
	}
	if s.reg.Contains(9) {
		t.Fatalf("a failed registration must not leave the slave tracked")
	}
}

func TestUnregisterSlaveRemovesEverything(t *testing.T) {
	regs := []int{0x0002, 0x0003, 0x000A, 0x0012, 0x03E8, 0x0001, 0x0001, 0x0000}
	masters := map[int]*fakeMaster{7: {unit: 7, regs: regs}}
	s := newSurface(masters)
	if err := s.RegisterSlave(7); err != nil {
		t.Fatalf("RegisterSlave: %v", err)
	}

	if !s.UnregisterSlave(7) {
		t.Fatalf("expected UnregisterSlave to report the slave was tracked")
	}
	if s.sch.Len() != 0 {
		t.Fatalf("expected scheduler entries to be removed, got %d", s.sch.Len())
	}
	if s.UnregisterSlave(7) {
		t.Fatalf("a second unregister of the same slave should report not found")
	}
}

func TestPauseResumeScheduler(t *testing.T) {
	s := newSurface(map[int]*fakeMaster{})
	s.sch.Add(1, 2, 100)

	s.PauseScheduler()
	due, sleep := s.sch.Tick()
	if len(due) != 0 {
		t.Fatalf("paused scheduler must not dispatch, got %d due entries", len(due))
	}
	if sleep <= 0 {
		t.Fatalf("expected a positive sleep while paused")
	}

	s.ResumeScheduler()
	due, _ = s.sch.Tick()
	if len(due) != 1 {
		t.Fatalf("resumed scheduler should dispatch the pending entry, got %d", len(due))
	}
}
