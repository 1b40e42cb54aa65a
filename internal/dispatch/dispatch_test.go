package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/clock"
	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
	"github.com/fieldmon/monitor/internal/scheduler"
	"github.com/fieldmon/monitor/modbus"
)

type manualClock struct{ now clock.Millis }

func (m *manualClock) Now() clock.Millis { return m.now }

type failingMaster struct{}

func (failingMaster) UnitID() int { return 5 }
func (failingMaster) ReadHoldings(from, count int, tout time.Duration) (*modbus.X03xReadHolding, error) {
	return nil, fmt.Errorf("no response")
}

func TestEvictionScenario(t *testing.T) {
	quietLog := logrus.New()
	quietLog.SetLevel(logrus.PanicLevel)

	reg := registry.New()
	reg.UpsertSensor(5, descriptor.Sensor{SensorID: 2, StartAddress: 10, MaxRegisters: 4})
	sch := newTestScheduler(t)
	sch.Add(5, 2, 100)

	bus := gwbus.NewClient(4, func(slaveID int) modbus.Client { return failingMaster{} })
	d := New(bus, reg, sch, nil, quietLog)

	dueEntry := scheduler.Entry{SlaveID: 5, SensorID: 2, IntervalMs: 100}
	for i := 0; i < 3; i++ {
		d.DispatchDue([]scheduler.Entry{dueEntry})
	}

	if reg.Contains(5) {
		t.Fatalf("slave 5 should be evicted after 3 consecutive failures")
	}
	if sch.Len() != 0 {
		t.Fatalf("scheduler should have no entries left for slave 5")
	}
}

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	return scheduler.New(&manualClock{now: 0})
}
