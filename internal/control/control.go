// Package control implements the gateway's minimal imperative control surface: register/
// unregister a slave, and pause/resume the dispatch side, independent of any particular
// transport (CLI, HTTP, or in-process callers all use the same Surface).
package control

import (
	"fmt"

	"github.com/fieldmon/monitor/internal/discovery"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
	"github.com/fieldmon/monitor/internal/scheduler"
)

// Surface is the transport-agnostic control API described for the gateway.
type Surface struct {
	bus *gwbus.Client
	reg *registry.Registry
	sch *scheduler.Scheduler
}

// New builds a control surface over the gateway's shared state.
func New(bus *gwbus.Client, reg *registry.Registry, sch *scheduler.Scheduler) *Surface {
	return &Surface{bus: bus, reg: reg, sch: sch}
}

// RegisterSlave runs a one-shot discovery read; on success it atomically adds the resulting
// sensors to the scheduler.
func (s *Surface) RegisterSlave(slaveID int) error {
	if err := discovery.RegisterSlave(s.bus, s.reg, slaveID); err != nil {
		return fmt.Errorf("not_responding: %w", err)
	}
	sensor, ok := s.reg.Sensor(slaveID, sensorIDFromDiscovery(s.reg, slaveID))
	if !ok {
		return fmt.Errorf("not_responding: registered but no sensor found")
	}
	s.sch.Add(slaveID, sensor.SensorID, sensor.IntervalMillis())
	return nil
}

// sensorIDFromDiscovery picks out the sensor just registered for slaveID. Discovery always
// populates exactly one sensor per successful read (the descriptor block describes one sensor),
// so the first (and only) entry in the snapshot is the one we just added.
func sensorIDFromDiscovery(reg *registry.Registry, slaveID int) int {
	for _, s := range reg.Snapshot() {
		if s.SlaveID != slaveID {
			continue
		}
		for id := range s.Sensors {
			return id
		}
	}
	return -1
}

// UnregisterSlave removes the slave and all its scheduler entries. It reports false if the slave
// was not tracked.
func (s *Surface) UnregisterSlave(slaveID int) bool {
	removed := s.reg.Remove(slaveID)
	s.sch.Remove(slaveID)
	s.bus.Invalidate(slaveID)
	return removed
}

// PauseScheduler suspends new dispatches; in-flight requests are unaffected.
func (s *Surface) PauseScheduler() {
	s.sch.Pause()
}

// ResumeScheduler undoes PauseScheduler.
func (s *Surface) ResumeScheduler() {
	s.sch.Resume()
}
