// Package dispatch turns scheduler due-entries into Modbus reads, routes successful replies to
// the formatter, and evicts slaves that fail too many times in a row.
package dispatch

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
	"github.com/fieldmon/monitor/internal/scheduler"
)

// EvictionThreshold is the fixed consecutive-failure count at which FailureGovernor removes a
// slave from the registry.
const EvictionThreshold = 3

// SampleTimeout is the default per-read timeout used for routine sampling traffic.
const SampleTimeout = 2 * time.Second

// SamplePayload carries a successful read, ready for Formatter.
type SamplePayload struct {
	SlaveID  int
	SensorID int
	Sensor   descriptor.Sensor
	Registers []int
}

// Sink receives every successfully dispatched sample.
type Sink func(SamplePayload)

// Dispatcher resolves due entries against the registry, issues reads, and feeds FailureGovernor.
type Dispatcher struct {
	bus  *gwbus.Client
	reg  *registry.Registry
	sch  *scheduler.Scheduler
	sink Sink
	log  *logrus.Logger
}

// New builds a dispatcher wired to the given bus, registry, scheduler and downstream sink.
func New(bus *gwbus.Client, reg *registry.Registry, sch *scheduler.Scheduler, sink Sink, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, reg: reg, sch: sch, sink: sink, log: log}
}

// DispatchDue resolves and issues a read for every entry in due. It reports the IDs of the slaves
// that were just evicted; their scheduler entries have already been removed.
func (d *Dispatcher) DispatchDue(due []scheduler.Entry) (evicted []int) {
	for _, entry := range due {
		if d.dispatchOne(entry) {
			continue
		}
	}
	return d.evictFailedSlaves(due)
}

// dispatchOne issues one read and routes its outcome. It returns true on success.
func (d *Dispatcher) dispatchOne(entry scheduler.Entry) bool {
	sensor, ok := d.reg.Sensor(entry.SlaveID, entry.SensorID)
	if !ok {
		d.log.WithFields(logrus.Fields{"slave": entry.SlaveID, "sensor": entry.SensorID}).Warn("dispatch: sensor not in registry, skipping")
		return false
	}

	result, err := d.bus.ReadRegisters(entry.SlaveID, entry.SensorID, sensor.StartAddress, sensor.MaxRegisters, SampleTimeout)
	if err != nil {
		d.reg.RecordFailure(entry.SlaveID)
		d.log.WithFields(logrus.Fields{"slave": entry.SlaveID, "sensor": entry.SensorID}).WithError(err).Debug("dispatch: read failed")
		return false
	}

	d.reg.RecordSuccess(entry.SlaveID)
	if d.sink != nil {
		d.sink(SamplePayload{SlaveID: entry.SlaveID, SensorID: entry.SensorID, Sensor: sensor, Registers: result.Payload})
	}
	return true
}

// evictFailedSlaves removes any slave named in due whose consecutiveFails has reached the
// eviction threshold, invalidating its in-flight bus slots and marking the scheduler dirty by
// dropping its entries directly.
func (d *Dispatcher) evictFailedSlaves(due []scheduler.Entry) []int {
	seen := make(map[int]bool)
	var evicted []int
	for _, entry := range due {
		if seen[entry.SlaveID] {
			continue
		}
		seen[entry.SlaveID] = true
		for _, s := range d.reg.Snapshot() {
			if s.SlaveID == entry.SlaveID && s.ConsecutiveFails >= EvictionThreshold {
				d.reg.Remove(entry.SlaveID)
				d.sch.Remove(entry.SlaveID)
				d.bus.Invalidate(entry.SlaveID)
				evicted = append(evicted, entry.SlaveID)
				d.log.WithField("slave", entry.SlaveID).Warn("dispatch: slave evicted after repeated failures")
			}
		}
	}
	return evicted
}
