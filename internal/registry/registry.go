// Package registry holds the set of discovered slaves and their sensor descriptors, the shared
// state Discovery populates and the Scheduler/FailureGovernor consult and mutate.
package registry

import (
	"sync"

	"github.com/fieldmon/monitor/internal/descriptor"
)

// SlaveState is one discovered slave: its sensors and its consecutive-failure count.
type SlaveState struct {
	SlaveID          int
	Sensors          map[int]descriptor.Sensor // keyed by sensorID
	ConsecutiveFails uint
}

// Registry owns the set of known slaves. All mutation and iteration is guarded by a single mutex;
// stable numeric IDs are used everywhere rather than pointers, so the scheduler can hold a
// (slaveID, sensorID) pair safely even while the registry mutates concurrently.
type Registry struct {
	mu     sync.Mutex
	slaves map[int]*SlaveState
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{slaves: make(map[int]*SlaveState)}
}

// UpsertSensor creates the slave if it doesn't exist, then adds or replaces the given sensor by
// sensorID. This is the only mutation Discovery ever performs.
func (r *Registry) UpsertSensor(slaveID int, sensor descriptor.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slaves[slaveID]
	if !ok {
		s = &SlaveState{SlaveID: slaveID, Sensors: make(map[int]descriptor.Sensor)}
		r.slaves[slaveID] = s
	}
	s.Sensors[sensor.SensorID] = sensor
}

// Contains reports whether slaveID is currently tracked.
func (r *Registry) Contains(slaveID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slaves[slaveID]
	return ok
}

// Sensor looks up one sensor's descriptor, for resolving (startAddress, maxRegisters) before a
// dispatch.
func (r *Registry) Sensor(slaveID, sensorID int) (descriptor.Sensor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slaves[slaveID]
	if !ok {
		return descriptor.Sensor{}, false
	}
	sensor, ok := s.Sensors[sensorID]
	return sensor, ok
}

// RecordSuccess resets a slave's consecutive failure count to 0.
func (r *Registry) RecordSuccess(slaveID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slaves[slaveID]; ok {
		s.ConsecutiveFails = 0
	}
}

// RecordFailure increments a slave's consecutive failure count and returns the new value, or
// (0, false) if the slave is not tracked.
func (r *Registry) RecordFailure(slaveID int) (uint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slaves[slaveID]
	if !ok {
		return 0, false
	}
	s.ConsecutiveFails++
	return s.ConsecutiveFails, true
}

// Remove evicts a slave entirely.
func (r *Registry) Remove(slaveID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slaves[slaveID]; !ok {
		return false
	}
	delete(r.slaves, slaveID)
	return true
}

// Snapshot returns a copy of every tracked slave's state, safe to iterate without holding the
// registry lock.
func (r *Registry) Snapshot() []SlaveState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SlaveState, 0, len(r.slaves))
	for _, s := range r.slaves {
		cp := SlaveState{SlaveID: s.SlaveID, ConsecutiveFails: s.ConsecutiveFails, Sensors: make(map[int]descriptor.Sensor, len(s.Sensors))}
		for id, sensor := range s.Sensors {
			cp.Sensors[id] = sensor
		}
		out = append(out, cp)
	}
	return out
}
