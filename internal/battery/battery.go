// Package battery implements the slow battery-level collaborator task: it samples a voltage
// divider, encodes the level as a single byte, and feeds the result into the aggregator as
// sensor 0.
package battery

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/uplink"
)

// Divider reads the battery voltage divider. Concrete implementations wrap a periph.io ADC
// channel; this package only depends on the physic.ElectricPotential result.
type Divider interface {
	Read() (physic.ElectricPotential, error)
}

// SamplePeriod is the default period between battery reads; this is a slow sensor, sampled far
// less often than the RMS channels.
const SamplePeriod = 30 * time.Second

// Task periodically samples a Divider and offers the encoded level to an Aggregator as sensor 0.
type Task struct {
	divider Divider
	agg     *uplink.Aggregator
}

// NewTask builds a battery task feeding agg.
func NewTask(divider Divider, agg *uplink.Aggregator) *Task {
	return &Task{divider: divider, agg: agg}
}

// Run blocks, sampling and offering a reading every SamplePeriod until stop is closed.
func (t *Task) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(SamplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.sampleOnce()
		}
	}
}

func (t *Task) sampleOnce() {
	v, err := t.divider.Read()
	if err != nil {
		return
	}
	t.agg.Offer(uplink.Payload{
		SensorID: descriptor.SensorBattery,
		Bytes:    []byte{EncodeLevel(v)},
		Samples:  1,
	})
}

// EncodeLevel encodes a voltage as round(voltage * 10), clamped to a single byte, per the
// battery collaborator contract.
func EncodeLevel(v physic.ElectricPotential) byte {
	volts := float64(v) / float64(physic.Volt)
	level := int(volts*10 + 0.5)
	if level < 0 {
		level = 0
	}
	if level > 255 {
		level = 255
	}
	return byte(level)
}
