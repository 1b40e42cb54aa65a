package battery

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/uplink"
)

type fakeDivider struct {
	v   physic.ElectricPotential
	err error
}

func (f fakeDivider) Read() (physic.ElectricPotential, error) { return f.v, f.err }

func TestEncodeLevel(t *testing.T) {
	got := EncodeLevel(3700 * physic.MilliVolt)
	if got != 37 {
		t.Fatalf("EncodeLevel(3.7V) = %d, want 37", got)
	}
}

func TestTaskOffersBatterySensor(t *testing.T) {
	agg := uplink.NewAggregator()
	task := NewTask(fakeDivider{v: 4200 * physic.MilliVolt}, agg)

	task.sampleOnce()

	drained := agg.Drain()
	if len(drained) != 1 || drained[0].SensorID != descriptor.SensorBattery {
		t.Fatalf("expected one battery payload, got %+v", drained)
	}
	if drained[0].Bytes[0] != 42 {
		t.Fatalf("encoded level = %d, want 42", drained[0].Bytes[0])
	}
}
