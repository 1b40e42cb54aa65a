package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
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
		return nil, fmt.Errorf("no response")
	}
	return &modbus.X03xReadHolding{Address: from, Values: f.regs}, nil
}

func TestBootstrapParsesScenario3(t *testing.T) {
	regs := []int{0x0002, 0x0003, 0x000A, 0x0012, 0x03E8, 0x0001, 0x0001, 0x0000}
	masters := map[int]*fakeMaster{
		7: {unit: 7, regs: regs},
	}
	client := gwbus.NewClient(4, func(slaveID int) modbus.Client { return masters[slaveID] })
	reg := registry.New()

	Bootstrap(client, reg, []int{7}, logrus.New())

	sensor, ok := reg.Sensor(7, 2)
	if !ok {
		t.Fatalf("slave 7 sensor 2 should be registered after bootstrap")
	}
	if sensor.NumberOfChannels != 3 || sensor.StartAddress != 10 || sensor.MaxRegisters != 18 {
		t.Fatalf("unexpected decoded sensor: %+v", sensor)
	}
}

func TestBootstrapSkipsUnresponsiveSlave(t *testing.T) {
	masters := map[int]*fakeMaster{
		9: {unit: 9, fails: true},
	}
	client := gwbus.NewClient(4, func(slaveID int) modbus.Client { return masters[slaveID] })
	reg := registry.New()

	Bootstrap(client, reg, []int{9}, logrus.New())

	if reg.Contains(9) {
		t.Fatalf("an unresponsive slave must not be registered")
	}
}
