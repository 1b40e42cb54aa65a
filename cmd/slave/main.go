// Command slave runs one electromechanical monitoring node: it samples its configured analog
// channels, maintains the RMS engine, and exposes the result over Modbus RTU to a gateway polling
// on the shared RS-485 bus.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/rms"
	"github.com/fieldmon/monitor/internal/slave"
	"github.com/fieldmon/monitor/modbus"
)

type options struct {
	Device       string `short:"d" long:"device" default:"/dev/ttyUSB0" description:"RS-485 serial device"`
	Baud         int    `short:"b" long:"baud" default:"19200" description:"Bus baud rate"`
	UnitID       int    `short:"u" long:"unit" required:"true" description:"Modbus unit ID for this node"`
	ReadyPin     string `long:"ready-pin" default:"GPIO17" description:"GPIO line signalling conversion-complete"`
	Channels     []int  `short:"c" long:"channel" required:"true" description:"ADC channel index, one per -c"`
	VoltsPerBit  string `long:"volts-per-bit" default:"0.001" description:"Comma separated per-channel volts-per-bit"`
	Gain         string `long:"gain" default:"1.0" description:"Comma separated per-channel gain"`
	SamplingSPS  int    `long:"rate" default:"4000" description:"Sweep rate in samples per second"`
	RingSize     int    `long:"ring-size" default:"256" description:"Samples per RMS window"`
	HistorySize  int    `long:"history-size" default:"32" description:"RMS history depth per channel"`
	WindowSamp   int    `long:"window-samples" default:"4" description:"Samples per channel published per poll"`
	DescSensorID int    `long:"descriptor-sensor-id" default:"2" description:"Sensor ID advertised in the descriptor block"`
	ProcessMs    int    `long:"process-period-ms" default:"50" description:"RMS tick period"`
	Verbose      bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	log := logrus.New()
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(opts, log); err != nil {
		log.WithError(err).Fatal("slave exited")
	}
}

func run(opts options, log *logrus.Logger) error {
	if err := rms.InitHost(); err != nil {
		return err
	}

	readyPin := gpioreg.ByName(opts.ReadyPin)
	if readyPin == nil {
		return fmt.Errorf("slave: unknown GPIO pin %q", opts.ReadyPin)
	}

	adc, err := newAnalogPins(opts.Channels)
	if err != nil {
		return err
	}

	voltsPerBit, err := parseFloats(opts.VoltsPerBit, len(opts.Channels))
	if err != nil {
		return fmt.Errorf("slave: volts-per-bit: %w", err)
	}
	gains, err := parseFloats(opts.Gain, len(opts.Channels))
	if err != nil {
		return fmt.Errorf("slave: gain: %w", err)
	}
	chanConfigs := make([]rms.ChannelConfig, len(opts.Channels))
	conversionFactors := make([]float64, len(opts.Channels))
	for i := range opts.Channels {
		chanConfigs[i] = rms.ChannelConfig{VoltsPerBit: voltsPerBit[i], Gain: gains[i]}
		conversionFactors[i] = 1
	}

	source := rms.NewInterruptSource(readyPin, adc)
	if err := source.Configure(opts.Channels, opts.SamplingSPS, 1); err != nil {
		return err
	}

	desc := descriptor.Sensor{
		SensorID:         opts.DescSensorID,
		NumberOfChannels: len(opts.Channels),
		StartAddress:     slave.WindowBase,
		MaxRegisters:     len(opts.Channels) * opts.WindowSamp,
		SamplingInterval: 1000 / opts.SamplingSPS,
		DataType:         descriptor.DataTypeUint16,
		Scale:            0,
		CompressedBytes:  0,
	}

	cfg := slave.Config{
		UnitID:            opts.UnitID,
		Descriptor:        desc,
		NumChannels:       len(opts.Channels),
		RingSize:          opts.RingSize,
		HistorySize:       opts.HistorySize,
		SamplesPerChannel: opts.WindowSamp,
		ChannelConfigs:    chanConfigs,
		ConversionFactors: conversionFactors,
	}

	node, err := slave.Assemble(cfg, source, log)
	if err != nil {
		return fmt.Errorf("slave: assemble: %w", err)
	}

	bus, err := modbus.NewRTU(opts.Device, opts.Baud, modbus.ParityNone, modbus.StopBitsOne, 0, false)
	if err != nil {
		return fmt.Errorf("slave: open bus: %w", err)
	}
	defer bus.Close()
	bus.SetServer(opts.UnitID, node.Server)

	source.Enable(true)
	defer source.Enable(false)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	log.WithFields(logrus.Fields{"unit": opts.UnitID, "device": opts.Device}).Info("slave node running")
	node.Run(stop, opts.ProcessMs)
	return nil
}

// analogPins maps the SampleSource's logical channel numbers onto concrete periph.io ADC pins
// discovered at startup.
type analogPins struct {
	byChannel map[int]analog.PinADC
}

func newAnalogPins(channels []int) (*analogPins, error) {
	pins := &analogPins{byChannel: make(map[int]analog.PinADC, len(channels))}
	for _, ch := range channels {
		name := fmt.Sprintf("ADC%d", ch)
		pin := analog.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("slave: no analog pin registered for channel %d (%s)", ch, name)
		}
		pins.byChannel[ch] = pin
	}
	return pins, nil
}

func (a *analogPins) Convert(channel int) (physic.ElectricPotential, error) {
	pin, ok := a.byChannel[channel]
	if !ok {
		return 0, fmt.Errorf("slave: channel %d not configured", channel)
	}
	sample, err := pin.Read()
	if err != nil {
		return 0, err
	}
	return sample.V, nil
}

func parseFloats(csv string, want int) ([]float64, error) {
	parts := strings.Split(csv, ",")
	out := make([]float64, want)
	for i := 0; i < want; i++ {
		src := parts[0]
		if i < len(parts) {
			src = parts[i]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(src), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
