// Command gateway polls every registered slave over Modbus RTU, assembles the unified LoRaWAN
// uplink frame from their readings, and exposes a small line-oriented control surface for
// register/unregister/pause/resume operations.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/fieldmon/monitor/internal/battery"
	"github.com/fieldmon/monitor/internal/clock"
	"github.com/fieldmon/monitor/internal/control"
	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/discovery"
	"github.com/fieldmon/monitor/internal/dispatch"
	"github.com/fieldmon/monitor/internal/display"
	"github.com/fieldmon/monitor/internal/format"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/radio"
	"github.com/fieldmon/monitor/internal/registry"
	"github.com/fieldmon/monitor/internal/scheduler"
	"github.com/fieldmon/monitor/internal/uplink"
	"github.com/fieldmon/monitor/modbus"
)

type options struct {
	Device        string `short:"d" long:"device" default:"/dev/ttyUSB0" description:"RS-485 serial device"`
	Baud          int    `short:"b" long:"baud" default:"19200" description:"Bus baud rate"`
	Candidates    []int  `short:"s" long:"slave" required:"true" description:"Candidate slave unit ID, one per -s"`
	BatteryPin    string `long:"battery-pin" default:"ADC0" description:"Analog pin for the battery voltage divider"`
	MQTTBroker    string `long:"mqtt-broker" default:"tcp://localhost:1883" description:"Broker URL for the display summary sink"`
	DisplayTopic  string `long:"display-topic" default:"fieldmon/gateway/display" description:"MQTT topic for display summaries"`
	QueueCapacity int    `long:"queue-capacity" default:"8" description:"Uplink frame queue depth"`
	Verbose       bool   `short:"v" long:"verbose" description:"Enable debug logging"`
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
		log.WithError(err).Fatal("gateway exited")
	}
}

func run(opts options, log *logrus.Logger) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gateway: host init: %w", err)
	}

	bus, err := modbus.NewRTU(opts.Device, opts.Baud, modbus.ParityNone, modbus.StopBitsOne, 0, false)
	if err != nil {
		return fmt.Errorf("gateway: open bus: %w", err)
	}
	defer bus.Close()

	client := gwbus.NewClient(16, func(slaveID int) modbus.Client { return bus.GetClient(slaveID) })
	reg := registry.New()
	sch := scheduler.New(clock.NewSystemClock())

	log.WithField("count", len(opts.Candidates)).Info("running discovery bootstrap")
	discovery.Bootstrap(client, reg, opts.Candidates, log)
	for _, slaveID := range opts.Candidates {
		if sensor, ok := firstSensor(reg, slaveID); ok {
			sch.Add(slaveID, sensor.SensorID, sensor.IntervalMillis())
		}
	}

	agg := uplink.NewAggregator()
	queue := uplink.NewQueue(opts.QueueCapacity)

	sink := func(p dispatch.SamplePayload) {
		bytes := format.Normalize(p.Sensor, p.Registers)
		agg.Offer(uplink.Payload{
			SensorID: p.SensorID,
			Bytes:    bytes,
			Packed:   p.Sensor.CompressedBytes > 0,
			Samples:  p.Sensor.RegistersPerChannel(),
		})
	}
	disp := dispatch.New(client, reg, sch, sink, log)

	batteryDivider, err := newDivider(opts.BatteryPin)
	if err != nil {
		return err
	}
	batteryTask := battery.NewTask(batteryDivider, agg)

	mqttClient, err := newMQTTClient(opts.MQTTBroker, log)
	if err != nil {
		return fmt.Errorf("gateway: mqtt: %w", err)
	}
	displaySink := display.NewSink(mqttClient, opts.DisplayTopic, 8, log)

	radioDriver := &loggingRadioDriver{log: log}
	uplinker := radio.NewUplinker(queue, radioDriver, log)

	ctrl := control.New(client, reg, sch)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	go batteryTask.Run(stop)
	go displaySink.Run(stop)
	go uplinker.Run(stop)
	go runSchedulerLoop(sch, disp, stop, log)
	go runUplinkWindow(agg, queue, displaySink, stop, log)
	go runControlConsole(ctrl, stop, log)

	log.WithField("candidates", opts.Candidates).Info("gateway running")
	<-stop
	return nil
}

// runSchedulerLoop drives Tick in a loop, sleeping exactly as long as Tick recommends.
func runSchedulerLoop(sch *scheduler.Scheduler, disp *dispatch.Dispatcher, stop <-chan struct{}, log *logrus.Logger) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		due, sleep := sch.Tick()
		if len(due) > 0 {
			if evicted := disp.DispatchDue(due); len(evicted) > 0 {
				log.WithField("slaves", evicted).Info("evicted unresponsive slaves")
			}
		}
		select {
		case <-stop:
			return
		case <-time.After(sleep):
		}
	}
}

var frameIDCounter byte

// runUplinkWindow drains the aggregator every DefaultWindowMillis, builds one uplink frame, and
// enqueues it for the radio loop, mirroring a summary to the display sink.
func runUplinkWindow(agg *uplink.Aggregator, queue *uplink.Queue, disp *display.Sink, stop <-chan struct{}, log *logrus.Logger) {
	ticker := time.NewTicker(uplink.DefaultWindowMillis * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			payloads := agg.Drain()
			if len(payloads) == 0 {
				continue
			}
			frameIDCounter++
			frame := uplink.BuildFrame(frameIDCounter, uint32(now.Unix()), payloads)
			if !queue.Enqueue(frame) {
				log.Warn("uplink queue full, frame dropped")
			}
			sensors := make([]int, len(payloads))
			for i, p := range payloads {
				sensors[i] = p.SensorID
			}
			disp.Offer(display.Summary{IDMsg: frameIDCounter, Timestamp: now, FrameLen: len(frame), Sensors: sensors})
		}
	}
}

// runControlConsole reads newline-delimited commands from stdin: "register <id>", "unregister
// <id>", "pause", "resume". It is the simplest transport for the control surface; a CLI or HTTP
// front end can wrap the same Surface.
func runControlConsole(ctrl *control.Surface, stop <-chan struct{}, log *logrus.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()
	for {
		select {
		case <-stop:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleControlLine(ctrl, line, log)
		}
	}
}

func handleControlLine(ctrl *control.Surface, line string, log *logrus.Logger) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "register":
		id, err := parseSlaveID(fields)
		if err != nil {
			log.WithError(err).Warn("control: bad command")
			return
		}
		if err := ctrl.RegisterSlave(id); err != nil {
			log.WithError(err).Warn("register_slave failed")
		} else {
			log.WithField("slave", id).Info("register_slave: ok")
		}
	case "unregister":
		id, err := parseSlaveID(fields)
		if err != nil {
			log.WithError(err).Warn("control: bad command")
			return
		}
		if ctrl.UnregisterSlave(id) {
			log.WithField("slave", id).Info("unregister_slave: removed")
		} else {
			log.WithField("slave", id).Info("unregister_slave: not_found")
		}
	case "pause":
		ctrl.PauseScheduler()
		log.Info("pause_scheduler: ok")
	case "resume":
		ctrl.ResumeScheduler()
		log.Info("resume_scheduler: ok")
	default:
		log.WithField("command", fields[0]).Warn("unknown control command")
	}
}

func parseSlaveID(fields []string) (int, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("control: missing slave id")
	}
	return strconv.Atoi(fields[1])
}

func firstSensor(reg *registry.Registry, slaveID int) (descriptor.Sensor, bool) {
	for _, s := range reg.Snapshot() {
		if s.SlaveID != slaveID {
			continue
		}
		for _, sensor := range s.Sensors {
			return sensor, true
		}
	}
	return descriptor.Sensor{}, false
}

type loggingRadioDriver struct {
	log *logrus.Logger
}

func (d *loggingRadioDriver) Busy() bool { return false }

func (d *loggingRadioDriver) Send(port byte, payload []byte, confirmed bool) error {
	d.log.WithField("len", len(payload)).Debug("radio: frame accepted (no LoRaWAN stack wired)")
	return nil
}

func (d *loggingRadioDriver) WaitComplete(deadline time.Duration) bool { return true }

type analogDivider struct {
	pin analog.PinADC
}

func newDivider(name string) (*analogDivider, error) {
	pin := analog.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gateway: no analog pin registered as %q", name)
	}
	return &analogDivider{pin: pin}, nil
}

func (d *analogDivider) Read() (physic.ElectricPotential, error) {
	sample, err := d.pin.Read()
	if err != nil {
		return 0, err
	}
	return sample.V, nil
}

func newMQTTClient(broker string, log *logrus.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("fieldmon-gateway")
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
