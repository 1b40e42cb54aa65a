package slave

import (
	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/rms"
	"github.com/fieldmon/monitor/modbus"
)

// Config fixes the shape of one slave node at assembly time: how many channels it samples, how
// many history samples each contributes to the publication window, and the descriptor it
// advertises during discovery.
type Config struct {
	UnitID            int
	Descriptor        descriptor.Sensor
	NumChannels       int
	RingSize          int
	HistorySize       int
	SamplesPerChannel int
	ChannelConfigs    []rms.ChannelConfig
	ConversionFactors []float64
}

// Node is the fully assembled, owned state of one slave process: no hidden statics, everything
// reachable from this value.
type Node struct {
	Config    Config
	Engine    *rms.Engine
	Server    modbus.Server
	Publisher *RegisterPublisher
	Source    rms.SampleSource
	Logger    *logrus.Logger
}

// Assemble wires a SampleSource into an RMS engine, a register publisher, and a Modbus server
// whose FC3 handler serves both the descriptor block and the live publication window.
func Assemble(cfg Config, source rms.SampleSource, logger *logrus.Logger) (*Node, error) {
	engine := rms.NewEngine(cfg.NumChannels, cfg.RingSize, cfg.HistorySize, cfg.ChannelConfigs)

	id := []byte{byte(cfg.UnitID)}
	deviceInfo := []string{"fieldmon-slave", "1.0", "rms-node"}
	server, err := modbus.NewServer(id, deviceInfo)
	if err != nil {
		return nil, err
	}

	windowSize := cfg.NumChannels * cfg.SamplesPerChannel
	server.RegisterHoldings(WindowBase + windowSize)

	descriptorRegs := func() [descriptor.RegisterCount]uint16 {
		return cfg.Descriptor.Encode()
	}
	server.SetRequestHandler(0x03, 4, NewReadHoldingsHandler(server, windowSize, descriptorRegs))

	publisher := NewRegisterPublisher(server, engine, cfg.SamplesPerChannel, cfg.ConversionFactors, logger)

	source.OnSample(func(s rms.Sample) {
		engine.Ingest(s)
	})

	return &Node{
		Config:    cfg,
		Engine:    engine,
		Server:    server,
		Publisher: publisher,
		Source:    source,
		Logger:    logger,
	}, nil
}

// Run starts the node's background loops: the RMS processing tick and the register publisher.
// It blocks until stop is closed.
func (n *Node) Run(stop <-chan struct{}, processPeriodMillis int) {
	go n.Publisher.Run(stop)
	n.runRMSLoop(stop, processPeriodMillis)
}
