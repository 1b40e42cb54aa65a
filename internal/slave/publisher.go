package slave

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/rms"
	"github.com/fieldmon/monitor/modbus"
)

// PublishPeriod is the default period between register window updates (~300ms).
const PublishPeriod = 300 * time.Millisecond

// RegisterPublisher periodically drains the RMS engine's per-channel history into the Modbus
// holding register window. Values are scaled and rounded first; the whole window is then written
// under the same lock the read path uses, so the update is atomic with respect to concurrent reads.
type RegisterPublisher struct {
	server            modbus.Server
	engine            *rms.Engine
	conversionFactors []float64
	samplesPerChannel int
	logger            *logrus.Logger
}

// NewRegisterPublisher builds a publisher for every channel of engine, each contributing
// samplesPerChannel registers to the window (so window size = engine.NumChannels()*samplesPerChannel).
// conversionFactors scales channel c's history values before they're rounded into registers.
func NewRegisterPublisher(server modbus.Server, engine *rms.Engine, samplesPerChannel int, conversionFactors []float64, logger *logrus.Logger) *RegisterPublisher {
	return &RegisterPublisher{
		server:            server,
		engine:            engine,
		conversionFactors: conversionFactors,
		samplesPerChannel: samplesPerChannel,
		logger:            logger,
	}
}

// WindowSize reports the total register count of the publication window.
func (p *RegisterPublisher) WindowSize() int {
	return p.engine.NumChannels() * p.samplesPerChannel
}

// Publish runs one publication cycle: for every channel, read the last samplesPerChannel history
// values, scale and round them, and write the whole window atomically.
func (p *RegisterPublisher) Publish() error {
	s := p.samplesPerChannel
	window := make([]int, p.engine.NumChannels()*s)
	for c := 0; c < p.engine.NumChannels(); c++ {
		factor := 1.0
		if c < len(p.conversionFactors) {
			factor = p.conversionFactors[c]
		}
		history := p.engine.History(c).Last(s)
		for i, v := range history {
			window[c*s+i] = modbus.WordClamp(roundToInt(v * factor))
		}
	}

	atomic := p.server.StartAtomic()
	defer atomic.Complete()
	return p.server.WriteHoldings(atomic, WindowBase, window)
}

// Run blocks, calling Publish every PublishPeriod until ctx-like stop channel fires.
func (p *RegisterPublisher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(PublishPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.Publish(); err != nil {
				p.logger.WithError(err).Warn("register window publish failed")
			}
		}
	}
}

func roundToInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
