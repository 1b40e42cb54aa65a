package rms

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// SampleCallback is invoked once per completed conversion. It must be bounded-time and
// non-blocking; implementations only ever call Engine.Ingest from it.
type SampleCallback func(Sample)

// SampleSource is the ADC driver abstraction: it produces (channel, raw) pairs via callback and
// also supports a slow polled read for sensors that don't need the RMS sweep (temperature,
// pressure).
type SampleSource interface {
	// Configure arms the sweep over the given channels at the requested rate and gain.
	Configure(channels []int, rateSPS int, gain float64) error
	// OnSample registers the callback invoked for every completed conversion.
	OnSample(cb SampleCallback)
	// Enable starts (or, with enabled=false, stops) the conversion sweep. Disabling does not
	// preserve which channel the sweep will resume from.
	Enable(enabled bool)
	// ReadChannel performs a one-off polled read of a single channel, for slow sensors that
	// don't participate in the RMS sweep.
	ReadChannel(channel int) (int16, error)
}

// InterruptSource drives a sweep of ADC channels using a GPIO "conversion complete" line, in the
// same producer-channel style used for the joystick/button interrupts: the pin edge is the only
// thing that runs in interrupt context, and it does no more than push one sample before
// returning.
type InterruptSource struct {
	readyPin gpio.PinIn
	adc      AnalogReader
	channels []int
	rateSPS  int
	gain     float64
	cb       SampleCallback
	enabled  chan bool
	stop     chan struct{}
}

// AnalogReader abstracts the actual ADC conversion result fetch, decoupling InterruptSource from
// any one chip's register layout. Implementations return the raw signed code for the given
// channel.
type AnalogReader interface {
	Convert(channel int) (physic.ElectricPotential, error)
}

// NewInterruptSource builds a SampleSource that arms the next conversion on every falling edge of
// readyPin. host.Init must have already succeeded before constructing this.
func NewInterruptSource(readyPin gpio.PinIn, adc AnalogReader) *InterruptSource {
	return &InterruptSource{
		readyPin: readyPin,
		adc:      adc,
		enabled:  make(chan bool, 1),
		stop:     make(chan struct{}),
	}
}

// InitHost runs the one-time periph.io host initialization. Call once at process startup before
// any InterruptSource is constructed.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("rms: host init: %w", err)
	}
	return nil
}

func (s *InterruptSource) Configure(channels []int, rateSPS int, gain float64) error {
	if len(channels) == 0 {
		return fmt.Errorf("rms: no channels configured")
	}
	if err := s.readyPin.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return fmt.Errorf("rms: arm ready pin: %w", err)
	}
	s.channels = append([]int(nil), channels...)
	s.rateSPS = rateSPS
	s.gain = gain
	return nil
}

func (s *InterruptSource) OnSample(cb SampleCallback) {
	s.cb = cb
}

func (s *InterruptSource) Enable(enabled bool) {
	select {
	case s.enabled <- enabled:
	default:
	}
	if enabled {
		go s.sweep()
	} else {
		close(s.stop)
		s.stop = make(chan struct{})
	}
}

// sweep round-robins the configured channels, waiting for the ready pin's edge before each
// conversion fetch and handing the result to the callback. A dropped conversion (fetch error) is
// tolerated: the sweep simply advances to the next channel.
func (s *InterruptSource) sweep() {
	idx := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if !s.readyPin.WaitForEdge(-1) {
			continue
		}
		ch := s.channels[idx%len(s.channels)]
		idx++
		v, err := s.adc.Convert(ch)
		if err != nil {
			continue
		}
		if s.cb != nil {
			s.cb(Sample{Channel: ch, Raw: voltageToCode(v)})
		}
	}
}

func (s *InterruptSource) ReadChannel(channel int) (int16, error) {
	v, err := s.adc.Convert(channel)
	if err != nil {
		return 0, err
	}
	return voltageToCode(v), nil
}

// voltageToCode maps a converted voltage back to a signed 16-bit ADC code space; the exact
// full-scale mapping is a hardware concern left to the AnalogReader, this only clamps to range.
func voltageToCode(v physic.ElectricPotential) int16 {
	milli := int64(v / physic.MilliVolt)
	if milli > 32767 {
		milli = 32767
	}
	if milli < -32768 {
		milli = -32768
	}
	return int16(milli)
}
