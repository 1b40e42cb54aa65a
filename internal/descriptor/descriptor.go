// Package descriptor implements the eight-register self-description block that every slave
// exposes at holding registers [0..7] and that the gateway's discovery pass decodes.
package descriptor

import "fmt"

// Data type codes carried in the dataType field.
const (
	DataTypeUint8     = 1
	DataTypeUint16    = 2
	DataTypeBitPacked = 3
	DataTypeFloat16   = 4
)

// Well-known sensor identities.
const (
	SensorBattery = 0
	SensorVoltage = 1
	SensorCurrent = 2
	// SensorExternalBase is the first ID available to site-specific sensors.
	SensorExternalBase = 3
)

// RegisterCount is the number of holding registers the descriptor block occupies.
const RegisterCount = 8

// Sensor describes one sensor's data window and wire encoding. Only the low byte of every field
// except startAddress, maxRegisters and samplingInterval is significant on the wire; this type
// stores the full int for convenience but Encode truncates as required.
type Sensor struct {
	SensorID         int
	NumberOfChannels int
	StartAddress     int
	MaxRegisters     int
	SamplingInterval int
	DataType         int
	Scale            int
	CompressedBytes  int
}

// Encode renders the descriptor as eight big-endian 16-bit registers in the order fixed by the
// wire format: sensorID, numberOfChannels, startAddress, maxRegisters, samplingInterval,
// dataType, scale, compressedBytes.
func (s Sensor) Encode() [RegisterCount]uint16 {
	return [RegisterCount]uint16{
		uint16(s.SensorID & 0xff),
		uint16(s.NumberOfChannels & 0xff),
		uint16(s.StartAddress),
		uint16(s.MaxRegisters),
		uint16(s.SamplingInterval),
		uint16(s.DataType & 0xff),
		uint16(s.Scale & 0xff),
		uint16(s.CompressedBytes & 0xff),
	}
}

// Decode parses a descriptor from exactly eight registers, in the same order Encode produces.
func Decode(regs []uint16) (Sensor, error) {
	if len(regs) != RegisterCount {
		return Sensor{}, fmt.Errorf("descriptor: need %d registers, got %d", RegisterCount, len(regs))
	}
	return Sensor{
		SensorID:         int(regs[0] & 0xff),
		NumberOfChannels: int(regs[1] & 0xff),
		StartAddress:     int(regs[2]),
		MaxRegisters:     int(regs[3]),
		SamplingInterval: int(regs[4]),
		DataType:         int(regs[5] & 0xff),
		Scale:            int(regs[6] & 0xff),
		CompressedBytes:  int(regs[7] & 0xff),
	}, nil
}

// IntervalMillis derives the sampling interval to use for scheduling this sensor, per the rule
// that a multi-register window samples each channel less often than samplingInterval alone would
// suggest.
func (s Sensor) IntervalMillis() int {
	if s.NumberOfChannels > 0 && s.MaxRegisters > 0 {
		return s.SamplingInterval * (s.MaxRegisters / s.NumberOfChannels)
	}
	return s.SamplingInterval
}

// RegistersPerChannel returns how many registers of the data window belong to a single channel,
// used by the frame builder's DATA_LENGTH field.
func (s Sensor) RegistersPerChannel() int {
	if s.NumberOfChannels <= 0 {
		return s.MaxRegisters
	}
	return s.MaxRegisters / s.NumberOfChannels
}
