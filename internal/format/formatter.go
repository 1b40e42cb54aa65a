package format

import "github.com/fieldmon/monitor/internal/descriptor"

// BytesPerSample reports how many output bytes one register contributes for the given sensor
// encoding, ignoring bit-packing (which has no fixed per-register byte count).
func BytesPerSample(dataType int) int {
	if dataType == descriptor.DataTypeUint8 {
		return 1
	}
	return 2
}

// Normalize converts a successful sampling reply (raw big-endian register words already decoded
// to ints) into the NormalizedPayload bytes described by the sensor's descriptor.
func Normalize(sensor descriptor.Sensor, registers []int) []byte {
	if sensor.CompressedBytes > 0 {
		return packRegisters(registers, sensor.CompressedBytes)
	}
	switch sensor.DataType {
	case descriptor.DataTypeUint8:
		out := make([]byte, 0, len(registers))
		for _, r := range registers {
			out = append(out, byte(r&0xff))
		}
		return out
	default:
		// uint16, bit-packed-without-compressedBytes, and float16 (reserved passthrough) all
		// emit [high, low] per register.
		out := make([]byte, 0, len(registers)*2)
		for _, r := range registers {
			out = append(out, byte((r>>8)&0xff), byte(r&0xff))
		}
		return out
	}
}

func packRegisters(registers []int, bitWidth int) []byte {
	p := NewBitPacker()
	for _, r := range registers {
		p.Push(r, bitWidth)
	}
	p.Flush()
	return p.Bytes()
}
