package uplink

import "github.com/fieldmon/monitor/internal/descriptor"

// LoRaPayloadMax is the maximum frame length; frames exceeding this are truncated at a byte
// boundary, never re-fragmented.
const LoRaPayloadMax = 220

const (
	bitPKD    = 0x80
	bitTwoBit = 0x40
	lenMask   = 0x1F
)

// sensorBit maps a sensorID to its activate-byte bit position: battery=0, voltage=1, current=2,
// external sensors occupy bits 3..7 (up to 5 external slots) in ascending sensorID order.
func sensorBit(sensorID int) (bit int, ok bool) {
	switch {
	case sensorID == descriptor.SensorBattery:
		return 0, true
	case sensorID == descriptor.SensorVoltage:
		return 1, true
	case sensorID == descriptor.SensorCurrent:
		return 2, true
	case sensorID >= descriptor.SensorExternalBase && sensorID <= descriptor.SensorExternalBase+4:
		return 3 + (sensorID - descriptor.SensorExternalBase), true
	default:
		return 0, false
	}
}

// BuildFrame assembles one UnifiedFrame for idMsg/timestamp over the given payloads, per the wire
// layout: id_msg(1) | timestamp(4, BE) | activate_byte(1) | length descriptors | data blocks.
// Duplicate sensorIDs must already have been resolved by the caller (Aggregator.Drain does this
// by construction); ordering here is by ascending activate-byte bit, not input order.
func BuildFrame(idMsg byte, timestamp uint32, payloads []Payload) []byte {
	type slot struct {
		bit int
		p   Payload
	}
	var slots []slot
	var activate byte
	for _, p := range payloads {
		bit, ok := sensorBit(p.SensorID)
		if !ok {
			continue
		}
		activate |= 1 << uint(bit)
		slots = append(slots, slot{bit: bit, p: p})
	}
	// ascending bit order
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j].bit < slots[j-1].bit; j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}

	frame := make([]byte, 0, LoRaPayloadMax)
	frame = append(frame, idMsg)
	frame = append(frame,
		byte(timestamp>>24), byte(timestamp>>16), byte(timestamp>>8), byte(timestamp))
	frame = append(frame, activate)

	for _, s := range slots {
		desc := byte(s.p.Samples) & lenMask
		if s.p.Packed {
			desc |= bitPKD
		}
		frame = append(frame, desc)
	}
	for _, s := range slots {
		frame = append(frame, s.p.Bytes...)
	}

	if len(frame) > LoRaPayloadMax {
		frame = frame[:LoRaPayloadMax]
	}
	return frame
}
