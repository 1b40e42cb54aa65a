package descriptor

import "testing"

func TestRoundTrip(t *testing.T) {
	s := Sensor{
		SensorID:         SensorCurrent,
		NumberOfChannels: 3,
		StartAddress:     10,
		MaxRegisters:     18,
		SamplingInterval: 1000,
		DataType:         DataTypeUint8,
		Scale:            1,
		CompressedBytes:  0,
	}
	regs := s.Encode()
	got, err := Decode(regs[:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
	}
}

func TestDecodeScenario(t *testing.T) {
	regs := []uint16{0x0002, 0x0003, 0x000A, 0x0012, 0x03E8, 0x0001, 0x0001, 0x0000}
	got, err := Decode(regs)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Sensor{
		SensorID:         2,
		NumberOfChannels: 3,
		StartAddress:     10,
		MaxRegisters:     18,
		SamplingInterval: 1000,
		DataType:         1,
		Scale:            1,
		CompressedBytes:  0,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeWrongLength(t *testing.T) {
	if _, err := Decode(make([]uint16, 4)); err == nil {
		t.Fatalf("expected error for short register slice")
	}
}

func TestIntervalMillis(t *testing.T) {
	s := Sensor{NumberOfChannels: 3, MaxRegisters: 18, SamplingInterval: 1000}
	if got := s.IntervalMillis(); got != 6000 {
		t.Fatalf("IntervalMillis() = %d, want 6000", got)
	}
	zero := Sensor{SamplingInterval: 250}
	if got := zero.IntervalMillis(); got != 250 {
		t.Fatalf("IntervalMillis() with no channels = %d, want 250", got)
	}
}

func TestRegistersPerChannel(t *testing.T) {
	s := Sensor{NumberOfChannels: 3, MaxRegisters: 18}
	if got := s.RegistersPerChannel(); got != 6 {
		t.Fatalf("RegistersPerChannel() = %d, want 6", got)
	}
}

func TestLowByteTruncation(t *testing.T) {
	s := Sensor{SensorID: 0x102, NumberOfChannels: 0x2ff, DataType: 0x300 | DataTypeUint16, Scale: 0x1ff, CompressedBytes: 0x1ff}
	regs := s.Encode()
	if regs[0] != 0x02 {
		t.Fatalf("sensorID not truncated to low byte: %#x", regs[0])
	}
	if regs[1] != 0xff {
		t.Fatalf("numberOfChannels not truncated to low byte: %#x", regs[1])
	}
}
