package uplink

import (
	"bytes"
	"testing"

	"github.com/fieldmon/monitor/internal/descriptor"
)

func TestBuildFrameScenario5(t *testing.T) {
	payloads := []Payload{
		{SensorID: descriptor.SensorBattery, Bytes: []byte{0x7E}, Samples: 1},
		{SensorID: descriptor.SensorCurrent, Bytes: []byte{0x80, 0x0F, 0xFF, 0x00, 0x10}, Packed: true, Samples: 3},
	}
	got := BuildFrame(0x01, 0x00000064, payloads)
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x64, 0x05, 0x01, 0x83, 0x7E, 0x80, 0x0F, 0xFF, 0x00, 0x10}
	if !bytes.Equal(got, want) {
		t.Fatalf("BuildFrame = % X, want % X", got, want)
	}
}

func TestBuildFrameDeterministic(t *testing.T) {
	payloads := []Payload{
		{SensorID: descriptor.SensorCurrent, Bytes: []byte{1, 2}, Samples: 1},
		{SensorID: descriptor.SensorBattery, Bytes: []byte{3}, Samples: 1},
	}
	a := BuildFrame(5, 100, payloads)
	// reversed input order, same content: must be byte-identical output.
	reversed := []Payload{payloads[1], payloads[0]}
	b := BuildFrame(5, 100, reversed)
	if !bytes.Equal(a, b) {
		t.Fatalf("BuildFrame not order-independent: % X vs % X", a, b)
	}
}

func TestBuildFrameTruncatesAtMax(t *testing.T) {
	big := make([]byte, 300)
	payloads := []Payload{{SensorID: descriptor.SensorBattery, Bytes: big, Samples: 1}}
	got := BuildFrame(1, 0, payloads)
	if len(got) != LoRaPayloadMax {
		t.Fatalf("len(frame) = %d, want %d", len(got), LoRaPayloadMax)
	}
}

func TestBuildFrameUnknownSensorIgnored(t *testing.T) {
	payloads := []Payload{{SensorID: 99, Bytes: []byte{1}, Samples: 1}}
	got := BuildFrame(1, 0, payloads)
	want := []byte{1, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("BuildFrame with unmappable sensor = % X, want activate byte 0: % X", got, want)
	}
}
