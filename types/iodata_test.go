package types

import (
	"math"
	"testing"
)

func TestSensorSlotRoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 25.5, 7.0, -273.15, 1e-9, math.MaxFloat32, math.SmallestNonzeroFloat32}
	for _, v := range values {
		if got := DecodeSensorSlot(EncodeSensorSlot(v)); got != v {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestActuatorSlotCodec(t *testing.T) {
	b := EncodeActuatorSlot(CommandPWM, 0x80)
	if b != [4]byte{0x02, 0x80, 0x00, 0x00} {
		t.Fatalf("encoded = % 02X", b)
	}
	kind, duty := DecodeActuatorSlot(b)
	if kind != CommandPWM || duty != 0x80 {
		t.Fatalf("decoded = %v, %v", kind, duty)
	}
}

func TestSlotClassification(t *testing.T) {
	for slot := SlotSensorMin; slot <= SlotSensorMax; slot++ {
		if !IsSensorSlot(slot) || IsActuatorSlot(slot) {
			t.Errorf("slot %d misclassified", slot)
		}
	}
	for slot := SlotActuatorMin; slot <= SlotActuatorMax; slot++ {
		if !IsActuatorSlot(slot) || IsSensorSlot(slot) {
			t.Errorf("slot %d misclassified", slot)
		}
	}
	if IsSensorSlot(0) || IsActuatorSlot(17) {
		t.Error("out-of-range slots classified")
	}
}
