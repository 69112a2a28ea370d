package drivers

import (
	"testing"

	"github.com/watertreat/rtu/drivers/ads1115"
	"github.com/watertreat/rtu/hal"
	"github.com/watertreat/rtu/types"
)

func TestParseAddr(t *testing.T) {
	cases := []struct {
		in   string
		def  uint16
		want uint16
		err  bool
	}{
		{"", 0x48, 0x48, false},
		{"0x48", 0, 0x48, false},
		{"48", 0, 0x48, false},
		{"0X38", 0, 0x38, false},
		{"pump-house", 0, 0, true},
	}
	for _, c := range cases {
		got, err := parseAddr(c.in, c.def)
		if (err != nil) != c.err {
			t.Errorf("parseAddr(%q): err = %v", c.in, err)
			continue
		}
		if !c.err && got != c.want {
			t.Errorf("parseAddr(%q) = %#02x, want %#02x", c.in, got, c.want)
		}
	}
}

func TestGainMapping(t *testing.T) {
	cases := map[float64]ads1115.Gain{
		1:   ads1115.GainOne,
		2:   ads1115.GainTwo,
		4:   ads1115.GainFour,
		8:   ads1115.GainEight,
		16:  ads1115.GainSixteen,
		0:   ads1115.GainTwoThirds,
		3.3: ads1115.GainTwoThirds,
	}
	for in, want := range cases {
		if got := gainFor(in); got != want {
			t.Errorf("gainFor(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestStaticModuleBindsWithoutHardware(t *testing.T) {
	f := NewFactory()
	h, err := f.Sensor(hal.DriverAnalog, types.SensorConfig{
		Name: "setpoint", Type: types.ModuleStatic,
		Hardware: types.HardwareBinding{Address: "7.2"},
	})
	if err != nil {
		t.Fatalf("Sensor: %v", err)
	}
	v, status, err := h.Read()
	if err != nil || status != types.StatusOK || v != 7.2 {
		t.Fatalf("Read = %v, %v, %v", v, status, err)
	}
}

func TestUnsupportedKindsRejected(t *testing.T) {
	f := NewFactory()
	for _, kind := range []hal.DriverKind{hal.DriverWebPoll, hal.DriverCalculated} {
		if _, err := f.Sensor(kind, types.SensorConfig{Name: "x", Type: types.ModulePhysical}); err == nil {
			t.Errorf("kind %s: expected not_supported", kind)
		}
	}
}
