package gpioout

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/watertreat/rtu/types"
)

func TestOnOffRespectsActiveLow(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO22", Num: 22}
	d, err := New(pin, types.ActuatorConfig{Name: "valve", Type: types.ActuatorValve, ActiveLow: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// init drove logical off = physical high for active-low wiring
	if pin.L != gpio.High {
		t.Fatalf("initial level = %v, want High (active-low off)", pin.L)
	}

	if err := d.Apply(types.Command{Kind: types.CommandOn}); err != nil {
		t.Fatalf("Apply on: %v", err)
	}
	if pin.L != gpio.Low {
		t.Fatalf("on level = %v, want Low", pin.L)
	}

	if err := d.Apply(types.Command{Kind: types.CommandOff}); err != nil {
		t.Fatalf("Apply off: %v", err)
	}
	if pin.L != gpio.High {
		t.Fatalf("off level = %v, want High", pin.L)
	}
}

func TestPWMDutyScaling(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO12", Num: 12}
	d, err := New(pin, types.ActuatorConfig{Name: "dosing", Type: types.ActuatorPWM, PWMFreqHz: 2000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Apply(types.Command{Kind: types.CommandPWM, Duty: 255}); err != nil {
		t.Fatalf("Apply pwm: %v", err)
	}
	if pin.D != gpio.DutyMax {
		t.Fatalf("duty = %v, want DutyMax", pin.D)
	}

	if err := d.Apply(types.Command{Kind: types.CommandOff}); err != nil {
		t.Fatalf("Apply off: %v", err)
	}
	if pin.D != 0 {
		t.Fatalf("duty after off = %v, want 0", pin.D)
	}
}

func TestPWMCommandOnNonPWMFails(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO23", Num: 23}
	d, err := New(pin, types.ActuatorConfig{Name: "relay", Type: types.ActuatorRelay})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Apply(types.Command{Kind: types.CommandPWM, Duty: 128}); err == nil {
		t.Fatal("expected error applying pwm to a relay")
	}
}

func TestCloseDrivesSafeState(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO24", Num: 24}
	d, err := New(pin, types.ActuatorConfig{Name: "pump", Type: types.ActuatorPump, SafeState: types.SafeOn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pin.L != gpio.High {
		t.Fatalf("level after close = %v, want High (safe on)", pin.L)
	}
}
