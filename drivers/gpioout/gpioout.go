// Package gpioout drives pumps, valves and relays on GPIO pins, and PWM
// outputs for proportional actuators (dosing pumps). It implements the
// actuator half of the driver capability set; commands arrive from the
// dispatcher already conflict-resolved and clamped.
package gpioout

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/watertreat/rtu/types"
	"github.com/watertreat/rtu/x/ramp"
)

// rampDuration / rampSteps soften PWM transitions so a dosing pump does
// not slam from 0 to full scale; on/off outputs switch immediately.
const (
	rampDuration = 200 * time.Millisecond
	rampSteps    = 8
)

// Device is one bound actuator output.
type Device struct {
	pin      gpio.PinOut
	cfg      types.ActuatorConfig
	pwmFreq  physic.Frequency
	lastDuty uint8
}

// New binds cfg to pin. For PWM actuators the frequency is taken from the
// configuration; a zero frequency falls back to 1 kHz.
func New(pin gpio.PinOut, cfg types.ActuatorConfig) (*Device, error) {
	freq := physic.Frequency(cfg.PWMFreqHz) * physic.Hertz
	if freq == 0 {
		freq = physic.KiloHertz
	}
	d := &Device{pin: pin, cfg: cfg, pwmFreq: freq}
	// establish a known initial output: logical off
	if err := d.setLevel(false); err != nil {
		return nil, fmt.Errorf("gpioout: init %s: %w", cfg.Name, err)
	}
	return d, nil
}

// Apply executes one dispatched command.
func (d *Device) Apply(cmd types.Command) error {
	switch cmd.Kind {
	case types.CommandOn:
		return d.setLevel(true)
	case types.CommandPWM:
		if d.cfg.Type != types.ActuatorPWM {
			return fmt.Errorf("gpioout: %s is not a pwm output", d.cfg.Name)
		}
		return d.setDuty(cmd.Duty)
	default:
		if d.cfg.Type == types.ActuatorPWM {
			return d.setDuty(0)
		}
		return d.setLevel(false)
	}
}

// setLevel drives the pin to the logical on/off state, honouring the
// active-low wiring flag.
func (d *Device) setLevel(on bool) error {
	level := gpio.Level(on)
	if d.cfg.ActiveLow {
		level = !level
	}
	return d.pin.Out(level)
}

// setDuty ramps the PWM output from the last commanded duty to the new
// one in a few linear steps.
func (d *Device) setDuty(duty uint8) error {
	var applyErr error
	set := func(level uint16) {
		if err := d.pwm(uint8(level)); err != nil && applyErr == nil {
			applyErr = err
		}
	}
	tick := func(wait time.Duration) bool {
		time.Sleep(wait)
		return applyErr == nil
	}
	ramp.StartLinear(uint16(d.lastDuty), uint16(duty), 255, uint32(rampDuration/time.Millisecond), rampSteps, tick, set)
	if applyErr != nil {
		return applyErr
	}
	d.lastDuty = duty
	return nil
}

// pwm writes one duty step, scaling the 0-255 command range onto the
// pin's duty resolution and inverting for active-low wiring.
func (d *Device) pwm(duty uint8) error {
	scaled := gpio.Duty(int64(duty) * int64(gpio.DutyMax) / 255)
	if d.cfg.ActiveLow {
		scaled = gpio.DutyMax - scaled
	}
	return d.pin.PWM(scaled, d.pwmFreq)
}

// Close drives the output to its configured safe state before releasing
// the pin, so a process shutdown never leaves a pump running.
func (d *Device) Close() error {
	switch d.cfg.SafeState {
	case types.SafeOn:
		return d.setLevel(true)
	case types.SafeHold:
		return nil
	default:
		if d.cfg.Type == types.ActuatorPWM {
			return d.pwm(0)
		}
		return d.setLevel(false)
	}
}
