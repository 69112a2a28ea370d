// Package hal implements C1 "Hardware Discovery & Binding": board
// detection, I2C/1-Wire probing, and driver binding with a (chip,pin)
// conflict map (§4.1).
package hal

import (
	"sync"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
)

// DriverKind is the closed tagged-variant set dispatched by BindSensor, per §9
// "Dynamic dispatch of drivers": a small closed set switched on, not an
// open runtime plug-in registry like the teacher's hal/registry.go.
type DriverKind string

const (
	DriverAnalog      DriverKind = "analog"
	DriverDigital     DriverKind = "digital"
	DriverOneWireTemp DriverKind = "one_wire_temp"
	DriverI2CSensor   DriverKind = "i2c_sensor"
	DriverADCChannel  DriverKind = "adc_channel"
	DriverWebPoll     DriverKind = "web_poll"
	DriverCalculated  DriverKind = "calculated"
)

// Handle is the opaque binding result a driver constructor returns;
// sensors/scheduler.go acquires through it without knowing the concrete
// chip type.
type Handle interface {
	// Read returns one raw sample and its acquisition status.
	Read() (raw float64, status types.Status, err error)
	// Close releases any held resource (bus lease, file handle).
	Close() error
}

// Binder tracks the (chip, pin) conflict map and produces bound Handles
// for sensor and actuator configurations (§4.1 "Conflict policy").
type Binder struct {
	board Board

	mu     sync.Mutex
	owners map[pinKey]string // chip,pin -> owner name
}

type pinKey struct {
	chip string
	pin  int
}

// NewBinder creates a Binder against the given detected board.
func NewBinder(board Board) *Binder {
	return &Binder{board: board, owners: make(map[pinKey]string)}
}

// reservePin claims (chip, pin) for name, or returns ErrPinInUse if another
// owner already holds it. pin < 0 means "not GPIO-backed", always allowed.
func (b *Binder) reservePin(chip string, pin int, name string) error {
	if pin < 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pinKey{chip, pin}
	if owner, ok := b.owners[key]; ok && owner != name {
		return errcode.ErrPinInUse("hal.Binder.reservePin", owner)
	}
	b.owners[key] = name
	return nil
}

// Release frees any pin reservation held by name, used when a sensor or
// actuator configuration is deleted.
func (b *Binder) Release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, owner := range b.owners {
		if owner == name {
			delete(b.owners, k)
		}
	}
}

// BindSensor dispatches cfg to the driver kind matching its module type and
// interface, reserving any GPIO pin it needs. Binding failure due to
// missing hardware returns ErrHardwareMissing and leaves the sensor
// configured but inactive, per §4.1; it is not itself a fatal error.
func (b *Binder) BindSensor(cfg types.SensorConfig, ctor DriverFactory) (Handle, error) {
	kind := classifySensor(cfg)

	if cfg.Hardware.Interface == types.InterfaceGPIO {
		if err := b.reservePin(b.board.Pins.GPIOChip, cfg.Hardware.Channel, cfg.Name); err != nil {
			return nil, err
		}
	}

	h, err := ctor(kind, cfg)
	if err != nil {
		return nil, errcode.ErrHardwareMissing("hal.Binder.BindSensor", cfg.Name+": "+err.Error())
	}
	return h, nil
}

// BindActuator reserves the actuator's (chip, pin) pair and hands off to
// ctor for the concrete driver.
func (b *Binder) BindActuator(cfg types.ActuatorConfig, ctor ActuatorFactory) (ActuatorHandle, error) {
	if err := b.reservePin(cfg.Chip, cfg.Pin, cfg.Name); err != nil {
		return nil, err
	}
	h, err := ctor(cfg)
	if err != nil {
		return nil, errcode.ErrHardwareMissing("hal.Binder.BindActuator", cfg.Name+": "+err.Error())
	}
	return h, nil
}

// classifySensor maps a Sensor Module's (module_type, interface) pair to
// the closed DriverKind set (§9).
func classifySensor(cfg types.SensorConfig) DriverKind {
	switch cfg.Type {
	case types.ModuleCalculated:
		return DriverCalculated
	case types.ModuleWebPoll:
		return DriverWebPoll
	case types.ModuleADC:
		return DriverADCChannel
	}
	switch cfg.Hardware.Interface {
	case types.InterfaceOneWire:
		return DriverOneWireTemp
	case types.InterfaceI2C, types.InterfaceSPI, types.InterfaceUART:
		return DriverI2CSensor
	case types.InterfaceGPIO:
		return DriverDigital
	default:
		return DriverAnalog
	}
}

// DriverFactory constructs a Handle for a given DriverKind/config pair; the
// concrete implementation lives in package drivers, injected at wiring
// time to keep hal free of chip-specific imports.
type DriverFactory func(kind DriverKind, cfg types.SensorConfig) (Handle, error)

// ActuatorHandle is the bound-actuator counterpart of Handle.
type ActuatorHandle interface {
	Apply(cmd types.Command) error
	Close() error
}

// ActuatorFactory constructs an ActuatorHandle for a given configuration.
type ActuatorFactory func(cfg types.ActuatorConfig) (ActuatorHandle, error)
