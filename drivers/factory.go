// Package drivers wires the closed driver set behind hal's factory seams:
// one constructor per DriverKind, dispatching on configuration data
// (addresses, channels, gains) rather than per-chip code paths. It is the
// only package that touches periph.io host initialisation.
package drivers

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/watertreat/rtu/drivers/ads1115"
	"github.com/watertreat/rtu/drivers/aht20"
	"github.com/watertreat/rtu/drivers/ds18b20"
	"github.com/watertreat/rtu/drivers/gpioin"
	"github.com/watertreat/rtu/drivers/gpioout"
	"github.com/watertreat/rtu/drivers/static"
	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/hal"
	"github.com/watertreat/rtu/types"
)

// Factory builds bound driver handles for sensor and actuator configs.
// One Factory per process; it caches opened I2C buses so two sensors on
// the same bus share a handle.
type Factory struct {
	initOnce sync.Once
	initErr  error

	mu    sync.Mutex
	buses map[int]i2c.BusCloser
}

// NewFactory builds an empty Factory; host initialisation is deferred to
// the first hardware-backed bind so config-check runs need no hardware.
func NewFactory() *Factory {
	return &Factory{buses: make(map[int]i2c.BusCloser)}
}

// hostInit runs periph.io host discovery once.
func (f *Factory) hostInit() error {
	f.initOnce.Do(func() {
		_, f.initErr = host.Init()
	})
	return f.initErr
}

// openBus returns the cached or newly opened I2C bus for index.
func (f *Factory) openBus(index int) (i2c.Bus, error) {
	if err := f.hostInit(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buses[index]; ok {
		return b, nil
	}
	b, err := i2creg.Open(strconv.Itoa(index))
	if err != nil {
		return nil, err
	}
	f.buses[index] = b
	return b, nil
}

// Close releases every opened bus.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for idx, b := range f.buses {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.buses, idx)
	}
	return first
}

// Sensor is the hal.DriverFactory implementation: it dispatches over the
// closed DriverKind set (§9 "Dynamic dispatch of drivers"). web_poll and
// calculated modules are not hardware-backed and are wired directly in
// cmd/rtu; asking this factory for them is a programming error surfaced
// as not_supported.
func (f *Factory) Sensor(kind hal.DriverKind, cfg types.SensorConfig) (hal.Handle, error) {
	if cfg.Type == types.ModuleStatic {
		dev, err := static.New(cfg.Hardware.Address)
		if err != nil {
			return nil, err
		}
		return &staticHandle{dev: dev}, nil
	}

	switch kind {
	case hal.DriverADCChannel:
		return f.bindADC(cfg)
	case hal.DriverI2CSensor:
		return f.bindI2CSensor(cfg)
	case hal.DriverOneWireTemp:
		dev, err := ds18b20.New(cfg.Hardware.Address)
		if err != nil {
			return nil, err
		}
		return &oneWireHandle{dev: dev}, nil
	case hal.DriverDigital:
		return f.bindDigital(cfg)
	default:
		return nil, errcode.ErrNotSupported("drivers.Sensor", string(kind))
	}
}

// Actuator is the hal.ActuatorFactory implementation.
func (f *Factory) Actuator(cfg types.ActuatorConfig) (hal.ActuatorHandle, error) {
	if err := f.hostInit(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", cfg.Pin))
	if pin == nil {
		return nil, fmt.Errorf("drivers: gpio pin %d not found on %s", cfg.Pin, cfg.Chip)
	}
	return gpioout.New(pin, cfg)
}

func (f *Factory) bindADC(cfg types.SensorConfig) (hal.Handle, error) {
	bus, err := f.openBus(cfg.Hardware.Bus)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddr(cfg.Hardware.Address, 0x48)
	if err != nil {
		return nil, err
	}
	dev, err := ads1115.New(&i2c.Dev{Bus: bus, Addr: addr}, cfg.Hardware.Channel, gainFor(cfg.Hardware.ADCGain))
	if err != nil {
		return nil, err
	}
	return &adcHandle{dev: dev}, nil
}

func (f *Factory) bindI2CSensor(cfg types.SensorConfig) (hal.Handle, error) {
	bus, err := f.openBus(cfg.Hardware.Bus)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddr(cfg.Hardware.Address, aht20.Address)
	if err != nil {
		return nil, err
	}
	switch addr {
	case aht20.Address:
		dev := aht20.New(&i2c.Dev{Bus: bus, Addr: addr})
		dev.Configure()
		return &aht20Handle{dev: &dev, humidity: cfg.Hardware.Channel == 1}, nil
	default:
		return nil, errcode.ErrNotSupported("drivers.bindI2CSensor", fmt.Sprintf("i2c address %#02x", addr))
	}
}

func (f *Factory) bindDigital(cfg types.SensorConfig) (hal.Handle, error) {
	if err := f.hostInit(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", cfg.Hardware.Channel))
	if pin == nil {
		return nil, fmt.Errorf("drivers: gpio pin %d not found", cfg.Hardware.Channel)
	}
	mode := gpioin.ModeLevel
	if strings.EqualFold(cfg.Unit, "pps") || strings.EqualFold(cfg.Unit, "pulses") {
		mode = gpioin.ModeCounter
	}
	dev, err := gpioin.New(pin, mode)
	if err != nil {
		return nil, err
	}
	return &gpioHandle{dev: dev}, nil
}

// parseAddr accepts "0x48", "48" (hex) or empty (use the chip default).
func parseAddr(s string, def uint16) (uint16, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("drivers: bad device address %q: %w", s, err)
	}
	return uint16(v), nil
}

// gainFor maps the configured ADC gain multiplier onto the ADS1115 PGA
// setting; unknown values fall back to the widest range.
func gainFor(gain float64) ads1115.Gain {
	switch gain {
	case 1:
		return ads1115.GainOne
	case 2:
		return ads1115.GainTwo
	case 4:
		return ads1115.GainFour
	case 8:
		return ads1115.GainEight
	case 16:
		return ads1115.GainSixteen
	default:
		return ads1115.GainTwoThirds
	}
}

// adcHandle adapts an ADS1115 channel to hal.Handle: raw is bus volts.
type adcHandle struct{ dev *ads1115.Device }

func (h *adcHandle) Read() (float64, types.Status, error) {
	v, err := h.dev.ReadVolts()
	if err != nil {
		return 0, types.StatusError, err
	}
	return v, types.StatusOK, nil
}

func (h *adcHandle) Close() error { return nil }

// aht20Handle adapts the AHT20 to hal.Handle: raw is °C, or %RH when the
// configured channel selects humidity.
type aht20Handle struct {
	dev      *aht20.Device
	humidity bool
}

func (h *aht20Handle) Read() (float64, types.Status, error) {
	if err := h.dev.Read(); err != nil {
		if err == aht20.ErrTimeout {
			return 0, types.StatusTimeout, err
		}
		return 0, types.StatusError, err
	}
	if h.humidity {
		return float64(h.dev.RelHumidity()), types.StatusOK, nil
	}
	return float64(h.dev.Celsius()), types.StatusOK, nil
}

func (h *aht20Handle) Close() error { return nil }

// oneWireHandle adapts a DS18B20 to hal.Handle: raw is °C.
type oneWireHandle struct{ dev *ds18b20.Device }

func (h *oneWireHandle) Read() (float64, types.Status, error) {
	v, err := h.dev.ReadCelsius()
	if err != nil {
		return 0, types.StatusError, err
	}
	return v, types.StatusOK, nil
}

func (h *oneWireHandle) Close() error { return nil }

// gpioHandle adapts a digital input to hal.Handle.
type gpioHandle struct{ dev *gpioin.Device }

func (h *gpioHandle) Read() (float64, types.Status, error) {
	v, err := h.dev.Read()
	if err != nil {
		return 0, types.StatusError, err
	}
	return v, types.StatusOK, nil
}

func (h *gpioHandle) Close() error { return h.dev.Close() }

// staticHandle adapts a fixed-value device to hal.Handle.
type staticHandle struct{ dev *static.Device }

func (h *staticHandle) Read() (float64, types.Status, error) {
	v, _ := h.dev.Read()
	return v, types.StatusOK, nil
}

func (h *staticHandle) Close() error { return nil }
