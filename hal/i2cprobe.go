package hal

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// I2CCandidate is one entry in the static address table consulted after a
// successful probe (§4.1: "matched against a static table mapping address
// to device class, display name"). Addresses with multiple table entries
// (e.g. 0x40, 0x68) resolve to the first; disambiguation is a UI concern.
type I2CCandidate struct {
	Class       string
	DisplayName string
}

// i2cAddressTable is deliberately small and data-driven (§9 "Deep
// inheritance" design note: chip-specific knowledge is data, not code).
var i2cAddressTable = map[byte][]I2CCandidate{
	0x38: {{"aht20", "AHT20 temperature/humidity"}},
	0x40: {{"sht31", "SHT31 temperature/humidity"}, {"ina219", "INA219 current sensor"}},
	0x44: {{"sht3x", "SHT3x temperature/humidity"}},
	0x48: {{"ads1115", "ADS1115 ADC"}},
	0x68: {{"ds3231", "DS3231 RTC"}, {"mpu6050", "MPU6050 IMU"}},
	0x76: {{"bme280", "BME280 pressure/temp/humidity"}},
	0x77: {{"bmp280", "BMP280 pressure/temp"}},
}

// I2CHit is one responding address found during a bus probe.
type I2CHit struct {
	Bus     int
	Address byte
	Method  string // "write_quick" or "read_byte"
	Table   []I2CCandidate
}

// probeMin/probeMax bound the sweep and isReserved excludes the ranges §4.1
// calls out: 0x00-0x02 are implicitly excluded by starting at 0x03.
const (
	probeMin = 0x03
	probeMax = 0x77
)

func isReserved(addr byte) bool {
	return (addr >= 0x30 && addr <= 0x37) || (addr >= 0x78 && addr <= 0x7f)
}

// ProbeI2CBus walks addresses 0x03-0x77, excluding 0x30-0x37 and 0x78-0x7f,
// probing first with a write-quick transaction and falling back to a
// read-byte transaction (§4.1). busName is the periph.io bus identifier
// (e.g. "1" or "/dev/i2c-1").
func ProbeI2CBus(busIndex int, busName string) ([]I2CHit, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("hal: open i2c bus %s: %w", busName, err)
	}
	defer bus.Close()

	var hits []I2CHit
	for addr := byte(probeMin); addr <= probeMax; addr++ {
		if isReserved(addr) {
			continue
		}
		dev := &i2c.Dev{Bus: bus, Addr: uint16(addr)}
		if method, ok := probeAddress(dev); ok {
			hits = append(hits, I2CHit{
				Bus:     busIndex,
				Address: addr,
				Method:  method,
				Table:   i2cAddressTable[addr],
			})
		}
	}
	return hits, nil
}

// probeAddress tries a zero-length write ("write quick"); if the device
// rejects it, it falls back to a single-byte read.
func probeAddress(dev conn.Conn) (method string, ok bool) {
	if err := dev.Tx(nil, nil); err == nil {
		return "write_quick", true
	}
	var buf [1]byte
	if err := dev.Tx(nil, buf[:]); err == nil {
		return "read_byte", true
	}
	return "", false
}
