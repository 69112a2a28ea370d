// Package ds18b20 reads DS18B20-family 1-Wire temperature sensors through
// the kernel w1 sysfs interface, the same device directory the discovery
// scan enumerates. Raw readings are degrees Celsius (§4.2: "degrees for
// 1-Wire temperature").
package ds18b20

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDevicesDir is the kernel's 1-Wire device directory.
const DefaultDevicesDir = "/sys/bus/w1/devices"

// Device is one bound 1-Wire temperature sensor.
type Device struct {
	// DevicesDir overrides the sysfs root, for tests.
	DevicesDir string
	// ID is the full device id, e.g. "28-0316a2795b1a".
	ID string
}

// New binds id, verifying the device directory exists so binding fails
// early with a missing-hardware error rather than on the first read.
func New(id string) (*Device, error) {
	d := &Device{DevicesDir: DefaultDevicesDir, ID: id}
	if _, err := os.Stat(filepath.Join(d.DevicesDir, id)); err != nil {
		return nil, fmt.Errorf("ds18b20: device %s: %w", id, err)
	}
	return d, nil
}

// ReadCelsius returns the current temperature. It prefers the single-value
// "temperature" file (newer kernels, millidegrees) and falls back to
// parsing w1_slave output with its CRC line.
func (d *Device) ReadCelsius() (float64, error) {
	if b, err := os.ReadFile(filepath.Join(d.DevicesDir, d.ID, "temperature")); err == nil {
		return parseMilli(string(b))
	}
	b, err := os.ReadFile(filepath.Join(d.DevicesDir, d.ID, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("ds18b20: read %s: %w", d.ID, err)
	}
	return parseW1Slave(string(b))
}

func parseMilli(s string) (float64, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ds18b20: bad temperature value %q", strings.TrimSpace(s))
	}
	return float64(v) / 1000.0, nil
}

// parseW1Slave handles the two-line w1_slave format:
//
//	4b 46 7f ff 05 10 e1 7d : crc=7d YES
//	4b 46 7f ff 05 10 e1 7d t=23187
func parseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, errors.New("ds18b20: short w1_slave output")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errors.New("ds18b20: CRC check failed")
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, errors.New("ds18b20: no t= field")
	}
	return parseMilli(lines[1][idx+2:])
}
