package hal

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// oneWireDevicesDir is the sysfs directory listing bound 1-Wire devices;
// overridable in tests.
var oneWireDevicesDir = "/sys/bus/w1/devices"

// oneWireTempFamilies maps the family code (first byte of a 1-Wire device
// ID) to "this is a temperature sensor" (§4.1).
var oneWireTempFamilies = map[byte]string{
	0x28: "ds18b20",
	0x10: "ds18s20",
	0x22: "ds1822",
	0x42: "ds28ea00",
}

// OneWireDevice is one enumerated 1-Wire device.
type OneWireDevice struct {
	ID         string
	Family     byte
	IsTemp     bool
	DeviceName string
	// TempC is a best-effort cached reading taken opportunistically during
	// enumeration (§4.1: "a cached snapshot is acceptable"); zero-value
	// TempValid means no reading was available.
	TempC     float64
	TempValid bool
}

// Enumerate1Wire lists the system's 1-Wire device directory and classifies
// each entry by family code, opportunistically reading temperature-sensor
// variants (§4.1).
func Enumerate1Wire() ([]OneWireDevice, error) {
	entries, err := os.ReadDir(oneWireDevicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []OneWireDevice
	for _, e := range entries {
		name := e.Name()
		if !strings.Contains(name, "-") {
			continue
		}
		familyHex := strings.SplitN(name, "-", 2)[0]
		fam, err := strconv.ParseUint(familyHex, 16, 8)
		if err != nil {
			continue
		}

		dev := OneWireDevice{ID: name, Family: byte(fam)}
		if devName, ok := oneWireTempFamilies[dev.Family]; ok {
			dev.IsTemp = true
			dev.DeviceName = devName
			if v, ok := ReadW1Temp(filepath.Join(oneWireDevicesDir, name, "w1_slave")); ok {
				dev.TempC = v
				dev.TempValid = true
			}
		}
		out = append(out, dev)
	}
	return out, nil
}

// ReadW1Temp parses the kernel w1_slave sysfs format, where the
// temperature in millidegrees C follows a "t=" marker on the second line.
// Enumeration uses it for its opportunistic cached sample; the ds18b20
// driver has its own w1_slave reader and does not call it.
func ReadW1Temp(path string) (float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	idx := strings.LastIndex(string(data), "t=")
	if idx < 0 {
		return 0, false
	}
	raw := strings.TrimSpace(string(data)[idx+2:])
	milli, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return float64(milli) / 1000, true
}
