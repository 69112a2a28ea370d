package hal

import (
	"bufio"
	"os"
	"runtime"
	"strings"
)

// BoardType enumerates the board identities this core knows a pin-map for.
type BoardType string

const (
	BoardRaspberryPi BoardType = "raspberry_pi"
	BoardBeagleBone  BoardType = "beaglebone"
	BoardGeneric     BoardType = "generic"
	BoardUnknown     BoardType = "unknown"
)

// PinMap is the per-board resource layout a driver binder consults:
// available bus indices and a suggested GPIO chip label (§4.1).
type PinMap struct {
	I2CBuses []int
	SPIBuses []int
	GPIOChip string
}

var pinMaps = map[BoardType]PinMap{
	BoardRaspberryPi: {I2CBuses: []int{1}, SPIBuses: []int{0}, GPIOChip: "gpiochip0"},
	BoardBeagleBone:  {I2CBuses: []int{1, 2}, SPIBuses: []int{0}, GPIOChip: "gpiochip0"},
	BoardGeneric:     {I2CBuses: []int{0}, SPIBuses: []int{0}, GPIOChip: "gpiochip0"},
	BoardUnknown:     {GPIOChip: "gpiochip0"},
}

// Board is the result of DetectBoard: an identity, its pin-map, and a
// confidence score for how it was derived (§4.1: "≥ 50 is detected").
type Board struct {
	Type       BoardType
	Pins       PinMap
	Confidence int
	Source     string // which probe step produced the match, for logging
}

// Detected reports whether the board was identified with enough confidence
// to trust its pin-map (§4.1).
func (b Board) Detected() bool { return b.Confidence >= 50 }

// detectionSources is the fallback chain: device tree model, then
// compatible string, then OS release file, then CPU architecture (§4.1).
// Overridable in tests.
var (
	deviceTreeModelPath      = "/proc/device-tree/model"
	deviceTreeCompatiblePath = "/proc/device-tree/compatible"
	osReleasePath            = "/etc/os-release"
)

// DetectBoard walks the fallback chain described in §4.1 and returns the
// first identity any step matches, along with its confidence score.
func DetectBoard() Board {
	if b, ok := detectFromDeviceTreeModel(); ok {
		b.Confidence = 100
		b.Source = "device_tree_model"
		return finish(b)
	}
	if b, ok := detectFromCompatible(); ok {
		b.Confidence = 80
		b.Source = "device_tree_compatible"
		return finish(b)
	}
	if b, ok := detectFromOSRelease(); ok {
		b.Confidence = 60
		b.Source = "os_release"
		return finish(b)
	}
	return finish(Board{Type: detectFromArch(), Confidence: 30, Source: "cpu_arch"})
}

func finish(b Board) Board {
	b.Pins = pinMaps[b.Type]
	if b.Pins.GPIOChip == "" {
		b.Pins = pinMaps[BoardUnknown]
	}
	return b
}

func detectFromDeviceTreeModel() (Board, bool) {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return Board{}, false
	}
	model := strings.ToLower(strings.TrimRight(string(data), "\x00\n"))
	switch {
	case strings.Contains(model, "raspberry pi"):
		return Board{Type: BoardRaspberryPi}, true
	case strings.Contains(model, "beaglebone"):
		return Board{Type: BoardBeagleBone}, true
	}
	return Board{}, false
}

func detectFromCompatible() (Board, bool) {
	data, err := os.ReadFile(deviceTreeCompatiblePath)
	if err != nil {
		return Board{}, false
	}
	compat := strings.ToLower(string(data))
	switch {
	case strings.Contains(compat, "raspberrypi") || strings.Contains(compat, "brcm,bcm2"):
		return Board{Type: BoardRaspberryPi}, true
	case strings.Contains(compat, "ti,am33") || strings.Contains(compat, "ti,am335"):
		return Board{Type: BoardBeagleBone}, true
	}
	return Board{}, false
}

func detectFromOSRelease() (Board, bool) {
	f, err := os.Open(osReleasePath)
	if err != nil {
		return Board{}, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.ToLower(sc.Text())
		if strings.HasPrefix(line, "id=") {
			id := strings.Trim(strings.TrimPrefix(line, "id="), `"`)
			switch id {
			case "raspbian", "raspios":
				return Board{Type: BoardRaspberryPi}, true
			}
		}
	}
	return Board{}, false
}

func detectFromArch() BoardType {
	switch runtime.GOARCH {
	case "arm", "arm64":
		return BoardGeneric
	default:
		return BoardUnknown
	}
}
