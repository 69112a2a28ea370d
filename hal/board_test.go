package hal

import (
	"os"
	"path/filepath"
	"testing"
)

func withTempPath(t *testing.T, target *string, content string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	old := *target
	*target = path
	t.Cleanup(func() { *target = old })
}

func TestDetectBoard_DeviceTreeModel(t *testing.T) {
	withTempPath(t, &deviceTreeModelPath, "Raspberry Pi 4 Model B\x00")
	withTempPath(t, &deviceTreeCompatiblePath, "")
	withTempPath(t, &osReleasePath, "")

	b := DetectBoard()
	if b.Type != BoardRaspberryPi {
		t.Fatalf("Type = %v, want %v", b.Type, BoardRaspberryPi)
	}
	if !b.Detected() || b.Confidence != 100 {
		t.Fatalf("Confidence = %d, want 100 and Detected() true", b.Confidence)
	}
	if b.Pins.GPIOChip != "gpiochip0" {
		t.Fatalf("Pins.GPIOChip = %q, want gpiochip0", b.Pins.GPIOChip)
	}
}

func TestDetectBoard_FallsBackToCompatible(t *testing.T) {
	withTempPath(t, &deviceTreeModelPath, "")
	withTempPath(t, &deviceTreeCompatiblePath, "raspberrypi,4-model-b\x00brcm,bcm2711\x00")
	withTempPath(t, &osReleasePath, "")

	b := DetectBoard()
	if b.Type != BoardRaspberryPi || b.Confidence != 80 {
		t.Fatalf("Type=%v Confidence=%d, want %v/80", b.Type, b.Confidence, BoardRaspberryPi)
	}
}

func TestDetectBoard_UnknownWhenNothingMatches(t *testing.T) {
	withTempPath(t, &deviceTreeModelPath, "")
	withTempPath(t, &deviceTreeCompatiblePath, "")
	withTempPath(t, &osReleasePath, "ID=debian\n")

	b := DetectBoard()
	if b.Detected() {
		t.Fatalf("expected low-confidence fallback, got Confidence=%d", b.Confidence)
	}
}
