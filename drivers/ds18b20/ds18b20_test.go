package ds18b20

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDevice(t *testing.T, dir, id string, files map[string]string) {
	t.Helper()
	devDir := filepath.Join(dir, id)
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(devDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadTemperatureFile(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0316a2795b1a", map[string]string{"temperature": "23187\n"})

	d := &Device{DevicesDir: dir, ID: "28-0316a2795b1a"}
	got, err := d.ReadCelsius()
	if err != nil {
		t.Fatalf("ReadCelsius: %v", err)
	}
	if got != 23.187 {
		t.Fatalf("got %v, want 23.187", got)
	}
}

func TestReadW1SlaveFallback(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-aa", map[string]string{
		"w1_slave": "4b 46 7f ff 05 10 e1 7d : crc=7d YES\n4b 46 7f ff 05 10 e1 7d t=-1250\n",
	})

	d := &Device{DevicesDir: dir, ID: "28-aa"}
	got, err := d.ReadCelsius()
	if err != nil {
		t.Fatalf("ReadCelsius: %v", err)
	}
	if got != -1.25 {
		t.Fatalf("got %v, want -1.25", got)
	}
}

func TestCRCFailureRejected(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-bb", map[string]string{
		"w1_slave": "4b 46 7f ff 05 10 e1 7d : crc=7d NO\n4b 46 7f ff 05 10 e1 7d t=23187\n",
	})

	d := &Device{DevicesDir: dir, ID: "28-bb"}
	if _, err := d.ReadCelsius(); err == nil {
		t.Fatal("expected CRC error")
	}
}

func TestNewMissingDevice(t *testing.T) {
	d := &Device{DevicesDir: t.TempDir(), ID: "28-cc"}
	if _, err := New(d.ID); err == nil {
		t.Fatal("expected missing-device error for default sysfs root in test environment")
	}
}
