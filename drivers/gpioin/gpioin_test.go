package gpioin

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLevelRead(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17}
	d, err := New(pin, ModeLevel)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	pin.L = gpio.High
	if v, err := d.Read(); err != nil || v != 1 {
		t.Fatalf("high read = %v, %v", v, err)
	}
	pin.L = gpio.Low
	if v, err := d.Read(); err != nil || v != 0 {
		t.Fatalf("low read = %v, %v", v, err)
	}
}

func TestCounterCountsRisingEdges(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO18", Num: 18, EdgesChan: make(chan gpio.Level, 16)}
	d, err := New(pin, ModeCounter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	for i := 0; i < 5; i++ {
		pin.EdgesChan <- gpio.High
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.edges.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := d.edges.Load(); got != 5 {
		t.Fatalf("edges = %d, want 5", got)
	}

	v, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v <= 0 {
		t.Fatalf("rate = %v, want > 0", v)
	}

	// immediately reading again reports no new pulses
	time.Sleep(10 * time.Millisecond)
	v, err = d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 0 {
		t.Fatalf("second rate = %v, want 0", v)
	}
}
