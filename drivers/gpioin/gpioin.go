// Package gpioin drives digital GPIO inputs for the sensor pipeline:
// plain level inputs (raw 0/1) and edge counters (raw pulses-per-second),
// per §4.2 "Acquisition". Edge counting runs on its own goroutine so the
// scheduler's read is a constant-time counter swap.
package gpioin

import (
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Mode selects how the pin's signal becomes a raw value.
type Mode int

const (
	// ModeLevel reports the instantaneous level: 0 or 1.
	ModeLevel Mode = iota
	// ModeCounter reports rising edges per second since the last read.
	ModeCounter
)

// Device is one bound digital input.
type Device struct {
	pin  gpio.PinIn
	mode Mode

	edges      atomic.Uint64
	lastEdges  uint64
	lastReadAt time.Time
	stop       chan struct{}
}

// New configures pin for the given mode. Counter mode arms edge detection
// and starts the counting goroutine; call Close to release it.
func New(pin gpio.PinIn, mode Mode) (*Device, error) {
	edge := gpio.NoEdge
	if mode == ModeCounter {
		edge = gpio.RisingEdge
	}
	if err := pin.In(gpio.PullNoChange, edge); err != nil {
		return nil, err
	}
	d := &Device{pin: pin, mode: mode, lastReadAt: time.Now(), stop: make(chan struct{})}
	if mode == ModeCounter {
		go d.count()
	}
	return d, nil
}

// count accumulates rising edges until Close.
func (d *Device) count() {
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if d.pin.WaitForEdge(time.Second) {
			d.edges.Add(1)
		}
	}
}

// Read returns the raw value for the configured mode.
func (d *Device) Read() (float64, error) {
	switch d.mode {
	case ModeCounter:
		now := time.Now()
		total := d.edges.Load()
		dt := now.Sub(d.lastReadAt).Seconds()
		delta := total - d.lastEdges
		d.lastEdges = total
		d.lastReadAt = now
		if dt <= 0 {
			return 0, nil
		}
		return float64(delta) / dt, nil
	default:
		if d.pin.Read() == gpio.High {
			return 1, nil
		}
		return 0, nil
	}
}

// Close stops the counter goroutine, if any.
func (d *Device) Close() error {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	return nil
}
