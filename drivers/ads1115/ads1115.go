// Package ads1115 drives the ADS1115 4-channel 16-bit I2C ADC in
// single-shot, single-ended mode, returning a raw voltage reading for the
// sensor pipeline's calibration stage (§4.2 module_type=adc: "raw is
// volts"). Register layout and conversion-poll sequencing are grounded on
// the pack's reef-pi ads1115tds driver, re-expressed over periph.io
// instead of a raw i2c.Bus/WriteToReg pair.
package ads1115

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

// Registers.
const (
	regConversion = 0x00
	regConfig     = 0x01
)

// Config word bit-fields for a single-shot, single-ended conversion.
const (
	configOsSingle   uint16 = 0x8000
	configModeSingle uint16 = 0x0100

	configDataRate860 uint16 = 0x00E0 // 860 SPS, the fastest the chip supports

	configComparatorDisabled uint16 = 0x0003 // queue=disable; traditional/non-latching/active-low are all 0

	convTimeout  = 50 * time.Millisecond
	convPollWait = 200 * time.Microsecond
)

// Gain selects the PGA full-scale range.
type Gain uint16

// Gain settings and their full-scale voltage, per datasheet table 3.
const (
	GainTwoThirds Gain = 0x0000 // +/- 6.144V
	GainOne       Gain = 0x0200 // +/- 4.096V
	GainTwo       Gain = 0x0400 // +/- 2.048V
	GainFour      Gain = 0x0600 // +/- 1.024V
	GainEight     Gain = 0x0800 // +/- 0.512V
	GainSixteen   Gain = 0x0A00 // +/- 0.256V
)

func (g Gain) fullScaleVolts() (float64, bool) {
	switch g {
	case GainTwoThirds:
		return 6.144, true
	case GainOne:
		return 4.096, true
	case GainTwo:
		return 2.048, true
	case GainFour:
		return 1.024, true
	case GainEight:
		return 0.512, true
	case GainSixteen:
		return 0.256, true
	default:
		return 0, false
	}
}

// muxForChannel returns the single-ended AINx-vs-GND mux bits.
func muxForChannel(ch int) (uint16, error) {
	switch ch {
	case 0:
		return 0x4000, nil
	case 1:
		return 0x5000, nil
	case 2:
		return 0x6000, nil
	case 3:
		return 0x7000, nil
	default:
		return 0, fmt.Errorf("ads1115: channel %d out of range [0,3]", ch)
	}
}

// Device is one single-ended input channel of an ADS1115.
type Device struct {
	conn conn.Conn
	mux  uint16
	gain Gain
}

// New builds a Device for the given channel (0..3) and gain over conn,
// typically an &i2c.Dev{Bus: bus, Addr: 0x48..0x4B}.
func New(c conn.Conn, channel int, gain Gain) (*Device, error) {
	mux, err := muxForChannel(channel)
	if err != nil {
		return nil, err
	}
	if _, ok := gain.fullScaleVolts(); !ok {
		return nil, fmt.Errorf("ads1115: unknown gain 0x%04x", gain)
	}
	return &Device{conn: c, mux: mux, gain: gain}, nil
}

// ReadVolts starts a single-shot conversion, polls until ready, and returns
// the result scaled to volts by the configured gain's full-scale range.
func (d *Device) ReadVolts() (float64, error) {
	raw, err := d.convert()
	if err != nil {
		return 0, err
	}
	fs, _ := d.gain.fullScaleVolts()
	// ADS1115 codes span -32768..32767 for the full-scale range.
	return (float64(raw) / 32768.0) * fs, nil
}

func (d *Device) convert() (int16, error) {
	config := configOsSingle | configModeSingle | configComparatorDisabled | d.mux | uint16(d.gain) | configDataRate860
	buf := []byte{regConfig, byte(config >> 8), byte(config)}
	if err := d.conn.Tx(buf, nil); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	deadline := time.Now().Add(convTimeout)
	cfg := make([]byte, 2)
	for {
		if err := d.conn.Tx([]byte{regConfig}, cfg); err != nil {
			return 0, fmt.Errorf("ads1115: read config: %w", err)
		}
		if binary.BigEndian.Uint16(cfg)&configOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, errors.New("ads1115: conversion timeout")
		}
		time.Sleep(convPollWait)
	}

	data := make([]byte, 2)
	if err := d.conn.Tx([]byte{regConversion}, data); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	return int16(binary.BigEndian.Uint16(data)), nil
}
