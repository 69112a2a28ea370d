// Package static provides the fixed-value sensor backing module_type
// "static": commissioning placeholders and test points that publish a
// constant engineering value through the normal pipeline.
package static

import "strconv"

// Device returns a fixed raw value on every read.
type Device struct {
	value float64
}

// New parses the configured value (the hardware address field carries it
// as text for static modules).
func New(value string) (*Device, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &Device{value: v}, nil
}

// Read returns the configured constant.
func (d *Device) Read() (float64, error) { return d.value, nil }
