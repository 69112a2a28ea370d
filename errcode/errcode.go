package errcode

import (
	"context"
	"errors"
	"os"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"
	UnknownPin Code = "unknown_pin"
	Timeout    Code = "timeout"

	// PinInUse is kept as a named alias: a (chip,pin) conflict is an
	// AlreadyExists in the canonical taxonomy, and the alias keeps
	// bind-time checks reading naturally.
	PinInUse = AlreadyExists

	Error Code = "error" // generic fallback

	// The following mirror the spec's canonical error taxonomy (§7) and are
	// the codes driver, store, and fieldbus code should prefer over the
	// bus-era codes above when reporting to a caller outside the bus.
	InvalidParam   Code = "invalid_param"
	NotFound       Code = "not_found"
	AlreadyExists  Code = "already_exists"
	NotInitialised Code = "not_initialised"
	NoMemory       Code = "no_memory"
	IoError        Code = "io_error"
	NotSupported   Code = "not_supported"
	InvalidState   Code = "invalid_state"

	// Driver/acquisition specific, used outside the generic taxonomy.
	HardwareMissing   Code = "hardware_missing"   // ErrHardwareMissing: bind-time absence
	SensorUnavailable Code = "sensor_unavailable" // ErrSensorUnavailable: N consecutive failures
	NotReady          Code = "not_ready"          // ErrNotReady: two-phase trigger/collect retry
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code: it is the single
// translation point from bus/driver failures into the taxonomy, so C2
// never lets a raw error escape the tick.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return Timeout
	}
	if errors.Is(err, os.ErrNotExist) {
		return NotFound
	}
	type coder interface{ Code() Code }
	if c, ok := err.(coder); ok {
		return c.Code()
	}
	return IoError
}

// ErrPinInUse reports a (chip,pin) conflict at bind time (§4.1 "Conflict
// policy"); name identifies the existing owner.
func ErrPinInUse(op, name string) *E {
	return &E{C: PinInUse, Op: op, Msg: "pin already bound to " + name}
}

// ErrHardwareMissing reports that a sensor's configured bus/address did not
// respond during binding; the caller marks the sensor inactive, not fatal.
func ErrHardwareMissing(op, detail string) *E {
	return &E{C: HardwareMissing, Op: op, Msg: detail}
}

// ErrSensorUnavailable reports that a bound sensor has failed to read for
// enough consecutive polls to raise an internal health event (§4.2
// "Failure semantics"); acquisition keeps retrying.
func ErrSensorUnavailable(op, detail string) *E {
	return &E{C: SensorUnavailable, Op: op, Msg: detail}
}

// ErrNotReady signals the two-phase Trigger/Collect driver pattern: the
// caller should retry Collect after the driver's settle time.
var ErrNotReady = Code(NotReady)

// ErrOutOfRangeCalibration reports a calibration input outside its
// physically valid domain (e.g. Steinhart-Hart raw >= Vref, §4.2); the
// caller sets status=out_of_range rather than treating it as a driver
// fault.
func ErrOutOfRangeCalibration(op, detail string) *E {
	return &E{C: InvalidState, Op: op, Msg: detail}
}

// ErrNotSupported reports an unrecognised tagged-variant kind (calibration,
// condition, interlock action, ...) reaching a closed-switch dispatch.
func ErrNotSupported(op, detail string) *E {
	return &E{C: NotSupported, Op: op, Msg: detail}
}
