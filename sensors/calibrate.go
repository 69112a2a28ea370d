package sensors

import (
	"math"

	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/types"
	"github.com/watertreat/rtu/x/mathx"
)

// steinhartVRef is the fixed reference voltage §4.2 specifies for the
// Steinhart-Hart thermistor calculation.
const steinhartVRef = 3.3

// steinhartSentinel is returned (with an out-of-range status, per §4.2)
// when the Steinhart-Hart input is physically impossible.
const steinhartSentinel = -273.15

// Calibrate is the pure raw->engineering transform of §4.2. It is
// idempotent by construction: every variant is a deterministic function of
// (spec, raw) alone, satisfying §8 invariant 5.
//
// For an out-of-range Steinhart input Calibrate returns the sentinel value
// together with errcode.ErrOutOfRangeCalibration, so the caller can set
// status without treating the reading as a driver failure (§4.2's "return
// a sentinel ... with status = out_of_range").
func Calibrate(spec types.CalibrationSpec, raw float64) (float64, error) {
	switch spec.Kind {
	case "", types.CalNone:
		return raw, nil

	case types.CalLinear:
		return spec.Scale*raw + spec.Offset, nil

	case types.CalTwoPoint:
		span := spec.RawHigh - spec.RawLow
		if math.Abs(span) < 1e-4 {
			return raw, nil
		}
		t := (raw - spec.RawLow) / span
		return spec.RefLow + t*(spec.RefHigh-spec.RefLow), nil

	case types.CalPolynomial:
		return hornerEval(spec.Coefficients, raw), nil

	case types.CalLookup:
		return lookupEval(spec.LookupRaw, spec.LookupEng, raw), nil

	case types.CalSteinhart:
		return steinhartEval(spec, raw)

	default:
		return raw, errcode.ErrNotSupported("sensors.Calibrate", string(spec.Kind))
	}
}

// hornerEval evaluates coefficients[0..degree] via Horner's method:
// c[0] + raw*(c[1] + raw*(c[2] + ...)).
func hornerEval(coeffs []float64, raw float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	result := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = result*raw + coeffs[i]
	}
	return result
}

// lookupEval linearly interpolates across an ordered raw[]->eng[] table,
// clamping outside the table's domain (§4.2 "lookup").
func lookupEval(rawTbl, engTbl []float64, raw float64) float64 {
	n := len(rawTbl)
	if n == 0 || len(engTbl) != n {
		return raw
	}
	if raw <= rawTbl[0] {
		return engTbl[0]
	}
	if raw >= rawTbl[n-1] {
		return engTbl[n-1]
	}
	// Linear scan is fine: n is small (a handful of calibration points).
	for i := 1; i < n; i++ {
		if raw <= rawTbl[i] {
			lo, hi := rawTbl[i-1], rawTbl[i]
			t := (raw - lo) / (hi - lo)
			return mathx.Clamp(engTbl[i-1]+t*(engTbl[i]-engTbl[i-1]), mathx.Min(engTbl[i-1], engTbl[i]), mathx.Max(engTbl[i-1], engTbl[i]))
		}
	}
	return engTbl[n-1]
}

// steinhartEval computes resistance from the raw ADC voltage through a
// series resistor, then the Steinhart-Hart equation (§4.2 "steinhart").
func steinhartEval(spec types.CalibrationSpec, raw float64) (float64, error) {
	if raw >= steinhartVRef {
		return steinhartSentinel, errcode.ErrOutOfRangeCalibration("sensors.Calibrate", "raw >= vref")
	}
	r := spec.SeriesResistor * raw / (steinhartVRef - raw)
	if r <= 0 {
		return steinhartSentinel, errcode.ErrOutOfRangeCalibration("sensors.Calibrate", "resistance <= 0")
	}
	lnR := math.Log(r)
	invT := spec.A + spec.B*lnR + spec.C*lnR*lnR*lnR
	return 1/invT - 273.15, nil
}
