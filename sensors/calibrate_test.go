package sensors

import (
	"math"
	"testing"

	"github.com/watertreat/rtu/types"
)

func TestCalibrateLinear(t *testing.T) {
	spec := types.CalibrationSpec{Kind: types.CalLinear, Scale: 3.5, Offset: 0}
	for _, raw := range []float64{2.00, 2.00, 2.00} {
		got, err := Calibrate(spec, raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-7.0) > 1e-9 {
			t.Fatalf("Calibrate(linear, %v) = %v, want 7.0", raw, got)
		}
	}
}

func TestCalibrateTwoPointRoundTrip(t *testing.T) {
	spec := types.CalibrationSpec{Kind: types.CalTwoPoint, RawLow: 1.0, RawHigh: 4.0, RefLow: 0.0, RefHigh: 14.0}
	lo, err := Calibrate(spec, spec.RawLow)
	if err != nil || math.Abs(lo-spec.RefLow) > 1e-4 {
		t.Fatalf("low point: got %v, err %v", lo, err)
	}
	hi, err := Calibrate(spec, spec.RawHigh)
	if err != nil || math.Abs(hi-spec.RefHigh) > 1e-4 {
		t.Fatalf("high point: got %v, err %v", hi, err)
	}
}

func TestCalibrateTwoPointDegenerate(t *testing.T) {
	spec := types.CalibrationSpec{Kind: types.CalTwoPoint, RawLow: 2.0, RawHigh: 2.0, RefLow: 0, RefHigh: 14}
	got, err := Calibrate(spec, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2.0 {
		t.Fatalf("raw_high==raw_low should return raw unchanged, got %v", got)
	}
}

func TestCalibratePolynomialHorner(t *testing.T) {
	// 1 + 2x + 3x^2 at x=2 => 1+4+12=17
	spec := types.CalibrationSpec{Kind: types.CalPolynomial, Coefficients: []float64{1, 2, 3}}
	got, err := Calibrate(spec, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-17) > 1e-9 {
		t.Fatalf("got %v, want 17", got)
	}
}

func TestCalibrateLookupClampsOutsideDomain(t *testing.T) {
	spec := types.CalibrationSpec{
		Kind:      types.CalLookup,
		LookupRaw: []float64{0, 1, 2},
		LookupEng: []float64{10, 20, 30},
	}
	if got, _ := Calibrate(spec, -5); got != 10 {
		t.Fatalf("below domain: got %v, want 10", got)
	}
	if got, _ := Calibrate(spec, 50); got != 30 {
		t.Fatalf("above domain: got %v, want 30", got)
	}
	if got, _ := Calibrate(spec, 0.5); math.Abs(got-15) > 1e-9 {
		t.Fatalf("interpolated: got %v, want 15", got)
	}
}

func TestCalibrateSteinhartOutOfRange(t *testing.T) {
	spec := types.CalibrationSpec{Kind: types.CalSteinhart, A: 0.001, B: 0.0002, C: 0.0000002, SeriesResistor: 10000}
	got, err := Calibrate(spec, 3.3)
	if err == nil {
		t.Fatalf("expected out-of-range error at raw==vref")
	}
	if got != steinhartSentinel {
		t.Fatalf("got %v, want sentinel %v", got, steinhartSentinel)
	}
}

func TestCalibrateNoneIdempotent(t *testing.T) {
	spec := types.CalibrationSpec{Kind: types.CalNone}
	a, _ := Calibrate(spec, 42)
	b, _ := Calibrate(spec, 42)
	if a != b || a != 42 {
		t.Fatalf("calibration must be idempotent: a=%v b=%v", a, b)
	}
}
