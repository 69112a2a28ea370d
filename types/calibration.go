package types

// CalibrationKind tags which variant of CalibrationSpec is populated.
// Encoded as a closed tagged union per §9 "Dynamic dispatch of drivers" —
// the same principle applies to calibration payloads: a small closed set
// dispatched by a switch, not an open plug-in table.
type CalibrationKind string

const (
	CalNone       CalibrationKind = "none"
	CalLinear     CalibrationKind = "linear"
	CalTwoPoint   CalibrationKind = "two_point"
	CalPolynomial CalibrationKind = "polynomial"
	CalLookup     CalibrationKind = "lookup"
	CalSteinhart  CalibrationKind = "steinhart"
)

// CalibrationSpec is the tagged-variant calibration payload of §3/§4.2.
// Only the fields for Kind are meaningful; the rest are zero.
type CalibrationSpec struct {
	Kind CalibrationKind `json:"kind"`

	// linear
	Scale  float64 `json:"scale,omitempty"`
	Offset float64 `json:"offset,omitempty"`

	// two_point
	RawLow  float64 `json:"raw_low,omitempty"`
	RawHigh float64 `json:"raw_high,omitempty"`
	RefLow  float64 `json:"ref_low,omitempty"`
	RefHigh float64 `json:"ref_high,omitempty"`

	// polynomial: coefficients[0..degree], degree <= 5
	Coefficients []float64 `json:"coefficients,omitempty"`

	// lookup: ordered raw[] -> eng[], n >= 2
	LookupRaw []float64 `json:"lookup_raw,omitempty"`
	LookupEng []float64 `json:"lookup_eng,omitempty"`

	// steinhart
	A              float64 `json:"a,omitempty"`
	B              float64 `json:"b,omitempty"`
	C              float64 `json:"c,omitempty"`
	SeriesResistor float64 `json:"series_resistor,omitempty"`
}
