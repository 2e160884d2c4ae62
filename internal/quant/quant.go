// Package quant implements the CineForm-style quantization and companding
// of wavelet highpass coefficients (spec §4.3).
//
// Companding compresses the dynamic range of a coefficient magnitude
// before it is looked up in the bounded-size VLC magnitude table. Three
// modes are supported: none (pass-through), cubic (lossy, analytic), and
// piecewise (lossless, table-driven).
package quant

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Mode enumerates the companding modes of spec §4.3.
type Mode int

const (
	// ModeNone passes magnitudes through unchanged up to 1023 and clips
	// larger ones to 1023.
	ModeNone Mode = iota
	// ModeCubic maps m -> m + (m^3/255^3)*768, clipped to [0, 1023].
	ModeCubic
	// ModePiecewise uses a table-driven curve, used for lossless coding.
	ModePiecewise
)

// maxCompanded is the largest value any companding curve may produce. The
// VLC magnitude table covers a smaller range (codebook.MaxMagnitude);
// companded values above it are escape-coded.
const maxCompanded = 1023

// Curve maps raw coefficient magnitudes to companded codebook indices and
// back. Forward must be monotonically non-decreasing so Inverse is
// well-defined.
type Curve interface {
	Forward(magnitude int32) int32
	Inverse(companded int32) int32
}

// NewCurve builds the Curve for the given companding mode.
func NewCurve(mode Mode) (Curve, error) {
	switch mode {
	case ModeNone:
		return identityCurve{}, nil
	case ModeCubic:
		return newCubicCurve(), nil
	case ModePiecewise:
		return newPiecewiseCurve(defaultPiecewisePoints()), nil
	default:
		return nil, fmt.Errorf("quant: unknown companding mode %d", mode)
	}
}

type identityCurve struct{}

func (identityCurve) Forward(m int32) int32 {
	if m > maxCompanded {
		return maxCompanded
	}
	return m
}

func (identityCurve) Inverse(c int32) int32 { return c }

// cubicCurve implements the §4.3 cubic companding curve with a cached
// inverse lookup built once at construction time.
type cubicCurve struct {
	inverse [maxCompanded + 1]int32 // inverse[companded] -> magnitude
}

func newCubicCurve() *cubicCurve {
	c := &cubicCurve{}
	// Sample the forward curve densely over the representable magnitude
	// range and invert it by nearest-companded-value assignment, using
	// floats.Span to lay out the sample domain (the pack's gonum
	// dependency, see SPEC_FULL.md DOMAIN STACK).
	const samples = 4096
	xs := make([]float64, samples)
	floats.Span(xs, 0, 4095)
	for _, x := range xs {
		m := int32(x)
		companded := cubicForward(m)
		if companded < 0 {
			companded = 0
		}
		if companded > maxCompanded {
			companded = maxCompanded
		}
		// Prefer the smallest magnitude that reaches a given companded
		// value, since Forward clips monotonically.
		if c.inverse[companded] == 0 && companded != 0 {
			c.inverse[companded] = m
		} else if companded == 0 {
			c.inverse[0] = 0
		}
	}
	// Fill any unreached companded slots by holding the previous value,
	// since the cubic curve's derivative grows with m, leaving gaps
	// between consecutive companded values as m gets larger.
	last := int32(0)
	for i := range c.inverse {
		if c.inverse[i] == 0 && i > 0 {
			c.inverse[i] = last
		} else {
			last = c.inverse[i]
		}
	}
	return c
}

func cubicForward(m int32) int32 {
	mf := float64(m)
	v := mf + (mf*mf*mf/(255*255*255))*768
	if v < 0 {
		return 0
	}
	if v > maxCompanded {
		return maxCompanded
	}
	return int32(v + 0.5)
}

func (c *cubicCurve) Forward(m int32) int32 {
	if m < 0 {
		m = -m
	}
	return cubicForward(m)
}

func (c *cubicCurve) Inverse(companded int32) int32 {
	if companded < 0 {
		companded = 0
	}
	if companded > maxCompanded {
		companded = maxCompanded
	}
	return c.inverse[companded]
}

// piecewiseCurve implements the table-driven curve used for lossless
// coding, built from control points via gonum's PiecewiseLinear
// interpolator in both directions.
type piecewiseCurve struct {
	forward *interp.PiecewiseLinear
	inverse *interp.PiecewiseLinear
	maxIn   float64
}

// controlPoint is one (magnitude, companded) anchor of the piecewise curve.
type controlPoint struct {
	Magnitude, Companded float64
}

// defaultPiecewisePoints returns the lossless companding anchors: identity
// up to 256, then a gentler compression of the long highpass tail so the
// full 16-bit coefficient range still fits the bounded codebook index.
func defaultPiecewisePoints() []controlPoint {
	return []controlPoint{
		{0, 0},
		{256, 256},
		{1024, 512},
		{4096, 768},
		{16384, 960},
		{32767, 1023},
	}
}

func newPiecewiseCurve(points []controlPoint) *piecewiseCurve {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Magnitude
		ys[i] = p.Companded
	}

	fwd := new(interp.PiecewiseLinear)
	if err := fwd.Fit(xs, ys); err != nil {
		panic(fmt.Sprintf("quant: fitting forward piecewise curve: %v", err))
	}
	inv := new(interp.PiecewiseLinear)
	if err := inv.Fit(ys, xs); err != nil {
		panic(fmt.Sprintf("quant: fitting inverse piecewise curve: %v", err))
	}

	return &piecewiseCurve{forward: fwd, inverse: inv, maxIn: xs[len(xs)-1]}
}

func (c *piecewiseCurve) Forward(m int32) int32 {
	mag := float64(m)
	if mag < 0 {
		mag = -mag
	}
	if mag > c.maxIn {
		mag = c.maxIn
	}
	v := c.forward.Predict(mag)
	if v > maxCompanded {
		v = maxCompanded
	}
	if v < 0 {
		v = 0
	}
	return int32(v + 0.5)
}

func (c *piecewiseCurve) Inverse(companded int32) int32 {
	v := c.inverse.Predict(float64(companded))
	if v < 0 {
		v = 0
	}
	return int32(v + 0.5)
}

// Schedule is the QuantSchedule of design note §9: a quality x
// encoded-format x level x band keyed lookup of quantization divisors,
// consulted from shared transform code rather than switched on in
// conditional branches per call site.
type Schedule struct {
	entries map[scheduleKey]int32
}

type scheduleKey struct {
	Quality       int
	EncodedFormat int
	Level         int
	Band          int
}

// NewSchedule builds an empty Schedule; callers populate it with Set.
func NewSchedule() *Schedule {
	return &Schedule{entries: make(map[scheduleKey]int32)}
}

// Set records the quantization divisor for one (quality, encodedFormat,
// level, band) combination.
func (s *Schedule) Set(quality, encodedFormat, level, band int, qBand int32) {
	s.entries[scheduleKey{quality, encodedFormat, level, band}] = qBand
}

// QBand returns the quantization divisor for a given combination,
// defaulting to 1 (no quantization) when the schedule has no entry —
// this keeps the LL-at-deepest-level invariant (never quantized by the
// magnitude codebook) trivially satisfiable by simply never populating
// an entry for it.
func (s *Schedule) QBand(quality, encodedFormat, level, band int) int32 {
	if q, ok := s.entries[scheduleKey{quality, encodedFormat, level, band}]; ok {
		return q
	}
	return 1
}

// Divide applies a quantization divisor to a coefficient with
// round-to-nearest, matching the rounding discipline used throughout the
// transform (spec §4.2 "rounding discipline").
func Divide(coeff int32, qBand int32) int32 {
	if qBand <= 1 {
		return coeff
	}
	if coeff >= 0 {
		return (coeff + qBand/2) / qBand
	}
	return -((-coeff + qBand/2) / qBand)
}

// Multiply reconstructs an approximate coefficient from its quantized
// value and divisor (dequantization).
func Multiply(quantized int32, qBand int32) int32 {
	return quantized * qBand
}
