package quant

import "testing"

func TestIdentityCurve(t *testing.T) {
	c, err := NewCurve(ModeNone)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	for _, m := range []int32{0, 5, 1023, 5000} {
		got := c.Forward(m)
		want := m
		if want > maxCompanded {
			want = maxCompanded
		}
		if got != want {
			t.Errorf("Forward(%d) = %d, want %d", m, got, want)
		}
	}
}

func TestCubicCurveMonotonic(t *testing.T) {
	c, err := NewCurve(ModeCubic)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	prev := int32(-1)
	for m := int32(0); m <= 2000; m++ {
		got := c.Forward(m)
		if got < prev {
			t.Fatalf("Forward not monotonic at m=%d: got %d after %d", m, got, prev)
		}
		prev = got
	}
}

func TestCubicCurveBounds(t *testing.T) {
	c, err := NewCurve(ModeCubic)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	if got := c.Forward(0); got != 0 {
		t.Errorf("Forward(0) = %d, want 0", got)
	}
	if got := c.Forward(100000); got != maxCompanded {
		t.Errorf("Forward(100000) = %d, want %d", got, maxCompanded)
	}
}

func TestCubicCurveApproxInverse(t *testing.T) {
	c, err := NewCurve(ModeCubic)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	for _, m := range []int32{0, 10, 50, 200} {
		companded := c.Forward(m)
		back := c.Inverse(companded)
		// Companding is lossy by construction; just check it roughly
		// tracks the original magnitude within the curve's resolution.
		if back < 0 {
			t.Errorf("Inverse(%d) = %d, negative", companded, back)
		}
	}
}

func TestPiecewiseCurveRoundtripAtAnchors(t *testing.T) {
	c, err := NewCurve(ModePiecewise)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	for _, p := range defaultPiecewisePoints() {
		companded := c.Forward(int32(p.Magnitude))
		if diff := companded - int32(p.Companded); diff < -1 || diff > 1 {
			t.Errorf("Forward(%v) = %d, want close to %v", p.Magnitude, companded, p.Companded)
		}
	}
}

func TestScheduleDefaultsToOne(t *testing.T) {
	s := NewSchedule()
	if q := s.QBand(0, 0, 0, 0); q != 1 {
		t.Errorf("QBand default = %d, want 1", q)
	}
	s.Set(2, 1, 3, 0, 40)
	if q := s.QBand(2, 1, 3, 0); q != 40 {
		t.Errorf("QBand after Set = %d, want 40", q)
	}
	if q := s.QBand(2, 1, 3, 1); q != 1 {
		t.Errorf("QBand for unset band = %d, want 1", q)
	}
}

func TestDivideMultiplyRoundTrip(t *testing.T) {
	tests := []struct {
		coeff, qBand int32
	}{
		{0, 8}, {100, 8}, {-100, 8}, {7, 1}, {-7, 1}, {1000, 16},
	}
	for _, tt := range tests {
		q := Divide(tt.coeff, tt.qBand)
		back := Multiply(q, tt.qBand)
		diff := back - tt.coeff
		if diff < 0 {
			diff = -diff
		}
		if diff >= tt.qBand {
			t.Errorf("Divide/Multiply(%d, %d): reconstructed %d too far off", tt.coeff, tt.qBand, back)
		}
	}
}
