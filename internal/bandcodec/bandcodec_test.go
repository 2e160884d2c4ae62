package bandcodec

import (
	"math/rand"
	"testing"

	"github.com/emericg/cfhd-go/internal/bitio"
	"github.com/emericg/cfhd-go/internal/codebook"
	"github.com/emericg/cfhd-go/internal/quant"
)

func newOptions(t *testing.T, qband int32) Options {
	t.Helper()
	book, err := codebook.NewBook(false)
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	fsm, err := codebook.Build(book)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	curve, err := quant.NewCurve(quant.ModeNone)
	if err != nil {
		t.Fatalf("NewCurve: %v", err)
	}
	return Options{Book: book, FSM: fsm, Curve: curve, QBand: qband}
}

func TestEncodeDecodeBandRoundtrip(t *testing.T) {
	width, height := 8, 6
	opt := newOptions(t, 1)
	coeffs := make([]int32, width*height)
	rng := rand.New(rand.NewSource(3))
	for i := range coeffs {
		if rng.Intn(3) == 0 {
			coeffs[i] = int32(rng.Intn(40) - 20)
		}
	}

	w := bitio.NewWriter(make([]byte, 4096))
	if err := EncodeBand(w, coeffs, width, height, width, opt); err != nil {
		t.Fatalf("EncodeBand: %v", err)
	}

	out := make([]int32, width*height)
	r := bitio.NewReader(w.Bytes())
	if err := DecodeBand(r, out, width, height, width, opt); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i := range coeffs {
		if out[i] != coeffs[i] {
			t.Fatalf("index %d: got %d, want %d", i, out[i], coeffs[i])
		}
	}
}

func TestEncodeDecodeBandAllZero(t *testing.T) {
	width, height := 4, 4
	opt := newOptions(t, 1)
	coeffs := make([]int32, width*height)

	w := bitio.NewWriter(make([]byte, 256))
	if err := EncodeBand(w, coeffs, width, height, width, opt); err != nil {
		t.Fatalf("EncodeBand: %v", err)
	}
	out := make([]int32, width*height)
	for i := range out {
		out[i] = 99 // sentinel, must be overwritten to 0
	}
	r := bitio.NewReader(w.Bytes())
	if err := DecodeBand(r, out, width, height, width, opt); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d: got %d, want 0", i, v)
		}
	}
}

func TestEncodeDecodeBandQuantizedRoundtrip(t *testing.T) {
	width, height := 16, 8
	opt := newOptions(t, 8)
	coeffs := make([]int32, width*height)
	rng := rand.New(rand.NewSource(4))
	for i := range coeffs {
		coeffs[i] = int32(rng.Intn(2000) - 1000)
	}

	w := bitio.NewWriter(make([]byte, 16384))
	if err := EncodeBand(w, coeffs, width, height, width, opt); err != nil {
		t.Fatalf("EncodeBand: %v", err)
	}
	out := make([]int32, width*height)
	r := bitio.NewReader(w.Bytes())
	if err := DecodeBand(r, out, width, height, width, opt); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i := range coeffs {
		diff := out[i] - coeffs[i]
		if diff < 0 {
			diff = -diff
		}
		if diff >= opt.QBand {
			t.Fatalf("index %d: got %d, want within %d of %d", i, out[i], opt.QBand, coeffs[i])
		}
	}
}

func TestEncodeDecodeBandLongRun(t *testing.T) {
	width, height := 400, 1
	opt := newOptions(t, 1)
	coeffs := make([]int32, width*height)
	coeffs[width-1] = 7 // a single nonzero value after a run far exceeding MaxRun

	w := bitio.NewWriter(make([]byte, 4096))
	if err := EncodeBand(w, coeffs, width, height, width, opt); err != nil {
		t.Fatalf("EncodeBand: %v", err)
	}
	out := make([]int32, width*height)
	r := bitio.NewReader(w.Bytes())
	if err := DecodeBand(r, out, width, height, width, opt); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	for i := range coeffs {
		if out[i] != coeffs[i] {
			t.Fatalf("index %d: got %d, want %d", i, out[i], coeffs[i])
		}
	}
}

func TestEncodeDecodeBandEscape(t *testing.T) {
	width, height := 2, 1
	opt := newOptions(t, 1)
	coeffs := []int32{0, 800} // exceeds codebook.MaxMagnitude but not the curve's own clip, forces an escape

	w := bitio.NewWriter(make([]byte, 256))
	if err := EncodeBand(w, coeffs, width, height, width, opt); err != nil {
		t.Fatalf("EncodeBand: %v", err)
	}
	out := make([]int32, width*height)
	r := bitio.NewReader(w.Bytes())
	if err := DecodeBand(r, out, width, height, width, opt); err != nil {
		t.Fatalf("DecodeBand: %v", err)
	}
	if out[1] != 800 {
		t.Fatalf("escaped value = %d, want 800", out[1])
	}
}
