// Package bandcodec turns one quantized, companded subband plane into
// the zero-run/magnitude/sign token stream of spec §4.4, and back.
//
// Grounded on the teacher's internal/entropy coding-pass scan
// (internal/entropy/t1.go): a single row-major walk over a coefficient
// block classifying each coefficient as zero or significant, generalized
// here from bitplane-by-bitplane significance propagation to a one-pass
// run/magnitude scan over the already-quantized coefficients.
package bandcodec

import (
	"github.com/emericg/cfhd-go/internal/bitio"
	"github.com/emericg/cfhd-go/internal/codebook"
	"github.com/emericg/cfhd-go/internal/quant"
)

// Options configures one band's encode/decode pass.
type Options struct {
	Book     *codebook.Book
	FSM      *codebook.FSM
	Curve    quant.Curve
	QBand    int32
	Lossless bool
}

// EncodeBand scans coeffs in row-major order, quantizing and companding
// each value, and writes the resulting run/magnitude/sign token stream
// to w, terminated by the band marker (spec §4.4). coeffs holds
// width*height samples at the given stride (stride >= width).
func EncodeBand(w *bitio.Writer, coeffs []int32, width, height, stride int, opt Options) error {
	run := 0
	flushValue := func(mag int32, sign bool) error {
		companded := opt.Curve.Forward(mag)
		sym, escape := clampToCodebook(companded)
		if err := putRun(w, opt.Book, run); err != nil {
			return err
		}

		if escape {
			ee, _ := opt.Book.Entry(codebook.Symbol{Kind: codebook.KindEscape})
			if err := w.PutBits(ee.Bits, uint(ee.Len)); err != nil {
				return err
			}
			if err := w.PutBits(uint32(companded), 16); err != nil {
				return err
			}
		} else {
			me, ok := opt.Book.Entry(codebook.Symbol{Kind: codebook.KindMagnitude, Mag: sym})
			if !ok {
				return errUnrepresentable(int(sym))
			}
			if err := w.PutBits(me.Bits, uint(me.Len)); err != nil {
				return err
			}
		}
		signBit := uint32(0)
		if sign {
			signBit = 1
		}
		if err := w.PutBits(signBit, 1); err != nil {
			return err
		}
		run = 0
		return nil
	}

	for y := 0; y < height; y++ {
		base := y * stride
		for x := 0; x < width; x++ {
			raw := coeffs[base+x]
			q := quant.Divide(raw, opt.QBand)
			if q == 0 {
				run++
				continue
			}
			mag := q
			sign := mag < 0
			if sign {
				mag = -mag
			}
			if err := flushValue(mag, sign); err != nil {
				return err
			}
		}
	}

	if err := putRun(w, opt.Book, run); err != nil {
		return err
	}
	ee, _ := opt.Book.Entry(codebook.Symbol{Kind: codebook.KindEnd})
	return w.PutBits(ee.Bits, uint(ee.Len))
}

// putRun emits the codeword(s) for a zero-run of the given length,
// repeating the MaxRun codeword as needed (spec §4.4 step 1).
func putRun(w *bitio.Writer, book *codebook.Book, run int) error {
	rem := run
	for rem > codebook.MaxRun {
		re, _ := book.Entry(codebook.Symbol{Kind: codebook.KindRun, Run: codebook.MaxRun})
		if err := w.PutBits(re.Bits, uint(re.Len)); err != nil {
			return err
		}
		rem -= codebook.MaxRun
	}
	re, ok := book.Entry(codebook.Symbol{Kind: codebook.KindRun, Run: rem})
	if !ok {
		return errUnrepresentable(rem)
	}
	return w.PutBits(re.Bits, uint(re.Len))
}

// DecodeBand reads a run/magnitude/sign token stream from r and scatters
// the reconstructed coefficients into out in row-major order, stopping
// at the band marker. out must hold width*height samples at stride.
func DecodeBand(r *bitio.Reader, out []int32, width, height, stride int, opt Options) error {
	trailingSign := func() (bool, error) {
		b, err := r.GetBits(1)
		if err != nil {
			return false, err
		}
		return b == 1, nil
	}
	tokens, err := opt.FSM.DecodeBand(r, trailingSign)
	if err != nil {
		return err
	}
	for yy := 0; yy < height; yy++ {
		for xx := 0; xx < width; xx++ {
			out[yy*stride+xx] = 0
		}
	}
	x, y := 0, 0
	advance := func(n int) error {
		for n > 0 {
			if y >= height {
				return errBandOverrun{}
			}
			x++
			if x >= width {
				x = 0
				y++
			}
			n--
		}
		return nil
	}
	for _, tok := range tokens {
		if tok.Kind == codebook.KindEnd {
			return advance(tok.Run)
		}
		if err := advance(tok.Run); err != nil {
			return err
		}
		q := opt.Curve.Inverse(tok.Mag)
		dequant := quant.Multiply(q, opt.QBand)
		if tok.Sign {
			dequant = -dequant
		}
		out[y*stride+x] = dequant
		if err := advance(1); err != nil {
			return err
		}
	}
	return errBandTruncated{}
}

// clampToCodebook returns a companded magnitude unchanged when the
// codebook represents it directly, and flags escape otherwise. It does
// not saturate, and Options.Lossless does not change this choice.
func clampToCodebook(companded int32) (sym int32, escape bool) {
	if companded <= codebook.MaxMagnitude {
		return companded, false
	}
	return 0, true
}

type errUnrepresentable int

func (e errUnrepresentable) Error() string {
	return "bandcodec: no codebook entry for value"
}

type errBandOverrun struct{}

func (errBandOverrun) Error() string { return "bandcodec: token stream overran band dimensions" }

type errBandTruncated struct{}

func (errBandTruncated) Error() string {
	return "bandcodec: token stream ended without a band terminator"
}
