package codebook

// chunkReader is the minimal bit-peeking interface the FSM walk needs;
// internal/bitio.Reader satisfies it.
type chunkReader interface {
	PeekBits(n uint) (uint32, error)
	SkipBits(n uint) error
	Remaining() int
	GetBits(n uint) (uint32, error)
}

// ResolvedToken is one fully decoded band token: Run zero coefficients
// followed by one nonzero coefficient of magnitude Mag (KindEnd tokens
// carry neither and mark the end of the band). Escape tokens have
// already been resolved to their raw 16-bit magnitude. Sign is filled by
// the trailingBit callback passed to DecodeBand and is meaningless for
// KindEnd.
type ResolvedToken struct {
	Kind SymbolKind
	Run  int
	Mag  int32
	Sign bool
}

// Next advances r by one FSM step from `state` and returns the entry
// applied, the state to use for the following call, and any read error;
// the entry's End field reports whether the band terminator was
// reached. It pads the final sub-4-bit chunk with
// zero bits when fewer than 4 bits remain, matching how a real
// bitstream is padded to a byte boundary at the end of a band.
func (f *FSM) Next(r chunkReader, state int) (Entry, int, error) {
	avail := r.Remaining()
	n := uint(4)
	if avail < 4 {
		n = uint(avail)
	}
	var chunk uint32
	if n > 0 {
		v, err := r.PeekBits(n)
		if err != nil {
			return Entry{}, state, err
		}
		chunk = v << (4 - n) // left-justify into the 4-bit slot, zero-padding the tail
	}
	e := f.States[state][chunk]
	consumed := e.BitsConsumed
	if uint(consumed) > n {
		consumed = int(n)
	}
	if err := r.SkipBits(uint(consumed)); err != nil {
		return Entry{}, state, err
	}
	return e, e.NextState, nil
}

// escapeBits is the width of the raw literal following a KindEscape
// codeword (spec §4.4 "Saturation").
const escapeBits = 16

// DecodeBand walks the FSM from its initial state to the band
// terminator, resolving each value to a ResolvedToken. It keeps the
// running zero-run accumulator that Entry's per-step PreZeros field
// must be folded into (a run may span many FSM steps before the value
// it precedes is finally decoded), and resolves KindEscape values by
// reading the trailing raw literal directly off r (the FSM's trie has
// no notion of that literal either).
//
// trailingBit, if non-nil, is called immediately after each resolved
// value — after its escape literal, if any, and before the walk
// continues — to read one caller-defined bit directly off r and stash
// it in the token's Sign field. This is how bandcodec's inline sign bit
// gets consumed at exactly the right bit position without the FSM
// needing to know what the bit means: the naive callers in
// fsm_test.go pass nil and get back an unsigned token stream, matching
// the plain run/magnitude/end alphabet DecodeNaive also decodes.
func (f *FSM) DecodeBand(r chunkReader, trailingBit func() (bool, error)) ([]ResolvedToken, error) {
	var out []ResolvedToken
	pending := 0
	state := 0
	for {
		e, next, err := f.Next(r, state)
		if err != nil {
			return nil, err
		}
		state = next
		pending += e.PreZeros

		if e.HasValue0 {
			tok, err := resolveValue(r, e.Value0, pending)
			if err != nil {
				return nil, err
			}
			if trailingBit != nil {
				sign, err := trailingBit()
				if err != nil {
					return nil, err
				}
				tok.Sign = sign
			}
			out = append(out, tok)
			pending = 0
		}

		if e.End {
			out = append(out, ResolvedToken{Kind: KindEnd, Run: pending})
			return out, nil
		}
	}
}

func resolveValue(r chunkReader, t Token, run int) (ResolvedToken, error) {
	if t.Kind == KindEscape {
		mag, err := r.GetBits(escapeBits)
		if err != nil {
			return ResolvedToken{}, err
		}
		return ResolvedToken{Kind: KindMagnitude, Run: run, Mag: int32(mag)}, nil
	}
	return ResolvedToken{Kind: t.Kind, Run: run, Mag: t.Mag}, nil
}
