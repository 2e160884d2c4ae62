// Package codebook builds the VLC magnitude codebook, the RLC zero-run
// codebook, the combined run-magnitude (RLV) codebook, and the
// table-driven FSM decoder used by internal/bandcodec (spec §4.4).
//
// Grounded on the teacher's internal/entropy package: mqc.go builds a
// flat, process-wide state table once (here codebook construction plays
// the same role for a prefix code instead of an arithmetic coder), and
// t1_luts.go's "precompute a lookup table indexed by a packed bit
// pattern" idiom is the same idiom the FSM table in fsm.go follows.
package codebook

import (
	"fmt"
	"math/bits"
	"sync"
)

// SymbolKind distinguishes what a leaf of the merged codebook trie decodes to.
type SymbolKind int

const (
	// KindRun decodes to a run of Run zero coefficients.
	KindRun SymbolKind = iota
	// KindMagnitude decodes to one nonzero coefficient's companded magnitude.
	KindMagnitude
	// KindEscape signals the value could not be represented in the
	// codebook and is instead stored as a raw 16-bit literal immediately
	// following the codeword (spec §4.4 "Saturation").
	KindEscape
	// KindCombined decodes to a fused (Run, Mag) pair in one codeword
	// (spec §4.4 "some quality modes use a combined codebook").
	KindCombined
	// KindEnd is the band-terminator marker; it cannot prefix any other symbol.
	KindEnd
)

// Symbol is one leaf value of the merged codebook trie.
type Symbol struct {
	Kind SymbolKind
	Run  int
	Mag  int32
}

// MaxMagnitude is the largest companded magnitude directly representable
// by the codebook; larger values are not saturated to it: the encoder
// always codes them as the escape codeword followed by a raw 16-bit
// literal, whether or not lossless coding is selected. This is
// smaller than the companding curve's own output bound (1023, see
// internal/quant) by design: keeping the codebook alphabet small bounds
// the number of FSM states well under the 518-state cap (spec §4.4
// "FSM construction").
const MaxMagnitude = 63

// MaxRun is the largest zero-run length with its own codeword; longer
// runs are coded as repeated MaxRun codewords followed by the remainder
// (spec §4.4 step 1).
const MaxRun = 63

// maxCombinedRun / maxCombinedMag bound the fused (run, magnitude) pairs
// eligible for a single combined codeword.
const (
	maxCombinedRun = 3
	maxCombinedMag = 15
)

// Codeword is one codeword: its bits (right-justified in a uint32) and bit length.
type Codeword struct {
	Bits uint32
	Len  uint8
}

// Book is a complete, prefix-free mapping between Symbols and codewords,
// along with the trie used to build the FSM and to decode naively.
type Book struct {
	Combined bool
	bySymbol map[symbolKey]Codeword
	root     *trieNode
}

type symbolKey struct {
	Kind SymbolKind
	Run  int
	Mag  int32
}

func keyOf(s Symbol) symbolKey { return symbolKey{s.Kind, s.Run, s.Mag} }

type trieNode struct {
	leaf        bool
	symbol      Symbol
	zero, one   *trieNode
}

// golomb computes the order-0 Exp-Golomb codeword for a non-negative
// integer index: a complete, prefix-free code over all of ℕ, so any
// injective assignment of symbols to distinct indices yields a valid
// codebook automatically. Codeword length is 2*floor(log2(v+1))+1 bits;
// storing Bits = v+1 and Len = that length is sufficient because the
// leading zero bits of the Exp-Golomb prefix are exactly the bits above
// bit position k in a (2k+1)-bit field holding v+1 (which only occupies
// the low k+1 bits).
func golomb(v uint32) Codeword {
	v2 := v + 1
	k := bits.Len32(v2) - 1
	return Codeword{Bits: v2, Len: uint8(2*k + 1)}
}

// golombDecodeNaive reads one Exp-Golomb-coded index from a generic bit
// source, used as the "naive prefix-code decoder" reference
// implementation for spec §8's FSM-equivalence property.
type bitSource interface {
	GetBits(n uint) (uint32, error)
}

func golombDecodeNaive(r bitSource) (uint32, error) {
	k := 0
	for {
		b, err := r.GetBits(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		k++
		if k > 32 {
			return 0, fmt.Errorf("codebook: runaway exp-golomb prefix")
		}
	}
	if k == 0 {
		return 0, nil
	}
	suffix, err := r.GetBits(uint(k))
	if err != nil {
		return 0, err
	}
	v2 := (uint32(1) << uint(k)) | suffix
	return v2 - 1, nil
}

// NewBook builds the merged codebook trie. Symbol-to-index assignment
// interleaves small run lengths and small magnitudes (the most common
// tokens) before larger ones, the band terminator, the escape sentinel,
// and (if combined is true) the fused run-magnitude pairs, so common
// tokens get shorter Exp-Golomb codewords without requiring a
// frequency-measured Huffman build.
func NewBook(combined bool) (*Book, error) {
	b := &Book{Combined: combined, bySymbol: make(map[symbolKey]Codeword), root: &trieNode{}}

	next := uint32(0)
	assign := func(s Symbol) error {
		e := golomb(next)
		next++
		return b.insert(s, e)
	}

	for i := 0; i <= MaxRun || i <= MaxMagnitude; i++ {
		if i <= MaxRun {
			if err := assign(Symbol{Kind: KindRun, Run: i}); err != nil {
				return nil, err
			}
		}
		if i >= 1 && i <= MaxMagnitude {
			if err := assign(Symbol{Kind: KindMagnitude, Mag: int32(i)}); err != nil {
				return nil, err
			}
		}
	}
	if err := assign(Symbol{Kind: KindEnd}); err != nil {
		return nil, err
	}
	if err := assign(Symbol{Kind: KindEscape}); err != nil {
		return nil, err
	}
	if combined {
		for r := 0; r <= maxCombinedRun; r++ {
			for m := 1; m <= maxCombinedMag; m++ {
				if err := assign(Symbol{Kind: KindCombined, Run: r, Mag: int32(m)}); err != nil {
					return nil, err
				}
			}
		}
	}
	return b, nil
}

func (b *Book) insert(s Symbol, e Codeword) error {
	b.bySymbol[keyOf(s)] = e
	node := b.root
	for i := int(e.Len) - 1; i >= 0; i-- {
		bit := (e.Bits >> uint(i)) & 1
		if bit == 0 {
			if node.zero == nil {
				node.zero = &trieNode{}
			} else if node.zero.leaf {
				return fmt.Errorf("codebook: codeword prefix collision inserting %+v", s)
			}
			node = node.zero
		} else {
			if node.one == nil {
				node.one = &trieNode{}
			} else if node.one.leaf {
				return fmt.Errorf("codebook: codeword prefix collision inserting %+v", s)
			}
			node = node.one
		}
	}
	if node.zero != nil || node.one != nil {
		return fmt.Errorf("codebook: codeword %+v prefixes an existing codeword", s)
	}
	node.leaf = true
	node.symbol = s
	return nil
}

// Entry returns the codeword for a symbol.
func (b *Book) Entry(s Symbol) (Codeword, bool) {
	e, ok := b.bySymbol[keyOf(s)]
	return e, ok
}

// DecodeNaive reads one symbol using a simple bit-at-a-time trie walk,
// the reference decoder spec §8's "FSM equivalence" property is checked
// against.
func (b *Book) DecodeNaive(r bitSource) (Symbol, error) {
	node := b.root
	for {
		bit, err := r.GetBits(1)
		if err != nil {
			return Symbol{}, err
		}
		if bit == 0 {
			node = node.zero
		} else {
			node = node.one
		}
		if node == nil {
			return Symbol{}, fmt.Errorf("codebook: undefined trie transition")
		}
		if node.leaf {
			return node.symbol, nil
		}
	}
}

var (
	standardOnce sync.Once
	standardBook *Book
	standardErr  error

	combinedOnce sync.Once
	combinedBookV *Book
	combinedErr  error
)

// Standard returns the process-wide lazily-initialized plain run+magnitude
// codebook (no fused RLV entries), built once under a sync.Once guard
// per spec §9 "Global mutable state" / §3 "Codebooks and the FSM ... are
// process-wide, initialized on first use, never mutated afterward."
func Standard() (*Book, error) {
	standardOnce.Do(func() { standardBook, standardErr = NewBook(false) })
	return standardBook, standardErr
}

// Combined returns the process-wide lazily-initialized codebook that
// additionally carries fused (run, magnitude) entries.
func Combined() (*Book, error) {
	combinedOnce.Do(func() { combinedBookV, combinedErr = NewBook(true) })
	return combinedBookV, combinedErr
}
