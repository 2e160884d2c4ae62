// Package container implements the self-describing tag-value sample
// bitstream (spec §4.5): a sample header, one wavelet per channel with
// nested subband blocks, an optional metadata chunk, and an optional
// thumbnail payload.
//
// Grounded on the teacher's internal/codestream (marker-code switch,
// required-vs-skippable segment handling) and internal/box (nested
// length-prefixed boxes) — generalized from JPEG 2000's fixed marker set
// to CineForm's declared-length tag/value pairs with a required-bit.
package container

import (
	"fmt"

	"github.com/emericg/cfhd-go/internal/bitio"
)

// requiredBit marks a tag as required-to-understand (spec §3): an
// unrecognized tag with this bit set must cause the decoder to reject
// the sample; without it, unknown tags are skipped by declared length.
const requiredBit uint32 = 0x80000000

func required(id uint32) uint32 { return id | requiredBit }
func isRequired(tag uint32) bool { return tag&requiredBit != 0 }
func tagID(tag uint32) uint32    { return tag &^ requiredBit }

// Structural tag codes. Values are arbitrary but stable identifiers,
// analogous to the teacher's SOC/SIZ/COD marker constants.
const (
	tagWidth          = 0xC001
	tagHeight         = 0xC002
	tagEncodedFormat  = 0xC003
	tagFieldType      = 0xC004
	tagQuality        = 0xC005
	tagKeyFrame       = 0xC006
	tagGOPPosition    = 0xC007
	tagFrameNumber    = 0xC008
	tagQuantVector    = 0xC009
	tagChannelBlock   = 0xC00A
	tagChannelIndex   = 0xC00B
	tagSubbandBand    = 0xC00C
	tagSubbandLevel   = 0xC00D
	tagSubbandQDiv    = 0xC00E
	tagSubbandData    = 0xC00F
	tagMetadataChunk  = 0xC010
	tagThumbnail      = 0xC011
	tagCompandingMode = 0xC012
)

// EncodedFormat enumerates the pixel arrangements the core wavelet
// pipeline accepts from the (out-of-scope) pixel-conversion collaborator.
type EncodedFormat uint32

const (
	FormatYUV422 EncodedFormat = iota
	FormatRGB444
	FormatRGBA4444
	FormatBayer
)

// Quality is the CineForm quality tier enum (spec §6).
type Quality uint32

const (
	QualityFixed Quality = iota
	QualityLow
	QualityMedium
	QualityHigh
	QualityFilmScan1
	QualityFilmScan2
	QualityFilmScan3
	QualityKeying
	QualityUncompressedFractions
)

// Header carries the scalar sample-level fields (spec §4.5).
type Header struct {
	Width, Height int
	EncodedFormat EncodedFormat
	FieldType     uint32
	Quality       Quality
	KeyFrame      bool
	GOPPosition   int
	FrameNumber   uint32

	// CompandingMode is quant.Mode (kept as int to avoid a
	// container->quant import cycle): the companding curve the encoder
	// applied before quantization (spec §4.3), required on decode to
	// invert it with the matching curve rather than guessing.
	CompandingMode int
}

// SubbandBlock is one coded highpass (or raw LL) band within a channel.
type SubbandBlock struct {
	Band     int // wavelet.BandIndex, kept as int to avoid a container->wavelet import cycle
	Level    int
	QDivisor int32
	Data     []byte // already bit-packed VLC payload (or raw 16-bit LL samples)
}

// ChannelBlock holds one channel's subbands.
type ChannelBlock struct {
	Index    int
	Subbands []SubbandBlock
}

// Sample is the full decoded container contents.
type Sample struct {
	Header    Header
	QuantVector []int32
	Channels  []ChannelBlock
	Metadata  []byte // opaque nested tag stream, nil if absent
	Thumbnail []byte // packed 10-bit RGB, nil if absent
}

// Write serializes s to w following the tag-value layout of spec §4.5.
func Write(w *bitio.Writer, s *Sample) error {
	if err := w.PutTag(required(tagWidth), uint32(s.Header.Width)); err != nil {
		return err
	}
	if err := w.PutTag(required(tagHeight), uint32(s.Header.Height)); err != nil {
		return err
	}
	if err := w.PutTag(required(tagEncodedFormat), uint32(s.Header.EncodedFormat)); err != nil {
		return err
	}
	if err := w.PutTag(tagFieldType, s.Header.FieldType); err != nil {
		return err
	}
	if err := w.PutTag(required(tagQuality), uint32(s.Header.Quality)); err != nil {
		return err
	}
	keyFlag := uint32(0)
	if s.Header.KeyFrame {
		keyFlag = 1
	}
	if err := w.PutTag(required(tagKeyFrame), keyFlag); err != nil {
		return err
	}
	if err := w.PutTag(tagGOPPosition, uint32(s.Header.GOPPosition)); err != nil {
		return err
	}
	if err := w.PutTag(tagFrameNumber, s.Header.FrameNumber); err != nil {
		return err
	}
	if err := w.PutTag(required(tagCompandingMode), uint32(s.Header.CompandingMode)); err != nil {
		return err
	}

	qvBytes := make([]byte, len(s.QuantVector)*4)
	for i, q := range s.QuantVector {
		putU32(qvBytes[i*4:], uint32(q))
	}
	if err := w.PutTag(required(tagQuantVector), uint32(len(qvBytes))); err != nil {
		return err
	}
	if err := w.WriteRaw(qvBytes); err != nil {
		return err
	}

	for _, ch := range s.Channels {
		if err := writeChannel(w, ch); err != nil {
			return err
		}
	}

	if s.Metadata != nil {
		if err := w.PutTag(tagMetadataChunk, uint32(len(s.Metadata))); err != nil {
			return err
		}
		if err := w.WriteRaw(s.Metadata); err != nil {
			return err
		}
	}
	if s.Thumbnail != nil {
		if err := w.PutTag(tagThumbnail, uint32(len(s.Thumbnail))); err != nil {
			return err
		}
		if err := w.WriteRaw(s.Thumbnail); err != nil {
			return err
		}
	}
	return nil
}

func writeChannel(w *bitio.Writer, ch ChannelBlock) error {
	var length uint32 = 8 // channel index tag (2 words)
	for _, sb := range ch.Subbands {
		length += 4*2*3 + 4*2 + uint32(len(sb.Data)) // 3 scalar tags + data tag + payload
		if pad := len(sb.Data) % 4; pad != 0 {
			length += uint32(4 - pad)
		}
	}
	if err := w.PutTag(required(tagChannelBlock), length); err != nil {
		return err
	}
	if err := w.PutTag(tagChannelIndex, uint32(ch.Index)); err != nil {
		return err
	}
	for _, sb := range ch.Subbands {
		if err := w.PutTag(required(tagSubbandBand), uint32(sb.Band)); err != nil {
			return err
		}
		if err := w.PutTag(required(tagSubbandLevel), uint32(sb.Level)); err != nil {
			return err
		}
		if err := w.PutTag(required(tagSubbandQDiv), uint32(sb.QDivisor)); err != nil {
			return err
		}
		if err := w.PutTag(required(tagSubbandData), uint32(len(sb.Data))); err != nil {
			return err
		}
		if err := w.WriteRaw(sb.Data); err != nil {
			return err
		}
	}
	return nil
}

// Read parses a Sample from r, following declared lengths to skip any
// tag it does not recognize — except when that tag's required bit is
// set (spec §3), in which case an unrecognized tag is a hard error.
func Read(r *bitio.Reader) (*Sample, error) {
	s := &Sample{}

	for r.Remaining() >= 64 {
		r.SkipToNextTag()
		if r.Remaining() < 64 {
			break
		}
		tag, value, err := r.GetTag()
		if err != nil {
			return nil, err
		}
		id := tagID(tag)
		switch id {
		case tagWidth:
			s.Header.Width = int(value)
		case tagHeight:
			s.Header.Height = int(value)
		case tagEncodedFormat:
			s.Header.EncodedFormat = EncodedFormat(value)
		case tagFieldType:
			s.Header.FieldType = value
		case tagQuality:
			s.Header.Quality = Quality(value)
		case tagKeyFrame:
			s.Header.KeyFrame = value != 0
		case tagGOPPosition:
			s.Header.GOPPosition = int(value)
		case tagFrameNumber:
			s.Header.FrameNumber = value
		case tagCompandingMode:
			s.Header.CompandingMode = int(value)
		case tagQuantVector:
			n := int(value)
			if n%4 != 0 {
				return nil, corrupt("quantizer vector length %d not a multiple of 4", n)
			}
			raw, err := readRaw(r, n)
			if err != nil {
				return nil, err
			}
			s.QuantVector = make([]int32, n/4)
			for i := range s.QuantVector {
				s.QuantVector[i] = int32(getU32(raw[i*4:]))
			}
		case tagChannelBlock:
			ch, err := readChannel(r, int(value))
			if err != nil {
				return nil, err
			}
			s.Channels = append(s.Channels, ch)
		case tagMetadataChunk:
			raw, err := readRaw(r, int(value))
			if err != nil {
				return nil, err
			}
			s.Metadata = raw
		case tagThumbnail:
			raw, err := readRaw(r, int(value))
			if err != nil {
				return nil, err
			}
			s.Thumbnail = raw
		default:
			if isRequired(tag) {
				return nil, corrupt("unrecognized required tag %#x", id)
			}
			// Skippable: value holds the declared byte length of the
			// tag's payload, which is read past and discarded.
			if _, err := readRaw(r, int(value)); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func readChannel(r *bitio.Reader, length int) (ChannelBlock, error) {
	end := r.BitOffset() + length*8
	var ch ChannelBlock
	var cur SubbandBlock
	haveBand := false
	for r.BitOffset() < end {
		r.SkipToNextTag()
		if r.BitOffset() >= end {
			break
		}
		tag, value, err := r.GetTag()
		if err != nil {
			return ch, err
		}
		id := tagID(tag)
		switch id {
		case tagChannelIndex:
			ch.Index = int(value)
		case tagSubbandBand:
			cur = SubbandBlock{Band: int(value)}
			haveBand = true
		case tagSubbandLevel:
			cur.Level = int(value)
		case tagSubbandQDiv:
			cur.QDivisor = int32(value)
		case tagSubbandData:
			raw, err := readRaw(r, int(value))
			if err != nil {
				return ch, err
			}
			cur.Data = raw
			if haveBand {
				ch.Subbands = append(ch.Subbands, cur)
				haveBand = false
			}
		default:
			if isRequired(tag) {
				return ch, corrupt("unrecognized required tag %#x in channel block", id)
			}
			if _, err := readRaw(r, int(value)); err != nil {
				return ch, err
			}
		}
	}
	return ch, nil
}

func readRaw(r *bitio.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, corrupt("negative declared length %d", n)
	}
	if r.Remaining() < n*8 {
		return nil, corrupt("declared length %d exceeds remaining input", n)
	}
	out := make([]byte, n)
	for i := range out {
		b, err := r.GetBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// errCorrupt / errUnsupported mirror the coordinator-level error
// taxonomy (spec §7) without importing the root package (which imports
// container), avoiding an import cycle.
type errCorrupt struct{ reason string }

func (e errCorrupt) Error() string { return "container: corrupt sample: " + e.reason }

func corrupt(format string, args ...interface{}) error {
	return errCorrupt{fmt.Sprintf(format, args...)}
}
