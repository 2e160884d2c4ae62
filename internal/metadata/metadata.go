// Package metadata implements the per-channel parameter record and the
// priority-indexed overlay merge engine (spec §4.6): BASE defaults,
// the per-frame metadata chunk, on-disk database/override files, and
// an optional SDK override buffer, merged in ascending priority order
// into a Cfhddata record consulted by the coordinator before decode.
//
// Grounded on the teacher's internal/box.go length-prefixed tag parsing,
// reused here for the nested tag stream that makes up each metadata
// buffer (opaque to the compression layer itself).
package metadata

import (
	"fmt"
	"math"

	"github.com/emericg/cfhd-go/internal/bitio"
	"github.com/emericg/cfhd-go/internal/guid"
)

// Priority indexes the overlay's merge order (spec §4.6 step 6); buffers
// are applied in ascending Priority so a higher Priority always wins for
// a given tag and delta channel (§8 "Overlay priority").
type Priority int

const (
	PriorityBase Priority = iota
	PriorityFrame
	PriorityFrame1
	PriorityFrame2
	PriorityDatabase
	PriorityDatabase1
	PriorityDatabase2
	PriorityOverride
	PriorityOverride1
	PriorityOverride2
	priorityCount
)

// delta reports which channel (0, 1 or 2) a priority layer targets.
func (p Priority) delta() int {
	switch p {
	case PriorityFrame1, PriorityDatabase1, PriorityOverride1:
		return 1
	case PriorityFrame2, PriorityDatabase2, PriorityOverride2:
		return 2
	default:
		return 0
	}
}

// seedsFromChannel0 reports whether this layer seeds channel 1/2 from
// channel 0 before merging (spec §4.6 step 6, §9 open question). The
// DATABASE_* layer deliberately skips seeding — an asymmetry carried
// forward from the original implementation's commented-out block, not
// a bug to fix.
func (p Priority) seedsFromChannel0() bool {
	switch p {
	case PriorityFrame1, PriorityFrame2, PriorityOverride1, PriorityOverride2:
		return true
	default:
		return false
	}
}

func (p Priority) isDatabaseLayer() bool {
	switch p {
	case PriorityDatabase, PriorityDatabase1, PriorityDatabase2:
		return true
	default:
		return false
	}
}

// ParamRecord holds one channel's color/processing parameters. A Has*
// flag distinguishes "explicitly set by this buffer" from "absent",
// since the merge overwrites only the fields a buffer explicitly sets
// and leaves the rest as lower-priority buffers left them (spec §8 "a
// value written at priority p overrides any value at priority < p for the
// same tag").
type ParamRecord struct {
	Gain       float64
	HasGain    bool
	Gamma      float64
	HasGamma   bool
	ColorMatrix    [9]float64
	HasColorMatrix bool
	Colorspace     uint32
	HasColorspace  bool
	CPULimit       int32
	HasCPULimit    bool
	CPUAffinity    uint64
	HasCPUAffinity bool
	ClipGUID       guid.GUID
	HasClipGUID    bool

	// PathFlagsMask summarizes which processing stages this record
	// activates (bit per Has* field); recomputed by the overlay engine
	// both before and after the priority merge (spec §9 open question).
	PathFlagsMask uint32
}

const (
	pathFlagGain = 1 << iota
	pathFlagGamma
	pathFlagColorMatrix
	pathFlagColorspace
	pathFlagCPU
)

// pathFlagsMask derives the active-stage bitmask from a record's Has*
// flags, the rewrite's equivalent of the original's
// process_path_flags_mask.
func pathFlagsMask(p ParamRecord) uint32 {
	var mask uint32
	if p.HasGain {
		mask |= pathFlagGain
	}
	if p.HasGamma {
		mask |= pathFlagGamma
	}
	if p.HasColorMatrix {
		mask |= pathFlagColorMatrix
	}
	if p.HasColorspace {
		mask |= pathFlagColorspace
	}
	if p.HasCPULimit || p.HasCPUAffinity {
		mask |= pathFlagCPU
	}
	return mask
}

// defaultParamRecord returns the canonical BASE defaults (spec §4.6
// step 2): unity gain, unity gamma, identity color matrix.
func defaultParamRecord() ParamRecord {
	var m [9]float64
	m[0], m[4], m[8] = 1, 1, 1
	return ParamRecord{
		Gain: 1, HasGain: true,
		Gamma: 1, HasGamma: true,
		ColorMatrix: m, HasColorMatrix: true,
	}
}

// mergeInto overwrites dst's fields with any field src has explicitly
// set, leaving fields absent from src untouched. This is the priority
// merge primitive applied once per (priority, delta channel).
func mergeInto(dst *ParamRecord, src ParamRecord) {
	if src.HasGain {
		dst.Gain, dst.HasGain = src.Gain, true
	}
	if src.HasGamma {
		dst.Gamma, dst.HasGamma = src.Gamma, true
	}
	if src.HasColorMatrix {
		dst.ColorMatrix, dst.HasColorMatrix = src.ColorMatrix, true
	}
	if src.HasColorspace {
		dst.Colorspace, dst.HasColorspace = src.Colorspace, true
	}
	if src.HasCPULimit {
		dst.CPULimit, dst.HasCPULimit = src.CPULimit, true
	}
	if src.HasCPUAffinity {
		dst.CPUAffinity, dst.HasCPUAffinity = src.CPUAffinity, true
	}
}

// Cfhddata is the full three-channel parameter record (left eye /
// channel 1 / channel 2, in CineForm stereo-3D terms).
type Cfhddata struct {
	Channel [3]ParamRecord
}

const (
	tagGain        = 0xD001
	tagGamma       = 0xD002
	tagColorMatrix = 0xD003
	tagColorspace  = 0xD004
	tagCPULimit    = 0xD005
	tagCPUAffinity = 0xD006
	tagClipGUID    = 0xD007
)

// EncodeParams serializes only the fields p has explicitly set, in the
// same tag/value format as the sample container (spec §4.6 "binary tag
// stream identical in format to the in-sample metadata chunk").
func EncodeParams(p ParamRecord) ([]byte, error) {
	buf := make([]byte, 256)
	w := bitio.NewWriter(buf)
	if p.HasGain {
		if err := w.PutTag(tagGain, math.Float32bits(float32(p.Gain))); err != nil {
			return nil, err
		}
	}
	if p.HasGamma {
		if err := w.PutTag(tagGamma, math.Float32bits(float32(p.Gamma))); err != nil {
			return nil, err
		}
	}
	if p.HasColorMatrix {
		payload := make([]byte, 4*9)
		for i, v := range p.ColorMatrix {
			putU32(payload[i*4:], math.Float32bits(float32(v)))
		}
		if err := w.PutTag(tagColorMatrix, uint32(len(payload))); err != nil {
			return nil, err
		}
		if err := w.WriteRaw(payload); err != nil {
			return nil, err
		}
	}
	if p.HasColorspace {
		if err := w.PutTag(tagColorspace, p.Colorspace); err != nil {
			return nil, err
		}
	}
	if p.HasCPULimit {
		if err := w.PutTag(tagCPULimit, uint32(p.CPULimit)); err != nil {
			return nil, err
		}
	}
	if p.HasCPUAffinity {
		if err := w.PutTag(tagCPUAffinity, uint32(p.CPUAffinity)); err != nil {
			return nil, err
		}
	}
	if p.HasClipGUID {
		if err := w.PutTag(tagClipGUID, 16); err != nil {
			return nil, err
		}
		if err := w.WriteRaw(p.ClipGUID[:]); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// DecodeParams parses a tag stream produced by EncodeParams (or an
// equivalent on-disk/in-sample buffer). A malformed tag is skipped and
// parsing continues with the next one (spec §4.6 failure policy).
func DecodeParams(buf []byte) ParamRecord {
	var p ParamRecord
	r := bitio.NewReader(buf)
	for r.Remaining() >= 64 {
		r.SkipToNextTag()
		if r.Remaining() < 64 {
			break
		}
		tag, value, err := r.GetTag()
		if err != nil {
			break
		}
		switch tag {
		case tagGain:
			p.Gain = float64(math.Float32frombits(value))
			p.HasGain = true
		case tagGamma:
			p.Gamma = float64(math.Float32frombits(value))
			p.HasGamma = true
		case tagColorMatrix:
			n := int(value)
			if n != 4*9 || r.Remaining() < n*8 {
				continue
			}
			var m [9]float64
			ok := true
			for i := range m {
				b, err := r.GetBits(32)
				if err != nil {
					ok = false
					break
				}
				m[i] = float64(math.Float32frombits(b))
			}
			if ok {
				p.ColorMatrix = m
				p.HasColorMatrix = true
			}
		case tagColorspace:
			p.Colorspace = value
			p.HasColorspace = true
		case tagCPULimit:
			p.CPULimit = int32(value)
			p.HasCPULimit = true
		case tagCPUAffinity:
			p.CPUAffinity = uint64(value)
			p.HasCPUAffinity = true
		case tagClipGUID:
			n := int(value)
			if n != 16 || r.Remaining() < n*8 {
				continue
			}
			var g guid.GUID
			ok := true
			for i := range g {
				b, err := r.GetBits(8)
				if err != nil {
					ok = false
					break
				}
				g[i] = byte(b)
			}
			if ok {
				p.ClipGUID = g
				p.HasClipGUID = true
			}
		default:
			// Unrecognized tag in a metadata buffer: skip, per §4.6's
			// "decoding a malformed tag ⇒ skip that tag, continue."
		}
	}
	return p
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// errMalformed reports an unrecoverable decode error at the call site
// that chose not to silently skip (e.g. an explicit API caller, as
// opposed to the tolerant DecodeParams loop used during overlay merge).
type errMalformed struct{ reason string }

func (e errMalformed) Error() string { return fmt.Sprintf("metadata: malformed buffer: %s", e.reason) }
