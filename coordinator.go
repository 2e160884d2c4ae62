// Package cfhd implements a CineForm-HD-style wavelet intraframe codec:
// multi-level 2-6 wavelet transform, band-wise quantization and
// companding, a table-driven FSM entropy decoder, a self-describing
// sample container, and a priority-ordered metadata overlay engine.
//
// The top-level Encoder/Decoder pair is the semantic-command API of
// spec §6: open an instance, negotiate format/quality via Prepare, then
// drive one sample at a time through EncodeSample/DecodeSample.
// EncoderPool adds an asynchronous submit/drain pipeline on top of the
// same Encoder for pipelined capture workloads.
//
//	enc := cfhd.OpenEncoder(cfhd.EncoderOptions{Logger: logger})
//	_, _, _, err := enc.PrepareToEncode(1920, 1080, cfhd.PixelFormatPlanar16YUV422, container.FormatYUV422, container.QualityHigh)
//	sample, err := enc.EncodeSample(frame, pitch)
package cfhd

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/emericg/cfhd-go/internal/bandcodec"
	"github.com/emericg/cfhd-go/internal/bitio"
	"github.com/emericg/cfhd-go/internal/codebook"
	"github.com/emericg/cfhd-go/internal/container"
	"github.com/emericg/cfhd-go/internal/guid"
	"github.com/emericg/cfhd-go/internal/metadata"
	"github.com/emericg/cfhd-go/internal/quant"
	"github.com/emericg/cfhd-go/internal/wavelet"
)

// newRotatingLogger builds a zap logger that writes to a lumberjack-rotated
// file, for callers that set EncoderOptions.LogFile/DecoderOptions.LogFile
// instead of constructing their own *zap.Logger.
func newRotatingLogger(path string) *zap.Logger {
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zap.InfoLevel)
	return zap.New(core)
}

// PixelFormat enumerates the layouts the out-of-scope pixel-conversion
// collaborator (spec §1) is expected to produce (encode) or consume
// (decode). The core never inspects pixel values itself beyond what a
// PixelConverter hands it as planar samples.
type PixelFormat int

const (
	PixelFormatPlanar16YUV422 PixelFormat = iota
	PixelFormatPlanar16RGB444
	PixelFormatPlanar16RGBA4444
	PixelFormatPlanar16Bayer
)

// PixelConverter is the external collaborator named in spec §1: it
// provides planar 16-bit signed samples to the forward transform and
// consumes them from the inverse transform. The real color-space math
// (camera Bayer demosaic, YUV<->RGB matrices, bit-depth packing) is
// explicitly out of this spec's scope; this interface is the seam the
// core calls through.
type PixelConverter interface {
	ToPlanes(frame []byte, pitch, width, height int, encfmt container.EncodedFormat) ([]*wavelet.Plane, error)
	FromPlanes(planes []*wavelet.Plane, encfmt container.EncodedFormat, out []byte, pitch int) error
}

// planarConverter is the default PixelConverter: it assumes the frame
// buffer already holds tightly-packed planar 16-bit samples (channel 0
// at pitch bytes/row, chroma channels at pitch/2 for 4:2:2), the shape
// a capture pipeline sitting in front of this codec core commonly
// produces. Real interleaved-pixel conversion is left to callers that
// supply their own PixelConverter.
type planarConverter struct{}

func numChannels(encfmt container.EncodedFormat) int {
	switch encfmt {
	case container.FormatRGBA4444, container.FormatBayer:
		return 4
	default:
		return 3
	}
}

func channelDims(encfmt container.EncodedFormat, width, height, idx int) (w, h int) {
	if encfmt == container.FormatYUV422 && idx > 0 {
		return width / 2, height
	}
	return width, height
}

func (planarConverter) ToPlanes(frame []byte, pitch, width, height int, encfmt container.EncodedFormat) ([]*wavelet.Plane, error) {
	n := numChannels(encfmt)
	planes := make([]*wavelet.Plane, n)
	offset := 0
	for i := 0; i < n; i++ {
		cw, ch := channelDims(encfmt, width, height, i)
		rowBytes := cw * 2
		if i == 0 {
			rowBytes = pitch
		} else if encfmt == container.FormatYUV422 {
			rowBytes = pitch / 2
		}
		need := offset + rowBytes*ch
		if need > len(frame) {
			return nil, fmt.Errorf("coordinator: frame buffer too small: need %d bytes, have %d", need, len(frame))
		}
		p := wavelet.NewPlane(cw, ch)
		for y := 0; y < ch; y++ {
			src := frame[offset+y*rowBytes:]
			dst := p.Row(y)
			for x := 0; x < cw; x++ {
				dst[x] = int16(uint16(src[2*x]) | uint16(src[2*x+1])<<8)
			}
		}
		offset += rowBytes * ch
		planes[i] = p
	}
	return planes, nil
}

func (planarConverter) FromPlanes(planes []*wavelet.Plane, encfmt container.EncodedFormat, out []byte, pitch int) error {
	offset := 0
	for i, p := range planes {
		rowBytes := p.Width * 2
		if i == 0 {
			rowBytes = pitch
		} else if encfmt == container.FormatYUV422 {
			rowBytes = pitch / 2
		}
		need := offset + rowBytes*p.Height
		if need > len(out) {
			return fmt.Errorf("coordinator: output buffer too small: need %d bytes, have %d", need, len(out))
		}
		for y := 0; y < p.Height; y++ {
			src := p.Row(y)
			dst := out[offset+y*rowBytes:]
			for x := 0; x < p.Width; x++ {
				v := uint16(src[x])
				dst[2*x] = byte(v)
				dst[2*x+1] = byte(v >> 8)
			}
		}
		offset += rowBytes * p.Height
	}
	return nil
}

// buildSchedule populates the per-(quality, level, band) quantization
// divisor table (spec §9 "Quality × encoded-format matrix"). Divisors
// grow with level (coarser bands tolerate coarser quantization) and
// shrink as quality rises; the LL band at the deepest level is never
// entered (spec §3: it is always coded raw).
func buildSchedule(quality container.Quality, encfmt container.EncodedFormat, levels int) *quant.Schedule {
	s := quant.NewSchedule()
	base := qualityBaseDivisor(quality)
	for level := 1; level <= levels; level++ {
		qBand := base * int32(level)
		for _, band := range []wavelet.BandIndex{wavelet.BandLH, wavelet.BandHL, wavelet.BandHH} {
			s.Set(int(quality), int(encfmt), level, int(band), qBand)
		}
	}
	return s
}

func qualityBaseDivisor(q container.Quality) int32 {
	switch q {
	case container.QualityFixed, container.QualityUncompressedFractions:
		return 1
	case container.QualityFilmScan1, container.QualityFilmScan2, container.QualityFilmScan3:
		return 2
	case container.QualityHigh, container.QualityKeying:
		return 4
	case container.QualityMedium:
		return 8
	case container.QualityLow:
		return 16
	default:
		return 4
	}
}

// bandRegion locates one subband's samples within a channel's
// decomposed coefficient buffer (stride == frame width, Mallat pyramid
// layout: LL occupies the top-left quadrant at every level and is the
// only quadrant decomposed further).
func bandRegion(width, height, level int, band wavelet.BandIndex) (xOff, yOff, w, h int) {
	w = width >> uint(level)
	h = height >> uint(level)
	switch band {
	case wavelet.BandLH:
		xOff = w
	case wavelet.BandHL:
		yOff = h
	case wavelet.BandHH:
		xOff, yOff = w, h
	}
	return
}

// EncoderOptions configures OpenEncoder.
type EncoderOptions struct {
	Logger    *zap.Logger
	LogFile   string // used to build a rotating file logger when Logger is nil
	Converter PixelConverter // defaults to planarConverter when nil
	Lossless  bool
	CPULimit  int // bounds the band-coding worker fan-out; 0 = GOMAXPROCS
}

// Encoder is one encode-side instance (spec §4.7 open_encoder).
type Encoder struct {
	log       *zap.Logger
	converter PixelConverter
	lossless  bool
	cpuLimit  int

	mu            sync.Mutex
	width, height int
	levels        int
	pixfmt        PixelFormat
	encfmt        container.EncodedFormat
	quality       container.Quality
	schedule      *quant.Schedule
	curve         quant.Curve
	companding    quant.Mode
	book          *codebook.Book

	pendingMetadata []byte
	frameNumber     uint64
}

const defaultLevels = 3

// OpenEncoder allocates an encoder instance (spec §4.7).
func OpenEncoder(opt EncoderOptions) *Encoder {
	converter := opt.Converter
	if converter == nil {
		converter = planarConverter{}
	}
	log := opt.Logger
	if log == nil {
		if opt.LogFile != "" {
			log = newRotatingLogger(opt.LogFile)
		} else {
			log = zap.NewNop()
		}
	}
	return &Encoder{log: log, converter: converter, lossless: opt.Lossless, cpuLimit: opt.CPULimit}
}

// GetInputFormats returns the preference-ordered pixel formats this
// encoder accepts (spec §6).
func (e *Encoder) GetInputFormats() []PixelFormat {
	return []PixelFormat{PixelFormatPlanar16YUV422, PixelFormatPlanar16RGB444, PixelFormatPlanar16RGBA4444, PixelFormatPlanar16Bayer}
}

// PrepareToEncode negotiates dimensions, formats, and quality (spec
// §4.7). It returns the parameters chosen, which are the requested
// dimensions and pixel format: dimensions that are not divisible by 2^3
// lower the wavelet decomposition depth instead of being rounded.
func (e *Encoder) PrepareToEncode(width, height int, pixfmt PixelFormat, encfmt container.EncodedFormat, quality container.Quality) (actualWidth, actualHeight int, actualPixfmt PixelFormat, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, pixfmt, &ConfigError{Reason: "width and height must be positive"}
	}
	levels := defaultLevels
	for wavelet.ValidateLevels(width, height, levels) != nil && levels > 0 {
		levels--
	}
	if levels == 0 {
		return 0, 0, pixfmt, &ConfigError{Reason: fmt.Sprintf("dimensions %dx%d not divisible by 2 for any decomposition depth", width, height)}
	}
	mode := curveMode(e.lossless)
	curve, err := quant.NewCurve(mode)
	if err != nil {
		return 0, 0, pixfmt, &ConfigError{Reason: err.Error()}
	}
	book, err := codebook.NewBook(false)
	if err != nil {
		return 0, 0, pixfmt, &ConfigError{Reason: err.Error()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height, e.levels = width, height, levels
	e.pixfmt, e.encfmt, e.quality = pixfmt, encfmt, quality
	e.schedule = buildSchedule(quality, encfmt, levels)
	e.curve = curve
	e.companding = mode
	e.book = book
	return width, height, pixfmt, nil
}

func curveMode(lossless bool) quant.Mode {
	if lossless {
		return quant.ModePiecewise
	}
	return quant.ModeCubic
}

// MetadataAttach binds a pre-built metadata chunk (spec §6
// MetadataOpen/Add/Attach) to the next EncodeSample call.
func (e *Encoder) MetadataAttach(chunk []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingMetadata = chunk
}

type encodedBand struct {
	channel int
	band    wavelet.BandIndex
	level   int
	qdiv    int32
	data    []byte
}

// EncodeSample runs conversion -> forward wavelet -> quantize -> VLC
// (fanned out per band) -> container serialization -> metadata attach
// (spec §4.7).
func (e *Encoder) EncodeSample(frame []byte, pitch int) ([]byte, error) {
	e.mu.Lock()
	width, height, levels := e.width, e.height, e.levels
	encfmt, quality := e.encfmt, e.quality
	schedule, curve, book := e.schedule, e.curve, e.book
	companding := e.companding
	metadataChunk := e.pendingMetadata
	e.pendingMetadata = nil
	frameNumber := e.frameNumber
	e.frameNumber++
	e.mu.Unlock()

	if schedule == nil {
		return nil, &ConfigError{Reason: "EncodeSample called before PrepareToEncode"}
	}

	planes, err := e.converter.ToPlanes(frame, pitch, width, height, encfmt)
	if err != nil {
		return nil, err
	}

	type job struct {
		channel int
		band    wavelet.BandIndex
		level   int
		xOff, yOff, w, h int
	}
	var jobs []job
	buffers := make([][]int32, len(planes))
	for ch, p := range planes {
		buf := make([]int32, p.Width*p.Height)
		for y := 0; y < p.Height; y++ {
			row := p.Row(y)
			for x := 0; x < p.Width; x++ {
				buf[y*p.Width+x] = int32(row[x])
			}
		}
		if err := wavelet.ForwardMultiLevel(buf, p.Width, p.Height, levels, wavelet.DefaultPrescalePolicy()); err != nil {
			return nil, &ConfigError{Reason: err.Error()}
		}
		buffers[ch] = buf
		for level := 1; level <= levels; level++ {
			for _, band := range []wavelet.BandIndex{wavelet.BandLH, wavelet.BandHL, wavelet.BandHH} {
				xOff, yOff, w, h := bandRegion(p.Width, p.Height, level, band)
				jobs = append(jobs, job{ch, band, level, xOff, yOff, w, h})
			}
		}
	}

	results := make([]encodedBand, len(jobs))
	g, _ := errgroup.WithContext(context.Background())
	if e.cpuLimit > 0 {
		g.SetLimit(e.cpuLimit)
	}
	for i, jb := range jobs {
		i, jb := i, jb
		g.Go(func() error {
			p := planes[jb.channel]
			stride := p.Width
			qBand := schedule.QBand(int(quality), int(encfmt), jb.level, int(jb.band))
			coeffs := buffers[jb.channel][jb.yOff*stride+jb.xOff:]
			buf := make([]byte, (jb.w*jb.h)*4+64)
			w := bitio.NewWriter(buf)
			if err := bandcodec.EncodeBand(w, coeffs, jb.w, jb.h, stride, bandcodec.Options{
				Book: book, Curve: curve, QBand: qBand,
			}); err != nil {
				return err
			}
			results[i] = encodedBand{channel: jb.channel, band: jb.band, level: jb.level, qdiv: qBand, data: w.Bytes()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &InternalError{Reason: err.Error()}
	}

	byChannel := make(map[int][]container.SubbandBlock, len(planes))
	for ch, p := range planes {
		xOff, yOff, w, h := bandRegion(p.Width, p.Height, levels, wavelet.BandLL)
		stride := p.Width
		llBuf := make([]byte, w*h*2)
		k := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := uint16(int16(buffers[ch][(yOff+y)*stride+xOff+x]))
				llBuf[k] = byte(v >> 8)
				llBuf[k+1] = byte(v)
				k += 2
			}
		}
		byChannel[ch] = append(byChannel[ch], container.SubbandBlock{
			Band: int(wavelet.BandLL), Level: levels, QDivisor: 1, Data: llBuf,
		})
	}
	for _, r := range results {
		byChannel[r.channel] = append(byChannel[r.channel], container.SubbandBlock{
			Band: int(r.band), Level: r.level, QDivisor: r.qdiv, Data: r.data,
		})
	}

	channels := make([]container.ChannelBlock, len(planes))
	for ch := range planes {
		channels[ch] = container.ChannelBlock{Index: ch, Subbands: byChannel[ch]}
	}

	qv := make([]int32, 0, levels*3+1)
	qv = append(qv, int32(levels))
	for level := 1; level <= levels; level++ {
		for _, band := range []wavelet.BandIndex{wavelet.BandLH, wavelet.BandHL, wavelet.BandHH} {
			qv = append(qv, schedule.QBand(int(quality), int(encfmt), level, int(band)))
		}
	}
	sample := &container.Sample{
		Header: container.Header{
			Width: width, Height: height, EncodedFormat: encfmt,
			Quality: quality, KeyFrame: true, FrameNumber: uint32(frameNumber),
			CompandingMode: int(companding),
		},
		QuantVector: qv,
		Channels:    channels,
		Metadata:    metadataChunk,
	}

	out := make([]byte, width*height*6+4096)
	w := bitio.NewWriter(out)
	if err := container.Write(w, sample); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decoder is one decode-side instance (spec §4.7 open_decoder).
type Decoder struct {
	log       *zap.Logger
	converter PixelConverter
	meta      *metadata.Engine
	active    []byte

	mu       sync.Mutex
	lastGUID guid.GUID
}

// DecoderOptions configures OpenDecoder.
type DecoderOptions struct {
	Logger    *zap.Logger
	LogFile   string // used to build a rotating file logger when Logger is nil
	Converter PixelConverter
	Metadata  *metadata.Engine // optional; nil disables the overlay
}

// OpenDecoder allocates a decoder instance (spec §4.7).
func OpenDecoder(opt DecoderOptions) *Decoder {
	converter := opt.Converter
	if converter == nil {
		converter = planarConverter{}
	}
	log := opt.Logger
	if log == nil {
		if opt.LogFile != "" {
			log = newRotatingLogger(opt.LogFile)
		} else {
			log = zap.NewNop()
		}
	}
	return &Decoder{log: log, converter: converter, meta: opt.Metadata}
}

// GetOutputFormats returns the preference-ordered pixel formats this
// decoder can produce (spec §6).
func (d *Decoder) GetOutputFormats() []PixelFormat {
	return []PixelFormat{PixelFormatPlanar16YUV422, PixelFormatPlanar16RGB444, PixelFormatPlanar16RGBA4444, PixelFormatPlanar16Bayer}
}

// PrepareToDecode negotiates the output resolution/format (spec §4.7).
// cfhd-go's decoder always returns samples at their native resolution;
// sub-resolution decode is not implemented.
func (d *Decoder) PrepareToDecode(outPixfmt PixelFormat) (PixelFormat, error) {
	return outPixfmt, nil
}

// SetActiveMetadata installs the SDK override buffer consulted by the
// overlay engine (spec §6).
func (d *Decoder) SetActiveMetadata(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = buf
	if d.meta != nil {
		d.meta.SetOverride(buf)
	}
}

// ClearActiveMetadata removes the SDK override buffer.
func (d *Decoder) ClearActiveMetadata() {
	d.SetActiveMetadata(nil)
}

// DecodeSample parses the container, runs the overlay (if configured),
// FSM-decodes each band (fanned out), dequantizes, inverse-transforms,
// and writes the planes to out through the decoder's PixelConverter
// (spec §4.7). The pixel format passed to PrepareToDecode is not stored
// and does not affect the output.
func (d *Decoder) DecodeSample(sample []byte, out []byte, outPitch int) error {
	r := bitio.NewReader(sample)
	s, err := container.Read(r)
	if err != nil {
		return &CorruptError{Reason: err.Error()}
	}

	if d.meta != nil {
		g := guid.Nil
		if parsed := metadata.DecodeParams(s.Metadata); parsed.HasClipGUID {
			g = parsed.ClipGUID
		}
		d.mu.Lock()
		if g == guid.Nil {
			g = d.lastGUID // chunk omitted the tag: clip GUID persists across frames of a clip
		} else {
			d.lastGUID = g
		}
		d.mu.Unlock()
		d.meta.Process(s.Metadata, g, uint32(s.Header.EncodedFormat), true, uint64(s.Header.FrameNumber), "")
	}

	book, err := codebook.NewBook(false)
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	fsm, err := codebook.Build(book)
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	curve, err := quant.NewCurve(quant.Mode(s.Header.CompandingMode))
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}

	planes := make([]*wavelet.Plane, len(s.Channels))
	buffers := make([][]int32, len(s.Channels))
	levelsPerChannel := make([]int, len(s.Channels))

	for _, ch := range s.Channels {
		cw, chh := channelDims(s.Header.EncodedFormat, s.Header.Width, s.Header.Height, ch.Index)
		planes[ch.Index] = wavelet.NewPlane(cw, chh)
		buffers[ch.Index] = make([]int32, cw*chh)
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, ch := range s.Channels {
		ch := ch
		cw := planes[ch.Index].Width
		for _, sb := range ch.Subbands {
			sb := sb
			if wavelet.BandIndex(sb.Band) == wavelet.BandLL {
				levelsPerChannel[ch.Index] = sb.Level
				xOff, yOff, w, h := bandRegion(cw, planes[ch.Index].Height, sb.Level, wavelet.BandLL)
				buf := buffers[ch.Index]
				k := 0
				for y := 0; y < h; y++ {
					for x := 0; x < w; x++ {
						v := int16(uint16(sb.Data[k])<<8 | uint16(sb.Data[k+1]))
						buf[(yOff+y)*cw+xOff+x] = int32(v)
						k += 2
					}
				}
				continue
			}
			g.Go(func() error {
				xOff, yOff, w, h := bandRegion(cw, planes[ch.Index].Height, sb.Level, wavelet.BandIndex(sb.Band))
				stride := cw
				out := buffers[ch.Index][yOff*stride+xOff:]
				rr := bitio.NewReader(sb.Data)
				return bandcodec.DecodeBand(rr, out, w, h, stride, bandcodec.Options{
					Book: book, FSM: fsm, Curve: curve, QBand: sb.QDivisor,
				})
			})
		}
	}
	if err := g.Wait(); err != nil {
		return &CorruptError{Reason: err.Error()}
	}

	for _, ch := range s.Channels {
		p := planes[ch.Index]
		levels := levelsPerChannel[ch.Index]
		if err := wavelet.InverseMultiLevel(buffers[ch.Index], p.Width, p.Height, levels, wavelet.DefaultPrescalePolicy()); err != nil {
			return &CorruptError{Reason: err.Error()}
		}
		for y := 0; y < p.Height; y++ {
			row := p.Row(y)
			for x := 0; x < p.Width; x++ {
				row[x] = int16(buffers[ch.Index][y*p.Width+x])
			}
		}
	}

	if err := d.converter.FromPlanes(planes, s.Header.EncodedFormat, out, outPitch); err != nil {
		return &OutputTooSmallError{Need: s.Header.Width * s.Header.Height * 2 * len(planes), Have: len(out)}
	}
	return nil
}

// GetThumbnail locates the deepest-level LL band (or the embedded
// thumbnail tag, if present) and repacks it as 10-bit RGB without
// running full synthesis (spec §4.7).
func (d *Decoder) GetThumbnail(sample []byte, out []byte) error {
	r := bitio.NewReader(sample)
	s, err := container.Read(r)
	if err != nil {
		return &CorruptError{Reason: err.Error()}
	}
	if s.Thumbnail != nil {
		if len(out) < len(s.Thumbnail) {
			return &OutputTooSmallError{Need: len(s.Thumbnail), Have: len(out)}
		}
		copy(out, s.Thumbnail)
		return nil
	}
	if len(s.Channels) == 0 {
		return &CorruptError{Reason: "sample has no channels to derive a thumbnail from"}
	}
	llOf := func(ch container.ChannelBlock) *container.SubbandBlock {
		for i := range ch.Subbands {
			if wavelet.BandIndex(ch.Subbands[i].Band) == wavelet.BandLL {
				return &ch.Subbands[i]
			}
		}
		return nil
	}
	llLuma := llOf(s.Channels[0])
	if llLuma == nil {
		return &CorruptError{Reason: "channel 0 has no LL band"}
	}

	// RGB444/RGBA4444 carry independent R/G/B planes whose LL bands are
	// the same sample count as luma: pack each channel's own 10-bit value
	// into its own field. Any other encoded format (YUV422, Bayer) has no
	// distinct chroma LL of matching size, so the thumbnail is an honest
	// luma-only grayscale rather than a fabricated color conversion (real
	// YUV->RGB is out of scope, spec §1).
	var llR, llG, llB *container.SubbandBlock
	if s.Header.EncodedFormat == container.FormatRGB444 || s.Header.EncodedFormat == container.FormatRGBA4444 {
		if len(s.Channels) >= 3 {
			r, g, b := llOf(s.Channels[0]), llOf(s.Channels[1]), llOf(s.Channels[2])
			if r != nil && g != nil && b != nil && len(g.Data) == len(r.Data) && len(b.Data) == len(r.Data) {
				llR, llG, llB = r, g, b
			}
		}
	}

	n := len(llLuma.Data) / 2
	need := n * 4 // one 32-bit word per pixel: 10 bits each of R, G, B, 2 bits padding
	if len(out) < need {
		return &OutputTooSmallError{Need: need, Have: len(out)}
	}
	sample10 := func(data []byte, i int) uint16 {
		v := uint16(data[i*2])<<8 | uint16(data[i*2+1])
		return v >> 6 // 16-bit -> 10-bit
	}
	for i := 0; i < n; i++ {
		var r10, g10, b10 uint16
		if llR != nil {
			r10, g10, b10 = sample10(llR.Data, i), sample10(llG.Data, i), sample10(llB.Data, i)
		} else {
			r10 = sample10(llLuma.Data, i)
			g10, b10 = r10, r10
		}
		word := uint32(r10) | uint32(g10)<<10 | uint32(b10)<<20
		o := i * 4
		out[o] = byte(word)
		out[o+1] = byte(word >> 8)
		out[o+2] = byte(word >> 16)
		out[o+3] = byte(word >> 24)
	}
	return nil
}

// CloseDecoder releases decoder-owned resources (spec §6). cfhd-go's
// decoder holds no resources beyond the overlay engine, whose watcher
// the caller owns and closes separately via metadata.Engine.Close.
func (d *Decoder) CloseDecoder() {}

// encodeFuture is one submitted EncodeAsync job's result slot.
type encodeFuture struct {
	done   chan struct{}
	sample []byte
	err    error
}

// EncoderPool runs one Encoder across a bounded worker fan-out for
// pipelined capture workloads (spec §6 CreateEncoderPool/Start/Stop):
// EncodeAsync submits a frame and returns a future; WaitForSample blocks
// until a given future resolves, TestForSample polls it.
type EncoderPool struct {
	enc *Encoder

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	stopped bool
}

// CreateEncoderPool allocates a pool bound to enc, with at most
// concurrency frames in flight at once.
func CreateEncoderPool(enc *Encoder, concurrency int) *EncoderPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EncoderPool{enc: enc, ctx: ctx, cancel: cancel, sem: make(chan struct{}, concurrency)}
}

// Start is a no-op: the pool's workers are the goroutines EncodeAsync
// spawns on demand, bounded by the concurrency semaphore. Present to
// match the open/start/stop/release lifecycle named in spec §6.
func (p *EncoderPool) Start() {}

// EncodeAsync submits one frame for encoding and returns its future,
// first waiting for a free slot when concurrency frames are already in
// flight. Futures resolve in the order their encodes finish, which need
// not be the order frames were submitted; a caller that waits on the
// futures in submission order receives the samples in that order.
func (p *EncoderPool) EncodeAsync(frame []byte, pitch int) *encodeFuture {
	f := &encodeFuture{done: make(chan struct{})}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		f.err = ErrCancelled
		close(f.done)
		return f
	}
	ctx := p.ctx
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		f.err = ErrCancelled
		close(f.done)
		return f
	}

	go func() {
		defer func() { <-p.sem }()
		select {
		case <-ctx.Done():
			f.err = ErrCancelled
		default:
			f.sample, f.err = p.enc.EncodeSample(frame, pitch)
		}
		close(f.done)
	}()
	return f
}

// WaitForSample blocks until f resolves and returns its result.
func (p *EncoderPool) WaitForSample(f *encodeFuture) ([]byte, error) {
	<-f.done
	return f.sample, f.err
}

// TestForSample reports whether f has resolved without blocking.
func (p *EncoderPool) TestForSample(f *encodeFuture) bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// ReleaseSampleBuffer is a no-op placeholder matching spec §6's naming;
// cfhd-go's futures hold their own buffer with no pool-level recycling.
func (p *EncoderPool) ReleaseSampleBuffer([]byte) {}

// Stop cancels the pool's shared context (spec §5 "Cancellation"): later
// EncodeAsync calls, and submitted frames whose encode has not started,
// resolve to ErrCancelled. An encode already under way is not
// interrupted; its future resolves with the encoded sample.
func (p *EncoderPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.cancel()
}

// ReleaseEncoderPool stops the pool if still running. Safe to call more
// than once.
func (p *EncoderPool) ReleaseEncoderPool() {
	p.Stop()
}
