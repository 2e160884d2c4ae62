package cfhd

import (
	"go.uber.org/zap"

	"github.com/emericg/cfhd-go/internal/guid"
	"github.com/emericg/cfhd-go/internal/metadata"
)

// OpenMetadataOverlay constructs the priority overlay engine (spec §4.6)
// a Decoder consults before returning samples, wiring it to the external
// preference/database store and the decoder's logger.
func OpenMetadataOverlay(cfg metadata.Config, store metadata.DiskStore, log *zap.Logger) *metadata.Engine {
	return metadata.NewEngine(cfg, store, log)
}

// MetadataBuilder accumulates tag/value pairs for one parameter record
// (spec §6 MetadataOpen/Add*/Attach/Close), the encode-side counterpart
// of the overlay engine's disk/frame buffers.
type MetadataBuilder struct {
	record metadata.ParamRecord
}

// MetadataOpen starts a new builder (spec §6 "MetadataOpen").
func MetadataOpen() *MetadataBuilder {
	return &MetadataBuilder{}
}

// AddGain sets the per-channel gain (spec §6 "MetadataAdd").
func (b *MetadataBuilder) AddGain(gain float64) *MetadataBuilder {
	b.record.Gain, b.record.HasGain = gain, true
	return b
}

// AddGamma sets the per-channel gamma.
func (b *MetadataBuilder) AddGamma(gamma float64) *MetadataBuilder {
	b.record.Gamma, b.record.HasGamma = gamma, true
	return b
}

// AddColorMatrix sets the 3x3 color matrix (row-major).
func (b *MetadataBuilder) AddColorMatrix(m [9]float64) *MetadataBuilder {
	b.record.ColorMatrix, b.record.HasColorMatrix = m, true
	return b
}

// AddColorspace sets the colorspace tag the overlay may use to override
// the frame's own colorspace (spec §4.6 step 7).
func (b *MetadataBuilder) AddColorspace(cs uint32) *MetadataBuilder {
	b.record.Colorspace, b.record.HasColorspace = cs, true
	return b
}

// AddCPULimit sets the CPU-limit processing knob.
func (b *MetadataBuilder) AddCPULimit(limit int32) *MetadataBuilder {
	b.record.CPULimit, b.record.HasCPULimit = limit, true
	return b
}

// AddCPUAffinity sets the CPU-affinity processing knob.
func (b *MetadataBuilder) AddCPUAffinity(mask uint64) *MetadataBuilder {
	b.record.CPUAffinity, b.record.HasCPUAffinity = mask, true
	return b
}

// AddClipGUID sets the clip GUID used to key the on-disk overlay database
// (spec §4.6 step 1 "checkdiskinfo"); a decoder compares this against the
// previous sample's GUID to decide whether to reload disk buffers.
func (b *MetadataBuilder) AddClipGUID(g guid.GUID) *MetadataBuilder {
	b.record.ClipGUID, b.record.HasClipGUID = g, true
	return b
}

// Close serializes the accumulated tags into a buffer in the same
// tag/value format the overlay engine and container metadata chunk both
// use (spec §6 "MetadataClose").
func (b *MetadataBuilder) Close() ([]byte, error) {
	return metadata.EncodeParams(b.record)
}

// Attach is Close followed by MetadataAttach on enc, matching spec §6's
// MetadataOpen -> Add* -> Attach flow for encode-side per-frame metadata.
func (b *MetadataBuilder) Attach(enc *Encoder) error {
	buf, err := b.Close()
	if err != nil {
		return err
	}
	enc.MetadataAttach(buf)
	return nil
}
