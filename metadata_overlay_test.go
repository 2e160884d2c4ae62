package cfhd

import (
	"testing"

	"github.com/emericg/cfhd-go/internal/container"
	"github.com/emericg/cfhd-go/internal/metadata"
)

func TestMetadataBuilderAttachesToEncodedSample(t *testing.T) {
	enc := OpenEncoder(EncoderOptions{})
	if _, _, _, err := enc.PrepareToEncode(32, 16, PixelFormatPlanar16YUV422, container.FormatYUV422, container.QualityHigh); err != nil {
		t.Fatalf("PrepareToEncode: %v", err)
	}

	if err := MetadataOpen().AddGain(2.0).AddGamma(2.2).Attach(enc); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	frame, pitch := testFrame(32, 16)
	sample, err := enc.EncodeSample(frame, pitch)
	if err != nil {
		t.Fatalf("EncodeSample: %v", err)
	}
	if len(sample) == 0 {
		t.Fatal("expected a non-empty sample")
	}
}

func TestOpenMetadataOverlayConstructsEngine(t *testing.T) {
	eng := OpenMetadataOverlay(metadata.Config{}, nil, nil)
	defer eng.Close()
	if eng == nil {
		t.Fatal("expected a non-nil engine")
	}
}
