package container

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/emericg/cfhd-go/internal/bitio"
)

func sampleFixture() *Sample {
	return &Sample{
		Header: Header{
			Width:          1920,
			Height:         1080,
			EncodedFormat:  FormatYUV422,
			FieldType:      0,
			Quality:        QualityHigh,
			KeyFrame:       true,
			GOPPosition:    0,
			FrameNumber:    7,
			CompandingMode: 2,
		},
		QuantVector: []int32{1, 2, 4, 8, 16},
		Channels: []ChannelBlock{
			{
				Index: 0,
				Subbands: []SubbandBlock{
					{Band: 0, Level: 2, QDivisor: 4, Data: []byte{0xAA, 0xBB, 0xCC}},
					{Band: 1, Level: 2, QDivisor: 8, Data: []byte{0x01, 0x02, 0x03, 0x04, 0x05}},
				},
			},
			{
				Index: 1,
				Subbands: []SubbandBlock{
					{Band: 0, Level: 1, QDivisor: 2, Data: []byte{}},
				},
			},
		},
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := sampleFixture()
	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)
	if err := Write(w, s); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := bitio.NewReader(w.Bytes())
	got, err := Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Header != s.Header {
		t.Fatalf("Header = %+v, want %+v", got.Header, s.Header)
	}
	if diff := cmp.Diff(s.QuantVector, got.QuantVector); diff != "" {
		t.Fatalf("QuantVector mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Channels, got.Channels); diff != "" {
		t.Fatalf("Channels mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReadWithMetadataAndThumbnail(t *testing.T) {
	s := sampleFixture()
	s.Metadata = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	s.Thumbnail = []byte{1, 2, 3, 4, 5, 6, 7}

	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)
	if err := Write(w, s); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := bitio.NewReader(w.Bytes())
	got, err := Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(s.Metadata, got.Metadata); diff != "" {
		t.Fatalf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Thumbnail, got.Thumbnail); diff != "" {
		t.Fatalf("Thumbnail mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSkipsUnknownOptionalTag(t *testing.T) {
	s := sampleFixture()
	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)
	if err := Write(w, s); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Splice an unrecognized, non-required tag with a nested payload
	// length in its value word; Read must skip exactly that many bytes
	// and continue parsing the rest of the stream correctly.
	if err := w.PutTag(0x00001234, 4); err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	if err := w.WriteRaw([]byte{0x11, 0x22, 0x33, 0x44}); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	r := bitio.NewReader(w.Bytes())
	got, err := Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Header.Width != s.Header.Width {
		t.Fatalf("Width = %d, want %d", got.Header.Width, s.Header.Width)
	}
}

func TestReadRejectsUnrecognizedRequiredTag(t *testing.T) {
	buf := make([]byte, 64)
	w := bitio.NewWriter(buf)
	if err := w.PutTag(required(0x00009999), 1); err != nil {
		t.Fatalf("PutTag: %v", err)
	}

	r := bitio.NewReader(w.Bytes())
	if _, err := Read(r); err == nil {
		t.Fatal("expected error reading an unrecognized required tag")
	}
}
