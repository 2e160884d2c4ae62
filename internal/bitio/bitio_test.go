package bitio

import "testing"

func TestWriterReaderRoundtrip(t *testing.T) {
	tests := []struct {
		name   string
		values []uint32
		widths []uint
	}{
		{"single byte", []uint32{0xAB}, []uint{8}},
		{"mixed widths", []uint32{1, 0, 7, 255, 3}, []uint{1, 1, 3, 8, 2}},
		{"32 bit value", []uint32{0xDEADBEEF}, []uint{32}},
		{"zero width noop", []uint32{0, 5}, []uint{0, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 64)
			w := NewWriter(buf)
			for i, v := range tt.values {
				if err := w.PutBits(v, tt.widths[i]); err != nil {
					t.Fatalf("PutBits(%d): %v", i, err)
				}
			}
			if _, err := w.PadToByte(); err != nil {
				t.Fatalf("PadToByte: %v", err)
			}

			r := NewReader(w.Bytes())
			for i, v := range tt.values {
				got, err := r.GetBits(tt.widths[i])
				if err != nil {
					t.Fatalf("GetBits(%d): %v", i, err)
				}
				want := v & maskFor(tt.widths[i])
				if got != want {
					t.Errorf("value %d: got %d want %d", i, got, want)
				}
			}
		})
	}
}

func TestPeekBitsDoesNotConsume(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	_ = w.PutBits(0xA, 4)
	_ = w.PutBits(0x5, 4)

	r := NewReader(w.Bytes())
	peek, err := r.PeekBits(4)
	if err != nil {
		t.Fatalf("PeekBits: %v", err)
	}
	if peek != 0xA {
		t.Fatalf("PeekBits = %x, want A", peek)
	}
	got, err := r.GetBits(4)
	if err != nil {
		t.Fatalf("GetBits: %v", err)
	}
	if got != 0xA {
		t.Fatalf("GetBits after peek = %x, want A", got)
	}
}

func TestPutTagAlignsTo4Bytes(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	_ = w.PutBits(1, 3) // introduce an unaligned partial byte
	if err := w.PutTag(0x41424344, 42); err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	if w.pos%4 != 0 {
		t.Fatalf("writer position %d not 4-byte aligned", w.pos)
	}

	r := NewReader(w.Bytes())
	if v, err := r.GetBits(3); err != nil || v != 1 {
		t.Fatalf("GetBits(3) = (%d, %v), want (1, nil)", v, err)
	}
	r.SkipToNextTag()
	code, value, err := r.GetTag()
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if code != 0x41424344 || value != 42 {
		t.Fatalf("GetTag = (%x, %d), want (41424344, 42)", code, value)
	}
}

func TestOutputFullError(t *testing.T) {
	buf := make([]byte, 1)
	w := NewWriter(buf)
	if err := w.PutBits(0xFF, 8); err != nil {
		t.Fatalf("first PutBits should fit: %v", err)
	}
	if err := w.PutBits(0xFF, 8); err != ErrOutputFull {
		t.Fatalf("PutBits past capacity = %v, want ErrOutputFull", err)
	}
}

func TestInputTruncatedError(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if _, err := r.GetBits(8); err != nil {
		t.Fatalf("first GetBits should succeed: %v", err)
	}
	if _, err := r.GetBits(1); err != ErrInputTruncated {
		t.Fatalf("GetBits past end = %v, want ErrInputTruncated", err)
	}
}

func TestSkipBits(t *testing.T) {
	buf := make([]byte, 4)
	w := NewWriter(buf)
	_ = w.PutBits(0xAB, 8)
	_ = w.PutBits(0xCD, 8)

	r := NewReader(w.Bytes())
	if err := r.SkipBits(8); err != nil {
		t.Fatalf("SkipBits: %v", err)
	}
	got, err := r.GetBits(8)
	if err != nil {
		t.Fatalf("GetBits: %v", err)
	}
	if got != 0xCD {
		t.Fatalf("got %x, want CD", got)
	}
}

func TestWriteRaw(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	if err := w.PutTag(0x1, 2); err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	if err := w.WriteRaw([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	r := NewReader(w.Bytes())
	if _, _, err := r.GetTag(); err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	got, err := r.GetBits(32)
	if err != nil {
		t.Fatalf("GetBits: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got %x, want DEADBEEF", got)
	}
}

func TestWriteRawRejectsUnaligned(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	_ = w.PutBits(1, 3)
	if err := w.WriteRaw([]byte{0x00}); err == nil {
		t.Fatal("expected error writing raw bytes at a non-byte-aligned offset")
	}
}

func TestRemaining(t *testing.T) {
	r := NewReader([]byte{0, 0})
	if r.Remaining() != 16 {
		t.Fatalf("Remaining = %d, want 16", r.Remaining())
	}
	_, _ = r.GetBits(5)
	if r.Remaining() != 11 {
		t.Fatalf("Remaining after 5 bits = %d, want 11", r.Remaining())
	}
}
