package guid

import "testing"

func TestStringFormatFieldOrder(t *testing.T) {
	g := New()
	s := g.String()
	// 8-4-4-4-12 hex groups separated by hyphens at fixed positions,
	// matching spec §6's %08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X.
	if len(s) != 36 {
		t.Fatalf("String() length = %d, want 36: %q", len(s), s)
	}
	for _, i := range []int{8, 13, 18, 23} {
		if s[i] != '-' {
			t.Fatalf("String() = %q, expected hyphen at index %d", s, i)
		}
	}
}

func TestParseRoundtrip(t *testing.T) {
	g := New()
	s := g.String()
	back, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if back != g {
		t.Fatalf("Parse(String()) = %v, want %v", back, g)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-guid"); err == nil {
		t.Fatal("expected error parsing garbage string")
	}
}

func TestNilIsZeroValue(t *testing.T) {
	var g GUID
	if !g.IsNil() {
		t.Fatal("zero-value GUID should report IsNil")
	}
	if New().IsNil() {
		t.Fatal("freshly generated GUID should not be nil")
	}
}
