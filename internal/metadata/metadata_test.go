package metadata

import (
	"testing"

	"github.com/emericg/cfhd-go/internal/guid"
)

func TestEncodeDecodeParamsRoundtrip(t *testing.T) {
	p := ParamRecord{
		Gain: 1.5, HasGain: true,
		Gamma: 2.2, HasGamma: true,
		Colorspace: 3, HasColorspace: true,
		CPULimit: 4, HasCPULimit: true,
	}
	p.ColorMatrix = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	p.HasColorMatrix = true

	buf, err := EncodeParams(p)
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	got := DecodeParams(buf)

	if !got.HasGain || float32(got.Gain) != float32(p.Gain) {
		t.Fatalf("Gain = %v, want %v", got.Gain, p.Gain)
	}
	if !got.HasGamma || float32(got.Gamma) != float32(p.Gamma) {
		t.Fatalf("Gamma = %v, want %v", got.Gamma, p.Gamma)
	}
	if !got.HasColorMatrix {
		t.Fatal("expected ColorMatrix to be set")
	}
	for i := range p.ColorMatrix {
		if float32(got.ColorMatrix[i]) != float32(p.ColorMatrix[i]) {
			t.Fatalf("ColorMatrix[%d] = %v, want %v", i, got.ColorMatrix[i], p.ColorMatrix[i])
		}
	}
	if !got.HasColorspace || got.Colorspace != p.Colorspace {
		t.Fatalf("Colorspace = %v, want %v", got.Colorspace, p.Colorspace)
	}
	if !got.HasCPULimit || got.CPULimit != p.CPULimit {
		t.Fatalf("CPULimit = %v, want %v", got.CPULimit, p.CPULimit)
	}
}

func TestEncodeDecodeClipGUIDRoundtrip(t *testing.T) {
	g := guid.New()
	p := ParamRecord{ClipGUID: g, HasClipGUID: true}

	buf, err := EncodeParams(p)
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	got := DecodeParams(buf)
	if !got.HasClipGUID {
		t.Fatal("expected ClipGUID to be set")
	}
	if got.ClipGUID != g {
		t.Fatalf("ClipGUID = %v, want %v", got.ClipGUID, g)
	}
}

func TestEncodeParamsOmitsUnsetFields(t *testing.T) {
	p := ParamRecord{Gain: 0.5, HasGain: true}
	buf, err := EncodeParams(p)
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	got := DecodeParams(buf)
	if got.HasGamma || got.HasColorMatrix || got.HasColorspace {
		t.Fatalf("unset fields leaked into decoded record: %+v", got)
	}
}

func TestMergeIntoOverwritesOnlySetFields(t *testing.T) {
	dst := ParamRecord{Gain: 1, HasGain: true, Gamma: 1, HasGamma: true}
	src := ParamRecord{Gamma: 2.4, HasGamma: true}
	mergeInto(&dst, src)
	if dst.Gain != 1 {
		t.Fatalf("Gain overwritten by absent field: %v", dst.Gain)
	}
	if dst.Gamma != 2.4 {
		t.Fatalf("Gamma = %v, want 2.4", dst.Gamma)
	}
}

func TestPriorityDeltaAndSeeding(t *testing.T) {
	cases := []struct {
		p     Priority
		delta int
		seeds bool
	}{
		{PriorityBase, 0, false},
		{PriorityFrame, 0, false},
		{PriorityFrame1, 1, true},
		{PriorityFrame2, 2, true},
		{PriorityDatabase, 0, false},
		{PriorityDatabase1, 1, false},
		{PriorityDatabase2, 2, false},
		{PriorityOverride1, 1, true},
	}
	for _, c := range cases {
		if got := c.p.delta(); got != c.delta {
			t.Errorf("Priority(%d).delta() = %d, want %d", c.p, got, c.delta)
		}
		if got := c.p.seedsFromChannel0(); got != c.seeds {
			t.Errorf("Priority(%d).seedsFromChannel0() = %v, want %v", c.p, got, c.seeds)
		}
	}
}

func TestPriorityAscendingOrderMatchesMergeOrder(t *testing.T) {
	// §8 "overlay priority": higher Priority value must always be
	// applied later (and therefore win) in Engine.Process's loop.
	order := []Priority{
		PriorityBase, PriorityFrame, PriorityFrame1, PriorityFrame2,
		PriorityDatabase, PriorityDatabase1, PriorityDatabase2,
		PriorityOverride, PriorityOverride1, PriorityOverride2,
	}
	for i, p := range order {
		if int(p) != i {
			t.Fatalf("Priority enum order mismatch at %d: got %d", i, p)
		}
	}
}
