package display

import (
	"image/color"
	"testing"

	"golang.org/x/image/font"
)

func TestLayerConfigFor(t *testing.T) {
	cases := []struct {
		mode  Mode
		edges bool
	}{
		{Globe, true},
		{Flat, false},
	}
	for _, tc := range cases {
		cfg := LayerConfigFor(tc.mode)
		if cfg.HandleEdges != tc.edges || cfg.CoverPoles != tc.edges {
			t.Fatalf("%s: edges/poles = %v/%v, want %v", tc.mode, cfg.HandleEdges, cfg.CoverPoles, tc.edges)
		}
		if cfg.RequireElevation || cfg.WaitForLoad || cfg.SingleLevelLoading {
			t.Fatalf("%s: fixed policy flags must be false: %+v", tc.mode, cfg)
		}
		if cfg.DrawPriority != 0 {
			t.Fatalf("%s: draw priority = %d", tc.mode, cfg.DrawPriority)
		}
	}
}

func TestSceneFor(t *testing.T) {
	black := color.RGBAModel.Convert(color.Black)
	white := color.RGBAModel.Convert(color.White)

	if got := color.RGBAModel.Convert(SceneFor(Globe).ClearColor); got != black {
		t.Fatalf("globe clear color = %v", got)
	}
	if got := color.RGBAModel.Convert(SceneFor(Flat).ClearColor); got != white {
		t.Fatalf("flat clear color = %v", got)
	}
	if SceneFor(Globe).FrameInterval != 2 || SceneFor(Flat).FrameInterval != 2 {
		t.Fatalf("frame interval must be 2")
	}
}

func TestModeFor(t *testing.T) {
	if ModeFor(true) != Globe || !ModeFor(true).IsGlobe() {
		t.Fatalf("ModeFor(true) should be globe")
	}
	if ModeFor(false) != Flat || ModeFor(false).String() != "flat" {
		t.Fatalf("ModeFor(false) should be flat")
	}
}

func TestDefaultStyles(t *testing.T) {
	o := DefaultOutlineStyle()
	if !o.Selectable || o.Width != 4 {
		t.Fatalf("outline style %+v", o)
	}
	l := DefaultLabelStyle()
	if l.FontSize != 24 || l.Weight != font.WeightBold || l.OutlineWidth != 2 {
		t.Fatalf("label style %+v", l)
	}
}
