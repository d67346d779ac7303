package display

import (
	"image/color"

	"golang.org/x/image/colornames"
)

// TileLayerConfig is handed to the engine by value with the layer.
type TileLayerConfig struct {
	HandleEdges        bool
	CoverPoles         bool
	RequireElevation   bool
	WaitForLoad        bool
	DrawPriority       int
	SingleLevelLoading bool
}

// Scene holds the per-controller render settings.
type Scene struct {
	ClearColor    color.Color
	FrameInterval int
}

// FrameInterval renders every second vsync.
const FrameInterval = 2

// LayerConfigFor derives the base layer flags for a projection. Only a globe
// needs edge matching and pole caps.
func LayerConfigFor(mode Mode) TileLayerConfig {
	globe := mode.IsGlobe()
	return TileLayerConfig{
		HandleEdges:        globe,
		CoverPoles:         globe,
		RequireElevation:   false,
		WaitForLoad:        false,
		DrawPriority:       0,
		SingleLevelLoading: false,
	}
}

// SceneFor picks a black background for the globe and white for the flat map.
func SceneFor(mode Mode) Scene {
	bg := colornames.White
	if mode.IsGlobe() {
		bg = colornames.Black
	}
	return Scene{ClearColor: bg, FrameInterval: FrameInterval}
}

// Apply pushes the scene settings onto a controller.
func (s Scene) Apply(c Controller) {
	c.SetClearColor(s.ClearColor)
	c.SetFrameInterval(s.FrameInterval)
}
