// Package display is the contract between the startup/ingestion code and a
// display engine. Engines own projection, tile streaming and label layout;
// callers only submit layers, overlays and camera moves through Controller.
package display

import (
	"context"
	"image/color"

	"github.com/paulmach/orb"

	"globeview/internal/camera"
	"globeview/internal/tilesource"
	"globeview/pkg/tiles"
)

// ErrResourceMissing is returned when a tile source or archive cannot be built.
var ErrResourceMissing = tilesource.ErrResourceMissing

// Mode is the projection a controller renders with. It is picked once per
// process and never changes.
type Mode int

const (
	Flat Mode = iota
	Globe
)

func ModeFor(globe bool) Mode {
	if globe {
		return Globe
	}
	return Flat
}

func (m Mode) IsGlobe() bool { return m == Globe }

func (m Mode) String() string {
	if m == Globe {
		return "globe"
	}
	return "flat"
}

// Handle identifies a submitted overlay group for later removal.
type Handle uint64

// Engine creates the single controller for a process.
type Engine interface {
	NewController(mode Mode) Controller
}

// Controller is the capability set shared by the globe and flat-map
// controllers. Overlay submission must be safe from any goroutine.
type Controller interface {
	Mode() Mode
	AttachView() error
	SetClearColor(c color.Color)
	SetFrameInterval(n int)
	AddLayer(cfg TileLayerConfig, src tilesource.Descriptor) (Layer, error)
	AnimateCamera(pose camera.Pose)
	AddOutline(g orb.Geometry, style OutlineStyle) Handle
	AddLabels(labels []Label, style LabelStyle) Handle
	// Close releases every attached layer.
	Close() error
}

// Layer is an attached base imagery layer.
type Layer interface {
	Config() TileLayerConfig
	Source() tilesource.Descriptor
	Tile(ctx context.Context, c tiles.TileCoord) ([]byte, error)
	ContentType() string
	Close() error
}

// Label is a screen-space text annotation anchored at a geographic point.
type Label struct {
	Text       string
	Loc        orb.Point
	Selectable bool
}
