// Package headless is an in-memory display engine. It keeps the submitted
// layer, overlays and camera state so they can be served, inspected and
// tested without a window or GPU.
package headless

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"globeview/internal/camera"
	"globeview/internal/display"
	"globeview/internal/logging"
	"globeview/internal/metrics"
	"globeview/internal/tileserver"
	"globeview/internal/tilesource"
	"globeview/internal/vectortile"
	"globeview/pkg/tiles"
)

var ErrViewNotAttached = errors.New("view not attached")

type Options struct {
	// PrefetchWorkers is the number of background fetchers for remote layers.
	PrefetchWorkers int
	Metrics         *metrics.Metrics
	// Now is used for camera animation timing.
	Now func() time.Time
}

// Engine creates headless controllers.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

// NewController returns a *GlobeController or a *MapController.
func (e *Engine) NewController(mode display.Mode) display.Controller {
	s := newScene(mode, e.opts)
	if mode.IsGlobe() {
		return &GlobeController{scene: s}
	}
	return &MapController{scene: s}
}

// GlobeController renders onto a 3-D globe.
type GlobeController struct {
	*scene
}

// MapController renders onto a flat map.
type MapController struct {
	*scene
}

// Outline is a submitted outline overlay.
type Outline struct {
	Handle   display.Handle
	Geometry orb.Geometry
	Style    display.OutlineStyle
	// Name is the text of the label placed at this outline's anchor, if any.
	Name string
}

// LabelGroup is one AddLabels call.
type LabelGroup struct {
	Handle display.Handle
	Labels []display.Label
	Style  display.LabelStyle

	claimed bool
}

type scene struct {
	mode display.Mode
	opts Options
	log  zerolog.Logger

	mu            sync.RWMutex
	attached      bool
	clearColor    color.Color
	frameInterval int
	layers        []*Layer
	outlines      []Outline
	labels        []LabelGroup
	nextHandle    display.Handle
	cam           *camera.Camera
}

func newScene(mode display.Mode, opts Options) *scene {
	return &scene{
		mode:          mode,
		opts:          opts,
		log:           logging.Module("headless").With().Str("mode", mode.String()).Logger(),
		frameInterval: 1,
		cam:           camera.NewCamera(camera.Pose{Height: 1}),
	}
}

func (s *scene) Mode() display.Mode { return s.mode }

func (s *scene) AttachView() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
	s.log.Debug().Msg("view attached")
	return nil
}

func (s *scene) ViewAttached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

func (s *scene) SetClearColor(c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearColor = c
}

func (s *scene) ClearColor() color.Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clearColor
}

func (s *scene) SetFrameInterval(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameInterval = n
}

func (s *scene) FrameInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameInterval
}

// AddLayer opens the backend named by src. The view must be attached first.
func (s *scene) AddLayer(cfg display.TileLayerConfig, src tilesource.Descriptor) (display.Layer, error) {
	if !s.ViewAttached() {
		return nil, ErrViewNotAttached
	}

	backend, err := s.openBackend(src)
	if err != nil {
		return nil, err
	}
	l := &Layer{cfg: cfg, src: src, backend: backend}

	s.mu.Lock()
	s.layers = append(s.layers, l)
	s.mu.Unlock()

	s.log.Info().Str("source", src.Kind()).Bool("handle_edges", cfg.HandleEdges).Msg("tile layer attached")
	return l, nil
}

func (s *scene) openBackend(src tilesource.Descriptor) (tileserver.Source, error) {
	switch d := src.(type) {
	case tilesource.Local:
		a, err := tileserver.OpenArchive(d.Path, s.opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("archive %q: %w: %v", d.ArchiveName, display.ErrResourceMissing, err)
		}
		return a, nil
	case tilesource.Remote:
		tc, err := tileserver.NewTileCache(tileserver.RemoteConfig{
			BaseURL:  d.BaseURL,
			Ext:      d.Ext,
			MinZoom:  d.MinZoom,
			MaxZoom:  d.MaxZoom,
			CacheDir: d.CacheDir,
			Workers:  s.opts.PrefetchWorkers,
			Metrics:  s.opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("remote source: %w: %v", display.ErrResourceMissing, err)
		}
		return tc, nil
	default:
		return nil, fmt.Errorf("unsupported tile source %T: %w", src, display.ErrResourceMissing)
	}
}

// Layers returns the attached layers in attach order.
func (s *scene) Layers() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Layer(nil), s.layers...)
}

// ActiveLayer returns the most recently attached layer, or nil.
func (s *scene) ActiveLayer() *Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.layers) == 0 {
		return nil
	}
	return s.layers[len(s.layers)-1]
}

func (s *scene) AnimateCamera(pose camera.Pose) {
	s.cam.AnimateTo(pose, s.opts.Now())
	s.log.Debug().
		Float64("lon", pose.Center.Lon()).
		Float64("lat", pose.Center.Lat()).
		Dur("duration", pose.Duration).
		Msg("camera animating")
}

func (s *scene) Camera() *camera.Camera { return s.cam }

// AddOutline records g. The outline is named after the most recent label
// group, not yet claimed by another outline, with a label at g's anchor.
func (s *scene) AddOutline(g orb.Geometry, style display.OutlineStyle) display.Handle {
	var anchor orb.Point
	if g != nil {
		anchor = display.LabelAnchor(g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	o := Outline{Handle: s.nextHandle, Geometry: g, Style: style}
	if g != nil {
		o.Name = s.claimLabel(anchor)
	}
	s.outlines = append(s.outlines, o)
	return s.nextHandle
}

// claimLabel must be called with s.mu held.
func (s *scene) claimLabel(anchor orb.Point) string {
	for i := len(s.labels) - 1; i >= 0; i-- {
		g := &s.labels[i]
		if g.claimed {
			continue
		}
		for _, l := range g.Labels {
			if l.Loc == anchor {
				g.claimed = true
				return l.Text
			}
		}
	}
	return ""
}

func (s *scene) AddLabels(labels []display.Label, style display.LabelStyle) display.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	s.labels = append(s.labels, LabelGroup{
		Handle: s.nextHandle,
		Labels: append([]display.Label(nil), labels...),
		Style:  style,
	})
	return s.nextHandle
}

// Remove drops the overlays behind the given handles. Unknown handles are ignored.
func (s *scene) Remove(handles ...display.Handle) {
	drop := make(map[display.Handle]bool, len(handles))
	for _, h := range handles {
		drop[h] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	outlines := s.outlines[:0]
	for _, o := range s.outlines {
		if !drop[o.Handle] {
			outlines = append(outlines, o)
		}
	}
	s.outlines = outlines
	labels := s.labels[:0]
	for _, g := range s.labels {
		if !drop[g.Handle] {
			labels = append(labels, g)
		}
	}
	s.labels = labels
}

func (s *scene) Outlines() []Outline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Outline(nil), s.outlines...)
}

func (s *scene) Labels() []LabelGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LabelGroup(nil), s.labels...)
}

// Overlays snapshots outlines and labels as GeoJSON collections keyed by
// vector tile layer name. Geometries are cloned.
func (s *scene) Overlays() map[string]*geojson.FeatureCollection {
	regions := geojson.NewFeatureCollection()
	labels := geojson.NewFeatureCollection()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.labels {
		for _, l := range g.Labels {
			f := geojson.NewFeature(l.Loc)
			f.Properties["text"] = l.Text
			f.Properties["handle"] = uint64(g.Handle)
			labels.Append(f)
		}
	}
	for _, o := range s.outlines {
		if o.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(orb.Clone(o.Geometry))
		f.Properties["handle"] = uint64(o.Handle)
		if o.Name != "" {
			f.Properties["name"] = o.Name
		}
		regions.Append(f)
	}

	return map[string]*geojson.FeatureCollection{
		vectortile.RegionsLayer: regions,
		vectortile.LabelsLayer:  labels,
	}
}

// Close releases every attached layer.
func (s *scene) Close() error {
	s.mu.Lock()
	layers := s.layers
	s.layers = nil
	s.mu.Unlock()

	var errs []error
	for _, l := range layers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Layer is an attached tile layer backed by an archive or remote cache.
type Layer struct {
	cfg       display.TileLayerConfig
	src       tilesource.Descriptor
	backend   tileserver.Source
	closeOnce sync.Once
	closeErr  error
}

func (l *Layer) Config() display.TileLayerConfig { return l.cfg }
func (l *Layer) Source() tilesource.Descriptor   { return l.src }
func (l *Layer) ContentType() string             { return l.backend.ContentType() }

// Metadata describes the layer: an archive's metadata table plus its path,
// or the remote template and zoom range.
func (l *Layer) Metadata() map[string]string {
	var md map[string]string
	if a, ok := l.backend.(*tileserver.Archive); ok {
		md = a.Metadata()
		md["path"] = a.Path()
	} else {
		md = map[string]string{}
	}
	md["source"] = l.src.Kind()
	if r, ok := l.src.(tilesource.Remote); ok {
		md["tiles"] = strings.TrimSuffix(r.BaseURL, "/") + "/{z}/{x}/{y}." + r.Ext
		md["format"] = r.Ext
		md["minzoom"] = strconv.Itoa(r.MinZoom)
		md["maxzoom"] = strconv.Itoa(r.MaxZoom)
	}
	return md
}

func (l *Layer) Tile(ctx context.Context, c tiles.TileCoord) ([]byte, error) {
	return l.backend.Tile(ctx, c)
}

func (l *Layer) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.backend.Close()
	})
	return l.closeErr
}
