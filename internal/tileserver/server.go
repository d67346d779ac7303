package tileserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"globeview/internal/camera"
	"globeview/internal/logging"
	"globeview/internal/vectortile"
	"globeview/pkg/tiles"
)

// Options wires the preview server to a running display.
type Options struct {
	// Tiles returns the attached base layer, or nil when none is attached.
	Tiles func() Source
	// Overlays returns a snapshot of submitted overlays keyed by layer name.
	Overlays func() map[string]*geojson.FeatureCollection
	// Metadata describes the attached base layer, or returns nil.
	Metadata func() map[string]string
	// Camera is the display camera; Now defaults to time.Now.
	Camera  *camera.Camera
	Now     func() time.Time
	Metrics http.Handler
}

// CameraView is the /camera response.
type CameraView struct {
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Height    float64 `json:"height"`
	Zoom      int     `json:"zoom"`
	Tile      string  `json:"tile"`
	Animating bool    `json:"animating"`
}

// Server provides HTTP endpoints for previewing the display contents
type Server struct {
	opts   Options
	addr   string
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a new preview server
func NewServer(addr string, opts Options) *Server {
	return &Server{
		opts: opts,
		addr: addr,
		log:  logging.Module("tileserver"),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/tile/{z}/{x}/{y}", s.handleTile)
	r.Get("/vector/{z}/{x}/{y}", s.handleVector)
	r.Get("/overlays", s.handleOverlays)
	r.Get("/tiles/metadata", s.handleMetadata)
	r.Get("/camera", s.handleCamera)
	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("preview server starting")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func parseCoord(r *http.Request) (tiles.TileCoord, error) {
	return tiles.Parse(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
}

// handleTile serves base imagery: /tile/{zoom}/{x}/{y}
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoord(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var src Source
	if s.opts.Tiles != nil {
		src = s.opts.Tiles()
	}
	if src == nil {
		http.Error(w, "no tile layer attached", http.StatusNotFound)
		return
	}

	data, err := src.Tile(r.Context(), coord)
	if errors.Is(err, ErrTileNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get tile: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", src.ContentType())
	w.Header().Set("Cache-Control", "max-age=86400")
	w.Write(data)
}

// handleVector serves overlays as a vector tile: /vector/{zoom}/{x}/{y}.pbf
func (s *Server) handleVector(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoord(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := vectortile.Encode(s.overlays(), coord.Maptile())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Write(data)
}

// handleOverlays returns submitted outlines and labels as one GeoJSON collection
func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	all := geojson.NewFeatureCollection()
	for layer, fc := range s.overlays() {
		for _, f := range fc.Features {
			f.Properties["layer"] = layer
			all.Append(f)
		}
	}

	data, err := all.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func (s *Server) overlays() map[string]*geojson.FeatureCollection {
	if s.opts.Overlays == nil {
		return map[string]*geojson.FeatureCollection{}
	}
	return s.opts.Overlays()
}

// handleMetadata returns the base layer description
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var md map[string]string
	if s.opts.Metadata != nil {
		md = s.opts.Metadata()
	}
	if md == nil {
		http.Error(w, "no tile layer attached", http.StatusNotFound)
		return
	}
	s.writeJSON(w, md)
}

// handleCamera reports where the camera is now and the tile under its centre
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	if s.opts.Camera == nil {
		http.Error(w, "no camera", http.StatusNotFound)
		return
	}
	now := time.Now()
	if s.opts.Now != nil {
		now = s.opts.Now()
	}

	pose := s.opts.Camera.At(now)
	zoom := pose.Zoom()
	s.writeJSON(w, CameraView{
		Lon:       pose.Center.Lon(),
		Lat:       pose.Center.Lat(),
		Height:    pose.Height,
		Zoom:      zoom,
		Tile:      tiles.LatLonToTile(pose.Center.Lat(), pose.Center.Lon(), zoom).String(),
		Animating: !s.opts.Camera.Done(now),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
