package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"globeview/internal/camera"
	"globeview/internal/config"
	"globeview/internal/display"
	"globeview/internal/ingest"
	"globeview/internal/logging"
	"globeview/internal/metrics"
	"globeview/internal/tilesource"
)

const (
	GlobeHeight = 0.8
	MapHeight   = 1.0
)

type App struct {
	cfg     *config.Config
	engine  display.Engine
	metrics *metrics.Metrics
	source  ingest.Source
	log     zerolog.Logger

	controller display.Controller
	layer      display.Layer
	layerErr   error
	task       *ingest.Task
}

type Option func(*App)

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSource replaces the resource directory from the config.
func WithSource(src ingest.Source) Option {
	return func(a *App) { a.source = src }
}

func New(cfg *config.Config, engine display.Engine, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		engine: engine,
		log:    logging.Module("app"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	if a.source == nil {
		a.source = ingest.NewDirSource(cfg.Resources.Dir, cfg.Resources.Ext)
	}
	return a
}

// Start brings the display up and launches region ingestion in the
// background. A missing tile source only drops the base layer; the only
// error returned is a failure to attach the view.
func (a *App) Start(ctx context.Context) error {
	mode := display.ModeFor(a.cfg.Display.Globe)
	a.controller = a.engine.NewController(mode)
	if err := a.controller.AttachView(); err != nil {
		return err
	}
	display.SceneFor(mode).Apply(a.controller)

	a.layer, a.layerErr = a.addBaseLayer(mode)
	if a.layerErr != nil {
		a.log.Error().Err(a.layerErr).Msg("base tile layer omitted")
	}

	// Start up over Madrid.
	a.controller.AnimateCamera(a.initialPose(mode))

	a.task = ingest.New(a.source, a.controller, ingest.WithMetrics(a.metrics)).Start(ctx)
	a.log.Info().Str("mode", mode.String()).Bool("base_layer", a.layer != nil).Msg("display started")
	return nil
}

func (a *App) addBaseLayer(mode display.Mode) (display.Layer, error) {
	opts := tilesource.DefaultOptions()
	opts.ArchiveName = a.cfg.Tiles.Archive
	opts.SearchDirs = a.cfg.Tiles.SearchDirs
	opts.BaseURL = a.cfg.Tiles.BaseURL
	opts.CacheRoot = a.cfg.Tiles.CacheRoot
	opts.AppName = a.cfg.AppName

	kind := "remote"
	if a.cfg.Tiles.UseLocal {
		kind = "local"
	}

	src, err := tilesource.Select(a.cfg.Tiles.UseLocal, opts)
	if err == nil {
		var layer display.Layer
		layer, err = a.controller.AddLayer(display.LayerConfigFor(mode), src)
		if err == nil {
			a.metrics.TileSourceSetup.WithLabelValues(kind, "true").Inc()
			return layer, nil
		}
	}
	a.metrics.TileSourceSetup.WithLabelValues(kind, "false").Inc()
	return nil, err
}

func (a *App) initialPose(mode display.Mode) camera.Pose {
	height := MapHeight
	if mode.IsGlobe() {
		height = GlobeHeight
	}
	return camera.Pose{
		Center:   orb.Point{a.cfg.Camera.Lon, a.cfg.Camera.Lat},
		Height:   height,
		Duration: time.Duration(a.cfg.Camera.DurationSeconds * float64(time.Second)),
	}
}

func (a *App) Controller() display.Controller { return a.controller }

// Layer returns the base layer, or nil and the reason it was omitted.
func (a *App) Layer() (display.Layer, error) { return a.layer, a.layerErr }

func (a *App) Ingestion() *ingest.Task { return a.task }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Shutdown cancels ingestion, waits for it within ctx and releases the
// controller and its layers. It returns ctx.Err() if ctx ends first.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.task != nil {
		if _, err := a.task.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.controller != nil {
		done := make(chan error, 1)
		go func() {
			done <- a.controller.Close()
		}()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("closing display: %w", ctx.Err()))
		}
	}
	return errors.Join(errs...)
}
