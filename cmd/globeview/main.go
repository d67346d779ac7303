package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"globeview/internal/app"
	"globeview/internal/camera"
	"globeview/internal/config"
	"globeview/internal/display/headless"
	"globeview/internal/logging"
	"globeview/internal/metrics"
	"globeview/internal/tileserver"
)

func main() {
	configPath := flag.String("config", "globeview.toml", "path to the TOML config file")
	writeConfig := flag.String("write-config", "", "write the effective config to this path and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("ignoring .env")
	}
	logging.ConfigureRuntime()

	if _, err := config.Load(*configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("config")
	}
	// Defaults stand in for a missing file.
	cfg := config.Get()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	if *writeConfig != "" {
		if err := config.Save(*writeConfig); err != nil {
			log.Fatal().Err(err).Msg("write config")
		}
		log.Info().Str("path", *writeConfig).Msg("config written")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	engine := headless.NewEngine(headless.Options{
		PrefetchWorkers: cfg.Tiles.PrefetchWorkers,
		Metrics:         m,
	})

	application := app.New(cfg, engine, app.WithMetrics(m))
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("display start")
	}

	var server *tileserver.Server
	if cfg.Server.Addr != "" {
		server = newPreviewServer(cfg.Server.Addr, application, m)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("preview server")
				stop()
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-application.Ingestion().Done():
		// Without a preview server there is nothing left to serve.
		if server != nil {
			<-ctx.Done()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("preview server shutdown")
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
}

type overlaySource interface {
	Overlays() map[string]*geojson.FeatureCollection
	ActiveLayer() *headless.Layer
	Camera() *camera.Camera
}

func newPreviewServer(addr string, application *app.App, m *metrics.Metrics) *tileserver.Server {
	scene, _ := application.Controller().(overlaySource)
	var cam *camera.Camera
	if scene != nil {
		cam = scene.Camera()
	}
	return tileserver.NewServer(addr, tileserver.Options{
		Tiles: func() tileserver.Source {
			if scene == nil {
				return nil
			}
			if l := scene.ActiveLayer(); l != nil {
				return l
			}
			return nil
		},
		Overlays: func() map[string]*geojson.FeatureCollection {
			if scene == nil {
				return nil
			}
			return scene.Overlays()
		},
		Metadata: func() map[string]string {
			if scene == nil {
				return nil
			}
			if l := scene.ActiveLayer(); l != nil {
				return l.Metadata()
			}
			return nil
		},
		Camera:  cam,
		Metrics: m.Handler(),
	})
}
