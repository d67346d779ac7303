package tileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"globeview/internal/logging"
	"globeview/internal/metrics"
	"globeview/pkg/tiles"
)

var (
	// ErrTileNotFound is returned when the backend has no data for a coordinate.
	ErrTileNotFound = errors.New("tile not found")
	ErrCacheClosed  = errors.New("tile cache closed")
)

// Source is a readable tile backend.
type Source interface {
	Tile(ctx context.Context, coord tiles.TileCoord) ([]byte, error)
	ContentType() string
	Close() error
}

// RemoteConfig describes a remote XYZ tile service and where to cache it.
type RemoteConfig struct {
	BaseURL  string
	Ext      string
	MinZoom  int
	MaxZoom  int
	CacheDir string
	Workers  int
	Client   *http.Client
	Metrics  *metrics.Metrics
}

// TileCache manages tile fetching and caching
type TileCache struct {
	cfg        RemoteConfig
	client     *http.Client
	inFlight   map[string]chan struct{}
	inFlightMu sync.Mutex
	fetchQueue chan tiles.TileCoord
	wg         sync.WaitGroup

	// ctx is cancelled by Close and aborts prefetches in flight.
	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.RWMutex
	closed  bool

	log zerolog.Logger
}

// NewTileCache creates a new tile cache and starts its prefetch workers
func NewTileCache(cfg RemoteConfig) (*TileCache, error) {
	if cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("invalid zoom range %d..%d", cfg.MinZoom, cfg.MaxZoom)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TileCache{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		client:     client,
		inFlight:   make(map[string]chan struct{}),
		fetchQueue: make(chan tiles.TileCoord, 1000),
		log:        logging.Module("tilecache"),
	}

	for i := 0; i < cfg.Workers; i++ {
		tc.wg.Add(1)
		go tc.worker()
	}

	return tc, nil
}

func (tc *TileCache) worker() {
	defer tc.wg.Done()
	for coord := range tc.fetchQueue {
		if tc.ctx.Err() != nil {
			// Closing: drop whatever is still queued.
			continue
		}
		if _, err := tc.fetchTile(tc.ctx, coord); err != nil {
			tc.log.Debug().Err(err).Str("tile", coord.String()).Msg("prefetch failed")
		}
	}
}

// Close stops the prefetch workers, abandoning queued and in-flight
// prefetches. Tile calls made after Close fail with ErrCacheClosed.
func (tc *TileCache) Close() error {
	tc.closeMu.Lock()
	if !tc.closed {
		tc.closed = true
		tc.cancel()
		close(tc.fetchQueue)
	}
	tc.closeMu.Unlock()
	tc.wg.Wait()
	return nil
}

func (tc *TileCache) isClosed() bool {
	tc.closeMu.RLock()
	defer tc.closeMu.RUnlock()
	return tc.closed
}

func (tc *TileCache) ContentType() string {
	if t := mime.TypeByExtension("." + tc.cfg.Ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// tilePath returns the file path for a cached tile
func (tc *TileCache) tilePath(coord tiles.TileCoord) string {
	return filepath.Join(tc.cfg.CacheDir, fmt.Sprintf("%d_%d_%d.%s", coord.Zoom, coord.X, coord.Y, tc.cfg.Ext))
}

func (tc *TileCache) inRange(coord tiles.TileCoord) bool {
	return coord.Valid() && coord.Zoom >= tc.cfg.MinZoom && coord.Zoom <= tc.cfg.MaxZoom
}

// Tile returns tile data, fetching and caching if necessary
func (tc *TileCache) Tile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	if tc.isClosed() {
		return nil, ErrCacheClosed
	}
	if !tc.inRange(coord) {
		return nil, fmt.Errorf("tile %s: %w", coord, ErrTileNotFound)
	}

	if data, err := os.ReadFile(tc.tilePath(coord)); err == nil {
		tc.observe("disk")
		return data, nil
	}

	data, err := tc.fetchTile(ctx, coord)
	if err != nil {
		return nil, err
	}

	tc.queuePrefetch(coord)

	return data, nil
}

// fetchTile downloads a tile from the remote service and caches it
func (tc *TileCache) fetchTile(ctx context.Context, coord tiles.TileCoord) ([]byte, error) {
	key := coord.String()
	path := tc.tilePath(coord)

	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	tc.inFlightMu.Lock()
	if ch, exists := tc.inFlight[key]; exists {
		tc.inFlightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", key, ErrTileNotFound)
		}
		return data, nil
	}

	ch := make(chan struct{})
	tc.inFlight[key] = ch
	tc.inFlightMu.Unlock()

	defer func() {
		tc.inFlightMu.Lock()
		delete(tc.inFlight, key)
		close(ch)
		tc.inFlightMu.Unlock()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coord.URL(tc.cfg.BaseURL, tc.cfg.Ext), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "globeview/1.0")

	resp, err := tc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("tile %s: %w", key, ErrTileNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tile server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}
	tc.observe("remote")

	if err := os.WriteFile(path, data, 0o600); err != nil {
		tc.log.Warn().Err(err).Str("tile", key).Msg("failed to cache tile")
	}

	return data, nil
}

// queuePrefetch adds uncached adjacent tiles to the prefetch queue
func (tc *TileCache) queuePrefetch(coord tiles.TileCoord) {
	if tc.cfg.Workers == 0 {
		return
	}
	// Held for reading so Close cannot close the queue under a send.
	tc.closeMu.RLock()
	defer tc.closeMu.RUnlock()
	if tc.closed {
		return
	}
	for _, adj := range tiles.GetAdjacentTiles(coord) {
		if !tc.inRange(adj) || tc.IsCached(adj) {
			continue
		}
		select {
		case tc.fetchQueue <- adj:
		default:
		}
	}
}

// IsCached checks if a tile is already on disk
func (tc *TileCache) IsCached(coord tiles.TileCoord) bool {
	_, err := os.Stat(tc.tilePath(coord))
	return err == nil
}

func (tc *TileCache) observe(origin string) {
	if tc.cfg.Metrics != nil {
		tc.cfg.Metrics.TileFetches.WithLabelValues(origin).Inc()
	}
}
