package tileserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"globeview/internal/metrics"
	"globeview/internal/testutil/testlog"
	"globeview/pkg/tiles"
)

func newUpstream(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/terrain/3/0/0.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTileCacheFetchesThenServesFromDisk(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	upstream := newUpstream(t, &hits)
	m := metrics.New()

	tc, err := NewTileCache(RemoteConfig{
		BaseURL:  upstream.URL + "/terrain/",
		Ext:      "png",
		MinZoom:  0,
		MaxZoom:  18,
		CacheDir: t.TempDir(),
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}
	defer tc.Close()

	coord := tiles.TileCoord{X: 1, Y: 2, Zoom: 4}
	data, err := tc.Tile(context.Background(), coord)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if string(data) != "png:/terrain/4/1/2.png" {
		t.Fatalf("unexpected body %q", data)
	}
	if !tc.IsCached(coord) {
		t.Fatalf("tile should be on disk")
	}

	if _, err := tc.Tile(context.Background(), coord); err != nil {
		t.Fatalf("second Tile: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits.Load())
	}
	if got := testutil.ToFloat64(m.TileFetches.WithLabelValues("disk")); got != 1 {
		t.Fatalf("disk fetches = %v", got)
	}
	if tc.ContentType() != "image/png" {
		t.Fatalf("content type %q", tc.ContentType())
	}
}

func TestTileCacheConcurrentRequestsShareFetch(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("tile"))
	}))
	defer upstream.Close()

	tc, err := NewTileCache(RemoteConfig{BaseURL: upstream.URL, Ext: "png", MaxZoom: 18, CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}
	defer tc.Close()

	coord := tiles.TileCoord{X: 0, Y: 0, Zoom: 1}
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tc.Tile(context.Background(), coord)
			errs <- err
		}()
	}
	for hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Tile: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits.Load())
	}
}

func TestTileCacheErrors(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	upstream := newUpstream(t, &hits)

	tc, err := NewTileCache(RemoteConfig{BaseURL: upstream.URL + "/terrain", Ext: "png", MinZoom: 2, MaxZoom: 5, CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}
	defer tc.Close()

	if _, err := tc.Tile(context.Background(), tiles.TileCoord{Zoom: 3}); !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("expected ErrTileNotFound for upstream 404, got %v", err)
	}
	if _, err := tc.Tile(context.Background(), tiles.TileCoord{Zoom: 6}); !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("expected ErrTileNotFound above max zoom, got %v", err)
	}
	if _, err := tc.Tile(context.Background(), tiles.TileCoord{Zoom: 1}); !errors.Is(err, ErrTileNotFound) {
		t.Fatalf("expected ErrTileNotFound below min zoom, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("out-of-range tiles must not reach upstream, hits=%d", hits.Load())
	}
}

func TestNewTileCacheRejectsBadZoomRange(t *testing.T) {
	if _, err := NewTileCache(RemoteConfig{MinZoom: 5, MaxZoom: 2, CacheDir: t.TempDir()}); err == nil {
		t.Fatalf("expected zoom range error")
	}
}

func TestTileCacheTileAfterClose(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	upstream := newUpstream(t, &hits)

	tc, err := NewTileCache(RemoteConfig{BaseURL: upstream.URL + "/terrain/", Ext: "png", MaxZoom: 18, CacheDir: t.TempDir(), Workers: 1})
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}
	if err := tc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := tc.Tile(context.Background(), tiles.TileCoord{X: 1, Y: 1, Zoom: 2}); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("expected ErrCacheClosed, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("closed cache reached upstream %d times", hits.Load())
	}
}

func TestTileCacheCloseAbandonsPrefetches(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Write([]byte("tile"))
			return
		}
		select {
		case <-time.After(500 * time.Millisecond):
			w.Write([]byte("tile"))
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()

	tc, err := NewTileCache(RemoteConfig{BaseURL: upstream.URL, Ext: "png", MaxZoom: 18, CacheDir: t.TempDir(), Workers: 1})
	if err != nil {
		t.Fatalf("NewTileCache: %v", err)
	}

	// A tile in the middle of zoom 2 queues all four neighbours.
	if _, err := tc.Tile(context.Background(), tiles.TileCoord{X: 1, Y: 1, Zoom: 2}); err != nil {
		t.Fatalf("Tile: %v", err)
	}
	for hits.Load() < 2 {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	tc.Close()
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("Close took %v waiting on queued prefetches", elapsed)
	}
	if hits.Load() > 2 {
		t.Fatalf("queued prefetches ran after Close: hits=%d", hits.Load())
	}
}
