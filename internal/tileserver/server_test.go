package tileserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"globeview/internal/camera"
	"globeview/internal/metrics"
	"globeview/internal/testutil/testlog"
	"globeview/internal/vectortile"
	"globeview/pkg/tiles"
)

type memSource map[tiles.TileCoord][]byte

func (m memSource) Tile(_ context.Context, c tiles.TileCoord) ([]byte, error) {
	if data, ok := m[c]; ok {
		return data, nil
	}
	if c.Zoom == 9 {
		return nil, errors.New("upstream down")
	}
	return nil, ErrTileNotFound
}

func (m memSource) ContentType() string { return "image/png" }
func (m memSource) Close() error        { return nil }

func overlayFixture() map[string]*geojson.FeatureCollection {
	region := geojson.NewFeature(orb.Polygon{{{-9, 36}, {3, 36}, {3, 43}, {-9, 43}, {-9, 36}}})
	region.Properties["name"] = "Spain"
	return map[string]*geojson.FeatureCollection{
		vectortile.RegionsLayer: geojson.NewFeatureCollection().Append(region),
	}
}

func newTestServer(t *testing.T, src Source) *httptest.Server {
	t.Helper()
	s := NewServer(":0", Options{
		Tiles:    func() Source { return src },
		Overlays: overlayFixture,
		Metrics:  metrics.New().Handler(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerTileRoutes(t *testing.T) {
	testlog.Start(t)
	src := memSource{{X: 1, Y: 1, Zoom: 2}: []byte("png")}
	ts := newTestServer(t, src)

	cases := []struct {
		path string
		want int
	}{
		{"/tile/2/1/1", http.StatusOK},
		{"/tile/2/1/1.png", http.StatusOK},
		{"/tile/2/0/0", http.StatusNotFound},
		{"/tile/9/0/0", http.StatusBadGateway},
		{"/tile/x/0/0", http.StatusBadRequest},
		{"/tile/1/5/0", http.StatusBadRequest},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Get(ts.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestServerWithoutLayer(t *testing.T) {
	testlog.Start(t)
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/tile/0/0/0")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerOverlays(t *testing.T) {
	testlog.Start(t)
	ts := newTestServer(t, memSource{})

	resp, err := http.Get(ts.URL + "/overlays")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("unexpected body %+v", fc)
	}
	if fc.Features[0].Properties["name"] != "Spain" || fc.Features[0].Properties["layer"] != vectortile.RegionsLayer {
		t.Fatalf("properties %v", fc.Features[0].Properties)
	}
}

func TestServerVectorTile(t *testing.T) {
	testlog.Start(t)
	ts := newTestServer(t, memSource{})

	resp, err := http.Get(ts.URL + "/vector/0/0/0.pbf")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	data, err := vectortile.Decode(body, tiles.TileCoord{}.Maptile())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(data.Regions) != 1 || data.Regions[0].Name != "Spain" {
		t.Fatalf("regions %+v", data.Regions)
	}
}

func TestServerCameraAndMetadata(t *testing.T) {
	testlog.Start(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Second)
	cam := camera.NewCamera(camera.Pose{Height: 1})
	cam.AnimateTo(camera.Pose{Center: orb.Point{-3.6704803, 40.5023056}, Height: 1.0 / 1024, Duration: time.Second}, start)

	s := NewServer(":0", Options{
		Metadata: func() map[string]string { return map[string]string{"format": "png"} },
		Camera:   cam,
		Now:      func() time.Time { return now },
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/camera")
	if err != nil {
		t.Fatal(err)
	}
	var view CameraView
	err = json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode camera: %v", err)
	}
	if view.Zoom != 10 || view.Tile != "10/501/385" || view.Animating {
		t.Fatalf("camera view = %+v", view)
	}

	resp, err = http.Get(ts.URL + "/tiles/metadata")
	if err != nil {
		t.Fatal(err)
	}
	var md map[string]string
	err = json.NewDecoder(resp.Body).Decode(&md)
	resp.Body.Close()
	if err != nil || md["format"] != "png" {
		t.Fatalf("metadata = %v, %v", md, err)
	}
}

func TestServerCameraAndMetadataMissing(t *testing.T) {
	testlog.Start(t)
	ts := newTestServer(t, nil)
	for _, path := range []string{"/camera", "/tiles/metadata"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, resp.StatusCode)
		}
	}
}
