package tiles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileCoord represents a tile coordinate in the slippy map (XYZ) scheme
type TileCoord struct {
	X    int
	Y    int
	Zoom int
}

func (t TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Valid reports whether the coordinate lies inside the pyramid at its zoom
func (t TileCoord) Valid() bool {
	if t.Zoom < 0 || t.Zoom > 30 {
		return false
	}
	maxTile := 1<<uint(t.Zoom) - 1
	return t.X >= 0 && t.X <= maxTile && t.Y >= 0 && t.Y <= maxTile
}

// URL expands a remote base URL into the tile address: {base}{z}/{x}/{y}.{ext}
func (t TileCoord) URL(baseURL, ext string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return fmt.Sprintf("%s%d/%d/%d.%s", baseURL, t.Zoom, t.X, t.Y, ext)
}

// FlipY returns the row index in the TMS scheme used by MBTiles archives
func (t TileCoord) FlipY() int {
	return (1 << uint(t.Zoom)) - t.Y - 1
}

// Maptile converts to the orb tile type
func (t TileCoord) Maptile() maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom))
}

// FromMaptile converts from the orb tile type
func FromMaptile(mt maptile.Tile) TileCoord {
	return TileCoord{X: int(mt.X), Y: int(mt.Y), Zoom: int(mt.Z)}
}

// Parse reads "z/x/y" with an optional file extension on y
func Parse(z, x, y string) (TileCoord, error) {
	zoom, err := strconv.Atoi(z)
	if err != nil {
		return TileCoord{}, fmt.Errorf("invalid zoom %q", z)
	}
	col, err := strconv.Atoi(x)
	if err != nil {
		return TileCoord{}, fmt.Errorf("invalid x %q", x)
	}
	if i := strings.IndexByte(y, '.'); i >= 0 {
		y = y[:i]
	}
	row, err := strconv.Atoi(y)
	if err != nil {
		return TileCoord{}, fmt.Errorf("invalid y %q", y)
	}
	t := TileCoord{X: col, Y: row, Zoom: zoom}
	if !t.Valid() {
		return TileCoord{}, fmt.Errorf("tile %s out of range", t)
	}
	return t, nil
}

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level
func LatLonToTile(lat, lon float64, zoom int) TileCoord {
	return FromMaptile(maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom)))
}

// GetAdjacentTiles returns adjacent tiles in priority order for prefetching
// Order: right, left, down, up
func GetAdjacentTiles(t TileCoord) []TileCoord {
	maxTile := 1<<uint(t.Zoom) - 1
	adjacent := make([]TileCoord, 0, 4)

	if t.X+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X + 1, Y: t.Y, Zoom: t.Zoom})
	}
	if t.X-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X - 1, Y: t.Y, Zoom: t.Zoom})
	}
	if t.Y+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y + 1, Zoom: t.Zoom})
	}
	if t.Y-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y - 1, Zoom: t.Zoom})
	}

	return adjacent
}
