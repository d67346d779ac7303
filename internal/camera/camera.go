package camera

import (
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

const (
	MinZoom = 0
	MaxZoom = 18

	maxMercatorLat = 85.0511
)

// Pose is a camera placement: the point under the view centre, the eye
// height in earth radii, and how long the move to it should take.
type Pose struct {
	Center   orb.Point
	Height   float64
	Duration time.Duration
}

// Clamp wraps longitude into [-180, 180] and keeps latitude inside the
// Mercator range. Non-finite coordinates collapse to 0.
func (p Pose) Clamp() Pose {
	lon, lat := p.Center.Lon(), p.Center.Lat()
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		lon = 0
	}
	lon = math.Remainder(lon, 360)
	if math.IsNaN(lat) {
		lat = 0
	}
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	p.Center = orb.Point{lon, lat}
	if math.IsNaN(p.Height) || p.Height < 0 {
		p.Height = 0
	}
	return p
}

// Zoom maps the eye height onto the nearest slippy-map zoom level. A height
// of 1.0 shows roughly the whole earth.
func (p Pose) Zoom() int {
	if p.Height <= 0 {
		return MaxZoom
	}
	z := int(math.Round(math.Log2(1 / p.Height)))
	if z < MinZoom {
		z = MinZoom
	}
	if z > MaxZoom {
		z = MaxZoom
	}
	return z
}

// Camera tracks the current fly-to animation.
type Camera struct {
	mu    sync.RWMutex
	from  Pose
	to    Pose
	start time.Time
}

// NewCamera creates a camera resting at the given pose
func NewCamera(initial Pose) *Camera {
	initial = initial.Clamp()
	return &Camera{from: initial, to: initial}
}

// AnimateTo starts a move from wherever the camera is at now to target.
func (c *Camera) AnimateTo(target Pose, now time.Time) {
	current := c.At(now)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.from = current
	c.to = target.Clamp()
	c.start = now
}

// Target returns the pose the camera is moving to
func (c *Camera) Target() Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.to
}

// Done reports whether the current animation has finished at now
func (c *Camera) Done(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.to.Duration <= 0 || !now.Before(c.start.Add(c.to.Duration))
}

// At interpolates the pose at now. Longitude takes the short way around.
func (c *Camera) At(now time.Time) Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.to.Duration <= 0 {
		return c.to
	}
	t := float64(now.Sub(c.start)) / float64(c.to.Duration)
	if t >= 1 {
		return c.to
	}
	if t < 0 {
		t = 0
	}

	dLon := c.to.Center.Lon() - c.from.Center.Lon()
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}
	dLat := c.to.Center.Lat() - c.from.Center.Lat()

	p := Pose{
		Center: orb.Point{c.from.Center.Lon() + dLon*t, c.from.Center.Lat() + dLat*t},
		Height: c.from.Height + (c.to.Height-c.from.Height)*t,
	}
	return p.Clamp()
}
