package display

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// LabelAnchor returns where a region's label goes: the area centroid of its
// largest polygon, or the plain centroid for non-areal geometry.
func LabelAnchor(g orb.Geometry) orb.Point {
	if poly, ok := largestPolygon(g); ok {
		c, _ := planar.CentroidArea(poly)
		return c
	}
	c, _ := planar.CentroidArea(g)
	return c
}

func largestPolygon(g orb.Geometry) (orb.Polygon, bool) {
	var (
		best     orb.Polygon
		bestArea = -1.0
	)
	consider := func(p orb.Polygon) {
		if a := math.Abs(planar.Area(p)); a > bestArea {
			best, bestArea = p, a
		}
	}

	var walk func(orb.Geometry)
	walk = func(g orb.Geometry) {
		switch v := g.(type) {
		case orb.Polygon:
			consider(v)
		case orb.MultiPolygon:
			for _, p := range v {
				consider(p)
			}
		case orb.Collection:
			for _, m := range v {
				walk(m)
			}
		}
	}
	walk(g)

	return best, bestArea >= 0
}
