package vectortile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// Layer names used for submitted overlays
const (
	RegionsLayer = "regions"
	LabelsLayer  = "labels"
)

// Region is an outline read back from an overlay tile
type Region struct {
	Name     string
	Geometry orb.Geometry
}

// Label is a label point read back from an overlay tile
type Label struct {
	Text     string
	Location orb.Point
}

// TileData holds extracted features from an overlay tile
type TileData struct {
	Regions []Region
	Labels  []Label
}

// Encode projects WGS84 feature collections into tile space and marshals
// them as a Mapbox Vector Tile. The input collections are not modified.
func Encode(collections map[string]*geojson.FeatureCollection, tile maptile.Tile) ([]byte, error) {
	copies := make(map[string]*geojson.FeatureCollection, len(collections))
	for name, fc := range collections {
		copies[name] = cloneCollection(fc)
	}

	layers := mvt.NewLayers(copies)
	layers.ProjectToTile(tile)
	layers.Clip(mvt.MapboxGLDefaultExtentBound)
	layers.RemoveEmpty(1.0, 1.0)

	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("mvt encode %v: %w", tile, err)
	}
	return data, nil
}

// Decode parses an overlay tile back into WGS84 features
func Decode(data []byte, tile maptile.Tile) (*TileData, error) {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("mvt parse error: %w", err)
	}
	layers.ProjectToWGS84(tile)

	return extractFeatures(layers), nil
}

func cloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		c := geojson.NewFeature(orb.Clone(f.Geometry))
		for k, v := range f.Properties {
			c.Properties[k] = v
		}
		out.Append(c)
	}
	return out
}

// extractFeatures extracts typed features from MVT layers
func extractFeatures(layers mvt.Layers) *TileData {
	data := &TileData{}

	for _, layer := range layers {
		switch layer.Name {
		case RegionsLayer:
			data.Regions = extractRegions(layer)
		case LabelsLayer:
			data.Labels = extractLabels(layer)
		}
	}

	return data
}

func extractRegions(layer *mvt.Layer) []Region {
	regions := make([]Region, 0, len(layer.Features))

	for _, f := range layer.Features {
		region := Region{Geometry: f.Geometry}
		if name, ok := f.Properties["name"].(string); ok {
			region.Name = name
		}
		regions = append(regions, region)
	}

	return regions
}

func extractLabels(layer *mvt.Layer) []Label {
	labels := make([]Label, 0, len(layer.Features))

	for _, f := range layer.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		label := Label{Location: pt}
		if text, ok := f.Properties["text"].(string); ok {
			label.Text = text
		}
		labels = append(labels, label)
	}

	return labels
}

// FilterRegionsByName returns regions matching the given names
func FilterRegionsByName(regions []Region, names ...string) []Region {
	nameSet := make(map[string]bool)
	for _, n := range names {
		nameSet[n] = true
	}

	filtered := make([]Region, 0)
	for _, r := range regions {
		if nameSet[r.Name] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
