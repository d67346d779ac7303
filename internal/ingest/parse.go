package ingest

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// AdminKey is the attribute holding a region's display name.
const AdminKey = "ADMIN"

func init() {
	geojson.CustomJSONUnmarshaler = sonic.ConfigStd
	geojson.CustomJSONMarshaler = sonic.ConfigStd
}

var errNoGeometry = errors.New("no geometry")

// Parse decodes a GeoJSON FeatureCollection, Feature or bare geometry. The
// attributes are those of the first feature; multiple features are merged
// into one collection.
func Parse(data []byte) (orb.Geometry, map[string]any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &head); err != nil {
		return nil, nil, err
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, nil, err
		}
		return merge(fc.Features)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, nil, err
		}
		return merge([]*geojson.Feature{f})
	case "":
		return nil, nil, errors.New("missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, nil, err
		}
		geom := g.Geometry()
		if geom == nil {
			return nil, nil, errNoGeometry
		}
		return geom, map[string]any{}, nil
	}
}

func merge(features []*geojson.Feature) (orb.Geometry, map[string]any, error) {
	var (
		geoms orb.Collection
		attrs map[string]any
	)
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if attrs == nil {
			attrs = map[string]any(f.Properties)
		}
		geoms = append(geoms, f.Geometry)
	}

	switch len(geoms) {
	case 0:
		return nil, nil, errNoGeometry
	case 1:
		return geoms[0], attrs, nil
	default:
		return geoms, attrs, nil
	}
}

// RegionName returns the ADMIN attribute as text. ok is false when the key is
// absent or null.
func RegionName(attrs map[string]any) (name string, ok bool) {
	v, present := attrs[AdminKey]
	if !present || v == nil {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}
