package mapping

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/layer"
)

// Feature is a parsed vector feature with its attributes.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties map[string]any
}

func (f *Feature) Attribute(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.Properties[name]
	return v, ok
}

// FeatureFromGeoJSON takes the id from the GeoJSON id member, falling back to
// an "id" property.
func FeatureFromGeoJSON(gf *geojson.Feature) *Feature {
	f := &Feature{Geometry: gf.Geometry, Properties: map[string]any(gf.Properties)}
	switch {
	case gf.ID != nil:
		f.ID = fmt.Sprint(gf.ID)
	case gf.Properties["id"] != nil:
		f.ID = fmt.Sprint(gf.Properties["id"])
	}
	return f
}

var ErrNoGeometry = errors.New("mapping: feature has no geometry")

// FeatureMapping places one rendered instance of a feature in the tree. The
// same feature split across tiles yields several mappings sharing ObjectID.
type FeatureMapping struct {
	id      string
	layer   *layer.Data
	feature *Feature
	crs     geom.CRS
	bounds  geom.BoundingBox

	projected orb.Geometry
}

// NewFeature wraps f whose geometry is expressed in crs.
func NewFeature(id string, l *layer.Data, f *Feature, crs geom.CRS) (*FeatureMapping, error) {
	if f == nil || f.Geometry == nil {
		return nil, ErrNoGeometry
	}
	return &FeatureMapping{
		id:      newID(id),
		layer:   l,
		feature: f,
		crs:     crs,
		bounds:  geom.FromBound(f.Geometry.Bound(), crs),
	}, nil
}

func (m *FeatureMapping) ID() string               { return m.id }
func (m *FeatureMapping) Kind() Kind               { return KindFeature }
func (m *FeatureMapping) Object() any              { return m.feature }
func (m *FeatureMapping) Bounds() geom.BoundingBox { return m.bounds }
func (m *FeatureMapping) Layer() *layer.Data       { return m.layer }
func (m *FeatureMapping) Feature() *Feature        { return m.feature }
func (m *FeatureMapping) ObjectID() string         { return m.feature.ID }
func (*FeatureMapping) sealed()                    {}

// Hit tests a ground point against the feature geometry in web mercator, so
// tolerance is in metres: the radius around points and the tube half-width
// around lines. Polygons use a crossing-number test that honours holes.
func (m *FeatureMapping) Hit(p geom.Coord, crs geom.CRS, tolerance float64) bool {
	if m.projected == nil {
		m.projected = geom.ToMercator(m.feature.Geometry, m.crs)
	}
	mp := geom.ConvertCoord(p, crs, geom.EPSG3857)
	return geom.HitTest(m.projected, mp.Point(), tolerance)
}
