package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// ToMercator returns a projected copy of g; g itself is left untouched.
func ToMercator(g orb.Geometry, crs CRS) orb.Geometry {
	if g == nil {
		return nil
	}
	c := orb.Clone(g)
	if crs == EPSG3857 {
		return c
	}
	return project.Geometry(c, project.WGS84.ToMercator)
}

// HitTest checks a ground-plane point against a feature geometry, both in the
// same metric system. Areas use the crossing-number test; lines and points are
// hit within tolerance (a tube around lines, a disc around points).
func HitTest(g orb.Geometry, p orb.Point, tolerance float64) bool {
	switch v := g.(type) {
	case nil:
		return false
	case orb.Point:
		return planar.Distance(v, p) <= tolerance
	case orb.MultiPoint:
		for _, pt := range v {
			if planar.Distance(pt, p) <= tolerance {
				return true
			}
		}
		return false
	case orb.LineString, orb.MultiLineString:
		return planar.DistanceFrom(v, p) <= tolerance
	case orb.Ring:
		return planar.RingContains(v, p)
	case orb.Polygon:
		return planar.PolygonContains(v, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p)
	case orb.Bound:
		return v.Contains(p)
	case orb.Collection:
		for _, sub := range v {
			if HitTest(sub, p, tolerance) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
