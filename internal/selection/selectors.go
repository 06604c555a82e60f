package selection

import (
	"sort"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
)

// Candidate is one selectable hit.
type Candidate struct {
	Mapping  mapping.Mapping
	ObjectID string
	Hit      geom.Coord // in the ray's system
	Distance float64    // along the ray, 0 for ground tests
	// Blocking marks features found under a mesh hit; they sort first.
	Blocking bool
}

// DefaultMaxRayDistance bounds rays that never reach the ground.
const DefaultMaxRayDistance = 50_000.0

// SubObjectSelector raycasts the tree's mesh mappings and resolves the hit
// triangle to its sub-object identifier.
type SubObjectSelector struct {
	tree    *mappingtree.Tree
	maxDist float64
}

func NewSubObjectSelector(t *mappingtree.Tree, maxDist float64) *SubObjectSelector {
	if maxDist <= 0 {
		maxDist = DefaultMaxRayDistance
	}
	return &SubObjectSelector{tree: t, maxDist: maxDist}
}

// Select returns at most one candidate per mesh mapping, nearest first.
func (s *SubObjectSelector) Select(r geom.Ray, f *geom.Frustum) []Candidate {
	var out []Candidate
	for _, m := range s.tree.Query(footprint(r, s.maxDist), mapping.KindMesh) {
		mm := m.(*mapping.MeshMapping)
		if !f.IntersectsBox(mm.Bounds()) {
			continue
		}
		tri, d, ok := mm.Raycast(r)
		if !ok || d > s.maxDist {
			continue
		}
		id, _ := mm.IdentifierAt(tri)
		out = append(out, Candidate{Mapping: mm, ObjectID: id, Hit: r.At(d), Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// footprint is the ground-plane box swept by the ray up to where it meets the
// ground, or up to maxDist.
func footprint(r geom.Ray, maxDist float64) geom.BoundingBox {
	end, ok := r.GroundPoint()
	if !ok {
		end = r.At(maxDist)
	}
	return geom.BoxAround(r.CRS, r.At(0), end)
}

// FeatureSelector tests the ray's ground point against vector features.
type FeatureSelector struct {
	tree *mappingtree.Tree
	// Tolerance in metres: disc radius for points, tube half-width for lines.
	Tolerance float64
}

func NewFeatureSelector(t *mappingtree.Tree, tolerance float64) *FeatureSelector {
	return &FeatureSelector{tree: t, Tolerance: tolerance}
}

func (s *FeatureSelector) Select(r geom.Ray, f *geom.Frustum) []Candidate {
	g, ok := r.GroundPoint()
	if !ok {
		return nil
	}
	return s.SelectAt(g, r.CRS, f)
}

// SelectAt tests a ground point given in crs. The frustum and the 2-D bounds
// are cheap rejects ahead of the exact geometry test.
func (s *FeatureSelector) SelectAt(g geom.Coord, crs geom.CRS, f *geom.Frustum) []Candidate {
	m := geom.ConvertCoord(g, crs, geom.EPSG3857)
	tol := s.Tolerance
	area := geom.NewBoundingBox(
		geom.Coord{X: m.X - tol, Y: m.Y - tol},
		geom.Coord{X: m.X + tol, Y: m.Y + tol},
		geom.EPSG3857,
	)
	var out []Candidate
	for _, x := range s.tree.Query(area, mapping.KindFeature) {
		fm := x.(*mapping.FeatureMapping)
		if !f.IntersectsBox(fm.Bounds()) {
			continue
		}
		if !area.Intersects(fm.Bounds()) {
			continue
		}
		if !fm.Hit(m, geom.EPSG3857, tol) {
			continue
		}
		out = append(out, Candidate{Mapping: fm, ObjectID: fm.ObjectID(), Hit: g})
	}
	return out
}
