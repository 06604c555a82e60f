package mapping

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/layer"
)

// Range assigns triangles [First, First+Count) to one sub-object.
type Range struct {
	First    int
	Count    int
	ObjectID string
}

// MeshData is a batch of sub-objects sharing one vertex buffer. Triangles
// holds vertex index triples.
type MeshData struct {
	Vertices  []geom.Coord
	Triangles []int
	Objects   []Range
}

var ErrBadMesh = errors.New("mapping: malformed mesh")

func (d MeshData) validate() error {
	if len(d.Triangles)%3 != 0 {
		return fmt.Errorf("%w: %d triangle indices is not a multiple of 3", ErrBadMesh, len(d.Triangles))
	}
	for _, ix := range d.Triangles {
		if ix < 0 || ix >= len(d.Vertices) {
			return fmt.Errorf("%w: vertex index %d out of range", ErrBadMesh, ix)
		}
	}
	n := len(d.Triangles) / 3
	end := 0
	for _, r := range d.Objects {
		if r.Count <= 0 || r.First < end || r.First+r.Count > n {
			return fmt.Errorf("%w: object %q range [%d,%d) invalid", ErrBadMesh, r.ObjectID, r.First, r.First+r.Count)
		}
		end = r.First + r.Count
	}
	return nil
}

// MeshMapping wraps a sub-object mesh batch (for example one 3D tile of
// buildings) with a per-triangle identifier lookup.
type MeshMapping struct {
	id     string
	layer  *layer.Data
	crs    geom.CRS
	data   MeshData
	bounds geom.BoundingBox
}

// NewMesh builds a mesh mapping; an empty id gets a generated one. Object
// ranges are sorted by their first triangle and must not overlap.
func NewMesh(id string, l *layer.Data, crs geom.CRS, data MeshData) (*MeshMapping, error) {
	m := &MeshMapping{id: newID(id), layer: l, crs: crs}
	if err := m.Replace(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Replace swaps the geometry (LOD change) and recomputes the bounds. A mesh
// already in a tree must be removed before and re-inserted after.
func (m *MeshMapping) Replace(data MeshData) error {
	data.Objects = append([]Range(nil), data.Objects...)
	sort.SliceStable(data.Objects, func(i, j int) bool { return data.Objects[i].First < data.Objects[j].First })
	if err := data.validate(); err != nil {
		return err
	}
	m.data = data
	m.bounds = geom.BoxAround(m.crs, data.Vertices...)
	return nil
}

func (m *MeshMapping) ID() string               { return m.id }
func (m *MeshMapping) Kind() Kind               { return KindMesh }
func (m *MeshMapping) Object() any              { return m.data }
func (m *MeshMapping) Bounds() geom.BoundingBox { return m.bounds }
func (m *MeshMapping) Layer() *layer.Data       { return m.layer }
func (m *MeshMapping) CRS() geom.CRS            { return m.crs }
func (m *MeshMapping) Triangles() int           { return len(m.data.Triangles) / 3 }
func (*MeshMapping) sealed()                    {}

// IdentifierAt returns the sub-object owning triangle tri.
func (m *MeshMapping) IdentifierAt(tri int) (string, bool) {
	objs := m.data.Objects
	i := sort.Search(len(objs), func(i int) bool { return objs[i].First+objs[i].Count > tri })
	if i == len(objs) || tri < objs[i].First {
		return "", false
	}
	return objs[i].ObjectID, true
}

// HasObject reports whether objectID is one of the batch's sub-objects.
func (m *MeshMapping) HasObject(objectID string) bool {
	for _, r := range m.data.Objects {
		if r.ObjectID == objectID {
			return true
		}
	}
	return false
}

// Raycast returns the nearest triangle hit by r and its ray distance. The ray
// is converted into the mesh CRS first.
func (m *MeshMapping) Raycast(r geom.Ray) (tri int, dist float64, ok bool) {
	if r.CRS != m.crs {
		r = r.Convert(m.crs)
	}
	if _, hit := r.IntersectBox(m.bounds); !hit {
		return 0, 0, false
	}
	best := math.Inf(1)
	v, ix := m.data.Vertices, m.data.Triangles
	for i := 0; i+2 < len(ix); i += 3 {
		if d, hit := r.IntersectTriangle(v[ix[i]], v[ix[i+1]], v[ix[i+2]]); hit && d < best {
			best, tri, ok = d, i/3, true
		}
	}
	return tri, best, ok
}
