package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const rayEpsilon = 1e-9

// Ray is a half-line in a metric world system (EPSG:3857 by default).
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
	CRS    CRS
}

func NewRay(origin, dir Coord, crs CRS) Ray {
	d := mgl64.Vec3{dir.X, dir.Y, dir.Z}
	if l := d.Len(); l > 0 {
		d = d.Mul(1 / l)
	}
	return Ray{Origin: mgl64.Vec3{origin.X, origin.Y, origin.Z}, Dir: d, CRS: crs}
}

// At returns the coordinate at distance t along the ray.
func (r Ray) At(t float64) Coord {
	p := r.Origin.Add(r.Dir.Mul(t))
	return Coord{X: p[0], Y: p[1], Z: p[2]}
}

// Convert reprojects the origin and a second point one unit along the ray,
// so the direction is only exact locally.
func (r Ray) Convert(crs CRS) Ray {
	if r.CRS == crs || r.CRS == "" || crs == "" {
		return r
	}
	o := ConvertCoord(r.At(0), r.CRS, crs)
	p := ConvertCoord(r.At(1), r.CRS, crs)
	return NewRay(o, Coord{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}, crs)
}

// Down is the vertical ray cast from c towards the ground.
func Down(c Coord, crs CRS) Ray {
	return Ray{Origin: mgl64.Vec3{c.X, c.Y, c.Z}, Dir: mgl64.Vec3{0, 0, -1}, CRS: crs}
}

// IntersectBox is the slab test. It returns the entry distance (0 when the
// origin is inside) and whether the ray hits b at all.
func (r Ray) IntersectBox(b BoundingBox) (float64, bool) {
	b = b.Convert(r.CRS)
	tmin, tmax := math.Inf(-1), math.Inf(1)
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := 0; i < 3; i++ {
		o, d := r.Origin[i], r.Dir[i]
		if math.Abs(d) < rayEpsilon {
			if o < lo[i] || o > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o) / d
		t2 := (hi[i] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	return math.Max(tmin, 0), true
}

// IntersectTriangle is Möller–Trumbore; back faces are hit as well.
func (r Ray) IntersectTriangle(a, b, c Coord) (float64, bool) {
	v0 := mgl64.Vec3{a.X, a.Y, a.Z}
	e1 := mgl64.Vec3{b.X, b.Y, b.Z}.Sub(v0)
	e2 := mgl64.Vec3{c.X, c.Y, c.Z}.Sub(v0)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(v0)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}

// GroundPoint intersects the ray with the Z=0 plane.
func (r Ray) GroundPoint() (Coord, bool) {
	if math.Abs(r.Dir[2]) < rayEpsilon {
		return Coord{}, false
	}
	t := -r.Origin[2] / r.Dir[2]
	if t < 0 {
		return Coord{}, false
	}
	c := r.At(t)
	c.Z = 0
	return c, true
}

// Frustum is a set of inward-facing planes (a, b, c, d) with ax+by+cz+d >= 0 inside.
type Frustum struct {
	Planes []mgl64.Vec4
	CRS    CRS
}

// IntersectsBox is conservative: it only rejects boxes fully behind a plane.
func (f *Frustum) IntersectsBox(b BoundingBox) bool {
	if f == nil || len(f.Planes) == 0 {
		return true
	}
	b = b.Convert(f.CRS)
	for _, p := range f.Planes {
		// positive vertex along the plane normal
		x, y, z := b.Min.X, b.Min.Y, b.Min.Z
		if p[0] >= 0 {
			x = b.Max.X
		}
		if p[1] >= 0 {
			y = b.Max.Y
		}
		if p[2] >= 0 {
			z = b.Max.Z
		}
		if p[0]*x+p[1]*y+p[2]*z+p[3] < 0 {
			return false
		}
	}
	return true
}

// BoxFrustum builds the six planes enclosing a box, handy for top-down views.
func BoxFrustum(b BoundingBox) *Frustum {
	return &Frustum{
		CRS: b.CRS,
		Planes: []mgl64.Vec4{
			{1, 0, 0, -b.Min.X},
			{-1, 0, 0, b.Max.X},
			{0, 1, 0, -b.Min.Y},
			{0, -1, 0, b.Max.Y},
			{0, 0, 1, -b.Min.Z},
			{0, 0, -1, b.Max.Z},
		},
	}
}
