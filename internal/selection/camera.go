package selection

import (
	"github.com/mohammed-shakir/geotwin/internal/core/geom"
)

// Camera turns screen positions into world rays.
type Camera interface {
	ScreenRay(s Screen) geom.Ray
	// Frustum may be nil, meaning no culling.
	Frustum() *geom.Frustum
}

// OrthoCamera looks straight down on a web mercator map.
type OrthoCamera struct {
	Center         geom.Coord // EPSG:3857
	MetersPerPixel float64
	Width, Height  float64 // viewport in pixels
	Altitude       float64
}

// NewOrthoCamera centres the view on lon/lat.
func NewOrthoCamera(lon, lat, metersPerPixel, width, height float64) *OrthoCamera {
	c := geom.ConvertCoord(geom.Coord{X: lon, Y: lat}, geom.EPSG4326, geom.EPSG3857)
	return &OrthoCamera{Center: c, MetersPerPixel: metersPerPixel, Width: width, Height: height, Altitude: 10000}
}

func (c *OrthoCamera) world(s Screen) geom.Coord {
	return geom.Coord{
		X: c.Center.X + (s.X-c.Width/2)*c.MetersPerPixel,
		Y: c.Center.Y - (s.Y-c.Height/2)*c.MetersPerPixel,
		Z: c.Altitude,
	}
}

func (c *OrthoCamera) ScreenRay(s Screen) geom.Ray {
	return geom.Down(c.world(s), geom.EPSG3857)
}

// ScreenAt is the inverse of ScreenRay for a world coordinate in crs.
func (c *OrthoCamera) ScreenAt(w geom.Coord, crs geom.CRS) Screen {
	m := geom.ConvertCoord(w, crs, geom.EPSG3857)
	return Screen{
		X: (m.X-c.Center.X)/c.MetersPerPixel + c.Width/2,
		Y: c.Height/2 - (m.Y-c.Center.Y)/c.MetersPerPixel,
	}
}

// Extent is the visible ground area.
func (c *OrthoCamera) Extent() geom.BoundingBox {
	lo := c.world(Screen{X: 0, Y: c.Height})
	hi := c.world(Screen{X: c.Width, Y: 0})
	lo.Z, hi.Z = -12000, c.Altitude
	return geom.NewBoundingBox(lo, hi, geom.EPSG3857)
}

func (c *OrthoCamera) Frustum() *geom.Frustum { return geom.BoxFrustum(c.Extent()) }
