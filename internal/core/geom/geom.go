// Package geom defines bounding volumes, coordinate systems and the hit tests
// shared by the mapping tree and the selectors.
package geom

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CRS tags the coordinate system a coordinate or box is expressed in.
type CRS string

const (
	// EPSG4326 is geographic lon/lat in degrees, Z in metres.
	EPSG4326 CRS = "EPSG:4326"
	// EPSG3857 is web mercator metres, Z in metres.
	EPSG3857 CRS = "EPSG:3857"
)

// mercator is undefined at the poles
const maxMercatorLat = 85.05112878

// ParseCRS accepts the EPSG codes above, case-insensitive, with or without prefix.
func ParseCRS(s string) (CRS, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EPSG:4326", "4326", "WGS84":
		return EPSG4326, nil
	case "EPSG:3857", "3857", "EPSG:900913":
		return EPSG3857, nil
	}
	return "", fmt.Errorf("unsupported coordinate system %q", s)
}

type Coord struct {
	X, Y, Z float64
}

func (c Coord) Point() orb.Point { return orb.Point{c.X, c.Y} }

// ConvertCoord reprojects c from one system to another. Z is carried unchanged.
func ConvertCoord(c Coord, from, to CRS) Coord {
	if from == to || from == "" || to == "" {
		return c
	}
	var p orb.Point
	switch {
	case from == EPSG4326 && to == EPSG3857:
		lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, c.Y))
		p = project.WGS84.ToMercator(orb.Point{c.X, lat})
	case from == EPSG3857 && to == EPSG4326:
		p = project.Mercator.ToWGS84(orb.Point{c.X, c.Y})
	default:
		return c
	}
	return Coord{X: p[0], Y: p[1], Z: c.Z}
}

// BoundingBox is an axis-aligned volume in a given coordinate system.
// Min is always the bottom-left corner, Max the top-right one.
type BoundingBox struct {
	Min, Max Coord
	CRS      CRS
}

// NewBoundingBox orders the two corners per axis.
func NewBoundingBox(a, b Coord, crs CRS) BoundingBox {
	return BoundingBox{
		Min: Coord{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: Coord{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
		CRS: crs,
	}
}

// BoxAround returns the smallest box holding every coordinate.
func BoxAround(crs CRS, cs ...Coord) BoundingBox {
	if len(cs) == 0 {
		return BoundingBox{CRS: crs}
	}
	b := BoundingBox{Min: cs[0], Max: cs[0], CRS: crs}
	for _, c := range cs[1:] {
		b = b.Expand(c)
	}
	return b
}

// FromBound lifts a planar orb bound into a flat box.
func FromBound(bd orb.Bound, crs CRS) BoundingBox {
	return NewBoundingBox(Coord{X: bd.Min[0], Y: bd.Min[1]}, Coord{X: bd.Max[0], Y: bd.Max[1]}, crs)
}

// String representation matching wfs/wms bbox format
func (b BoundingBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y, b.CRS)
}

func (b BoundingBox) IsZero() bool {
	return b.Min == Coord{} && b.Max == Coord{}
}

// Convert reprojects both corners. Both supported projections are monotonic
// per axis so the corner order survives.
func (b BoundingBox) Convert(crs CRS) BoundingBox {
	if b.CRS == crs || b.CRS == "" || crs == "" {
		return b
	}
	return NewBoundingBox(ConvertCoord(b.Min, b.CRS, crs), ConvertCoord(b.Max, b.CRS, crs), crs)
}

func (b BoundingBox) Center() Coord {
	return Coord{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

func (b BoundingBox) Width() float64  { return b.Max.X - b.Min.X }
func (b BoundingBox) Height() float64 { return b.Max.Y - b.Min.Y }

// Expand grows the box to include c, which must already be in b's system.
func (b BoundingBox) Expand(c Coord) BoundingBox {
	b.Min.X = math.Min(b.Min.X, c.X)
	b.Min.Y = math.Min(b.Min.Y, c.Y)
	b.Min.Z = math.Min(b.Min.Z, c.Z)
	b.Max.X = math.Max(b.Max.X, c.X)
	b.Max.Y = math.Max(b.Max.Y, c.Y)
	b.Max.Z = math.Max(b.Max.Z, c.Z)
	return b
}

// ContainsPoint is a 2-D (ground plane) test, boundaries inclusive.
func (b BoundingBox) ContainsPoint(c Coord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X && c.Y >= b.Min.Y && c.Y <= b.Max.Y
}

// ContainsPointIn converts c from crs before testing.
func (b BoundingBox) ContainsPointIn(c Coord, crs CRS) bool {
	return b.ContainsPoint(ConvertCoord(c, crs, b.CRS))
}

// ContainsBox reports whether o lies entirely inside b on the ground plane.
func (b BoundingBox) ContainsBox(o BoundingBox) bool {
	o = o.Convert(b.CRS)
	return o.Min.X >= b.Min.X && o.Max.X <= b.Max.X &&
		o.Min.Y >= b.Min.Y && o.Max.Y <= b.Max.Y
}

// Intersects is a 2-D overlap test, touching edges count.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	o = o.Convert(b.CRS)
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y
}

// Quadrants splits b at its ground-plane midpoints, in SW, SE, NW, NE order.
// The vertical extent is kept on every child.
func (b BoundingBox) Quadrants() [4]BoundingBox {
	c := b.Center()
	return [4]BoundingBox{
		{Min: Coord{b.Min.X, b.Min.Y, b.Min.Z}, Max: Coord{c.X, c.Y, b.Max.Z}, CRS: b.CRS},
		{Min: Coord{c.X, b.Min.Y, b.Min.Z}, Max: Coord{b.Max.X, c.Y, b.Max.Z}, CRS: b.CRS},
		{Min: Coord{b.Min.X, c.Y, b.Min.Z}, Max: Coord{c.X, b.Max.Y, b.Max.Z}, CRS: b.CRS},
		{Min: Coord{c.X, c.Y, b.Min.Z}, Max: Coord{b.Max.X, b.Max.Y, b.Max.Z}, CRS: b.CRS},
	}
}

// Bound returns the ground-plane footprint as an orb bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.Min.X, b.Min.Y}, Max: orb.Point{b.Max.X, b.Max.Y}}
}

// World is the whole geographic domain.
func World() BoundingBox {
	return BoundingBox{
		Min: Coord{X: -180, Y: -90, Z: -12000},
		Max: Coord{X: 180, Y: 90, Z: 12000},
		CRS: EPSG4326,
	}
}
