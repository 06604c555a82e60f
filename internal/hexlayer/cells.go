// Package hexlayer renders an H3 hexagon grid as a feature layer: the cells
// covering the view become polygon mappings in the tree.
package hexlayer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
)

// average hexagon edge length in metres per resolution
var edgeLengthM = [16]float64{
	1281256.011, 483056.8391, 182512.9565, 68979.22179,
	26071.75968, 9854.090990, 3724.532667, 1406.475763,
	531.414010, 200.786148, 75.863783, 28.663897,
	10.830188, 4.092010, 1.546100, 0.584169,
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// ResolutionFor picks the finest resolution whose cells are still at least
// minPixels wide at the given scale, clamped to [minRes, maxRes].
func ResolutionFor(metersPerPixel, minPixels float64, minRes, maxRes int) int {
	res := minRes
	for r := minRes; r <= maxRes && r < len(edgeLengthM); r++ {
		if 2*edgeLengthM[r]/metersPerPixel < minPixels {
			break
		}
		res = r
	}
	return res
}

// CellsForBounds covers b (any CRS) with cells, sorted and unique.
func CellsForBounds(b geom.BoundingBox, res int) ([]h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	b = b.Convert(geom.EPSG4326)
	outer := h3.GeoLoop{
		{Lat: b.Min.Y, Lng: b.Min.X},
		{Lat: b.Min.Y, Lng: b.Max.X},
		{Lat: b.Max.Y, Lng: b.Max.X},
		{Lat: b.Max.Y, Lng: b.Min.X},
	}
	return polyfill(h3.GeoPolygon{GeoLoop: outer}, res)
}

// CellsForPolygon covers a lon/lat polygon, holes excluded.
func CellsForPolygon(p orb.Polygon, res int) ([]h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, errors.New("empty polygon")
	}
	outer := toLoop(p[0])
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		h := toLoop(p[i])
		if len(h) < 3 {
			return nil, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}
	return polyfill(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
}

// toLoop drops the closing vertex of a closed ring.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, pt := range r {
		loop = append(loop, h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()})
	}
	if len(loop) >= 2 && loop[0] == loop[len(loop)-1] {
		loop = loop[:len(loop)-1]
	}
	return loop
}

func polyfill(poly h3.GeoPolygon, res int) ([]h3.Cell, error) {
	cells, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	out := make([]h3.Cell, 0, len(cells))
	for _, c := range cells {
		if n := len(out); n > 0 && out[n-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CellPolygon returns the closed lon/lat boundary of c.
func CellPolygon(c h3.Cell) (orb.Polygon, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid h3 cell %q", c.String())
	}
	boundary, err := c.Boundary()
	if err != nil {
		return nil, fmt.Errorf("h3 boundary: %w", err)
	}
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, ll := range boundary {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}, nil
}
