package hexlayer

import (
	"testing"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
)

var stockholm = geom.NewBoundingBox(geom.Coord{X: 17.95, Y: 59.30}, geom.Coord{X: 18.15, Y: 59.40}, geom.EPSG4326)

func sortedUnique(cells []h3.Cell) bool {
	for i := 1; i < len(cells); i++ {
		if cells[i] <= cells[i-1] {
			return false
		}
	}
	return true
}

func TestCellsForBounds_SortedUniqueAndCRSIndependent(t *testing.T) {
	cells, err := CellsForBounds(stockholm, 8)
	if err != nil {
		t.Fatalf("CellsForBounds: %v", err)
	}
	if len(cells) == 0 || !sortedUnique(cells) {
		t.Fatalf("got %d cells, sorted+unique=%v", len(cells), sortedUnique(cells))
	}

	merc, err := CellsForBounds(stockholm.Convert(geom.EPSG3857), 8)
	if err != nil {
		t.Fatalf("mercator: %v", err)
	}
	if len(merc) != len(cells) {
		t.Fatalf("mercator cover=%d want %d", len(merc), len(cells))
	}

	if _, err := CellsForBounds(stockholm, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
}

func TestCellsForPolygon_SubsetOfBounds(t *testing.T) {
	poly := orb.Polygon{{{18.00, 59.32}, {18.12, 59.32}, {18.12, 59.38}, {18.00, 59.38}, {18.00, 59.32}}}
	cp, err := CellsForPolygon(poly, 9)
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	cb, err := CellsForBounds(stockholm, 9)
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if len(cp) == 0 || len(cp) > len(cb) || !sortedUnique(cp) {
		t.Fatalf("polygon cover=%d bounds cover=%d", len(cp), len(cb))
	}

	if _, err := CellsForPolygon(orb.Polygon{{}}, 8); err == nil {
		t.Fatalf("expected error for degenerate polygon")
	}
}

func TestCellPolygon_ContainsCenter(t *testing.T) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: 59.33, Lng: 18.07}, 9)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	poly, err := CellPolygon(c)
	if err != nil {
		t.Fatalf("CellPolygon: %v", err)
	}
	ring := poly[0]
	if len(ring) < 7 || ring[0] != ring[len(ring)-1] {
		t.Fatalf("ring not closed hexagon: %v", ring)
	}
	if !poly.Bound().Contains(orb.Point{18.07, 59.33}) {
		t.Fatalf("cell bound %v misses its point", poly.Bound())
	}
}

func TestResolutionFor(t *testing.T) {
	if got := ResolutionFor(1, 32, 0, 15); got != 11 {
		t.Fatalf("1 m/px -> res %d want 11", got)
	}
	if got := ResolutionFor(100, 32, 0, 15); got != 6 {
		t.Fatalf("100 m/px -> res %d want 6", got)
	}
	if got := ResolutionFor(1, 32, 5, 9); got != 9 {
		t.Fatalf("clamped res %d want 9", got)
	}
	if got := ResolutionFor(1e9, 32, 3, 9); got != 3 {
		t.Fatalf("coarse view res %d want minRes 3", got)
	}
}

func TestGrid_SyncLoadsAndUnloads(t *testing.T) {
	tree := mappingtree.New(geom.World())
	g, err := NewGrid(layer.New("hex", nil), tree, 8, nil)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	added, removed, err := g.Sync(stockholm)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if added == 0 || removed != 0 || tree.Len() != added || g.Len() != added {
		t.Fatalf("added=%d removed=%d tree=%d grid=%d", added, removed, tree.Len(), g.Len())
	}

	again, _, err := g.Sync(stockholm)
	if err != nil || again != 0 {
		t.Fatalf("second Sync added=%d err=%v", again, err)
	}

	hits := tree.QueryContainingPoint(geom.Coord{X: 18.07, Y: 59.33}, geom.EPSG4326, mapping.KindFeature)
	if len(hits) == 0 {
		t.Fatalf("no cell mapping contains the view center")
	}
	fm := hits[0].(*mapping.FeatureMapping)
	if v, _ := fm.Feature().Attribute("resolution"); v != 8.0 {
		t.Fatalf("resolution attribute=%v", v)
	}
	found := false
	for _, m := range hits {
		if m.(*mapping.FeatureMapping).Hit(geom.Coord{X: 18.07, Y: 59.33}, geom.EPSG4326, 0) {
			found = true
		}
	}
	if !found {
		t.Fatalf("no hexagon contains the view center")
	}

	moved := geom.NewBoundingBox(geom.Coord{X: 18.20, Y: 59.30}, geom.Coord{X: 18.40, Y: 59.40}, geom.EPSG4326)
	_, removed, err = g.Sync(moved)
	if err != nil || removed == 0 {
		t.Fatalf("moved Sync removed=%d err=%v", removed, err)
	}
	if tree.Len() != g.Len() {
		t.Fatalf("tree=%d grid=%d out of step", tree.Len(), g.Len())
	}

	if err := g.SetResolution(7); err != nil || g.Len() != 0 || tree.Len() != 0 {
		t.Fatalf("SetResolution left grid=%d tree=%d err=%v", g.Len(), tree.Len(), err)
	}
}

func TestGrid_Unload(t *testing.T) {
	tree := mappingtree.New(geom.World())
	g, _ := NewGrid(layer.New("hex", nil), tree, 7, nil)
	if _, err := g.Load(stockholm); err != nil {
		t.Fatalf("Load: %v", err)
	}
	n := g.Len()
	if got := g.Unload(stockholm); got != n || tree.Len() != 0 {
		t.Fatalf("Unload=%d want %d, tree=%d", got, n, tree.Len())
	}
}
