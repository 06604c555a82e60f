package hexlayer

import (
	"fmt"
	"log/slog"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
)

// DefaultMaxCells caps how many cells one Sync may load.
const DefaultMaxCells = 4096

// Grid keeps the hexagons covering the current view resident in the tree.
// Every cell is a feature with properties "cell" and "resolution".
type Grid struct {
	data     *layer.Data
	tree     *mappingtree.Tree
	res      int
	maxCells int
	live     map[h3.Cell]*mapping.FeatureMapping
	log      *slog.Logger
}

func NewGrid(data *layer.Data, tree *mappingtree.Tree, res int, log *slog.Logger) (*Grid, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Grid{
		data:     data,
		tree:     tree,
		res:      res,
		maxCells: DefaultMaxCells,
		live:     make(map[h3.Cell]*mapping.FeatureMapping),
		log:      log,
	}, nil
}

func (g *Grid) Layer() *layer.Data { return g.data }
func (g *Grid) Resolution() int    { return g.res }
func (g *Grid) Len() int           { return len(g.live) }

// SetResolution unloads every cell when the resolution changes; the next Sync
// loads the new grid.
func (g *Grid) SetResolution(res int) error {
	if err := validateRes(res); err != nil {
		return err
	}
	if res != g.res {
		g.UnloadAll()
		g.res = res
	}
	return nil
}

// Load inserts the cells covering view that are not resident yet.
func (g *Grid) Load(view geom.BoundingBox) (int, error) {
	cells, err := g.cover(view)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, c := range cells {
		if _, ok := g.live[c]; ok {
			continue
		}
		m, err := g.mappingFor(c)
		if err != nil {
			return added, err
		}
		if !g.tree.RootInsert(m) {
			continue
		}
		g.live[c] = m
		added++
	}
	return added, nil
}

// Unload removes resident cells whose hexagon intersects view.
func (g *Grid) Unload(view geom.BoundingBox) int {
	removed := 0
	for c, m := range g.live {
		if m.Bounds().Intersects(view.Convert(m.Bounds().CRS)) {
			g.tree.Remove(m)
			delete(g.live, c)
			removed++
		}
	}
	return removed
}

// Sync makes the resident set equal to the cells covering view.
func (g *Grid) Sync(view geom.BoundingBox) (added, removed int, err error) {
	cells, err := g.cover(view)
	if err != nil {
		return 0, 0, err
	}
	want := make(map[h3.Cell]struct{}, len(cells))
	for _, c := range cells {
		want[c] = struct{}{}
	}
	for c, m := range g.live {
		if _, ok := want[c]; !ok {
			g.tree.Remove(m)
			delete(g.live, c)
			removed++
		}
	}
	added, err = g.Load(view)
	return added, removed, err
}

func (g *Grid) UnloadAll() {
	for c, m := range g.live {
		g.tree.Remove(m)
		delete(g.live, c)
	}
}

func (g *Grid) cover(view geom.BoundingBox) ([]h3.Cell, error) {
	cells, err := CellsForBounds(view, g.res)
	if err != nil {
		return nil, err
	}
	if len(cells) > g.maxCells {
		g.log.Debug("hex grid view too large, truncating", "cells", len(cells), "max", g.maxCells, "res", g.res)
		cells = cells[:g.maxCells]
	}
	return cells, nil
}

func (g *Grid) mappingFor(c h3.Cell) (*mapping.FeatureMapping, error) {
	poly, err := CellPolygon(c)
	if err != nil {
		return nil, err
	}
	id := c.String()
	f := &mapping.Feature{
		ID:         id,
		Geometry:   poly,
		Properties: map[string]any{"cell": id, "resolution": float64(g.res)},
	}
	m, err := mapping.NewFeature("hex:"+id, g.data, f, geom.EPSG4326)
	if err != nil {
		return nil, fmt.Errorf("hex cell %s: %w", id, err)
	}
	return m, nil
}
