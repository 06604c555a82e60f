package mappingtree

import (
	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
)

// Query returns the mappings of the given kinds held by every node that
// overlaps area. This is node-level: callers needing precision must still
// check each mapping's own bounds. An empty result only means nothing is
// loaded there right now.
func (t *Tree) Query(area geom.BoundingBox, kinds mapping.Kind) []mapping.Mapping {
	observability.IncTreeQuery("area")
	box := area.Convert(refCRS)
	var out []mapping.Mapping
	t.collect(t.root, kinds, &out, func(n *node) bool { return n.bounds.Intersects(box) }, nil)
	return out
}

// QueryPoint is Query for the nodes containing c (given in crs).
func (t *Tree) QueryPoint(c geom.Coord, crs geom.CRS, kinds mapping.Kind) []mapping.Mapping {
	observability.IncTreeQuery("point")
	p := geom.ConvertCoord(c, crs, refCRS)
	var out []mapping.Mapping
	t.collect(t.root, kinds, &out, func(n *node) bool { return n.bounds.ContainsPoint(p) }, nil)
	return out
}

// QueryContainingPoint narrows QueryPoint to mappings whose own bounds
// contain c on the ground plane.
func (t *Tree) QueryContainingPoint(c geom.Coord, crs geom.CRS, kinds mapping.Kind) []mapping.Mapping {
	observability.IncTreeQuery("containing")
	p := geom.ConvertCoord(c, crs, refCRS)
	var out []mapping.Mapping
	t.collect(t.root, kinds, &out,
		func(n *node) bool { return n.bounds.ContainsPoint(p) },
		func(m mapping.Mapping) bool { return t.boxes[m].ContainsPoint(p) },
	)
	return out
}

// collect is a pre-order walk: visit decides whether a node (and therefore its
// subtree) is relevant, keep optionally filters entries.
func (t *Tree) collect(n *node, kinds mapping.Kind, out *[]mapping.Mapping, visit func(*node) bool, keep func(mapping.Mapping) bool) {
	if !visit(n) {
		return
	}
	for _, m := range n.mappings {
		if !kinds.Has(m.Kind()) {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		*out = append(*out, m)
	}
	for _, c := range n.children {
		t.collect(c, kinds, out, visit, keep)
	}
}
