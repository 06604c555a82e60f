// Package mappingtree is an adaptive quadtree over mappings. Streaming tile
// content inserts and removes entries incrementally; nodes split when they
// overflow and merge back once their children empty out.
package mappingtree

import (
	"log/slog"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/event"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
)

const (
	DefaultMaxMappings = 16
	DefaultMaxDepth    = 12

	// Subdivision and all node bounds live in this system so that quadrant
	// midpoints mean the same thing whatever the tree's native system is.
	refCRS = geom.EPSG4326
)

type node struct {
	bounds   geom.BoundingBox
	depth    int
	mappings []mapping.Mapping
	children []*node // nil for a leaf, otherwise exactly 4
}

func (n *node) leaf() bool { return n.children == nil }

type Stats struct {
	Mappings     int
	Nodes        int
	Leaves       int
	Depth        int
	Subdivisions int
	Merges       int
}

// Tree is not safe for concurrent use; it belongs to the frame thread.
type Tree struct {
	root        *node
	crs         geom.CRS
	maxMappings int
	maxDepth    int
	log         *slog.Logger

	// boxes remembers each entry's reference box from insert time so that
	// Remove finds it even if the mapping's geometry changed since.
	boxes   map[mapping.Mapping]geom.BoundingBox
	scratch []mapping.Mapping
	nodes   int
	subdivs int
	merges  int

	added   event.Bus[mapping.Mapping]
	removed event.Bus[mapping.Mapping]
}

type Option func(*Tree)

func WithMaxMappings(n int) Option {
	return func(t *Tree) {
		if n > 0 {
			t.maxMappings = n
		}
	}
}

func WithMaxDepth(d int) Option {
	return func(t *Tree) {
		if d >= 0 {
			t.maxDepth = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.log = l
		}
	}
}

// New builds an empty tree covering bounds. The bounds' own system is the
// tree's native system, used when reporting.
func New(bounds geom.BoundingBox, opts ...Option) *Tree {
	t := &Tree{
		crs:         bounds.CRS,
		maxMappings: DefaultMaxMappings,
		maxDepth:    DefaultMaxDepth,
		log:         slog.Default(),
		boxes:       make(map[mapping.Mapping]geom.BoundingBox),
	}
	for _, o := range opts {
		o(t)
	}
	t.root = &node{bounds: bounds.Convert(refCRS)}
	t.nodes = 1
	t.report()
	return t
}

// OnAdded fires once per successful RootInsert.
func (t *Tree) OnAdded() *event.Bus[mapping.Mapping] { return &t.added }

// OnRemoved fires once per Remove that actually removed something.
func (t *Tree) OnRemoved() *event.Bus[mapping.Mapping] { return &t.removed }

func (t *Tree) Bounds() geom.BoundingBox { return t.root.bounds.Convert(t.crs) }

func (t *Tree) Len() int { return len(t.boxes) }

// Contains reports whether m is currently indexed.
func (t *Tree) Contains(m mapping.Mapping) bool {
	_, ok := t.boxes[m]
	return ok
}

// RootInsert adds m. A mapping outside the tree's domain, or one already in
// the tree, is ignored and false is returned; neither is an error.
func (t *Tree) RootInsert(m mapping.Mapping) bool {
	if m == nil {
		return false
	}
	if _, dup := t.boxes[m]; dup {
		return false
	}
	box := m.Bounds().Convert(refCRS)
	if !t.insert(t.root, m, box) {
		t.log.Debug("mapping outside tree bounds", "id", m.ID(), "bounds", m.Bounds().String())
		return false
	}
	t.boxes[m] = box
	t.report()
	t.added.Emit(m)
	return true
}

func (t *Tree) insert(n *node, m mapping.Mapping, box geom.BoundingBox) bool {
	if !n.bounds.Intersects(box) {
		return false
	}
	if !n.leaf() {
		for _, c := range n.children {
			if c.bounds.ContainsBox(box) {
				return t.insert(c, m, box)
			}
		}
		// straddles a midline: stays here
		n.mappings = append(n.mappings, m)
		return true
	}
	n.mappings = append(n.mappings, m)
	if len(n.mappings) > t.maxMappings && n.depth < t.maxDepth && couldFitInChild(n, box) {
		t.subdivide(n)
	}
	return true
}

func couldFitInChild(n *node, box geom.BoundingBox) bool {
	for _, q := range n.bounds.Quadrants() {
		if q.ContainsBox(box) {
			return true
		}
	}
	return false
}

// subdivide splits n and pushes its entries back through the root. Entries
// are staged on the shared scratch buffer; re-insertion may subdivide a child
// in turn, which stacks its own entries above ours.
func (t *Tree) subdivide(n *node) {
	qs := n.bounds.Quadrants()
	n.children = make([]*node, 4)
	for i := range qs {
		n.children[i] = &node{bounds: qs[i], depth: n.depth + 1}
	}
	t.nodes += 4
	t.subdivs++
	observability.IncTreeSubdivision()

	start := len(t.scratch)
	t.scratch = append(t.scratch, n.mappings...)
	end := len(t.scratch)
	clear(n.mappings)
	n.mappings = n.mappings[:0]

	for i := start; i < end; i++ {
		m := t.scratch[i]
		box, ok := t.boxes[m]
		if !ok {
			// the entry that triggered this split is not recorded yet
			box = m.Bounds().Convert(refCRS)
		}
		t.insert(t.root, m, box)
	}
	clear(t.scratch[start:])
	t.scratch = t.scratch[:start]
}

// Remove deletes m, searching only nodes whose bounds hold its box. Removing
// an absent mapping is a no-op that returns false.
func (t *Tree) Remove(m mapping.Mapping) bool {
	box, ok := t.boxes[m]
	if !ok {
		return false
	}
	if !t.remove(t.root, m, box) {
		// indexed but not found by bounds: the tree is inconsistent
		t.log.Warn("indexed mapping not found in tree", "id", m.ID())
		return false
	}
	delete(t.boxes, m)
	t.report()
	t.removed.Emit(m)
	return true
}

func (t *Tree) remove(n *node, m mapping.Mapping, box geom.BoundingBox) bool {
	if !n.bounds.Intersects(box) {
		return false
	}
	for i, x := range n.mappings {
		if x == m {
			last := len(n.mappings) - 1
			copy(n.mappings[i:], n.mappings[i+1:])
			n.mappings[last] = nil
			n.mappings = n.mappings[:last]
			return true
		}
	}
	for _, c := range n.children {
		if t.remove(c, m, box) {
			t.tryMerge(n)
			return true
		}
	}
	return false
}

// tryMerge turns n back into a leaf once all four children are empty leaves.
func (t *Tree) tryMerge(n *node) {
	if n.leaf() {
		return
	}
	for _, c := range n.children {
		if !c.leaf() || len(c.mappings) > 0 {
			return
		}
	}
	n.children = nil
	t.nodes -= 4
	t.merges++
	observability.IncTreeMerge()
}

func (t *Tree) report() {
	observability.SetTreeSize(len(t.boxes), t.nodes)
}

// Stats walks the tree; it is meant for diagnostics, not the frame loop.
func (t *Tree) Stats() Stats {
	s := Stats{Mappings: len(t.boxes), Subdivisions: t.subdivs, Merges: t.merges}
	var walk func(n *node)
	walk = func(n *node) {
		s.Nodes++
		s.Depth = max(s.Depth, n.depth)
		if n.leaf() {
			s.Leaves++
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return s
}

// Walk visits every node pre-order with its bounds (in the tree's native
// system), depth and entries. Returning false stops the walk.
func (t *Tree) Walk(fn func(bounds geom.BoundingBox, depth int, entries []mapping.Mapping) bool) {
	var walk func(n *node) bool
	walk = func(n *node) bool {
		if !fn(n.bounds.Convert(t.crs), n.depth, n.mappings) {
			return false
		}
		for _, c := range n.children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(t.root)
}
