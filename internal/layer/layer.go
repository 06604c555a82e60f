// Package layer holds visualization layers and their ordering. A layer's
// position in the hierarchy (its root index) is its selection priority.
package layer

import (
	"github.com/mohammed-shakir/geotwin/internal/expr"
)

// Styler decides per-object visibility for a layer.
type Styler interface {
	Visible(objectID string, attrs expr.Feature) bool
}

type Data struct {
	Name    string
	Visible bool
	Styler  Styler

	selected bool
}

func New(name string, s Styler) *Data {
	return &Data{Name: name, Visible: true, Styler: s}
}

func (d *Data) Selected() bool { return d != nil && d.selected }

// ObjectVisible reports whether objectID can be seen and therefore selected.
// A hidden layer hides everything; without a styler every object is visible.
func (d *Data) ObjectVisible(objectID string, attrs expr.Feature) bool {
	if d == nil {
		return true
	}
	if !d.Visible {
		return false
	}
	if d.Styler == nil {
		return true
	}
	return d.Styler.Visible(objectID, attrs)
}

// Hierarchy is the ordered layer list. Index 0 is the top of the list and
// wins selection ties.
type Hierarchy struct {
	layers []*Data
}

func NewHierarchy(ls ...*Data) *Hierarchy {
	h := &Hierarchy{}
	for _, l := range ls {
		h.Add(l)
	}
	return h
}

// Add appends l at the bottom. Adding a layer twice is a no-op.
func (h *Hierarchy) Add(l *Data) {
	if l == nil || h.RootIndex(l) >= 0 {
		return
	}
	h.layers = append(h.layers, l)
}

func (h *Hierarchy) Remove(l *Data) bool {
	i := h.RootIndex(l)
	if i < 0 {
		return false
	}
	l.selected = false
	h.layers = append(h.layers[:i], h.layers[i+1:]...)
	return true
}

// Move places l at index to, clamped to the list bounds.
func (h *Hierarchy) Move(l *Data, to int) bool {
	from := h.RootIndex(l)
	if from < 0 {
		return false
	}
	to = max(0, min(to, len(h.layers)-1))
	h.layers = append(h.layers[:from], h.layers[from+1:]...)
	h.layers = append(h.layers[:to], append([]*Data{l}, h.layers[to:]...)...)
	return true
}

// RootIndex is l's position, or -1 when l is not in the hierarchy.
func (h *Hierarchy) RootIndex(l *Data) int {
	for i, x := range h.layers {
		if x == l {
			return i
		}
	}
	return -1
}

func (h *Hierarchy) ByName(name string) *Data {
	for _, l := range h.layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (h *Hierarchy) Layers() []*Data {
	out := make([]*Data, len(h.layers))
	copy(out, h.layers)
	return out
}

func (h *Hierarchy) Len() int { return len(h.layers) }

// SetSelected flags l; layers outside the hierarchy are ignored.
func (h *Hierarchy) SetSelected(l *Data, on bool) {
	if h.RootIndex(l) < 0 {
		return
	}
	l.selected = on
}

func (h *Hierarchy) Selected() []*Data {
	var out []*Data
	for _, l := range h.layers {
		if l.selected {
			out = append(out, l)
		}
	}
	return out
}
