package layer

import (
	"testing"

	"github.com/mohammed-shakir/geotwin/internal/expr"
)

type hideStyler map[string]bool

func (h hideStyler) Visible(id string, _ expr.Feature) bool { return !h[id] }

func names(ls []*Data) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out
}

func TestHierarchy_OrderAndMove(t *testing.T) {
	a, b, c := New("a", nil), New("b", nil), New("c", nil)
	h := NewHierarchy(a, b, c)
	h.Add(a)
	if h.Len() != 3 {
		t.Fatalf("duplicate add changed len: %d", h.Len())
	}
	if h.RootIndex(c) != 2 || h.RootIndex(New("x", nil)) != -1 {
		t.Fatalf("unexpected root indexes")
	}

	h.Move(c, 0)
	if got := names(h.Layers()); got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("after move: %v", got)
	}
	h.Move(c, 99)
	if got := names(h.Layers()); got[2] != "c" {
		t.Fatalf("move past end must clamp: %v", got)
	}
	if !h.Remove(a) || h.Remove(a) {
		t.Fatalf("remove must succeed once")
	}
	if h.ByName("b") != b || h.ByName("a") != nil {
		t.Fatalf("ByName mismatch")
	}
}

func TestHierarchy_Selected(t *testing.T) {
	a, b := New("a", nil), New("b", nil)
	h := NewHierarchy(a, b)
	h.SetSelected(b, true)
	h.SetSelected(New("stray", nil), true)
	if sel := h.Selected(); len(sel) != 1 || sel[0] != b {
		t.Fatalf("selected=%v", names(sel))
	}
	h.Remove(b)
	if b.Selected() {
		t.Fatalf("removed layer must not stay selected")
	}
}

func TestObjectVisible(t *testing.T) {
	l := New("buildings", hideStyler{"b2": true})
	if !l.ObjectVisible("b1", nil) || l.ObjectVisible("b2", nil) {
		t.Fatalf("styler not consulted")
	}
	l.Visible = false
	if l.ObjectVisible("b1", nil) {
		t.Fatalf("hidden layer must hide every object")
	}
	var nilLayer *Data
	if !nilLayer.ObjectVisible("x", nil) {
		t.Fatalf("nil layer treated as visible")
	}
}
