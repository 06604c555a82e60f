package selection

import (
	"testing"
	"time"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
)

func TestPointer_ClickWithinThreshold(t *testing.T) {
	p := NewPointer(4)
	p.Press(Screen{X: 10, Y: 10})
	p.Move(Screen{X: 12, Y: 11})
	p.Release(Screen{X: 12, Y: 11})
	clicks := p.Update(time.Millisecond)
	if len(clicks) != 1 || clicks[0] != (Screen{X: 12, Y: 11}) {
		t.Fatalf("clicks=%v", clicks)
	}
	if got := p.Update(time.Millisecond); len(got) != 0 {
		t.Fatalf("queue not drained: %v", got)
	}
}

func TestPointer_DragAcrossFrames(t *testing.T) {
	p := NewPointer(4)
	p.Press(Screen{X: 0, Y: 0})
	p.Update(10 * time.Millisecond)
	p.Move(Screen{X: 10, Y: 0})
	p.Update(10 * time.Millisecond)
	if !p.Dragging() || p.Held() != 10*time.Millisecond {
		t.Fatalf("dragging=%v held=%v", p.Dragging(), p.Held())
	}
	// coming back near the press point does not turn a drag into a click
	p.Move(Screen{X: 1, Y: 0})
	p.Release(Screen{X: 1, Y: 0})
	if clicks := p.Update(10 * time.Millisecond); len(clicks) != 0 {
		t.Fatalf("drag produced clicks: %v", clicks)
	}
	if p.Dragging() {
		t.Fatalf("release must reset state")
	}
}

func TestPointer_ReleaseWithoutPress(t *testing.T) {
	p := NewPointer(0)
	p.Release(Screen{})
	if clicks := p.Update(0); len(clicks) != 0 {
		t.Fatalf("stray release produced a click")
	}
}

func TestOrthoCamera_RoundTrip(t *testing.T) {
	cam := NewOrthoCamera(18.07, 59.33, 2, 800, 600)
	w := geom.Coord{X: 18.071, Y: 59.329}
	s := cam.ScreenAt(w, geom.EPSG4326)
	g, ok := cam.ScreenRay(s).GroundPoint()
	if !ok {
		t.Fatalf("ray does not reach the ground")
	}
	back := geom.ConvertCoord(g, geom.EPSG3857, geom.EPSG4326)
	if d := back.X - w.X; d > 1e-9 || d < -1e-9 {
		t.Fatalf("lon drift %g", d)
	}
	if d := back.Y - w.Y; d > 1e-9 || d < -1e-9 {
		t.Fatalf("lat drift %g", d)
	}
	if !cam.Extent().ContainsPointIn(w, geom.EPSG4326) {
		t.Fatalf("point not inside visible extent")
	}
}
