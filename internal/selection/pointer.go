package selection

import (
	"math"
	"time"
)

// Screen is a pointer position in pixels, origin top-left.
type Screen struct {
	X, Y float64
}

func (s Screen) Dist(o Screen) float64 { return math.Hypot(s.X-o.X, s.Y-o.Y) }

type pointerState uint8

const (
	pointerIdle pointerState = iota
	pointerPressed
	pointerDragging
)

type inputKind uint8

const (
	inputPress inputKind = iota
	inputMove
	inputRelease
)

type input struct {
	kind inputKind
	at   Screen
}

// DefaultDragThreshold is how far, in pixels, the pointer may travel between
// press and release and still count as a click.
const DefaultDragThreshold = 4.0

// Pointer turns raw press/move/release edges into clicks. Input is queued as
// it arrives and consumed once per frame by Update, so a press and release
// landing in the same frame still produce a click.
type Pointer struct {
	DragThreshold float64

	state   pointerState
	pressAt Screen
	held    time.Duration
	queue   []input
}

func NewPointer(threshold float64) *Pointer {
	if threshold <= 0 {
		threshold = DefaultDragThreshold
	}
	return &Pointer{DragThreshold: threshold}
}

func (p *Pointer) Press(at Screen)   { p.queue = append(p.queue, input{kind: inputPress, at: at}) }
func (p *Pointer) Move(at Screen)    { p.queue = append(p.queue, input{kind: inputMove, at: at}) }
func (p *Pointer) Release(at Screen) { p.queue = append(p.queue, input{kind: inputRelease, at: at}) }

// Dragging reports whether the button is down and has moved past the threshold.
func (p *Pointer) Dragging() bool { return p.state == pointerDragging }

// Held is how long the button has been down, counted in frame time.
func (p *Pointer) Held() time.Duration { return p.held }

// Update advances the state machine by one frame and returns the clicks
// completed during it, in order.
func (p *Pointer) Update(dt time.Duration) []Screen {
	if p.state != pointerIdle {
		p.held += dt
	}
	var clicks []Screen
	for _, in := range p.queue {
		switch in.kind {
		case inputPress:
			p.state = pointerPressed
			p.pressAt = in.at
			p.held = 0
		case inputMove:
			if p.state == pointerPressed && in.at.Dist(p.pressAt) > p.DragThreshold {
				p.state = pointerDragging
			}
		case inputRelease:
			if p.state == pointerPressed && in.at.Dist(p.pressAt) <= p.DragThreshold {
				clicks = append(clicks, in.at)
			}
			p.state = pointerIdle
			p.held = 0
		}
	}
	clear(p.queue)
	p.queue = p.queue[:0]
	return clicks
}
