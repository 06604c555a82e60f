package style

import "github.com/mohammed-shakir/geotwin/internal/expr"

// Symbolizer is the rendering side: it receives the final color of an object.
type Symbolizer interface {
	ApplyColor(key Key, c expr.Color)
}

// SymbolizerFunc adapts a function to Symbolizer.
type SymbolizerFunc func(Key, expr.Color)

func (f SymbolizerFunc) ApplyColor(k Key, c expr.Color) { f(k, c) }

// Painter pushes resolved colors to a symbolizer whenever an override changes.
// styled supplies the rule color for a key when no override is active.
type Painter struct {
	overrides *Overrides
	styled    func(Key) expr.Color
	sym       Symbolizer
	cancel    func()
}

func NewPainter(o *Overrides, styled func(Key) expr.Color, sym Symbolizer) *Painter {
	p := &Painter{overrides: o, styled: styled, sym: sym}
	p.cancel = o.OnChanged().Subscribe(p.Paint)
	return p
}

func (p *Painter) Paint(k Key) {
	base := expr.White
	if p.styled != nil {
		base = p.styled(k)
	}
	p.sym.ApplyColor(k, p.overrides.Resolve(k, base))
}

func (p *Painter) Close() { p.cancel() }
