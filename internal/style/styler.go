// Package style turns feature attributes into colors and visibility, and
// holds the color overrides (highlight, colorization) layered on top.
package style

import (
	"log/slog"

	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/expr"
)

// AttributeSource supplies extra attributes per object, for example a CSV
// table keyed by building id. They take precedence over feature properties.
type AttributeSource interface {
	Attributes(objectID string) (map[string]any, bool)
}

// Colorer is implemented by stylers that also compute a fill color.
type Colorer interface {
	Color(objectID string, attrs expr.Feature) expr.Color
}

// ExpressionStyler evaluates a color rule and a visibility rule per object.
// A rule that fails to evaluate does not apply: the default color is used and
// the object stays visible.
type ExpressionStyler struct {
	name     string
	color    *expr.Expression
	visible  *expr.Expression
	fallback expr.Color
	source   AttributeSource
	ev       expr.Evaluator
	log      *slog.Logger
}

type Option func(*ExpressionStyler)

func WithColorRule(e *expr.Expression) Option   { return func(s *ExpressionStyler) { s.color = e } }
func WithVisibleRule(e *expr.Expression) Option { return func(s *ExpressionStyler) { s.visible = e } }
func WithDefaultColor(c expr.Color) Option      { return func(s *ExpressionStyler) { s.fallback = c } }
func WithAttributes(src AttributeSource) Option { return func(s *ExpressionStyler) { s.source = src } }

func WithLogger(l *slog.Logger) Option {
	return func(s *ExpressionStyler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewExpressionStyler(name string, opts ...Option) *ExpressionStyler {
	s := &ExpressionStyler{name: name, fallback: expr.White, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ExpressionStyler) Name() string { return s.name }

// SetAttributes swaps the attribute source, e.g. after a CSV reload.
func (s *ExpressionStyler) SetAttributes(src AttributeSource) { s.source = src }

func (s *ExpressionStyler) Color(objectID string, attrs expr.Feature) expr.Color {
	if s.color == nil {
		return s.fallback
	}
	v, err := s.ev.Evaluate(s.color, expr.NewContext(s.feature(objectID, attrs)))
	if err != nil {
		s.skip("color", objectID, err)
		return s.fallback
	}
	if c, ok := v.Color(); ok {
		return c
	}
	if str, ok := v.Str(); ok {
		if c, err := expr.ParseColor(str); err == nil {
			return c
		}
	}
	s.log.Debug("color rule produced no color", "layer", s.name, "object", objectID, "kind", v.Kind().String())
	observability.IncExprError("color")
	return s.fallback
}

func (s *ExpressionStyler) Visible(objectID string, attrs expr.Feature) bool {
	if s.visible == nil {
		return true
	}
	v, err := s.ev.Evaluate(s.visible, expr.NewContext(s.feature(objectID, attrs)))
	if err != nil {
		s.skip("visible", objectID, err)
		return true
	}
	b, ok := v.Bool()
	if !ok {
		s.log.Debug("visibility rule produced no boolean", "layer", s.name, "object", objectID, "kind", v.Kind().String())
		observability.IncExprError("visible")
		return true
	}
	return b
}

func (s *ExpressionStyler) skip(rule, objectID string, err error) {
	s.log.Debug("style rule does not apply", "layer", s.name, "rule", rule, "object", objectID, "err", err)
	observability.IncExprError(rule)
}

// feature merges the attribute source over attrs. With neither present it
// returns nil, so attribute lookups fail the rule instead of reading nulls.
func (s *ExpressionStyler) feature(objectID string, attrs expr.Feature) expr.Feature {
	var extra map[string]any
	if s.source != nil {
		extra, _ = s.source.Attributes(objectID)
	}
	if extra == nil {
		return attrs
	}
	return merged{base: attrs, extra: extra}
}

type merged struct {
	base  expr.Feature
	extra map[string]any
}

func (m merged) Attribute(name string) (any, bool) {
	if v, ok := m.extra[name]; ok {
		return v, true
	}
	if m.base == nil {
		return nil, false
	}
	return m.base.Attribute(name)
}
