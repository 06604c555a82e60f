package style

import (
	"github.com/mohammed-shakir/geotwin/internal/event"
	"github.com/mohammed-shakir/geotwin/internal/expr"
)

// Key addresses one object inside one mapping.
type Key struct {
	MappingID string
	ObjectID  string
}

// Override sources used by the viewer.
const (
	SourceHighlight = "highlight"
	SourceColorize  = "colorize"
)

type entry struct {
	source string
	color  expr.Color
}

// Overrides is the shared color-override table. Several sources may
// override the same object; the latest one is shown and clearing it
// reveals the one below.
type Overrides struct {
	byKey   map[Key][]entry
	changed event.Bus[Key]
}

func NewOverrides() *Overrides {
	return &Overrides{byKey: make(map[Key][]entry)}
}

// OnChanged fires whenever the resolved color of a key may have changed.
func (o *Overrides) OnChanged() *event.Bus[Key] { return &o.changed }

func (o *Overrides) Set(source string, k Key, c expr.Color) {
	es := o.byKey[k]
	for i, e := range es {
		if e.source == source {
			es = append(es[:i], es[i+1:]...)
			break
		}
	}
	o.byKey[k] = append(es, entry{source: source, color: c})
	o.changed.Emit(k)
}

func (o *Overrides) Clear(source string, k Key) bool {
	es := o.byKey[k]
	for i, e := range es {
		if e.source != source {
			continue
		}
		es = append(es[:i], es[i+1:]...)
		if len(es) == 0 {
			delete(o.byKey, k)
		} else {
			o.byKey[k] = es
		}
		o.changed.Emit(k)
		return true
	}
	return false
}

// ClearSource drops every override set by source.
func (o *Overrides) ClearSource(source string) int {
	var keys []Key
	for k, es := range o.byKey {
		for _, e := range es {
			if e.source == source {
				keys = append(keys, k)
				break
			}
		}
	}
	for _, k := range keys {
		o.Clear(source, k)
	}
	return len(keys)
}

func (o *Overrides) Get(k Key) (expr.Color, bool) {
	es := o.byKey[k]
	if len(es) == 0 {
		return expr.Color{}, false
	}
	return es[len(es)-1].color, true
}

// Resolve returns the active override for k, or styled when there is none.
func (o *Overrides) Resolve(k Key, styled expr.Color) expr.Color {
	if c, ok := o.Get(k); ok {
		return c
	}
	return styled
}

func (o *Overrides) Len() int { return len(o.byKey) }
