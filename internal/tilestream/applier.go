package tilestream

import (
	"log/slog"
	"maps"

	obs "github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
)

// DefaultMaxPerFrame bounds the work Drain does in a single frame.
const DefaultMaxPerFrame = 256

// Applier turns queued events into tree inserts and removals. It is not safe
// for concurrent use and must only be driven from the frame thread.
type Applier struct {
	queue  *Queue
	tree   *mappingtree.Tree
	layers *layer.Hierarchy
	dedupe *revisionDedupe
	live   map[string]*mapping.FeatureMapping
	log    *slog.Logger
}

func NewApplier(q *Queue, tree *mappingtree.Tree, layers *layer.Hierarchy, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{
		queue:  q,
		tree:   tree,
		layers: layers,
		dedupe: newRevisionDedupe(0),
		live:   make(map[string]*mapping.FeatureMapping),
		log:    log,
	}
}

// Drain applies at most max queued events (DefaultMaxPerFrame when max <= 0)
// and reports how many were taken off the queue.
func (a *Applier) Drain(max int) int {
	if max <= 0 {
		max = DefaultMaxPerFrame
	}
	n := 0
	for ; n < max; n++ {
		ev, ok := a.queue.TryPop()
		if !ok {
			break
		}
		obs.IncTileEvent(ev.Op, a.Apply(ev))
	}
	return n
}

// Apply applies one event and returns its outcome label.
func (a *Applier) Apply(ev Event) string {
	key := ev.Key()
	if !a.dedupe.shouldApply(key, ev.Revision) {
		return "stale"
	}
	switch ev.Op {
	case OpLoad:
		return a.load(key, ev)
	case OpUnload:
		m, ok := a.live[key]
		if !ok {
			return "missing"
		}
		delete(a.live, key)
		a.tree.Remove(m)
		return "applied"
	}
	return "invalid"
}

func (a *Applier) load(key string, ev Event) string {
	l := a.layers.ByName(ev.Layer)
	if l == nil {
		return "unknown_layer"
	}
	g, crs, err := ev.Shape()
	if err != nil {
		a.log.Warn("tile event geometry", "layer", ev.Layer, "feature", ev.FeatureID, "err", err)
		return "invalid"
	}
	f := &mapping.Feature{ID: ev.FeatureID, Geometry: g, Properties: maps.Clone(ev.Properties)}
	m, err := mapping.NewFeature(key, l, f, crs)
	if err != nil {
		return "invalid"
	}

	// a reload replaces the resident instance
	if old, ok := a.live[key]; ok {
		delete(a.live, key)
		a.tree.Remove(old)
	}
	if !a.tree.RootInsert(m) {
		a.log.Debug("tile feature outside tree bounds", "layer", ev.Layer, "feature", ev.FeatureID)
		return "rejected"
	}
	a.live[key] = m
	return "applied"
}

// Resident returns the number of streamed features currently in the tree.
func (a *Applier) Resident() int { return len(a.live) }

// UnloadLayer evicts every streamed feature of layer. Their revisions are
// forgotten, so replaying the topic loads them again.
func (a *Applier) UnloadLayer(name string) int {
	n := 0
	for key, m := range a.live {
		if m.Layer() != nil && m.Layer().Name == name {
			delete(a.live, key)
			a.dedupe.forget(key)
			a.tree.Remove(m)
			n++
		}
	}
	return n
}
