// Package selection resolves pointer clicks to a single selected mapping and
// lets repeated clicks on the same spot cycle through overlapping candidates.
package selection

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/event"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
	"github.com/mohammed-shakir/geotwin/internal/style"
)

type Config struct {
	// MinClickDistance in pixels: clicks closer than this to the previous
	// one count as the same spot.
	MinClickDistance float64
	// RepeatWindow is the longest gap between same-spot clicks that still
	// cycles instead of querying afresh.
	RepeatWindow            time.Duration
	FilterDuplicateFeatures bool
	HighlightColor          expr.Color
	// PickTolerance in metres for point and line features.
	PickTolerance  float64
	MaxRayDistance float64
	DragThreshold  float64
}

func DefaultConfig() Config {
	return Config{
		MinClickDistance:        5,
		RepeatWindow:            2 * time.Second,
		FilterDuplicateFeatures: true,
		HighlightColor:          expr.Color{R: 255, G: 215, B: 0, A: 1},
		PickTolerance:           3,
		MaxRayDistance:          DefaultMaxRayDistance,
		DragThreshold:           DefaultDragThreshold,
	}
}

// Selection is the resolved result of a click or a programmatic select.
type Selection struct {
	Mapping  mapping.Mapping
	ObjectID string
	Layer    *layer.Data
	Hit      geom.Coord
}

func (s Selection) Key() style.Key {
	return style.Key{MappingID: s.Mapping.ID(), ObjectID: s.ObjectID}
}

func (s Selection) same(o Selection) bool {
	return s.Mapping == o.Mapping && s.ObjectID == o.ObjectID
}

// Sink receives selection changes, e.g. to publish them elsewhere.
type Sink interface {
	Publish(ev Event)
}

type Event struct {
	Type      string    `json:"type"` // select or deselect
	Layer     string    `json:"layer"`
	MappingID string    `json:"mapping_id"`
	ObjectID  string    `json:"object_id"`
	At        time.Time `json:"at"`
}

type pending struct {
	layer    *layer.Data
	objectID string
	// unloaded is the selection whose mapping streamed out; nil for a
	// programmatic select that never resolved.
	unloaded *Selection
}

type Service struct {
	cfg       Config
	tree      *mappingtree.Tree
	hierarchy *layer.Hierarchy
	overrides *style.Overrides
	camera    Camera
	meshes    *SubObjectSelector
	features  *FeatureSelector
	pointer   *Pointer
	tools     *Tools
	sink      Sink
	now       func() time.Time
	log       *slog.Logger

	hasLast    bool
	lastClick  Screen
	lastTime   time.Time
	candidates []Candidate
	index      int

	current *Selection
	pending *pending

	selected   event.Bus[Selection]
	deselected event.Bus[Selection]
	cancels    []func()
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithSink(sink Sink) Option             { return func(s *Service) { s.sink = sink } }
func WithTools(t *Tools) Option             { return func(s *Service) { s.tools = t } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the selectors to the shared tree, layer hierarchy and
// override table. It listens to the tree so that selections survive tiles
// streaming out and back in.
func NewService(t *mappingtree.Tree, h *layer.Hierarchy, o *style.Overrides, cam Camera, cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		tree:      t,
		hierarchy: h,
		overrides: o,
		camera:    cam,
		meshes:    NewSubObjectSelector(t, cfg.MaxRayDistance),
		features:  NewFeatureSelector(t, cfg.PickTolerance),
		pointer:   NewPointer(cfg.DragThreshold),
		tools:     &Tools{},
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cancels = append(s.cancels,
		t.OnAdded().Subscribe(s.onAdded),
		t.OnRemoved().Subscribe(s.onRemoved),
	)
	return s
}

func (s *Service) Close() {
	for _, c := range s.cancels {
		c()
	}
	s.cancels = nil
}

func (s *Service) OnSelected() *event.Bus[Selection]   { return &s.selected }
func (s *Service) OnDeselected() *event.Bus[Selection] { return &s.deselected }
func (s *Service) Pointer() *Pointer                   { return s.pointer }
func (s *Service) Tools() *Tools                       { return s.tools }
func (s *Service) Camera() Camera                      { return s.camera }
func (s *Service) SetCamera(c Camera)                  { s.camera = c }

func (s *Service) Current() (Selection, bool) {
	if s.current == nil {
		return Selection{}, false
	}
	return *s.current, true
}

// Pending returns the object waiting for its tile to load, if any.
func (s *Service) Pending() (l *layer.Data, objectID string, ok bool) {
	if s.pending == nil {
		return nil, "", false
	}
	return s.pending.layer, s.pending.objectID, true
}

// Candidates is the ordered list the next same-spot click cycles through.
func (s *Service) Candidates() []Candidate {
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Update runs once per frame: it feeds completed clicks through the
// selection protocol and drops a selection whose object became invisible.
func (s *Service) Update(dt time.Duration) {
	for _, c := range s.pointer.Update(dt) {
		s.Click(c)
	}
	if s.current != nil && !s.visible(s.current.Mapping, s.current.ObjectID) {
		s.log.Debug("selected object hidden, clearing", "object", s.current.ObjectID)
		s.Deselect()
	}
}

// Click runs the selection protocol for a completed click at screen
// position at and returns the resulting selection.
func (s *Service) Click(at Screen) (Selection, bool) {
	if !s.tools.AnyOpen() {
		observability.IncSelection("ignored")
		return Selection{}, false
	}
	now := s.now()
	same := s.hasLast &&
		at.Dist(s.lastClick) <= s.cfg.MinClickDistance &&
		now.Sub(s.lastTime) <= s.cfg.RepeatWindow &&
		len(s.candidates) > 0
	s.hasLast, s.lastClick, s.lastTime = true, at, now

	if same {
		if c, ok := s.advance(); ok {
			s.choose(c, "cycled")
			return *s.current, true
		}
	}

	s.candidates = s.gather(at)
	s.index = 0
	observability.ObserveSelectionCandidates(len(s.candidates))
	if len(s.candidates) == 0 {
		s.Deselect()
		return Selection{}, false
	}
	s.choose(s.candidates[0], "selected")
	return *s.current, true
}

// advance moves to the next candidate that is still loaded and visible,
// wrapping around the list.
func (s *Service) advance() (Candidate, bool) {
	n := len(s.candidates)
	for step := 1; step <= n; step++ {
		i := (s.index + step) % n
		c := s.candidates[i]
		if s.tree.Contains(c.Mapping) && s.visible(c.Mapping, c.ObjectID) {
			s.index = i
			return c, true
		}
	}
	return Candidate{}, false
}

func (s *Service) gather(at Screen) []Candidate {
	if s.camera == nil {
		return nil
	}
	ray := s.camera.ScreenRay(at)
	fr := s.camera.Frustum()

	meshes := s.meshes.Select(ray, fr)
	features := s.features.Select(ray, fr)

	var blocking []Candidate
	if len(meshes) > 0 {
		// features hidden under the nearest mesh, e.g. a point on a roof
		for _, c := range s.features.SelectAt(meshes[0].Hit, ray.CRS, fr) {
			c.Blocking = true
			blocking = append(blocking, c)
		}
	}

	rest := append(meshes, features...)
	blocking = s.filter(blocking)
	rest = s.filter(rest)
	s.order(blocking)
	s.order(rest)

	out := s.dedupe(append(blocking, rest...))
	return out
}

// filter drops candidates the layer styler hides.
func (s *Service) filter(cs []Candidate) []Candidate {
	out := cs[:0]
	for _, c := range cs {
		if s.visible(c.Mapping, c.ObjectID) {
			out = append(out, c)
		}
	}
	return out
}

// order sorts by layer root index; layers outside the hierarchy sort last.
// Ties keep gather order (nearest mesh first).
func (s *Service) order(cs []Candidate) {
	rank := func(c Candidate) int {
		if i := s.hierarchy.RootIndex(c.Mapping.Layer()); i >= 0 {
			return i
		}
		return math.MaxInt
	}
	sort.SliceStable(cs, func(i, j int) bool { return rank(cs[i]) < rank(cs[j]) })
}

type dupKey struct {
	layer  *layer.Data
	object string
}

// dedupe keeps the first instance of each mapping/object pair and, when
// FilterDuplicateFeatures is set, the first instance of each logical feature
// split across several mappings.
func (s *Service) dedupe(cs []Candidate) []Candidate {
	seen := make(map[style.Key]bool, len(cs))
	seenFeature := make(map[dupKey]bool)
	out := cs[:0]
	for _, c := range cs {
		k := style.Key{MappingID: c.Mapping.ID(), ObjectID: c.ObjectID}
		if seen[k] {
			continue
		}
		seen[k] = true
		if s.cfg.FilterDuplicateFeatures && c.Mapping.Kind() == mapping.KindFeature && c.ObjectID != "" {
			fk := dupKey{layer: c.Mapping.Layer(), object: c.ObjectID}
			if seenFeature[fk] {
				continue
			}
			seenFeature[fk] = true
		}
		out = append(out, c)
	}
	return out
}

func (s *Service) visible(m mapping.Mapping, objectID string) bool {
	var attrs expr.Feature
	if fm, ok := m.(*mapping.FeatureMapping); ok {
		attrs = fm.Feature()
	}
	return m.Layer().ObjectVisible(objectID, attrs)
}

func (s *Service) choose(c Candidate, outcome string) {
	s.apply(Selection{Mapping: c.Mapping, ObjectID: c.ObjectID, Layer: c.Mapping.Layer(), Hit: c.Hit}, outcome)
}

// apply makes sel current. Re-selecting the current selection is a no-op.
func (s *Service) apply(sel Selection, outcome string) {
	if s.current != nil && s.current.same(sel) {
		return
	}
	if s.current != nil {
		s.unmark(*s.current)
	}
	s.current = &sel
	s.pending = nil
	s.overrides.Set(style.SourceHighlight, sel.Key(), s.cfg.HighlightColor)
	s.hierarchy.SetSelected(sel.Layer, true)
	observability.IncSelection(outcome)
	s.log.Debug("selected", "outcome", outcome, "mapping", sel.Mapping.ID(), "object", sel.ObjectID)
	s.selected.Emit(sel)
	s.publish("select", sel)
}

func (s *Service) unmark(sel Selection) {
	s.overrides.Clear(style.SourceHighlight, sel.Key())
	s.hierarchy.SetSelected(sel.Layer, false)
}

// Deselect clears the active selection. The deselect event fires only when
// something was selected, including a selection parked by a tile unload.
func (s *Service) Deselect() {
	var old Selection
	switch {
	case s.current != nil:
		old = *s.current
		s.current = nil
		s.unmark(old)
	case s.pending != nil && s.pending.unloaded != nil:
		old = *s.pending.unloaded
	default:
		s.pending = nil
		return
	}
	s.pending = nil
	observability.IncSelection("deselected")
	s.deselected.Emit(old)
	s.publish("deselect", old)
}

// SelectObject selects objectID of layer l without a click. If no loaded
// mapping holds it yet the request stays pending until one is added to the
// tree. It reports whether the object was found immediately.
func (s *Service) SelectObject(l *layer.Data, objectID string) bool {
	s.candidates, s.index = nil, 0
	if m := s.find(l, objectID); m != nil {
		s.apply(Selection{Mapping: m, ObjectID: objectID, Layer: l}, "selected")
		return true
	}
	s.Deselect()
	s.pending = &pending{layer: l, objectID: objectID}
	observability.IncSelection("pending")
	return false
}

func (s *Service) find(l *layer.Data, objectID string) mapping.Mapping {
	var found mapping.Mapping
	s.tree.Walk(func(_ geom.BoundingBox, _ int, entries []mapping.Mapping) bool {
		for _, m := range entries {
			if holds(m, l, objectID) {
				found = m
				return false
			}
		}
		return true
	})
	return found
}

func holds(m mapping.Mapping, l *layer.Data, objectID string) bool {
	if m.Layer() != l {
		return false
	}
	switch v := m.(type) {
	case *mapping.FeatureMapping:
		return v.ObjectID() == objectID
	case *mapping.MeshMapping:
		return v.HasObject(objectID)
	}
	return false
}

func (s *Service) onAdded(m mapping.Mapping) {
	if s.pending == nil || !holds(m, s.pending.layer, s.pending.objectID) {
		return
	}
	p := *s.pending
	s.apply(Selection{Mapping: m, ObjectID: p.objectID, Layer: p.layer}, "restored")
}

// onRemoved turns a selection whose mapping streamed out into a pending one,
// so it comes back when the tile reloads.
func (s *Service) onRemoved(m mapping.Mapping) {
	if s.current == nil || s.current.Mapping != m {
		return
	}
	old := *s.current
	s.current = nil
	s.unmark(old)
	s.pending = &pending{layer: old.Layer, objectID: old.ObjectID, unloaded: &old}
	observability.IncSelection("pending")
}

func (s *Service) publish(typ string, sel Selection) {
	if s.sink == nil {
		return
	}
	name := ""
	if sel.Layer != nil {
		name = sel.Layer.Name
	}
	s.sink.Publish(Event{Type: typ, Layer: name, MappingID: sel.Mapping.ID(), ObjectID: sel.ObjectID, At: s.now()})
}
