// Package app assembles the scene: the mapping tree, the layer hierarchy,
// styling, selection, streamed tiles and hexagon layers. All scene state is
// owned by one frame goroutine; HTTP handlers reach it through Do.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/geotwin/internal/core/config"
	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/hexlayer"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/mappingtree"
	"github.com/mohammed-shakir/geotwin/internal/selection"
	"github.com/mohammed-shakir/geotwin/internal/style"
	"github.com/mohammed-shakir/geotwin/internal/tilestream"
)

// ErrStopped is returned by Do once the frame loop has exited.
var ErrStopped = errors.New("viewer stopped")

// hexMinPixels is the smallest on-screen hexagon edge auto resolution allows.
const hexMinPixels = 24

type command struct {
	fn   func()
	done chan struct{}
}

type hexGrid struct {
	grid *hexlayer.Grid
	spec config.HexSpec
}

// Viewer is the in-memory scene.
type Viewer struct {
	cfg    config.Config
	log    *slog.Logger
	now    func() time.Time
	queue  *tilestream.Queue
	sink   selection.Sink
	frames int

	tree      *mappingtree.Tree
	layers    *layer.Hierarchy
	overrides *style.Overrides
	camera    *selection.OrthoCamera
	selection *selection.Service
	tool      *selection.Toggle
	painter   *style.Painter
	tiles     *tilestream.Applier
	grids     []hexGrid

	defs     map[string]LayerDef
	byID     map[string]mapping.Mapping
	colors   map[string]map[string]expr.Color // mapping id, object id
	lastView geom.BoundingBox
	selSeq   uint64
	cancels  []func()

	cmds     chan command
	stopped  chan struct{}
	running  atomic.Bool
	resident atomic.Int64
}

type Option func(*Viewer)

// WithTileQueue enables streamed tiles drained from q each frame.
func WithTileQueue(q *tilestream.Queue) Option { return func(v *Viewer) { v.queue = q } }

// WithSelectionSink forwards select and deselect events, e.g. to Kafka.
func WithSelectionSink(s selection.Sink) Option { return func(v *Viewer) { v.sink = s } }
func WithClock(now func() time.Time) Option     { return func(v *Viewer) { v.now = now } }

func WithLogger(l *slog.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.log = l
		}
	}
}

// New builds the scene. defs are in hierarchy order, topmost first.
func New(cfg config.Config, defs []LayerDef, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		cfg:     cfg,
		log:     slog.Default(),
		now:     time.Now,
		defs:    make(map[string]LayerDef, len(defs)),
		byID:    make(map[string]mapping.Mapping),
		colors:  make(map[string]map[string]expr.Color),
		cmds:    make(chan command, 64),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(v)
	}

	bounds, err := ParseBounds(cfg.Tree.Bounds)
	if err != nil {
		return nil, fmt.Errorf("tree bounds: %w", err)
	}
	highlight, err := expr.ParseColor(cfg.Selection.HighlightColor)
	if err != nil {
		return nil, fmt.Errorf("highlight color: %w", err)
	}

	v.tree = mappingtree.New(bounds,
		mappingtree.WithMaxMappings(cfg.Tree.MaxMappings),
		mappingtree.WithMaxDepth(cfg.Tree.MaxDepth),
		mappingtree.WithLogger(v.log),
	)
	v.layers = layer.NewHierarchy()
	for _, d := range defs {
		v.layers.Add(d.Data)
		v.defs[d.Data.Name] = d
	}
	v.overrides = style.NewOverrides()
	v.camera = selection.NewOrthoCamera(cfg.Camera.Lon, cfg.Camera.Lat, cfg.Camera.MetersPerPixel,
		float64(cfg.Camera.Width), float64(cfg.Camera.Height))

	// registered before the selection service so a highlight restored on
	// add paints over the base color
	v.painter = style.NewPainter(v.overrides, v.styled, style.SymbolizerFunc(v.record))
	v.cancels = append(v.cancels,
		v.tree.OnAdded().Subscribe(v.onAdded),
		v.tree.OnRemoved().Subscribe(v.onRemoved),
	)

	tools := &selection.Tools{}
	v.tool = selection.NewToggle("select", true)
	v.cancels = append(v.cancels, tools.Register(v.tool))

	selOpts := []selection.Option{
		selection.WithClock(v.now),
		selection.WithTools(tools),
		selection.WithLogger(v.log),
	}
	if v.sink != nil {
		selOpts = append(selOpts, selection.WithSink(v.sink))
	}
	v.selection = selection.NewService(v.tree, v.layers, v.overrides, v.camera, selection.Config{
		MinClickDistance:        cfg.Selection.MinClickDistance,
		RepeatWindow:            cfg.Selection.RepeatWindow,
		FilterDuplicateFeatures: cfg.Selection.FilterDuplicateFeatures,
		HighlightColor:          highlight,
		PickTolerance:           cfg.Selection.PickTolerance,
		MaxRayDistance:          cfg.Selection.MaxRayDistance,
		DragThreshold:           cfg.Selection.DragThreshold,
	}, selOpts...)
	bump := func(selection.Selection) { v.selSeq++ }
	v.cancels = append(v.cancels,
		v.selection.OnSelected().Subscribe(bump),
		v.selection.OnDeselected().Subscribe(bump),
	)

	if v.queue != nil {
		v.tiles = tilestream.NewApplier(v.queue, v.tree, v.layers, v.log)
	}
	for _, d := range defs {
		if d.Hex == nil {
			continue
		}
		res := d.Hex.Resolution
		if d.Hex.AutoResolution {
			res = hexlayer.ResolutionFor(cfg.Camera.MetersPerPixel, hexMinPixels, d.Hex.MinResolution, d.Hex.MaxResolution)
		}
		g, err := hexlayer.NewGrid(d.Data, v.tree, res, v.log)
		if err != nil {
			return nil, fmt.Errorf("hex layer %q: %w", d.Data.Name, err)
		}
		v.grids = append(v.grids, hexGrid{grid: g, spec: *d.Hex})
	}
	return v, nil
}

// ParseBounds reads "minLon,minLat,maxLon,maxLat" in EPSG:4326. Empty means
// the whole world.
func ParseBounds(s string) (geom.BoundingBox, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return geom.World(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geom.BoundingBox{}, fmt.Errorf("want minLon,minLat,maxLon,maxLat, got %q", s)
	}
	var f [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.BoundingBox{}, fmt.Errorf("bounds[%d]: %w", i, err)
		}
		f[i] = v
	}
	if f[0] >= f[2] || f[1] >= f[3] {
		return geom.BoundingBox{}, fmt.Errorf("empty bounds %q", s)
	}
	w := geom.World()
	return geom.NewBoundingBox(
		geom.Coord{X: f[0], Y: f[1], Z: w.Min.Z},
		geom.Coord{X: f[2], Y: f[3], Z: w.Max.Z},
		geom.EPSG4326,
	), nil
}

// Run drives frames at the configured rate until ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	if !v.running.CompareAndSwap(false, true) {
		return errors.New("viewer already running")
	}
	defer close(v.stopped)
	defer v.close()

	t := time.NewTicker(v.cfg.FrameInterval())
	defer t.Stop()
	last := v.now()
	v.log.Info("frame loop started", "interval", v.cfg.FrameInterval().String(), "layers", v.layers.Len())
	for {
		select {
		case <-ctx.Done():
			v.log.Info("frame loop stopped", "frames", v.frames)
			return nil
		case <-t.C:
			now := v.now()
			v.Step(now.Sub(last))
			last = now
		}
	}
}

// Step runs one frame: queued commands, streamed tiles, hexagon sync and
// the selection update. Run calls it; tests may call it directly.
func (v *Viewer) Step(dt time.Duration) {
	start := time.Now()
	v.runCommands()
	if v.tiles != nil {
		v.tiles.Drain(v.cfg.TileStream.MaxPerFrame)
	}
	v.syncGrids(false)
	v.selection.Update(dt)
	v.resident.Store(int64(v.tree.Len()))
	v.frames++
	observability.ObserveFrame(time.Since(start).Seconds())
}

func (v *Viewer) runCommands() {
	for {
		select {
		case c := <-v.cmds:
			c.fn()
			close(c.done)
		default:
			return
		}
	}
}

// Do runs fn on the frame goroutine and waits for it. Commands queued before
// Run starts execute on its first frame.
func (v *Viewer) Do(ctx context.Context, fn func()) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case v.cmds <- c:
	case <-v.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-v.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Readiness reports whether the frame loop is running and how many mappings
// were resident after the last frame.
func (v *Viewer) Readiness() (bool, int) {
	return v.running.Load(), int(v.resident.Load())
}

func (v *Viewer) close() {
	v.running.Store(false)
	for _, g := range v.grids {
		g.grid.UnloadAll()
	}
	v.selection.Close()
	v.painter.Close()
	for _, c := range v.cancels {
		c()
	}
	v.cancels = nil
}

func (v *Viewer) onAdded(m mapping.Mapping) {
	v.byID[m.ID()] = m
	if fm, ok := m.(*mapping.FeatureMapping); ok {
		v.painter.Paint(style.Key{MappingID: m.ID(), ObjectID: fm.ObjectID()})
	}
}

// repaint re-resolves the colors of every resident feature of l.
func (v *Viewer) repaint(l *layer.Data) int {
	n := 0
	for id, m := range v.byID {
		fm, ok := m.(*mapping.FeatureMapping)
		if !ok || m.Layer() != l {
			continue
		}
		v.painter.Paint(style.Key{MappingID: id, ObjectID: fm.ObjectID()})
		n++
	}
	return n
}

func (v *Viewer) onRemoved(m mapping.Mapping) {
	delete(v.byID, m.ID())
	delete(v.colors, m.ID())
}

// styled is the rule color of a key before overrides.
// ColorOf is the last color painted for an object of a resident mapping.
// It must be called on the frame goroutine.
func (v *Viewer) ColorOf(k style.Key) (expr.Color, bool) {
	c, ok := v.colors[k.MappingID][k.ObjectID]
	return c, ok
}

func (v *Viewer) styled(k style.Key) expr.Color {
	m, ok := v.byID[k.MappingID]
	if !ok {
		return expr.White
	}
	c, ok := m.Layer().Styler.(style.Colorer)
	if !ok {
		return expr.White
	}
	var attrs expr.Feature
	if fm, ok := m.(*mapping.FeatureMapping); ok {
		attrs = fm.Feature()
	}
	return c.Color(k.ObjectID, attrs)
}

func (v *Viewer) record(k style.Key, c expr.Color) {
	if _, ok := v.byID[k.MappingID]; !ok {
		return
	}
	objs := v.colors[k.MappingID]
	if objs == nil {
		objs = make(map[string]expr.Color)
		v.colors[k.MappingID] = objs
	}
	objs[k.ObjectID] = c
}

// syncGrids reloads hexagon layers when the view moved or force is set.
func (v *Viewer) syncGrids(force bool) {
	if len(v.grids) == 0 {
		return
	}
	view := v.camera.Extent()
	if !force && view == v.lastView {
		return
	}
	v.lastView = view
	for _, g := range v.grids {
		if !g.grid.Layer().Visible {
			g.grid.UnloadAll()
			continue
		}
		if g.spec.AutoResolution {
			res := hexlayer.ResolutionFor(v.camera.MetersPerPixel, hexMinPixels, g.spec.MinResolution, g.spec.MaxResolution)
			if err := g.grid.SetResolution(res); err != nil {
				v.log.Warn("hex resolution rejected", "layer", g.grid.Layer().Name, "res", res, "err", err)
				continue
			}
		}
		added, removed, err := g.grid.Sync(view)
		if err != nil {
			v.log.Warn("hex sync failed", "layer", g.grid.Layer().Name, "err", err)
			continue
		}
		if added > 0 || removed > 0 {
			v.log.Debug("hex layer synced", "layer", g.grid.Layer().Name, "res", g.grid.Resolution(), "added", added, "removed", removed)
		}
	}
}
