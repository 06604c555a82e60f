package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammed-shakir/geotwin/internal/core/config"
	"github.com/mohammed-shakir/geotwin/internal/core/model"
	"github.com/mohammed-shakir/geotwin/internal/core/router"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/selection"
	"github.com/mohammed-shakir/geotwin/internal/style"
	"github.com/mohammed-shakir/geotwin/internal/tilestream"
)

const squareGeoJSON = `{"type":"Polygon","coordinates":[[[18.06,59.32],[18.08,59.32],[18.08,59.34],[18.06,59.34],[18.06,59.32]]]}`

func testConfig() config.Config {
	return config.Config{
		FrameRate: 500,
		Tree:      config.TreeCfg{MaxMappings: 16, MaxDepth: 12},
		Selection: config.SelectionCfg{
			MinClickDistance:        5,
			RepeatWindow:            2 * time.Second,
			FilterDuplicateFeatures: true,
			HighlightColor:          "#ffd700",
			PickTolerance:           3,
			MaxRayDistance:          50_000,
			DragThreshold:           4,
		},
		Camera:     config.CameraCfg{Lon: 18.07, Lat: 59.33, MetersPerPixel: 1, Width: 800, Height: 600},
		TileStream: config.TileStreamCfg{MaxPerFrame: 64},
	}
}

func featureLayer(name string, opts ...style.Option) LayerDef {
	s := style.NewExpressionStyler(name, opts...)
	return LayerDef{Data: layer.New(name, s), Styler: s}
}

// start runs the frame loop until the test ends.
func start(t *testing.T, v *Viewer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pushTile(t *testing.T, q *tilestream.Queue, op, id string, rev uint64) {
	t.Helper()
	ev := tilestream.Event{
		Version: 1, Op: op, Layer: "buildings", FeatureID: id, Revision: rev,
		TS: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if op == tilestream.OpLoad {
		ev.Geometry = json.RawMessage(squareGeoJSON)
		ev.Properties = map[string]any{"height": 20.0}
	}
	if err := q.Push(context.Background(), ev); err != nil {
		t.Fatalf("Push: %v", err)
	}
}

// settle waits until the frame that ran the previous command has finished.
func settle(t *testing.T, v *Viewer) {
	t.Helper()
	frames := func() int {
		var n int
		_ = v.Do(context.Background(), func() { n = v.frames })
		return n
	}
	f0 := frames()
	eventually(t, "next frame", func() bool { return frames() > f0 })
}

func lonLat(lon, lat float64) (*float64, *float64) { return &lon, &lat }

func TestViewer_StreamedTileSelectAndRestore(t *testing.T) {
	q := tilestream.NewQueue(16)
	v, err := New(testConfig(), []LayerDef{featureLayer("buildings", style.WithColorRule(expr.MustNew(expr.OpLiteral, "red")))},
		WithTileQueue(q))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start(t, v)
	ctx := context.Background()

	pushTile(t, q, tilestream.OpLoad, "b1", 1)
	eventually(t, "tile applied", func() bool {
		ms, err := v.Mappings(ctx, model.MappingQuery{Lon: 18.07, Lat: 59.33, Mode: "containing"})
		return err == nil && len(ms) == 1 && ms[0].ObjectID == "b1" && ms[0].Layer == "buildings"
	})

	var base expr.Color
	var ok bool
	if err := v.Do(ctx, func() { base, ok = v.ColorOf(style.Key{MappingID: "buildings/b1", ObjectID: "b1"}) }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ok || base != (expr.Color{R: 255, A: 1}) {
		t.Fatalf("base color=%v ok=%v want red", base, ok)
	}

	lon, lat := lonLat(18.07, 59.33)
	sel, err := v.Click(ctx, model.ClickRequest{Lon: lon, Lat: lat})
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if !sel.Selected || sel.ObjectID != "b1" || sel.Layer != "buildings" || sel.Candidates != 1 {
		t.Fatalf("selection=%+v", sel)
	}
	if sel.Hit == nil || sel.Color == "" || sel.Seq != 1 {
		t.Fatalf("want hit, highlight color and seq 1, got %+v", sel)
	}

	pushTile(t, q, tilestream.OpUnload, "b1", 2)
	eventually(t, "selection pending", func() bool {
		s, err := v.Selection(ctx)
		return err == nil && s.Pending && !s.Selected && s.ObjectID == "b1"
	})

	pushTile(t, q, tilestream.OpLoad, "b1", 3)
	eventually(t, "selection restored", func() bool {
		s, err := v.Selection(ctx)
		return err == nil && s.Selected && s.ObjectID == "b1"
	})

	if err := v.Deselect(ctx); err != nil {
		t.Fatalf("Deselect: %v", err)
	}
	if s, _ := v.Selection(ctx); s.Selected || s.Pending || s.Seq != 3 {
		t.Fatalf("after deselect: %+v", s)
	}
}

type recordingSink struct{ events []selection.Event }

func (r *recordingSink) Publish(ev selection.Event) { r.events = append(r.events, ev) }

func TestViewer_SelectByIDAndLayers(t *testing.T) {
	q := tilestream.NewQueue(16)
	sink := &recordingSink{}
	v, err := New(testConfig(), []LayerDef{featureLayer("buildings"), featureLayer("roads")},
		WithTileQueue(q), WithSelectionSink(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start(t, v)
	ctx := context.Background()

	sel, err := v.Select(ctx, model.SelectRequest{Layer: "buildings", ObjectID: "b9"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Pending || sel.Selected {
		t.Fatalf("want pending, got %+v", sel)
	}
	if _, err := v.Select(ctx, model.SelectRequest{Layer: "parks", ObjectID: "p1"}); !errors.Is(err, router.ErrUnknownLayer) {
		t.Fatalf("unknown layer err=%v", err)
	}

	pushTile(t, q, tilestream.OpLoad, "b9", 1)
	eventually(t, "pending selection applied", func() bool {
		s, err := v.Selection(ctx)
		return err == nil && s.Selected && s.MappingID == "buildings/b9"
	})

	ls, err := v.Layers(ctx)
	if err != nil || len(ls) != 2 || ls[0].Name != "buildings" || !ls[0].Selected {
		t.Fatalf("layers=%+v err=%v", ls, err)
	}

	one := 1
	if err := v.UpdateLayer(ctx, "buildings", model.LayerPatch{Index: &one}); err != nil {
		t.Fatalf("move: %v", err)
	}
	ls, _ = v.Layers(ctx)
	if ls[0].Name != "roads" || ls[1].Name != "buildings" {
		t.Fatalf("order after move=%+v", ls)
	}

	hidden := false
	if err := v.UpdateLayer(ctx, "buildings", model.LayerPatch{Visible: &hidden}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	eventually(t, "hidden selection cleared", func() bool {
		s, err := v.Selection(ctx)
		return err == nil && !s.Selected
	})
	if err := v.UpdateLayer(ctx, "parks", model.LayerPatch{Visible: &hidden}); !errors.Is(err, router.ErrUnknownLayer) {
		t.Fatalf("unknown layer err=%v", err)
	}

	var types []string
	_ = v.Do(ctx, func() {
		for _, ev := range sink.events {
			types = append(types, ev.Type)
		}
	})
	if len(types) != 2 || types[0] != "select" || types[1] != "deselect" {
		t.Fatalf("published=%v", types)
	}
}

func TestViewer_HexLayerFollowsCamera(t *testing.T) {
	cfg := testConfig()
	cfg.Camera.Width, cfg.Camera.Height = 400, 400
	hex := featureLayer("hex")
	hex.Hex = &config.HexSpec{Resolution: 11}
	v, err := New(cfg, []LayerDef{hex})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start(t, v)
	ctx := context.Background()

	eventually(t, "hexagons loaded", func() bool {
		ms, err := v.Mappings(ctx, model.MappingQuery{Lon: 18.07, Lat: 59.33, Mode: "containing"})
		return err == nil && len(ms) >= 1 && ms[0].Layer == "hex"
	})

	info, err := v.MoveCamera(ctx, model.CameraRequest{Lon: 11.97, Lat: 57.71})
	if err != nil {
		t.Fatalf("MoveCamera: %v", err)
	}
	if info.MetersPerPixel != 1 || info.Lon < 11.96 || info.Lon > 11.98 {
		t.Fatalf("camera=%+v", info)
	}
	ms, err := v.Mappings(ctx, model.MappingQuery{Lon: 18.07, Lat: 59.33, Mode: "containing"})
	if err != nil || len(ms) != 0 {
		t.Fatalf("old view still resident: %d err=%v", len(ms), err)
	}
	ms, _ = v.Mappings(ctx, model.MappingQuery{Lon: 11.97, Lat: 57.71, Mode: "containing"})
	if len(ms) == 0 {
		t.Fatal("no hexagons at the new centre")
	}

	off := false
	if err := v.UpdateLayer(ctx, "hex", model.LayerPatch{Visible: &off}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if ready, n := v.Readiness(); !ready {
		t.Fatalf("ready=%v n=%d", ready, n)
	}
	eventually(t, "hidden hex layer unloaded", func() bool {
		_, n := v.Readiness()
		return n == 0
	})
}

func TestViewer_ReloadAttributesAndUnloadFeatures(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "buildings.csv")
	if err := os.WriteFile(csvPath, []byte(buildingsCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	defs, err := BuildLayers(ctx, loadManifest(t), dir, expr.NewCache(16), nil, nil)
	if err != nil {
		t.Fatalf("BuildLayers: %v", err)
	}
	q := tilestream.NewQueue(16)
	v, err := New(testConfig(), defs, WithTileQueue(q))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start(t, v)

	key := style.Key{MappingID: "buildings/b1", ObjectID: "b1"}
	colorOf := func() expr.Color {
		var c expr.Color
		_ = v.Do(ctx, func() { c, _ = v.ColorOf(key) })
		return c
	}
	pushTile(t, q, tilestream.OpLoad, "b1", 1)
	eventually(t, "b1 painted from csv", func() bool { return colorOf() == expr.Color{B: 255, A: 1} })

	if err := os.WriteFile(csvPath, []byte("id,use,height\nb1,shop,30\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := v.ReloadAttributes(ctx, "buildings")
	if err != nil {
		t.Fatalf("ReloadAttributes: %v", err)
	}
	if res.Rows != 1 {
		t.Fatalf("rows=%d want 1", res.Rows)
	}
	if c := colorOf(); c != (expr.Color{R: 255, A: 1}) {
		t.Fatalf("after reload color=%v want red", c)
	}
	if _, err := v.ReloadAttributes(ctx, "cells"); !errors.Is(err, router.ErrNoAttributes) {
		t.Fatalf("layer without table err=%v", err)
	}
	if _, err := v.ReloadAttributes(ctx, "parks"); !errors.Is(err, router.ErrUnknownLayer) {
		t.Fatalf("unknown layer err=%v", err)
	}

	out, err := v.UnloadFeatures(ctx, "buildings")
	if err != nil || out.Removed != 1 {
		t.Fatalf("UnloadFeatures=%+v err=%v", out, err)
	}
	ms, _ := v.Mappings(ctx, model.MappingQuery{Lon: 18.07, Lat: 59.33, Mode: "containing"})
	if len(ms) != 0 {
		t.Fatalf("evicted feature still resident: %+v", ms)
	}
	if _, err := v.UnloadFeatures(ctx, "parks"); !errors.Is(err, router.ErrUnknownLayer) {
		t.Fatalf("unknown layer err=%v", err)
	}

	pushTile(t, q, tilestream.OpLoad, "b1", 1)
	eventually(t, "replayed tile reloaded", func() bool {
		ms, err := v.Mappings(ctx, model.MappingQuery{Lon: 18.07, Lat: 59.33, Mode: "containing"})
		return err == nil && len(ms) == 1
	})
}

func TestViewer_PointerGesturesAndTool(t *testing.T) {
	q := tilestream.NewQueue(16)
	v, err := New(testConfig(), []LayerDef{featureLayer("buildings")}, WithTileQueue(q))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start(t, v)
	ctx := context.Background()

	pushTile(t, q, tilestream.OpLoad, "b1", 1)
	eventually(t, "tile applied", func() bool { _, n := v.Readiness(); return n == 1 })

	gesture := func(evs ...model.PointerEvent) {
		t.Helper()
		for _, ev := range evs {
			if err := v.Pointer(ctx, ev); err != nil {
				t.Fatalf("Pointer(%+v): %v", ev, err)
			}
		}
		settle(t, v)
	}

	gesture(
		model.PointerEvent{Action: "down", X: 400, Y: 300},
		model.PointerEvent{Action: "move", X: 450, Y: 300},
		model.PointerEvent{Action: "up", X: 450, Y: 300},
	)
	if s, _ := v.Selection(ctx); s.Selected || s.Seq != 0 {
		t.Fatalf("drag must not select: %+v", s)
	}

	gesture(
		model.PointerEvent{Action: "down", X: 400, Y: 300},
		model.PointerEvent{Action: "up", X: 401, Y: 300},
	)
	if s, _ := v.Selection(ctx); !s.Selected || s.ObjectID != "b1" || s.Seq != 1 {
		t.Fatalf("click gesture: %+v", s)
	}

	st, err := v.SetTool(ctx, "select", false)
	if err != nil || st.Open {
		t.Fatalf("SetTool=%+v err=%v", st, err)
	}
	gesture(
		model.PointerEvent{Action: "down", X: 10, Y: 10},
		model.PointerEvent{Action: "up", X: 10, Y: 10},
	)
	if s, _ := v.Selection(ctx); !s.Selected || s.Seq != 1 {
		t.Fatalf("click with the tool closed must be ignored: %+v", s)
	}

	if _, err := v.SetTool(ctx, "measure", true); !errors.Is(err, router.ErrUnknownTool) {
		t.Fatalf("unknown tool err=%v", err)
	}
	if err := v.Pointer(ctx, model.PointerEvent{Action: "wheel"}); err == nil {
		t.Fatal("want error for unknown pointer action")
	}
}

func TestViewer_DoAfterStop(t *testing.T) {
	v, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ready, _ := v.Readiness(); ready {
		t.Fatal("ready before Run")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()
	if err := v.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	cancel()
	<-done
	if err := v.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Do after stop err=%v", err)
	}
	if ready, _ := v.Readiness(); ready {
		t.Fatal("ready after stop")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Selection.HighlightColor = "not-a-color"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("want highlight color error")
	}
	cfg = testConfig()
	cfg.Tree.Bounds = "1,2,3"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("want bounds error")
	}
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("17.5, 59.0, 18.5, 59.7")
	if err != nil {
		t.Fatalf("ParseBounds: %v", err)
	}
	if b.Min.X != 17.5 || b.Max.Y != 59.7 {
		t.Fatalf("bounds=%v", b)
	}
	for _, in := range []string{"1,2,3", "a,b,c,d", "18,59,17,60"} {
		if _, err := ParseBounds(in); err == nil {
			t.Fatalf("%q: want error", in)
		}
	}
	if w, err := ParseBounds(""); err != nil || w.Max.X != 180 {
		t.Fatalf("empty bounds=%v err=%v", w, err)
	}
}
