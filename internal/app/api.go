package app

import (
	"context"
	"fmt"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/core/model"
	"github.com/mohammed-shakir/geotwin/internal/core/router"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
	"github.com/mohammed-shakir/geotwin/internal/selection"
)

var _ router.Viewer = (*Viewer)(nil)

func (v *Viewer) Mappings(ctx context.Context, q model.MappingQuery) ([]model.MappingInfo, error) {
	kinds, err := mapping.ParseKind(q.Kind)
	if err != nil {
		return nil, err
	}
	var out []model.MappingInfo
	err = v.Do(ctx, func() {
		c := geom.Coord{X: q.Lon, Y: q.Lat}
		var ms []mapping.Mapping
		if q.Mode == "node" {
			ms = v.tree.QueryPoint(c, geom.EPSG4326, kinds)
		} else {
			ms = v.tree.QueryContainingPoint(c, geom.EPSG4326, kinds)
		}
		out = make([]model.MappingInfo, 0, len(ms))
		for _, m := range ms {
			out = append(out, mappingInfo(m))
		}
	})
	return out, err
}

func mappingInfo(m mapping.Mapping) model.MappingInfo {
	info := model.MappingInfo{
		ID:     m.ID(),
		Kind:   m.Kind().String(),
		Bounds: model.FromBox(m.Bounds().Convert(geom.EPSG4326)),
	}
	if l := m.Layer(); l != nil {
		info.Layer = l.Name
	}
	if fm, ok := m.(*mapping.FeatureMapping); ok {
		info.ObjectID = fm.ObjectID()
	}
	return info
}

// Click runs the selection protocol at a screen position, or at the screen
// position of lon/lat under the current camera.
func (v *Viewer) Click(ctx context.Context, req model.ClickRequest) (model.SelectionInfo, error) {
	var out model.SelectionInfo
	err := v.Do(ctx, func() {
		at := selection.Screen{X: req.X, Y: req.Y}
		if req.Lon != nil && req.Lat != nil {
			at = v.camera.ScreenAt(geom.Coord{X: *req.Lon, Y: *req.Lat}, geom.EPSG4326)
		}
		v.selection.Click(at)
		out = v.selectionInfo()
	})
	return out, err
}

// Pointer queues a raw pointer edge for the next frame. A press and release
// within the drag threshold become a click; a drag selects nothing.
func (v *Viewer) Pointer(ctx context.Context, ev model.PointerEvent) error {
	at := selection.Screen{X: ev.X, Y: ev.Y}
	var bad bool
	err := v.Do(ctx, func() {
		p := v.selection.Pointer()
		switch ev.Action {
		case "down":
			p.Press(at)
		case "move":
			p.Move(at)
		case "up":
			p.Release(at)
		default:
			bad = true
		}
	})
	if err == nil && bad {
		err = fmt.Errorf("pointer action %q", ev.Action)
	}
	return err
}

// SetTool opens or closes a selection tool. With every tool closed clicks
// are ignored.
func (v *Viewer) SetTool(ctx context.Context, name string, open bool) (model.ToolState, error) {
	if name != v.tool.Name() {
		return model.ToolState{}, fmt.Errorf("tool %q: %w", name, router.ErrUnknownTool)
	}
	if err := v.Do(ctx, func() { v.tool.SetOpen(open) }); err != nil {
		return model.ToolState{}, err
	}
	return model.ToolState{Name: name, Open: open}, nil
}

func (v *Viewer) Selection(ctx context.Context) (model.SelectionInfo, error) {
	var out model.SelectionInfo
	err := v.Do(ctx, func() { out = v.selectionInfo() })
	return out, err
}

// Select selects an object by id. When none of its mappings is loaded the
// selection stays pending until the tile streams in.
func (v *Viewer) Select(ctx context.Context, req model.SelectRequest) (model.SelectionInfo, error) {
	var (
		out     model.SelectionInfo
		unknown bool
	)
	err := v.Do(ctx, func() {
		l := v.layers.ByName(req.Layer)
		if l == nil {
			unknown = true
			return
		}
		v.selection.SelectObject(l, req.ObjectID)
		out = v.selectionInfo()
	})
	if err == nil && unknown {
		err = fmt.Errorf("layer %q: %w", req.Layer, router.ErrUnknownLayer)
	}
	return out, err
}

func (v *Viewer) Deselect(ctx context.Context) error {
	return v.Do(ctx, v.selection.Deselect)
}

// MoveCamera recentres the view; hexagon layers follow on the same frame.
func (v *Viewer) MoveCamera(ctx context.Context, req model.CameraRequest) (model.CameraInfo, error) {
	var out model.CameraInfo
	err := v.Do(ctx, func() {
		mpp := v.camera.MetersPerPixel
		if req.MetersPerPixel != nil {
			mpp = *req.MetersPerPixel
		}
		v.camera = selection.NewOrthoCamera(req.Lon, req.Lat, mpp, v.camera.Width, v.camera.Height)
		v.selection.SetCamera(v.camera)
		v.syncGrids(true)
		out = v.cameraInfo()
	})
	return out, err
}

func (v *Viewer) cameraInfo() model.CameraInfo {
	c := geom.ConvertCoord(v.camera.Center, geom.EPSG3857, geom.EPSG4326)
	return model.CameraInfo{
		Lon:            c.X,
		Lat:            c.Y,
		MetersPerPixel: v.camera.MetersPerPixel,
		Extent:         model.FromBox(v.camera.Extent().Convert(geom.EPSG4326)),
	}
}

func (v *Viewer) Layers(ctx context.Context) ([]model.LayerInfo, error) {
	var out []model.LayerInfo
	err := v.Do(ctx, func() {
		ls := v.layers.Layers()
		out = make([]model.LayerInfo, 0, len(ls))
		for i, l := range ls {
			out = append(out, model.LayerInfo{Name: l.Name, Index: i, Visible: l.Visible, Selected: l.Selected()})
		}
	})
	return out, err
}

// UpdateLayer toggles visibility or moves a layer in the hierarchy. Hiding
// the layer of the current selection clears it on the next frame.
func (v *Viewer) UpdateLayer(ctx context.Context, name string, patch model.LayerPatch) error {
	var unknown bool
	err := v.Do(ctx, func() {
		l := v.layers.ByName(name)
		if l == nil {
			unknown = true
			return
		}
		if patch.Visible != nil && l.Visible != *patch.Visible {
			l.Visible = *patch.Visible
			v.syncGrids(true)
		}
		if patch.Index != nil {
			v.layers.Move(l, *patch.Index)
		}
	})
	if err == nil && unknown {
		err = fmt.Errorf("layer %q: %w", name, router.ErrUnknownLayer)
	}
	return err
}

// ReloadAttributes re-reads a layer's attribute table on the calling
// goroutine, then swaps it in and repaints the layer on the frame goroutine.
func (v *Viewer) ReloadAttributes(ctx context.Context, name string) (model.AttributesReloaded, error) {
	d, ok := v.defs[name]
	if !ok {
		return model.AttributesReloaded{}, fmt.Errorf("layer %q: %w", name, router.ErrUnknownLayer)
	}
	if d.Attributes == nil || d.Styler == nil {
		return model.AttributesReloaded{}, fmt.Errorf("layer %q: %w", name, router.ErrNoAttributes)
	}
	t, err := d.Attributes(ctx)
	if err != nil {
		return model.AttributesReloaded{}, fmt.Errorf("layer %q attributes: %w", name, err)
	}
	var painted int
	if err := v.Do(ctx, func() {
		d.Styler.SetAttributes(t)
		painted = v.repaint(d.Data)
	}); err != nil {
		return model.AttributesReloaded{}, err
	}
	v.log.Info("attribute table reloaded", "layer", name, "rows", t.Len(), "repainted", painted)
	return model.AttributesReloaded{Layer: name, Rows: t.Len()}, nil
}

// UnloadFeatures evicts the streamed features of a layer. A selection on one
// of them turns pending like any other unload.
func (v *Viewer) UnloadFeatures(ctx context.Context, name string) (model.FeaturesUnloaded, error) {
	out := model.FeaturesUnloaded{Layer: name}
	var unknown bool
	err := v.Do(ctx, func() {
		if v.layers.ByName(name) == nil {
			unknown = true
			return
		}
		if v.tiles != nil {
			out.Removed = v.tiles.UnloadLayer(name)
		}
	})
	if err == nil && unknown {
		err = fmt.Errorf("layer %q: %w", name, router.ErrUnknownLayer)
	}
	return out, err
}

func (v *Viewer) selectionInfo() model.SelectionInfo {
	info := model.SelectionInfo{Candidates: len(v.selection.Candidates()), Seq: v.selSeq}
	if sel, ok := v.selection.Current(); ok {
		info.Selected = true
		info.MappingID = sel.Mapping.ID()
		info.ObjectID = sel.ObjectID
		if sel.Layer != nil {
			info.Layer = sel.Layer.Name
		}
		if sel.Hit != (geom.Coord{}) {
			h := geom.ConvertCoord(sel.Hit, geom.EPSG3857, geom.EPSG4326)
			info.Hit = &[3]float64{h.X, h.Y, h.Z}
		}
		if c, ok := v.ColorOf(sel.Key()); ok {
			info.Color = c.String()
		}
		return info
	}
	if l, id, ok := v.selection.Pending(); ok {
		info.Pending = true
		info.ObjectID = id
		if l != nil {
			info.Layer = l.Name
		}
	}
	return info
}
