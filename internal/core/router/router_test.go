package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geotwin/internal/core/model"
	"github.com/mohammed-shakir/geotwin/internal/expr"
)

type fakeViewer struct {
	lastQuery  model.MappingQuery
	lastClick  model.ClickRequest
	lastPatch  model.LayerPatch
	lastSel    model.SelectRequest
	lastCamera model.CameraRequest
	pointer    []model.PointerEvent
	toolOpen   *bool
	deselects  int
	err        error
}

func (f *fakeViewer) Mappings(_ context.Context, q model.MappingQuery) ([]model.MappingInfo, error) {
	f.lastQuery = q
	return []model.MappingInfo{{ID: "m1", Kind: "feature", Layer: "buildings", ObjectID: "b1"}}, f.err
}

func (f *fakeViewer) Click(_ context.Context, req model.ClickRequest) (model.SelectionInfo, error) {
	f.lastClick = req
	return model.SelectionInfo{Selected: true, Layer: "buildings", ObjectID: "b1", Candidates: 2}, f.err
}

func (f *fakeViewer) Pointer(_ context.Context, ev model.PointerEvent) error {
	f.pointer = append(f.pointer, ev)
	return f.err
}

func (f *fakeViewer) SetTool(_ context.Context, name string, open bool) (model.ToolState, error) {
	if name != "select" {
		return model.ToolState{}, fmt.Errorf("tool %q: %w", name, ErrUnknownTool)
	}
	f.toolOpen = &open
	return model.ToolState{Name: name, Open: open}, f.err
}

func (f *fakeViewer) Selection(context.Context) (model.SelectionInfo, error) {
	return model.SelectionInfo{Pending: true, Layer: "buildings", ObjectID: "b1"}, f.err
}

func (f *fakeViewer) Select(_ context.Context, req model.SelectRequest) (model.SelectionInfo, error) {
	f.lastSel = req
	return model.SelectionInfo{Pending: true, Layer: req.Layer, ObjectID: req.ObjectID}, f.err
}

func (f *fakeViewer) MoveCamera(_ context.Context, req model.CameraRequest) (model.CameraInfo, error) {
	f.lastCamera = req
	return model.CameraInfo{Lon: req.Lon, Lat: req.Lat, MetersPerPixel: 2}, f.err
}

func (f *fakeViewer) Deselect(context.Context) error {
	f.deselects++
	return f.err
}

func (f *fakeViewer) Layers(context.Context) ([]model.LayerInfo, error) {
	return []model.LayerInfo{{Name: "buildings", Index: 0, Visible: true}}, f.err
}

func (f *fakeViewer) UpdateLayer(_ context.Context, name string, p model.LayerPatch) error {
	if name != "buildings" {
		return fmt.Errorf("layer %q: %w", name, ErrUnknownLayer)
	}
	f.lastPatch = p
	return f.err
}

func (f *fakeViewer) ReloadAttributes(_ context.Context, name string) (model.AttributesReloaded, error) {
	switch name {
	case "buildings":
		return model.AttributesReloaded{Layer: name, Rows: 3}, f.err
	case "roads":
		return model.AttributesReloaded{}, fmt.Errorf("layer %q: %w", name, ErrNoAttributes)
	}
	return model.AttributesReloaded{}, fmt.Errorf("layer %q: %w", name, ErrUnknownLayer)
}

func (f *fakeViewer) UnloadFeatures(_ context.Context, name string) (model.FeaturesUnloaded, error) {
	if name != "buildings" {
		return model.FeaturesUnloaded{}, fmt.Errorf("layer %q: %w", name, ErrUnknownLayer)
	}
	return model.FeaturesUnloaded{Layer: name, Removed: 2}, f.err
}

func newRouter(v Viewer) http.Handler {
	r := chi.NewRouter()
	Mount(r, slog.New(slog.NewTextHandler(io.Discard, nil)), v, expr.NewCache(8))
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMappings_ParsesQuery(t *testing.T) {
	v := &fakeViewer{}
	rr := do(t, newRouter(v), http.MethodGet, "/mappings?lon=18.07&lat=59.33&kind=Feature&mode=node", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	want := model.MappingQuery{Lon: 18.07, Lat: 59.33, Kind: "feature", Mode: "node"}
	if v.lastQuery != want {
		t.Fatalf("query=%+v want %+v", v.lastQuery, want)
	}
	var out []model.MappingInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || len(out) != 1 || out[0].ObjectID != "b1" {
		t.Fatalf("body=%s err=%v", rr.Body, err)
	}
}

func TestMappings_DefaultModeAndBadInput(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)
	if rr := do(t, h, http.MethodGet, "/mappings?lon=1&lat=2", ""); rr.Code != http.StatusOK || v.lastQuery.Mode != "containing" {
		t.Fatalf("status=%d mode=%q", rr.Code, v.lastQuery.Mode)
	}
	for _, target := range []string{
		"/mappings?lat=2",
		"/mappings?lon=x&lat=2",
		"/mappings?lon=200&lat=2",
		"/mappings?lon=1&lat=2&kind=volume",
		"/mappings?lon=1&lat=2&mode=nearest",
	} {
		if rr := do(t, h, http.MethodGet, target, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status=%d want 400", target, rr.Code)
		}
	}
}

func TestClick(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	rr := do(t, h, http.MethodPost, "/click", `{"x":400,"y":300}`)
	if rr.Code != http.StatusOK || v.lastClick.X != 400 || v.lastClick.Lon != nil {
		t.Fatalf("status=%d click=%+v", rr.Code, v.lastClick)
	}
	var sel model.SelectionInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &sel); err != nil || !sel.Selected || sel.Candidates != 2 {
		t.Fatalf("body=%s err=%v", rr.Body, err)
	}

	rr = do(t, h, http.MethodPost, "/click", `{"lon":18.07,"lat":59.33}`)
	if rr.Code != http.StatusOK || v.lastClick.Lon == nil || *v.lastClick.Lat != 59.33 {
		t.Fatalf("geo click status=%d", rr.Code)
	}

	for _, body := range []string{`{"lon":18}`, `{"lon":18,"lat":91}`, `{"x":"a"}`, `{"z":1}`, `nope`} {
		if rr := do(t, h, http.MethodPost, "/click", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status=%d want 400", body, rr.Code)
		}
	}
}

func TestPointerAndTools(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	for _, body := range []string{`{"action":"down","x":10,"y":20}`, `{"action":"up","x":11,"y":20}`} {
		if rr := do(t, h, http.MethodPost, "/pointer", body); rr.Code != http.StatusAccepted {
			t.Fatalf("%s: status=%d", body, rr.Code)
		}
	}
	if len(v.pointer) != 2 || v.pointer[0].Action != "down" || v.pointer[1].X != 11 {
		t.Fatalf("pointer=%+v", v.pointer)
	}
	if rr := do(t, h, http.MethodPost, "/pointer", `{"action":"wheel"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad action status=%d want 400", rr.Code)
	}

	rr := do(t, h, http.MethodPut, "/tools/select", `{"open":false}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"open":false`) {
		t.Fatalf("tool status=%d body=%s", rr.Code, rr.Body)
	}
	if v.toolOpen == nil || *v.toolOpen {
		t.Fatalf("tool open=%v", v.toolOpen)
	}
	if rr := do(t, h, http.MethodPut, "/tools/select", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing open status=%d want 400", rr.Code)
	}
	if rr := do(t, h, http.MethodPut, "/tools/measure", `{"open":true}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown tool status=%d want 404", rr.Code)
	}
}

func TestSelectionAndDeselect(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	rr := do(t, h, http.MethodGet, "/selection", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"pending":true`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if rr := do(t, h, http.MethodDelete, "/selection", ""); rr.Code != http.StatusNoContent || v.deselects != 1 {
		t.Fatalf("status=%d deselects=%d", rr.Code, v.deselects)
	}
}

func TestSelectByID(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	rr := do(t, h, http.MethodPut, "/selection", `{"layer":"buildings","object_id":"b7"}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"object_id":"b7"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if v.lastSel.Layer != "buildings" {
		t.Fatalf("select=%+v", v.lastSel)
	}
	if rr := do(t, h, http.MethodPut, "/selection", `{"layer":"buildings"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing id status=%d want 400", rr.Code)
	}
}

func TestMoveCamera(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	rr := do(t, h, http.MethodPut, "/camera", `{"lon":18.1,"lat":59.3,"meters_per_pixel":2}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"meters_per_pixel":2`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if v.lastCamera.Lon != 18.1 || v.lastCamera.MetersPerPixel == nil {
		t.Fatalf("camera=%+v", v.lastCamera)
	}
	for _, body := range []string{`{"lon":200,"lat":0}`, `{"lon":0,"lat":0,"meters_per_pixel":0}`} {
		if rr := do(t, h, http.MethodPut, "/camera", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", body, rr.Code)
		}
	}
}

func TestLayers(t *testing.T) {
	v := &fakeViewer{}
	h := newRouter(v)

	if rr := do(t, h, http.MethodGet, "/layers", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"buildings"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if rr := do(t, h, http.MethodPatch, "/layers/buildings", `{"visible":false,"index":2}`); rr.Code != http.StatusNoContent {
		t.Fatalf("patch status=%d", rr.Code)
	}
	if v.lastPatch.Visible == nil || *v.lastPatch.Visible || *v.lastPatch.Index != 2 {
		t.Fatalf("patch=%+v", v.lastPatch)
	}
	if rr := do(t, h, http.MethodPatch, "/layers/trees", `{"visible":true}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodPatch, "/layers/buildings", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty patch status=%d want 400", rr.Code)
	}
}

func TestLayerAttributesAndFeatures(t *testing.T) {
	h := newRouter(&fakeViewer{})

	rr := do(t, h, http.MethodPost, "/layers/buildings/attributes", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reload status=%d", rr.Code)
	}
	var reloaded model.AttributesReloaded
	if err := json.Unmarshal(rr.Body.Bytes(), &reloaded); err != nil || reloaded.Rows != 3 {
		t.Fatalf("reload body=%s err=%v", rr.Body, err)
	}
	if rr := do(t, h, http.MethodPost, "/layers/roads/attributes", ""); rr.Code != http.StatusConflict {
		t.Fatalf("no table status=%d want 409", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/layers/trees/attributes", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d want 404", rr.Code)
	}

	rr = do(t, h, http.MethodDelete, "/layers/buildings/features", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"removed":2`) {
		t.Fatalf("unload status=%d body=%s", rr.Code, rr.Body)
	}
	if rr := do(t, h, http.MethodDelete, "/layers/trees/features", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d want 404", rr.Code)
	}
}

func TestViewerErrors(t *testing.T) {
	h := newRouter(&fakeViewer{err: context.DeadlineExceeded})
	if rr := do(t, h, http.MethodGet, "/selection", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
	h = newRouter(&fakeViewer{err: fmt.Errorf("boom")})
	if rr := do(t, h, http.MethodGet, "/layers", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}

func TestEvaluate(t *testing.T) {
	h := newRouter(&fakeViewer{})

	rr := do(t, h, http.MethodPost, "/style/evaluate",
		`{"expression":["*",["get","height"],2],"properties":{"height":21}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	var out struct {
		Kind  string  `json:"kind"`
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || out.Kind != "number" || out.Value != 42 {
		t.Fatalf("body=%s err=%v", rr.Body, err)
	}

	rr = do(t, h, http.MethodPost, "/style/evaluate", `{"expression":["rgb",255,0,0]}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"kind":"color"`) {
		t.Fatalf("color status=%d body=%s", rr.Code, rr.Body)
	}

	if rr := do(t, h, http.MethodPost, "/style/evaluate", `{"expression":["nope"]}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown op status=%d want 422", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/style/evaluate", `{"expression":["get","x"]}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("get without feature status=%d want 422", rr.Code)
	}
}
