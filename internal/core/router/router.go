// Package router implements the HTTP handlers of the inspection API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geotwin/internal/core/model"
	"github.com/mohammed-shakir/geotwin/internal/core/observability"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/mapping"
)

var (
	// ErrUnknownLayer is returned by Viewer methods addressing a missing layer.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrNoAttributes is returned when reloading a layer without an attribute table.
	ErrNoAttributes = errors.New("layer has no attribute table")
	ErrUnknownTool  = errors.New("unknown tool")
)

// Viewer is the scene the handlers inspect and drive. Implementations
// serialise calls onto their frame thread.
type Viewer interface {
	Mappings(ctx context.Context, q model.MappingQuery) ([]model.MappingInfo, error)
	Click(ctx context.Context, req model.ClickRequest) (model.SelectionInfo, error)
	Pointer(ctx context.Context, ev model.PointerEvent) error
	SetTool(ctx context.Context, name string, open bool) (model.ToolState, error)
	Selection(ctx context.Context) (model.SelectionInfo, error)
	Select(ctx context.Context, req model.SelectRequest) (model.SelectionInfo, error)
	Deselect(ctx context.Context) error
	MoveCamera(ctx context.Context, req model.CameraRequest) (model.CameraInfo, error)
	Layers(ctx context.Context) ([]model.LayerInfo, error)
	UpdateLayer(ctx context.Context, name string, patch model.LayerPatch) error
	ReloadAttributes(ctx context.Context, name string) (model.AttributesReloaded, error)
	UnloadFeatures(ctx context.Context, name string) (model.FeaturesUnloaded, error)
}

const maxBody = 1 << 20

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records the route pattern, not the raw path, as the metric label.
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

// Mount registers the API routes on r.
func Mount(r chi.Router, logger *slog.Logger, v Viewer, exprs *expr.Cache) {
	r.Get("/mappings", instrument("/mappings", HandleMappings(logger, v)))
	r.Post("/click", instrument("/click", HandleClick(logger, v)))
	r.Post("/pointer", instrument("/pointer", HandlePointer(logger, v)))
	r.Put("/tools/{name}", instrument("/tools/{name}", HandleTool(logger, v)))
	r.Get("/selection", instrument("/selection", HandleSelection(logger, v)))
	r.Put("/selection", instrument("/selection", HandleSelect(logger, v)))
	r.Delete("/selection", instrument("/selection", HandleDeselect(logger, v)))
	r.Put("/camera", instrument("/camera", HandleCamera(logger, v)))
	r.Get("/layers", instrument("/layers", HandleLayers(logger, v)))
	r.Patch("/layers/{name}", instrument("/layers/{name}", HandleUpdateLayer(logger, v)))
	r.Post("/layers/{name}/attributes", instrument("/layers/{name}/attributes", HandleReloadAttributes(logger, v)))
	r.Delete("/layers/{name}/features", instrument("/layers/{name}/features", HandleUnloadFeatures(logger, v)))
	r.Post("/style/evaluate", instrument("/style/evaluate", HandleEvaluate(exprs)))
}

func HandleMappings(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseMappingQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := v.Mappings(r.Context(), q)
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func HandleClick(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.ClickRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if (req.Lon == nil) != (req.Lat == nil) {
			http.Error(w, "lon and lat must be given together", http.StatusBadRequest)
			return
		}
		if req.Lon != nil {
			if err := checkLonLat(*req.Lon, *req.Lat); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		sel, err := v.Click(r.Context(), req)
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

// HandlePointer queues a press, move or release; the resulting click, if
// any, shows up in GET /selection after the next frame.
func HandlePointer(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev model.PointerEvent
		if err := decode(r, &ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch ev.Action {
		case "down", "move", "up":
		default:
			http.Error(w, fmt.Sprintf("action must be down|move|up (got %q)", ev.Action), http.StatusBadRequest)
			return
		}
		if err := v.Pointer(r.Context(), ev); err != nil {
			fail(w, logger, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func HandleTool(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch model.ToolPatch
		if err := decode(r, &patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if patch.Open == nil {
			http.Error(w, "open is required", http.StatusBadRequest)
			return
		}
		st, err := v.SetTool(r.Context(), chi.URLParam(r, "name"), *patch.Open)
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func HandleSelection(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, err := v.Selection(r.Context())
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

func HandleSelect(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SelectRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Layer) == "" || strings.TrimSpace(req.ObjectID) == "" {
			http.Error(w, "layer and object_id are required", http.StatusBadRequest)
			return
		}
		sel, err := v.Select(r.Context(), req)
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sel)
	}
}

func HandleDeselect(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := v.Deselect(r.Context()); err != nil {
			fail(w, logger, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleCamera(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CameraRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := checkLonLat(req.Lon, req.Lat); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.MetersPerPixel != nil && !(*req.MetersPerPixel > 0) {
			http.Error(w, "meters_per_pixel must be positive", http.StatusBadRequest)
			return
		}
		info, err := v.MoveCamera(r.Context(), req)
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func HandleLayers(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := v.Layers(r.Context())
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func HandleUpdateLayer(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var patch model.LayerPatch
		if err := decode(r, &patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if patch.Visible == nil && patch.Index == nil {
			http.Error(w, "nothing to update", http.StatusBadRequest)
			return
		}
		if err := v.UpdateLayer(r.Context(), name, patch); err != nil {
			fail(w, logger, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleReloadAttributes re-reads the layer's attribute table and restyles
// its resident features.
func HandleReloadAttributes(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := v.ReloadAttributes(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleUnloadFeatures evicts every streamed feature of a layer.
func HandleUnloadFeatures(logger *slog.Logger, v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := v.UnloadFeatures(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			fail(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleEvaluate evaluates an expression against ad-hoc properties. It does
// not touch the scene and runs on the request goroutine.
func HandleEvaluate(exprs *expr.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.EvaluateRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		src, err := json.Marshal(req.Expression)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, err := exprs.Parse(src)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		var f expr.Feature
		if req.Properties != nil {
			f = expr.Attributes(req.Properties)
		}
		val, err := expr.Evaluate(e, expr.NewContext(f))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, model.EvaluateResponse{Kind: val.TypeName(), Value: val})
	}
}

func ParseMappingQuery(r *http.Request) (model.MappingQuery, error) {
	qs := r.URL.Query()
	lon, err := parseFloat(qs.Get("lon"))
	if err != nil {
		return model.MappingQuery{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := parseFloat(qs.Get("lat"))
	if err != nil {
		return model.MappingQuery{}, fmt.Errorf("lat: %w", err)
	}
	if err := checkLonLat(lon, lat); err != nil {
		return model.MappingQuery{}, err
	}

	kind := strings.ToLower(strings.TrimSpace(qs.Get("kind")))
	if _, err := mapping.ParseKind(kind); err != nil {
		return model.MappingQuery{}, err
	}
	mode := strings.ToLower(strings.TrimSpace(qs.Get("mode")))
	switch mode {
	case "":
		mode = "containing"
	case "node", "containing":
	default:
		return model.MappingQuery{}, fmt.Errorf("mode must be node|containing (got %q)", mode)
	}
	return model.MappingQuery{Lon: lon, Lat: lat, Kind: kind, Mode: mode}, nil
}

func checkLonLat(lon, lat float64) error {
	if !(lon >= -180 && lon <= 180) {
		return errors.New("longitude must be in [-180,180]")
	}
	if !(lat >= -90 && lat <= 90) {
		return errors.New("latitude must be in [-90,90]")
	}
	return nil
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("required")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func fail(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownLayer), errors.Is(err, ErrUnknownTool):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNoAttributes):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "viewer busy", http.StatusServiceUnavailable)
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
