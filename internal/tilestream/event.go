// Package tilestream consumes tile load/unload events from Kafka and applies
// them to the mapping tree on the frame thread.
package tilestream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
)

const (
	OpLoad   = "load"
	OpUnload = "unload"
)

// Event announces that a feature of a streamed tile became resident (load) or
// was evicted (unload). Revision increases per layer and feature; older
// revisions are ignored.
type Event struct {
	Version    int             `json:"version"`
	Op         string          `json:"op"`
	Layer      string          `json:"layer"`
	Tile       string          `json:"tile,omitempty"`
	FeatureID  string          `json:"feature_id"`
	Revision   uint64          `json:"revision"`
	TS         time.Time       `json:"ts"`
	BBox       *BBox           `json:"bbox,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

// Key identifies the feature instance the event refers to.
func (e Event) Key() string {
	if e.Tile == "" {
		return e.Layer + "/" + e.FeatureID
	}
	return e.Layer + "/" + e.Tile + "/" + e.FeatureID
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpLoad, OpUnload:
	default:
		return fmt.Errorf("op must be load|unload")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	if strings.TrimSpace(e.FeatureID) == "" {
		return fmt.Errorf("feature_id is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Op == OpUnload {
		return nil
	}

	hasBBox := e.BBox != nil
	hasGeom := len(e.Geometry) > 0
	if hasBBox == hasGeom {
		return fmt.Errorf("exactly one of bbox or geometry is required")
	}
	if hasBBox {
		return e.BBox.validate()
	}
	if _, err := geojson.UnmarshalGeometry(e.Geometry); err != nil {
		return fmt.Errorf("geometry parse: %w", err)
	}
	return nil
}

func (bb BBox) validate() error {
	crs, err := geom.ParseCRS(bb.SRID)
	if err != nil {
		return fmt.Errorf("bbox.srid: %w", err)
	}
	if crs == geom.EPSG4326 {
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return fmt.Errorf("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return fmt.Errorf("bbox latitude out of range")
		}
	}
	if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
		return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
	}
	return nil
}

// Shape returns the event geometry and the coordinate system it is in.
// GeoJSON geometries are always EPSG:4326.
func (e Event) Shape() (orb.Geometry, geom.CRS, error) {
	if e.BBox != nil {
		crs, err := geom.ParseCRS(e.BBox.SRID)
		if err != nil {
			return nil, "", err
		}
		b := orb.Bound{Min: orb.Point{e.BBox.X1, e.BBox.Y1}, Max: orb.Point{e.BBox.X2, e.BBox.Y2}}
		return b.ToPolygon(), crs, nil
	}
	g, err := geojson.UnmarshalGeometry(e.Geometry)
	if err != nil {
		return nil, "", fmt.Errorf("geometry parse: %w", err)
	}
	return g.Geometry(), geom.EPSG4326, nil
}
