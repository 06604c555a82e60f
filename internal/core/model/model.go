// Package model defines the request and response types of the inspection API.
package model

import (
	"fmt"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation in the x1,y1,x2,y2,srid query format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func FromBox(b geom.BoundingBox) BBox {
	return BBox{X1: b.Min.X, Y1: b.Min.Y, X2: b.Max.X, Y2: b.Max.Y, SRID: string(b.CRS)}
}

// MappingQuery selects mappings around a point. Mode "node" returns every
// mapping stored in tree nodes containing the point, "containing" only those
// whose own bounds contain it.
type MappingQuery struct {
	Lon, Lat float64
	Kind     string
	Mode     string
}

type MappingInfo struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Layer    string `json:"layer"`
	ObjectID string `json:"object_id,omitempty"`
	Bounds   BBox   `json:"bounds"`
}

type ClickRequest struct {
	// screen pixels; used unless Lon/Lat are set
	X float64 `json:"x"`
	Y float64 `json:"y"`

	Lon *float64 `json:"lon,omitempty"`
	Lat *float64 `json:"lat,omitempty"`
}

type SelectionInfo struct {
	Selected   bool        `json:"selected"`
	Pending    bool        `json:"pending,omitempty"`
	Layer      string      `json:"layer,omitempty"`
	MappingID  string      `json:"mapping_id,omitempty"`
	ObjectID   string      `json:"object_id,omitempty"`
	Hit        *[3]float64 `json:"hit,omitempty"`
	Candidates int         `json:"candidates"`
	Color      string      `json:"color,omitempty"`
	// Seq counts select and deselect notifications; clients poll it for changes.
	Seq uint64 `json:"seq"`
}

// PointerEvent is a raw pointer edge in screen pixels. Clicks complete on
// the frame after the release.
type PointerEvent struct {
	Action string  `json:"action"` // down, move or up
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type ToolPatch struct {
	Open *bool `json:"open"`
}

type ToolState struct {
	Name string `json:"name"`
	Open bool   `json:"open"`
}

// SelectRequest selects an object by id; it may stay pending until the
// object's tile is streamed in.
type SelectRequest struct {
	Layer    string `json:"layer"`
	ObjectID string `json:"object_id"`
}

type CameraRequest struct {
	Lon            float64  `json:"lon"`
	Lat            float64  `json:"lat"`
	MetersPerPixel *float64 `json:"meters_per_pixel,omitempty"`
}

type CameraInfo struct {
	Lon            float64 `json:"lon"`
	Lat            float64 `json:"lat"`
	MetersPerPixel float64 `json:"meters_per_pixel"`
	Extent         BBox    `json:"extent"`
}

type LayerInfo struct {
	Name     string `json:"name"`
	Index    int    `json:"index"`
	Visible  bool   `json:"visible"`
	Selected bool   `json:"selected"`
}

type LayerPatch struct {
	Visible *bool `json:"visible,omitempty"`
	Index   *int  `json:"index,omitempty"`
}

// AttributesReloaded answers an attribute table reload.
type AttributesReloaded struct {
	Layer string `json:"layer"`
	Rows  int    `json:"rows"`
}

// FeaturesUnloaded answers an eviction of a layer's streamed features.
type FeaturesUnloaded struct {
	Layer   string `json:"layer"`
	Removed int    `json:"removed"`
}

type EvaluateRequest struct {
	Expression any            `json:"expression"`
	Properties map[string]any `json:"properties,omitempty"`
}

type EvaluateResponse struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}
