package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geotwin/internal/hexlayer"
	"github.com/mohammed-shakir/geotwin/internal/tilestream"
)

type genConfig struct {
	Layer    string
	Lon, Lat float64
	Res      int
	Rings    int
	// TileRes groups features into tiles by their parent cell.
	TileRes int
	Seed    uint64
}

// buildEvents returns one event per cell of the disk around lon/lat. Each
// cell becomes a building footprint with a pseudo-random height and use.
func buildEvents(cfg genConfig, op string, rev uint64, now time.Time) ([]tilestream.Event, error) {
	center, err := h3.LatLngToCell(h3.LatLng{Lat: cfg.Lat, Lng: cfg.Lon}, cfg.Res)
	if err != nil {
		return nil, fmt.Errorf("center cell: %w", err)
	}
	cells, err := h3.GridDisk(center, cfg.Rings)
	if err != nil {
		return nil, fmt.Errorf("grid disk: %w", err)
	}
	rnd := rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.Res)))
	uses := []string{"office", "residential", "retail", "industrial"}

	out := make([]tilestream.Event, 0, len(cells))
	for _, c := range cells {
		tile, err := c.Parent(cfg.TileRes)
		if err != nil {
			return nil, fmt.Errorf("tile of %s: %w", c, err)
		}
		ev := tilestream.Event{
			Version:   1,
			Op:        op,
			Layer:     cfg.Layer,
			Tile:      tile.String(),
			FeatureID: c.String(),
			Revision:  rev,
			TS:        now,
		}
		if op == tilestream.OpLoad {
			poly, err := hexlayer.CellPolygon(c)
			if err != nil {
				return nil, err
			}
			g, err := json.Marshal(geojson.NewGeometry(poly))
			if err != nil {
				return nil, err
			}
			ev.Geometry = g
			ev.Properties = map[string]any{
				"height": float64(3 + rnd.IntN(60)),
				"use":    uses[rnd.IntN(len(uses))],
			}
		}
		out = append(out, ev)
	}
	return out, nil
}
