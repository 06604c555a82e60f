// Package attrstore loads per-object attribute tables (CSV exports keyed by an
// object id) and persists them per layer in Redis so stylers can share them.
package attrstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var ErrNoIDColumn = errors.New("attrstore: id column not found")

// Table maps object ids to their attribute rows.
type Table struct {
	rows map[string]map[string]any
}

func NewTable() *Table {
	return &Table{rows: make(map[string]map[string]any)}
}

// LoadCSV reads a header row followed by one row per object. Cells that parse
// as numbers are stored as float64, empty cells are left out. A repeated id
// replaces the earlier row.
func LoadCSV(r io.Reader, idColumn string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return NewTable(), nil
		}
		return nil, fmt.Errorf("attrstore: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	idx := -1
	for i, h := range header {
		if h == idColumn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoIDColumn, idColumn)
	}

	t := NewTable()
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("attrstore: line %d: %w", line, err)
		}
		if idx >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[idx])
		if id == "" {
			continue
		}
		row := make(map[string]any, len(header))
		for i, cell := range rec {
			if i >= len(header) || i == idx {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[header[i]] = parseCell(cell)
		}
		t.rows[id] = row
	}
	return t, nil
}

func parseCell(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Put replaces the row for id.
func (t *Table) Put(id string, row map[string]any) {
	t.rows[id] = row
}

// Attributes returns the row for objectID.
func (t *Table) Attributes(objectID string) (map[string]any, bool) {
	if t == nil {
		return nil, false
	}
	row, ok := t.rows[objectID]
	return row, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// IDs returns the object ids in sorted order.
func (t *Table) IDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Checksum hashes the table content independent of map order.
func (t *Table) Checksum() uint64 {
	h := xxhash.New()
	for _, id := range t.IDs() {
		_, _ = h.WriteString(id)
		_, _ = h.WriteString("\x00")
		row := t.rows[id]
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(h, "%s=%v\x1f", k, row[k])
		}
		_, _ = h.WriteString("\x1e")
	}
	return h.Sum64()
}
