package attrstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mohammed-shakir/geotwin/internal/attrstore/redisstore"
)

// Store persists attribute tables per layer:
//
//	attr:<layer>:<id>   JSON object with the row
//	attr:<layer>:ids    set of object ids
//	attr:<layer>:sum    checksum of the table
type Store struct {
	cli *redisstore.Client
	ttl time.Duration
}

// NewStore returns a store writing keys with ttl; zero keeps them forever.
func NewStore(cli *redisstore.Client, ttl time.Duration) *Store {
	return &Store{cli: cli, ttl: ttl}
}

// Put replaces the stored table for layer. Rows of ids no longer present are
// deleted.
func (s *Store) Put(ctx context.Context, layer string, t *Table) error {
	prev, err := s.cli.SMembers(ctx, idsKey(layer))
	if err != nil {
		return fmt.Errorf("attrstore put %q: %w", layer, err)
	}

	ids := t.IDs()
	kv := make(map[string][]byte, len(ids)+1)
	for _, id := range ids {
		row, _ := t.Attributes(id)
		b, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("attrstore put %q: encode %q: %w", layer, id, err)
		}
		kv[rowKey(layer, id)] = b
	}
	kv[sumKey(layer)] = []byte(strconv.FormatUint(t.Checksum(), 16))

	if err := s.cli.ReplaceSet(ctx, kv, idsKey(layer), ids, s.ttl); err != nil {
		return fmt.Errorf("attrstore put %q: %w", layer, err)
	}

	var stale []string
	for _, id := range prev {
		if _, ok := t.Attributes(id); !ok {
			stale = append(stale, rowKey(layer, id))
		}
	}
	if err := s.cli.Del(ctx, stale...); err != nil {
		return fmt.Errorf("attrstore put %q: %w", layer, err)
	}
	return nil
}

// Fetch loads the table for layer. A layer never stored yields an empty
// table. Rows that expired or fail to decode are skipped.
func (s *Store) Fetch(ctx context.Context, layer string) (*Table, error) {
	ids, err := s.cli.SMembers(ctx, idsKey(layer))
	if err != nil {
		return nil, fmt.Errorf("attrstore fetch %q: %w", layer, err)
	}
	t := NewTable()
	if len(ids) == 0 {
		return t, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rowKey(layer, id)
	}
	raw, err := s.cli.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("attrstore fetch %q: %w", layer, err)
	}
	for i, id := range ids {
		b, ok := raw[keys[i]]
		if !ok {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(b, &row); err != nil {
			continue
		}
		t.Put(id, row)
	}
	return t, nil
}

// Checksum returns the checksum written by the last Put.
func (s *Store) Checksum(ctx context.Context, layer string) (uint64, bool, error) {
	b, ok, err := s.cli.Get(ctx, sumKey(layer))
	if err != nil || !ok {
		return 0, ok, err
	}
	sum, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return 0, false, fmt.Errorf("attrstore checksum %q: %w", layer, err)
	}
	return sum, true, nil
}

func rowKey(layer, id string) string {
	return "attr:" + sanitizeLayer(strings.TrimSpace(layer)) + ":" + strings.TrimSpace(id)
}

func idsKey(layer string) string {
	return "attr:" + sanitizeLayer(strings.TrimSpace(layer)) + ":ids"
}

func sumKey(layer string) string {
	return "attr:" + sanitizeLayer(strings.TrimSpace(layer)) + ":sum"
}

func sanitizeLayer(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
