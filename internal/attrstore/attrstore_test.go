package attrstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/geotwin/internal/attrstore/redisstore"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/style"
)

const buildingsCSV = `building_id, height, usage, year
b1, 42.5, office, 1931
b2, 12, residential,
b3,,,
`

func newStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return NewStore(cli, ttl), mr
}

func TestLoadCSV_ParsesNumbersAndSkipsEmpty(t *testing.T) {
	tbl, err := LoadCSV(strings.NewReader(buildingsCSV), "building_id")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len=%d want 3", tbl.Len())
	}

	row, ok := tbl.Attributes("b1")
	if !ok {
		t.Fatalf("b1 missing")
	}
	if row["height"] != 42.5 || row["usage"] != "office" || row["year"] != 1931.0 {
		t.Fatalf("b1 row = %v", row)
	}
	if _, ok := row["building_id"]; ok {
		t.Fatalf("id column should not be an attribute")
	}

	row, _ = tbl.Attributes("b2")
	if _, ok := row["year"]; ok {
		t.Fatalf("empty cell should be omitted, got %v", row)
	}
	row, _ = tbl.Attributes("b3")
	if len(row) != 0 {
		t.Fatalf("b3 row = %v, want empty", row)
	}
	if _, ok := tbl.Attributes("nope"); ok {
		t.Fatalf("unexpected row for unknown id")
	}
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("a,b\n1,2\n"), "id")
	if !errors.Is(err, ErrNoIDColumn) {
		t.Fatalf("err=%v want ErrNoIDColumn", err)
	}

	tbl, err := LoadCSV(strings.NewReader(""), "id")
	if err != nil || tbl.Len() != 0 {
		t.Fatalf("empty input: tbl=%v err=%v", tbl, err)
	}

	_, err = LoadCSV(strings.NewReader("id,name\n1,\"unterminated\n"), "id")
	if err == nil {
		t.Fatalf("expected csv parse error")
	}
}

func TestTable_ChecksumIgnoresOrder(t *testing.T) {
	a, _ := LoadCSV(strings.NewReader("id,x,y\n1,2,3\n4,5,6\n"), "id")
	b, _ := LoadCSV(strings.NewReader("y,id,x\n6,4,5\n3,1,2\n"), "id")
	if a.Checksum() != b.Checksum() {
		t.Fatalf("checksums differ for equal tables")
	}
	b.Put("4", map[string]any{"x": 5.0, "y": 7.0})
	if a.Checksum() == b.Checksum() {
		t.Fatalf("checksum did not change")
	}
}

func TestTable_FeedsExpressionStyler(t *testing.T) {
	tbl, err := LoadCSV(strings.NewReader(buildingsCSV), "building_id")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	rule, err := expr.Parse([]byte(`["case", [">", ["get", "height"], 20], "red", "blue"]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := style.NewExpressionStyler("buildings", style.WithColorRule(rule), style.WithAttributes(tbl))

	if got := s.Color("b1", nil); got != (expr.Color{R: 255, A: 1}) {
		t.Fatalf("b1 color = %+v, want red", got)
	}
	if got := s.Color("b2", nil); got != (expr.Color{B: 255, A: 1}) {
		t.Fatalf("b2 color = %+v, want blue", got)
	}
}

func TestStore_PutFetchRoundTrip(t *testing.T) {
	s, _ := newStore(t, 0)
	ctx := context.Background()

	tbl, err := LoadCSV(strings.NewReader(buildingsCSV), "building_id")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if err := s.Put(ctx, "Stockholm buildings", tbl); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Fetch(ctx, "Stockholm buildings")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Len() != tbl.Len() {
		t.Fatalf("Len=%d want %d", got.Len(), tbl.Len())
	}
	if got.Checksum() != tbl.Checksum() {
		t.Fatalf("checksum mismatch after round trip")
	}
	sum, ok, err := s.Checksum(ctx, "Stockholm buildings")
	if err != nil || !ok || sum != tbl.Checksum() {
		t.Fatalf("stored checksum = %x,%v,%v want %x", sum, ok, err, tbl.Checksum())
	}

	empty, err := s.Fetch(ctx, "unknown")
	if err != nil || empty.Len() != 0 {
		t.Fatalf("unknown layer: %v, %v", empty, err)
	}
}

func TestStore_PutRemovesStaleRows(t *testing.T) {
	s, mr := newStore(t, 0)
	ctx := context.Background()

	first, _ := LoadCSV(strings.NewReader("id,h\na,1\nb,2\n"), "id")
	second, _ := LoadCSV(strings.NewReader("id,h\nb,3\n"), "id")
	if err := s.Put(ctx, "roofs", first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := s.Put(ctx, "roofs", second); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	if mr.Exists("attr:roofs:a") {
		t.Fatalf("stale row attr:roofs:a still present")
	}
	got, err := s.Fetch(ctx, "roofs")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	row, ok := got.Attributes("b")
	if got.Len() != 1 || !ok || row["h"] != 3.0 {
		t.Fatalf("got %d rows, b=%v", got.Len(), row)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s, mr := newStore(t, 5*time.Second)
	ctx := context.Background()

	tbl, _ := LoadCSV(strings.NewReader("id,h\na,1\n"), "id")
	if err := s.Put(ctx, "roofs", tbl); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(6 * time.Second)

	got, err := s.Fetch(ctx, "roofs")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("expected expired table, got %d rows", got.Len())
	}
}

func TestSanitizeLayer(t *testing.T) {
	cases := map[string]string{
		"Stockholm buildings": "Stockholm_buildings",
		"a  b":                "a_b",
		"roofs/2024":          "roofs-2024",
		"x::y":                "x-y",
	}
	for in, want := range cases {
		if got := sanitizeLayer(in); got != want {
			t.Fatalf("sanitizeLayer(%q)=%q want %q", in, got, want)
		}
	}
}
