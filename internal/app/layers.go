package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mohammed-shakir/geotwin/internal/attrstore"
	"github.com/mohammed-shakir/geotwin/internal/core/config"
	"github.com/mohammed-shakir/geotwin/internal/expr"
	"github.com/mohammed-shakir/geotwin/internal/layer"
	"github.com/mohammed-shakir/geotwin/internal/style"
)

// LayerDef is one manifest layer ready to be added to the viewer.
type LayerDef struct {
	Data   *layer.Data
	Styler *style.ExpressionStyler
	// Hex is set for generated hexagon layers.
	Hex *config.HexSpec
	// Attributes reloads the layer's attribute table; nil when it has none.
	Attributes func(ctx context.Context) (*attrstore.Table, error)
}

// BuildLayers compiles the manifest rules and loads attribute tables. CSV
// paths are relative to baseDir. When store is non-nil, loaded tables are
// written through to it, and a layer whose CSV cannot be opened falls back
// to the last table stored for it.
func BuildLayers(ctx context.Context, m config.Manifest, baseDir string, exprs *expr.Cache, store *attrstore.Store, log *slog.Logger) ([]LayerDef, error) {
	if log == nil {
		log = slog.Default()
	}
	defs := make([]LayerDef, 0, len(m.Layers))
	for _, ls := range m.Layers {
		opts := []style.Option{style.WithLogger(log)}

		if !ls.Color.Empty() {
			e, err := compileRule(exprs, ls.Color)
			if err != nil {
				return nil, fmt.Errorf("layer %q color: %w", ls.Name, err)
			}
			opts = append(opts, style.WithColorRule(e))
		}
		if !ls.Visible.Empty() {
			e, err := compileRule(exprs, ls.Visible)
			if err != nil {
				return nil, fmt.Errorf("layer %q visible: %w", ls.Name, err)
			}
			opts = append(opts, style.WithVisibleRule(e))
		}
		if ls.DefaultColor != "" {
			c, err := expr.ParseColor(ls.DefaultColor)
			if err != nil {
				return nil, fmt.Errorf("layer %q default_color: %w", ls.Name, err)
			}
			opts = append(opts, style.WithDefaultColor(c))
		}
		var reload func(context.Context) (*attrstore.Table, error)
		if ls.Attributes != nil {
			name, ref := ls.Name, *ls.Attributes
			reload = func(ctx context.Context) (*attrstore.Table, error) {
				return loadAttributes(ctx, name, ref, baseDir, store, log)
			}
			t, err := reload(ctx)
			if err != nil {
				return nil, fmt.Errorf("layer %q attributes: %w", ls.Name, err)
			}
			opts = append(opts, style.WithAttributes(t))
		}

		styler := style.NewExpressionStyler(ls.Name, opts...)
		data := layer.New(ls.Name, styler)
		data.Visible = !ls.Hidden

		def := LayerDef{Data: data, Styler: styler, Attributes: reload}
		if ls.Kind == config.LayerHex {
			if ls.Hex == nil {
				return nil, fmt.Errorf("layer %q: hex layers need a hex section", ls.Name)
			}
			hex := *ls.Hex
			def.Hex = &hex
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// compileRule parses a rule. A bare scalar such as "red" or 3 is taken as a
// literal value.
func compileRule(exprs *expr.Cache, rule config.Rule) (*expr.Expression, error) {
	src := bytes.TrimSpace(rule)
	if len(src) > 0 && src[0] != '[' {
		src = append(append([]byte(`["literal",`), src...), ']')
	}
	return exprs.Parse(src)
}

func loadAttributes(ctx context.Context, name string, ref config.AttributesRef, baseDir string, store *attrstore.Store, log *slog.Logger) (*attrstore.Table, error) {
	path := ref.CSV
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	f, openErr := os.Open(path)
	if openErr == nil {
		defer func() { _ = f.Close() }()
		t, err := attrstore.LoadCSV(f, ref.IDColumn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		log.Info("attribute table loaded", "layer", name, "rows", t.Len(), "path", path)
		if store != nil {
			if err := store.Put(ctx, name, t); err != nil {
				log.Warn("attribute table not cached", "layer", name, "err", err)
			}
		}
		return t, nil
	}

	if store == nil {
		return nil, openErr
	}
	t, err := store.Fetch(ctx, name)
	if err != nil {
		return nil, errors.Join(openErr, err)
	}
	if t.Len() == 0 {
		return nil, openErr
	}
	log.Warn("attribute csv unavailable, using cached table", "layer", name, "rows", t.Len(), "err", openErr)
	return t, nil
}
