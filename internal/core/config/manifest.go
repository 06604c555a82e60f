package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LayerFeatures = "features"
	LayerHex      = "hex"
)

// Manifest lists the layers in hierarchy order, topmost first.
type Manifest struct {
	Layers []LayerSpec `yaml:"layers"`
}

type LayerSpec struct {
	Name         string         `yaml:"name"`
	Kind         string         `yaml:"kind"`
	Hidden       bool           `yaml:"hidden"`
	Color        Rule           `yaml:"color"`
	Visible      Rule           `yaml:"visible"`
	DefaultColor string         `yaml:"default_color"`
	Attributes   *AttributesRef `yaml:"attributes"`
	Hex          *HexSpec       `yaml:"hex"`
}

// AttributesRef points at a CSV table joined to the layer's objects.
type AttributesRef struct {
	CSV      string `yaml:"csv"`
	IDColumn string `yaml:"id_column"`
}

type HexSpec struct {
	Resolution int `yaml:"resolution"`
	// AutoResolution follows the camera scale between MinResolution and
	// MaxResolution instead of using Resolution.
	AutoResolution bool `yaml:"auto_resolution"`
	MinResolution  int  `yaml:"min_resolution"`
	MaxResolution  int  `yaml:"max_resolution"`
}

// Rule holds a style expression as JSON. In YAML it may be written either as
// a flow sequence (["get", "height"]) or as a block sequence.
type Rule []byte

func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return fmt.Errorf("rule at line %d: %w", n.Line, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rule at line %d: %w", n.Line, err)
	}
	*r = b
	return nil
}

func (r Rule) Empty() bool { return len(r) == 0 }

func LoadManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open layer manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadManifest(f)
}

func LoadManifest(r io.Reader) (Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("read layer manifest: %w", err)
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("decode layer manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate fills defaults in place and rejects inconsistent layer entries.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Layers))
	for i := range m.Layers {
		l := &m.Layers[i]
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return fmt.Errorf("layer %d: name is required", i)
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("layer %q declared twice", l.Name)
		}
		seen[l.Name] = struct{}{}

		switch l.Kind {
		case "":
			l.Kind = LayerFeatures
		case LayerFeatures, LayerHex:
		default:
			return fmt.Errorf("layer %q: kind must be features|hex", l.Name)
		}
		if l.Kind == LayerHex && l.Hex == nil {
			return fmt.Errorf("layer %q: hex layers need a hex section", l.Name)
		}
		if h := l.Hex; h != nil {
			if h.AutoResolution && h.MaxResolution == 0 {
				h.MaxResolution = 15
			}
			for _, r := range []int{h.Resolution, h.MinResolution, h.MaxResolution} {
				if r < 0 || r > 15 {
					return fmt.Errorf("layer %q: hex resolution %d out of range 0..15", l.Name, r)
				}
			}
			if h.MinResolution > h.MaxResolution && h.AutoResolution {
				return fmt.Errorf("layer %q: min_resolution > max_resolution", l.Name)
			}
		}
		if a := l.Attributes; a != nil && (a.CSV == "" || a.IDColumn == "") {
			return fmt.Errorf("layer %q: attributes need csv and id_column", l.Name)
		}
	}
	return nil
}
