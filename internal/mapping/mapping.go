// Package mapping defines the entries stored in the mapping tree: a closed set
// of variants pairing an identity and payload with a bounding volume.
package mapping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/geotwin/internal/core/geom"
	"github.com/mohammed-shakir/geotwin/internal/layer"
)

// Kind is a variant tag; queries take a mask of the kinds they want.
type Kind uint8

const (
	KindMesh Kind = 1 << iota
	KindFeature

	KindAny = KindMesh | KindFeature
)

func (k Kind) Has(o Kind) bool { return k&o != 0 }

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindFeature:
		return "feature"
	case KindAny:
		return "any"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return KindAny, nil
	case "mesh":
		return KindMesh, nil
	case "feature":
		return KindFeature, nil
	}
	return 0, fmt.Errorf("unknown mapping kind %q", s)
}

// Mapping is implemented only by *MeshMapping and *FeatureMapping.
type Mapping interface {
	ID() string
	Kind() Kind
	// Object is the payload the rendering collaborator owns.
	Object() any
	Bounds() geom.BoundingBox
	Layer() *layer.Data

	sealed()
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
