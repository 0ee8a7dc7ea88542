// Package spatialdata holds the in-memory multi-modal dataset produced by the
// format readers: image layers, point layers, shape layers and one annotated
// expression table, each registered to named coordinate systems.
package spatialdata

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariant marks a violated data-model invariant.
var ErrInvariant = errors.New("invariant violation")

func invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// Kind names an element slot of a Dataset.
type Kind string

const (
	KindImages Kind = "images"
	KindPoints Kind = "points"
	KindShapes Kind = "shapes"
)

// ElementRef identifies one annotated instance across layers: the region a
// table row belongs to and its instance id inside that region.
type ElementRef struct {
	Region   string
	Instance string
}

func (r ElementRef) String() string {
	return r.Region + "#" + r.Instance
}

// ElementPath returns the "/<kind>/<name>" path used as a region name.
func ElementPath(kind Kind, name string) string {
	return "/" + string(kind) + "/" + name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
