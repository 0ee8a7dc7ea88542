package spatialdata

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/spatialdata-io/server/internal/frame"
)

// Shapes is a named layer of polygon geometries indexed by instance id.
type Shapes struct {
	Name string
	// Index holds one instance id per geometry.
	Index     []string
	IndexName string
	Geometry  []orb.Geometry
	// Attributes holds the non-geometry columns aligned with Index. May be nil.
	Attributes *frame.Frame
	// Region is set when the layer is annotated by the table.
	Region     string
	Transforms map[string]Transform
}

// Len returns the number of geometries.
func (s *Shapes) Len() int { return len(s.Geometry) }

// Bound returns the bounding box over all geometries.
func (s *Shapes) Bound() orb.Bound {
	if len(s.Geometry) == 0 {
		return orb.Bound{}
	}
	b := s.Geometry[0].Bound()
	for _, g := range s.Geometry[1:] {
		b = b.Union(g.Bound())
	}
	return b
}

// Centroid returns the area-weighted centroid of geometry i.
func (s *Shapes) Centroid(i int) orb.Point {
	c, _ := planar.CentroidArea(s.Geometry[i])
	return c
}

func (s *Shapes) validate() error {
	if len(s.Index) != len(s.Geometry) {
		return invariantf("shapes %s has %d index entries for %d geometries", s.Name, len(s.Index), len(s.Geometry))
	}
	if s.Attributes != nil && s.Attributes.NumRows() != len(s.Geometry) {
		return invariantf("shapes %s has %d attribute rows for %d geometries", s.Name, s.Attributes.NumRows(), len(s.Geometry))
	}
	if dup, ok := firstDuplicate(s.Index); ok {
		return invariantf("shapes %s has duplicate instance id %q", s.Name, dup)
	}
	return nil
}
