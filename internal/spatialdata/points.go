package spatialdata

import (
	"fmt"
)

// PointChunk is one materialized slice of a point layer.
type PointChunk struct {
	X       []float64
	Y       []float64
	Feature []int32
	// Extra holds the remaining columns as strings, keyed by column name.
	Extra map[string][]string
}

// Len returns the number of points in the chunk.
func (c *PointChunk) Len() int { return len(c.X) }

// PointSource streams a point layer chunk by chunk.
type PointSource interface {
	Len() int
	NumChunks() int
	Chunk(i int) (*PointChunk, error)
}

// Points is a named point layer with a categorical feature column.
type Points struct {
	Name string
	// FeatureKey is the name of the categorical column, e.g. "gene". Empty when absent.
	FeatureKey string
	Features   []string
	// ExtraColumns names the columns carried in PointChunk.Extra.
	ExtraColumns []string
	// Radius is set for circle layers, one value per point.
	Radius []float64
	// Region and Instances are set when the layer is annotated by the table.
	Region      string
	InstanceKey string
	Instances   []string
	Transforms  map[string]Transform
	Source      PointSource
}

// Len returns the number of points.
func (p *Points) Len() int {
	if p.Source == nil {
		return 0
	}
	return p.Source.Len()
}

// Columns lists the layer's columns, coordinates first.
func (p *Points) Columns() []string {
	cols := []string{"x", "y"}
	if p.FeatureKey != "" {
		cols = append(cols, p.FeatureKey)
	}
	cols = append(cols, p.ExtraColumns...)
	if p.Radius != nil {
		cols = append(cols, "radius")
	}
	return cols
}

// Each calls fn for every chunk in order.
func (p *Points) Each(fn func(*PointChunk) error) error {
	if p.Source == nil {
		return nil
	}
	for i := 0; i < p.Source.NumChunks(); i++ {
		c, err := p.Source.Chunk(i)
		if err != nil {
			return fmt.Errorf("failed to load chunk %d of %s: %w", i, p.Name, err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Feature returns the category label for a code.
func (p *Points) Feature(code int32) string {
	if code < 0 || int(code) >= len(p.Features) {
		return ""
	}
	return p.Features[code]
}

func (p *Points) validate() error {
	if p.Radius != nil && len(p.Radius) != p.Len() {
		return invariantf("points %s has %d radii for %d points", p.Name, len(p.Radius), p.Len())
	}
	if p.Instances != nil {
		if len(p.Instances) != p.Len() {
			return invariantf("points %s has %d instance ids for %d points", p.Name, len(p.Instances), p.Len())
		}
		if dup, ok := firstDuplicate(p.Instances); ok {
			return invariantf("points %s has duplicate instance id %q", p.Name, dup)
		}
	}
	return nil
}

// MemoryPoints is a PointSource backed by a single in-memory chunk.
type MemoryPoints struct {
	Data *PointChunk
}

// Len implements PointSource.
func (m *MemoryPoints) Len() int { return m.Data.Len() }

// NumChunks implements PointSource.
func (m *MemoryPoints) NumChunks() int { return 1 }

// Chunk implements PointSource.
func (m *MemoryPoints) Chunk(i int) (*PointChunk, error) {
	if i != 0 {
		return nil, fmt.Errorf("chunk %d out of range", i)
	}
	return m.Data, nil
}

// NewCircles builds a circle layer from centre coordinates and one radius per point.
func NewCircles(name string, xy [][2]float64, radius []float64, instanceKey string, instances []string) *Points {
	x := make([]float64, len(xy))
	y := make([]float64, len(xy))
	for i, p := range xy {
		x[i], y[i] = p[0], p[1]
	}
	return &Points{
		Name:        name,
		Radius:      radius,
		InstanceKey: instanceKey,
		Instances:   instances,
		Transforms:  map[string]Transform{},
		Source:      &MemoryPoints{Data: &PointChunk{X: x, Y: y}},
	}
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
