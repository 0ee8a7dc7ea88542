package service

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/spatialdata-io/server/internal/spatialdata"
)

// ObservationInfo is one table row located by its annotated element.
type ObservationInfo struct {
	// ID is the table row position.
	ID         int64   `json:"id"`
	Instance   string  `json:"instance"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Expression float64 `json:"expression,omitempty"`
}

// ObservationQueryResult is the result of ObservationsInBounds.
type ObservationQueryResult struct {
	Observations []ObservationInfo `json:"observations"`
	TotalCount   int               `json:"total_count"`
	Truncated    bool              `json:"truncated"`
}

// cellHash mixes seed and id with the splitmix64 finalizer.
func cellHash(seed, id int64) uint64 {
	z := uint64(seed)*0x9E3779B97F4A7C15 + uint64(id)
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// deterministicSample keeps the k observations with the smallest hash, so
// the same seed always selects the same subset.
func deterministicSample(obs []ObservationInfo, k int, seed int64) []ObservationInfo {
	if k <= 0 {
		return []ObservationInfo{}
	}
	out := append([]ObservationInfo(nil), obs...)
	if k >= len(out) {
		return out
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := cellHash(seed, out[i].ID), cellHash(seed, out[j].ID)
		if hi != hj {
			return hi < hj
		}
		return out[i].ID < out[j].ID
	})
	return out[:k]
}

// ObservationsInBounds returns the table rows annotating layer whose element
// centre lies inside the box, sampled down to limit. A non-empty gene adds
// each row's expression.
//   - limit: maximum number of observations to return (default 5000)
func (s *DatasetService) ObservationsInBounds(
	layer string,
	minX, minY, maxX, maxY float64,
	gene string,
	limit int,
	seed int64,
) (*ObservationQueryResult, error) {
	if limit <= 0 {
		limit = 5000
	}
	if limit > 50000 {
		limit = 50000
	}

	t := s.ds.Table
	if t == nil {
		return nil, fmt.Errorf("%w: dataset has no table", ErrLayerNotFound)
	}

	centres, region, err := s.elementCentres(layer)
	if err != nil {
		return nil, err
	}

	var expr []float64
	if gene != "" {
		j, ok := t.VarIndex(gene)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrGeneNotFound, gene)
		}
		expr = t.Column(j)
	}

	refs, err := t.Refs()
	if err != nil {
		return nil, err
	}
	box := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
	matched := make([]ObservationInfo, 0, 64)
	for i, ref := range refs {
		if ref.Region != region {
			continue
		}
		c, ok := centres[ref.Instance]
		if !ok || !box.Contains(c) {
			continue
		}
		o := ObservationInfo{ID: int64(i), Instance: ref.Instance, X: c[0], Y: c[1]}
		if expr != nil {
			o.Expression = expr[i]
		}
		matched = append(matched, o)
	}

	result := &ObservationQueryResult{
		Observations: matched,
		TotalCount:   len(matched),
	}
	if len(matched) > limit {
		result.Observations = deterministicSample(matched, limit, seed)
		result.Truncated = true
	}
	return result, nil
}

// elementCentres maps instance ids of an annotated layer to their centres.
func (s *DatasetService) elementCentres(layer string) (map[string]orb.Point, string, error) {
	if sh, ok := s.ds.Shapes[layer]; ok {
		out := make(map[string]orb.Point, sh.Len())
		for i, id := range sh.Index {
			out[id] = sh.Centroid(i)
		}
		return out, sh.Region, nil
	}
	if p, ok := s.ds.Points[layer]; ok && p.Instances != nil {
		out := make(map[string]orb.Point, len(p.Instances))
		offset := 0
		err := p.Each(func(c *spatialdata.PointChunk) error {
			for i := range c.X {
				out[p.Instances[offset+i]] = orb.Point{c.X[i], c.Y[i]}
			}
			offset += c.Len()
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		return out, p.Region, nil
	}
	return nil, "", fmt.Errorf("%w: no annotated layer %s", ErrLayerNotFound, layer)
}
