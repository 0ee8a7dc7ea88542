package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GeneStats summarizes the expression of one gene over all table rows.
type GeneStats struct {
	Gene            string  `json:"gene"`
	Index           int     `json:"index"`
	ExpressingCells int     `json:"expressing_cells"`
	TotalCells      int     `json:"total_cells"`
	MeanExpression  float64 `json:"mean_expression"`
	MaxExpression   float64 `json:"max_expression"`
	// P80Expression is the 80th percentile over expressing cells.
	P80Expression float64 `json:"p80_expression"`
}

// Genes returns the table's feature names in order.
func (s *DatasetService) Genes() []string {
	if s.ds.Table == nil {
		return []string{}
	}
	return append([]string(nil), s.ds.Table.Var.Index...)
}

// GeneStats computes expression statistics for a gene.
func (s *DatasetService) GeneStats(gene string) (*GeneStats, error) {
	t := s.ds.Table
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrGeneNotFound, gene)
	}
	j, ok := t.VarIndex(gene)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGeneNotFound, gene)
	}

	key := fmt.Sprintf("stats:%s:%s", s.datasetID, gene)
	if data, ok := s.cache.GetQuery(key); ok {
		var gs GeneStats
		if err := json.Unmarshal(data, &gs); err == nil {
			return &gs, nil
		}
	}

	values := t.Column(j)
	gs := &GeneStats{Gene: gene, Index: j, TotalCells: len(values)}
	if len(values) > 0 {
		gs.MeanExpression = stat.Mean(values, nil)
		gs.MaxExpression = floats.Max(values)
	}

	expressing := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			expressing = append(expressing, v)
		}
	}
	gs.ExpressingCells = len(expressing)
	if len(expressing) > 0 {
		sort.Float64s(expressing)
		gs.P80Expression = stat.Quantile(0.8, stat.Empirical, expressing, nil)
	}

	if data, err := json.Marshal(gs); err == nil {
		s.cache.SetQuery(key, data)
	}
	return gs, nil
}
