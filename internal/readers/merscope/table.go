package merscope

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// IsBlank reports whether a counts column is a blank/control probe.
func IsBlank(column string) bool {
	return strings.Contains(strings.ToLower(column), "blank")
}

// SplitBlankColumns partitions counts columns into genes and blanks, preserving order.
func SplitBlankColumns(columns []string) (genes, blanks []string) {
	for _, c := range columns {
		if IsBlank(c) {
			blanks = append(blanks, c)
		} else {
			genes = append(genes, c)
		}
	}
	return genes, blanks
}

// readTable builds the expression table from the counts and metadata CSVs.
// Counts rows are aligned to the metadata index.
func readTable(files Files, region string) (*spatialdata.Table, error) {
	counts, err := frame.ReadCSVFile(files.Counts, frame.CSVOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	obs, err := frame.ReadCSVFile(files.CellMetadata, frame.CSVOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read cell metadata: %w", err)
	}

	rowOf := counts.Lookup()
	rows := make([]int, obs.NumRows())
	for i, id := range obs.Index {
		r, ok := rowOf[id]
		if !ok {
			return nil, fmt.Errorf("cell %s from %s has no counts row", id, CellMetadataFile)
		}
		rows[i] = r
	}
	if len(rowOf) != obs.NumRows() || counts.NumRows() != obs.NumRows() {
		return nil, fmt.Errorf("counts have %d cells, metadata has %d", counts.NumRows(), obs.NumRows())
	}
	counts = counts.Take(rows)

	genes, blanks := SplitBlankColumns(counts.Names())
	x, err := denseColumns(counts, genes)
	if err != nil {
		return nil, err
	}
	blank, err := denseColumns(counts, blanks)
	if err != nil {
		return nil, err
	}
	spatial, err := denseColumns(obs, []string{CellX, CellY})
	if err != nil {
		return nil, err
	}

	obs = obs.Copy()
	obs.IndexName = InstanceKey
	if err := obs.AddColumn(frame.Repeat(RegionKey, region, obs.NumRows())); err != nil {
		return nil, err
	}
	if err := obs.AddColumn(&frame.StringColumn{ColName: InstanceKey, Values: append([]string(nil), obs.Index...)}); err != nil {
		return nil, err
	}

	t := &spatialdata.Table{
		X:   x,
		Obs: obs,
		Var: frame.New("", genes),
		Obsm: map[string]*spatialdata.AxisArray{
			"spatial": {Columns: []string{CellX, CellY}, Values: spatial},
		},
	}
	if len(blanks) > 0 {
		t.Obsm["blank"] = &spatialdata.AxisArray{Columns: blanks, Values: blank}
	}
	if err := spatialdata.ParseTable(t, RegionKey, InstanceKey); err != nil {
		return nil, err
	}
	return t, nil
}

// denseColumns copies numeric columns into a rows x len(names) matrix. An
// empty selection gives an all-zero sparse matrix of the same shape.
func denseColumns(f *frame.Frame, names []string) (mat.Matrix, error) {
	n := f.NumRows()
	if len(names) == 0 || n == 0 {
		return spatialdata.NewCSR(n, len(names), make([]int64, n+1), nil, nil)
	}
	m := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		col, err := f.Float64s(name)
		if err != nil {
			return nil, err
		}
		m.SetCol(j, col)
	}
	return m, nil
}
