package spatialdata

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialdata-io/server/internal/frame"
)

// AxisArray is a per-observation matrix with named columns (obsm entry).
type AxisArray struct {
	Columns []string
	Values  mat.Matrix
}

// Table is the annotated expression table: X is obs x var.
type Table struct {
	X    mat.Matrix
	Obs  *frame.Frame
	Var  *frame.Frame
	Obsm map[string]*AxisArray
	// Uns holds unstructured metadata.
	Uns map[string]interface{}

	// RegionKey and InstanceKey name the obs columns forming the element
	// foreign key. Regions lists the annotated regions.
	RegionKey   string
	InstanceKey string
	Regions     []string
}

// NumObs returns the number of rows.
func (t *Table) NumObs() int { return t.Obs.NumRows() }

// NumVars returns the number of features.
func (t *Table) NumVars() int { return t.Var.NumRows() }

// VarIndex returns the position of a feature name.
func (t *Table) VarIndex(name string) (int, bool) {
	for i, v := range t.Var.Index {
		if v == name {
			return i, true
		}
	}
	return 0, false
}

// Column returns one feature column of X as a dense vector.
func (t *Table) Column(j int) []float64 {
	if csr, ok := t.X.(*CSR); ok {
		return csr.Col(j)
	}
	return mat.Col(nil, j, t.X)
}

// ParseTable validates the obs columns used as region and instance keys and
// records the distinct regions. The region column is converted to categorical.
func ParseTable(t *Table, regionKey, instanceKey string) error {
	if t.Obs == nil || t.Var == nil || t.X == nil {
		return invariantf("table needs obs, var and X")
	}
	r, c := t.X.Dims()
	if r != t.Obs.NumRows() || c != t.Var.NumRows() {
		return invariantf("X is %dx%d but obs has %d rows and var has %d rows", r, c, t.Obs.NumRows(), t.Var.NumRows())
	}
	for name, a := range t.Obsm {
		if a == nil || a.Values == nil {
			return invariantf("obsm %q is empty", name)
		}
		if ar, ac := a.Values.Dims(); ar != r || ac != len(a.Columns) {
			return invariantf("obsm %q is %dx%d, expected %dx%d", name, ar, ac, r, len(a.Columns))
		}
	}

	col, ok := t.Obs.Column(regionKey)
	if !ok {
		return invariantf("region key %q not in obs", regionKey)
	}
	if _, ok := t.Obs.Column(instanceKey); !ok {
		return invariantf("instance key %q not in obs", instanceKey)
	}

	cat, ok := col.(*frame.Categorical)
	if !ok {
		values := make([]string, col.Len())
		for i := range values {
			values[i] = col.String(i)
		}
		cat = frame.NewCategorical(regionKey, values)
		if err := t.Obs.AddColumn(cat); err != nil {
			return err
		}
	}

	used := make(map[string]bool, len(cat.Categories))
	for i := range cat.Codes {
		used[cat.Value(i)] = true
	}
	regions := make([]string, 0, len(used))
	for r := range used {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	t.RegionKey = regionKey
	t.InstanceKey = instanceKey
	t.Regions = regions
	return nil
}

// Refs returns the element reference of every row.
func (t *Table) Refs() ([]ElementRef, error) {
	regions, err := t.Obs.Strings(t.RegionKey)
	if err != nil {
		return nil, err
	}
	instances, err := t.Obs.Strings(t.InstanceKey)
	if err != nil {
		return nil, err
	}
	refs := make([]ElementRef, len(regions))
	for i := range regions {
		refs[i] = ElementRef{Region: regions[i], Instance: instances[i]}
	}
	return refs, nil
}

// CSR is a compressed sparse row matrix implementing mat.Matrix.
type CSR struct {
	rows, cols int
	Indptr     []int64
	Indices    []int32
	Data       []float64
}

// NewCSR validates the compressed arrays.
func NewCSR(rows, cols int, indptr []int64, indices []int32, data []float64) (*CSR, error) {
	if len(indptr) != rows+1 {
		return nil, fmt.Errorf("indptr has %d entries, expected %d", len(indptr), rows+1)
	}
	if len(indices) != len(data) {
		return nil, fmt.Errorf("indices (%d) and data (%d) differ in length", len(indices), len(data))
	}
	if indptr[0] != 0 || indptr[rows] != int64(len(data)) {
		return nil, fmt.Errorf("indptr does not span data: [%d, %d] for %d values", indptr[0], indptr[rows], len(data))
	}
	for i := 0; i < rows; i++ {
		if indptr[i] > indptr[i+1] {
			return nil, fmt.Errorf("indptr decreases at row %d", i)
		}
	}
	for _, j := range indices {
		if j < 0 || int(j) >= cols {
			return nil, fmt.Errorf("column index %d out of range [0, %d)", j, cols)
		}
	}
	return &CSR{rows: rows, cols: cols, Indptr: indptr, Indices: indices, Data: data}, nil
}

// Dims implements mat.Matrix.
func (m *CSR) Dims() (int, int) { return m.rows, m.cols }

// At implements mat.Matrix.
func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
		if int(m.Indices[k]) == j {
			return m.Data[k]
		}
	}
	return 0
}

// T implements mat.Matrix.
func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Col returns column j as a dense vector.
func (m *CSR) Col(j int) []float64 {
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		for k := m.Indptr[i]; k < m.Indptr[i+1]; k++ {
			if int(m.Indices[k]) == j {
				out[i] = m.Data[k]
				break
			}
		}
	}
	return out
}

// NNZ returns the number of stored values.
func (m *CSR) NNZ() int { return len(m.Data) }
