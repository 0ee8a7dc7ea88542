// Package frame provides small typed column tables used for per-cell and per-feature
// annotations (obs/var) and for loading vendor CSV files.
package frame

import (
	"fmt"
	"sort"
	"strconv"
)

// Column is one named, typed column of a Frame.
type Column interface {
	Name() string
	Len() int
	// String returns the value at row i formatted for display.
	String(i int) string
	// take returns a new column holding the given rows, in order.
	take(rows []int) Column
}

// Float64Column holds float values.
type Float64Column struct {
	ColName string
	Values  []float64
}

func (c *Float64Column) Name() string        { return c.ColName }
func (c *Float64Column) Len() int            { return len(c.Values) }
func (c *Float64Column) String(i int) string { return strconv.FormatFloat(c.Values[i], 'g', -1, 64) }

func (c *Float64Column) take(rows []int) Column {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = c.Values[r]
	}
	return &Float64Column{ColName: c.ColName, Values: out}
}

// Int64Column holds integer values.
type Int64Column struct {
	ColName string
	Values  []int64
}

func (c *Int64Column) Name() string        { return c.ColName }
func (c *Int64Column) Len() int            { return len(c.Values) }
func (c *Int64Column) String(i int) string { return strconv.FormatInt(c.Values[i], 10) }

func (c *Int64Column) take(rows []int) Column {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = c.Values[r]
	}
	return &Int64Column{ColName: c.ColName, Values: out}
}

// StringColumn holds free-form strings.
type StringColumn struct {
	ColName string
	Values  []string
}

func (c *StringColumn) Name() string        { return c.ColName }
func (c *StringColumn) Len() int            { return len(c.Values) }
func (c *StringColumn) String(i int) string { return c.Values[i] }

func (c *StringColumn) take(rows []int) Column {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = c.Values[r]
	}
	return &StringColumn{ColName: c.ColName, Values: out}
}

// Categorical stores values as int32 codes into a sorted category list.
type Categorical struct {
	ColName    string
	Categories []string
	Codes      []int32
}

// NewCategorical encodes values with lexicographically sorted categories.
func NewCategorical(name string, values []string) *Categorical {
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[v] = struct{}{}
	}
	cats := make([]string, 0, len(seen))
	for v := range seen {
		cats = append(cats, v)
	}
	sort.Strings(cats)

	idx := make(map[string]int32, len(cats))
	for i, v := range cats {
		idx[v] = int32(i)
	}
	codes := make([]int32, len(values))
	for i, v := range values {
		codes[i] = idx[v]
	}
	return &Categorical{ColName: name, Categories: cats, Codes: codes}
}

// Repeat builds a categorical column holding one value n times.
func Repeat(name, value string, n int) *Categorical {
	return &Categorical{ColName: name, Categories: []string{value}, Codes: make([]int32, n)}
}

func (c *Categorical) Name() string        { return c.ColName }
func (c *Categorical) Len() int            { return len(c.Codes) }
func (c *Categorical) String(i int) string { return c.Value(i) }

// Value returns the category label of row i.
func (c *Categorical) Value(i int) string {
	code := c.Codes[i]
	if code < 0 || int(code) >= len(c.Categories) {
		return ""
	}
	return c.Categories[code]
}

func (c *Categorical) take(rows []int) Column {
	out := make([]int32, len(rows))
	for i, r := range rows {
		out[i] = c.Codes[r]
	}
	return &Categorical{ColName: c.ColName, Categories: c.Categories, Codes: out}
}

// Frame is a table with a string row index and ordered typed columns.
type Frame struct {
	IndexName string
	Index     []string
	columns   []Column
	byName    map[string]int
}

// New creates an empty frame over the given index.
func New(indexName string, index []string) *Frame {
	return &Frame{
		IndexName: indexName,
		Index:     index,
		byName:    make(map[string]int),
	}
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return len(f.Index) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name()
	}
	return names
}

// Columns returns the columns in order.
func (f *Frame) Columns() []Column { return f.columns }

// Column looks up a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Has reports whether the frame has the column.
func (f *Frame) Has(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// AddColumn appends a column, or replaces an existing column with the same name.
func (f *Frame) AddColumn(c Column) error {
	if c.Len() != len(f.Index) {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name(), c.Len(), len(f.Index))
	}
	if i, ok := f.byName[c.Name()]; ok {
		f.columns[i] = c
		return nil
	}
	f.byName[c.Name()] = len(f.columns)
	f.columns = append(f.columns, c)
	return nil
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := New(f.IndexName, f.Index)
	for _, c := range f.columns {
		if !skip[c.Name()] {
			out.byName[c.Name()] = len(out.columns)
			out.columns = append(out.columns, c)
		}
	}
	return out
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := New(f.IndexName, f.Index)
	for _, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, fmt.Errorf("column not found: %s", n)
		}
		out.byName[n] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out, nil
}

// Take returns a frame holding the given rows, in order.
func (f *Frame) Take(rows []int) *Frame {
	index := make([]string, len(rows))
	for i, r := range rows {
		index[i] = f.Index[r]
	}
	out := New(f.IndexName, index)
	for _, c := range f.columns {
		out.byName[c.Name()] = len(out.columns)
		out.columns = append(out.columns, c.take(rows))
	}
	return out
}

// Copy returns a shallow copy with its own index and column list.
func (f *Frame) Copy() *Frame {
	index := append([]string(nil), f.Index...)
	out := New(f.IndexName, index)
	for _, c := range f.columns {
		out.byName[c.Name()] = len(out.columns)
		out.columns = append(out.columns, c)
	}
	return out
}

// Float64s returns a column as floats, converting integer columns.
func (f *Frame) Float64s(name string) ([]float64, error) {
	c, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	switch t := c.(type) {
	case *Float64Column:
		return t.Values, nil
	case *Int64Column:
		out := make([]float64, len(t.Values))
		for i, v := range t.Values {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("column %q is not numeric", name)
	}
}

// Strings returns a column formatted as strings.
func (f *Frame) Strings(name string) ([]string, error) {
	c, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	if s, ok := c.(*StringColumn); ok {
		return s.Values, nil
	}
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.String(i)
	}
	return out, nil
}

// Lookup maps index labels to row positions. Later duplicates win.
func (f *Frame) Lookup() map[string]int {
	pos := make(map[string]int, len(f.Index))
	for i, id := range f.Index {
		pos[id] = i
	}
	return pos
}

// MakeUnique appends "-1", "-2", ... to repeated labels, keeping the first occurrence as-is.
func MakeUnique(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	for i, n := range names {
		count, dup := seen[n]
		seen[n] = count + 1
		if !dup {
			out[i] = n
			continue
		}
		for {
			candidate := n + "-" + strconv.Itoa(count)
			count++
			if !taken[candidate] {
				taken[candidate] = true
				seen[n] = count
				out[i] = candidate
				break
			}
		}
	}
	return out
}
