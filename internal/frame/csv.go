package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// IndexCol is the column used as row index; empty uses the first column.
	// The index is always read as strings.
	IndexCol string
	// NoIndex keeps every column as data and numbers rows "0".."n-1".
	NoIndex bool
	// NoHeader reads the first row as data; columns are named by Header.
	NoHeader bool
	Header   []string
	// StringColumns are kept as strings without type inference.
	StringColumns []string
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	fr, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fr, nil
}

// ReadCSV reads a comma-separated table. Each column is inferred as int64,
// then float64, falling back to string when any cell fails to parse.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	var header []string
	if opts.NoHeader {
		header = opts.Header
	} else {
		h, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("empty csv: missing header row")
			}
			return nil, fmt.Errorf("failed to read csv header: %w", err)
		}
		header = h
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("csv has no columns")
	}
	header = append([]string(nil), header...)
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	indexPos := -1
	if !opts.NoIndex {
		indexPos = 0
		if opts.IndexCol != "" {
			indexPos = -1
			for i, h := range header {
				if h == opts.IndexCol {
					indexPos = i
					break
				}
			}
			if indexPos < 0 {
				return nil, fmt.Errorf("index column %q not found in header", opts.IndexCol)
			}
		}
	}

	cells := make([][]string, len(header))
	var index []string
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", line, err)
		}
		line++
		if len(rec) != len(header) {
			return nil, fmt.Errorf("csv row %d has %d fields, header has %d", line, len(rec), len(header))
		}
		for i, v := range rec {
			if i == indexPos {
				index = append(index, v)
				continue
			}
			cells[i] = append(cells[i], v)
		}
	}

	nRows := 0
	for i := range cells {
		if i != indexPos {
			nRows = len(cells[i])
			break
		}
	}
	if indexPos >= 0 {
		nRows = len(index)
	}
	if indexPos < 0 {
		index = make([]string, nRows)
		for i := range index {
			index[i] = strconv.Itoa(i)
		}
	}

	indexName := ""
	if indexPos >= 0 {
		indexName = header[indexPos]
	}
	f := New(indexName, index)

	forced := make(map[string]bool, len(opts.StringColumns))
	for _, c := range opts.StringColumns {
		forced[c] = true
	}
	for i, name := range header {
		if i == indexPos {
			continue
		}
		values := cells[i]
		if values == nil {
			values = []string{}
		}
		var col Column
		if forced[name] {
			col = &StringColumn{ColName: name, Values: values}
		} else {
			col = InferColumn(name, values)
		}
		if err := f.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// InferColumn picks the narrowest column type that parses every value.
func InferColumn(name string, values []string) Column {
	if ints, ok := parseInts(values); ok {
		return &Int64Column{ColName: name, Values: ints}
	}
	if floats, ok := parseFloats(values); ok {
		return &Float64Column{ColName: name, Values: floats}
	}
	return &StringColumn{ColName: name, Values: values}
}

func parseInts(values []string) ([]int64, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]int64, len(values))
	for i, v := range values {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func parseFloats(values []string) ([]float64, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]float64, len(values))
	for i, v := range values {
		s := strings.TrimSpace(v)
		if s == "" {
			out[i] = math.NaN()
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
