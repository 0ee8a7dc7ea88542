package visium

import (
	"fmt"
	"strings"

	"github.com/scigolib/hdf5"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// countMatrix is the content of a 10x feature-barcode HDF5 file.
type countMatrix struct {
	// X is barcodes x features.
	X          *spatialdata.CSR
	Barcodes   []string
	Var        *frame.Frame
	LibraryIDs []string
}

// readCountMatrix reads a 10x HDF5 matrix. Both the v3 layout (/matrix with a
// features group) and the legacy per-genome layout are supported.
func readCountMatrix(path string) (*countMatrix, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open count matrix: %w", err)
	}
	defer f.Close()

	datasets := map[string]*hdf5.Dataset{}
	f.Walk(func(p string, obj hdf5.Object) {
		if ds, ok := obj.(*hdf5.Dataset); ok {
			datasets[p] = ds
		}
	})

	prefix, legacy, err := matrixPrefix(datasets)
	if err != nil {
		return nil, err
	}

	need := func(name string) (*hdf5.Dataset, error) {
		ds, ok := datasets[prefix+name]
		if !ok {
			return nil, fmt.Errorf("count matrix is missing %s%s", prefix, name)
		}
		return ds, nil
	}
	readFloats := func(name string) ([]float64, error) {
		ds, err := need(name)
		if err != nil {
			return nil, err
		}
		v, err := ds.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s%s: %w", prefix, name, err)
		}
		return v, nil
	}
	readStrings := func(name string) ([]string, error) {
		ds, err := need(name)
		if err != nil {
			return nil, err
		}
		v, err := ds.ReadStrings()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s%s: %w", prefix, name, err)
		}
		return v, nil
	}

	shape, err := readFloats("shape")
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("count matrix shape has %d dims, expected 2", len(shape))
	}
	nFeatures, nBarcodes := int(shape[0]), int(shape[1])

	data, err := readFloats("data")
	if err != nil {
		return nil, err
	}
	indicesF, err := readFloats("indices")
	if err != nil {
		return nil, err
	}
	indptrF, err := readFloats("indptr")
	if err != nil {
		return nil, err
	}
	barcodes, err := readStrings("barcodes")
	if err != nil {
		return nil, err
	}

	// The file stores features x barcodes as CSC, which is barcodes x features as CSR.
	indices := make([]int32, len(indicesF))
	for i, v := range indicesF {
		indices[i] = int32(v)
	}
	indptr := make([]int64, len(indptrF))
	for i, v := range indptrF {
		indptr[i] = int64(v)
	}
	x, err := spatialdata.NewCSR(nBarcodes, nFeatures, indptr, indices, data)
	if err != nil {
		return nil, fmt.Errorf("invalid count matrix: %w", err)
	}
	if len(barcodes) != nBarcodes {
		return nil, fmt.Errorf("count matrix has %d barcodes for %d columns", len(barcodes), nBarcodes)
	}

	var ids, names, types, genomes []string
	if legacy {
		if ids, err = readStrings("genes"); err != nil {
			return nil, err
		}
		if names, err = readStrings("gene_names"); err != nil {
			return nil, err
		}
		genome := strings.Trim(prefix, "/")
		types = repeat("Gene Expression", len(ids))
		genomes = repeat(genome, len(ids))
	} else {
		if ids, err = readStrings("features/id"); err != nil {
			return nil, err
		}
		if names, err = readStrings("features/name"); err != nil {
			return nil, err
		}
		if types, err = readStrings("features/feature_type"); err != nil {
			return nil, err
		}
		if genomes, err = readStrings("features/genome"); err != nil {
			genomes = repeat("", len(ids))
		}
	}
	if len(names) != nFeatures {
		return nil, fmt.Errorf("count matrix has %d feature names for %d rows", len(names), nFeatures)
	}

	vars := frame.New("", names)
	for _, col := range []*frame.StringColumn{
		{ColName: "gene_ids", Values: ids},
		{ColName: "feature_types", Values: types},
		{ColName: "genome", Values: genomes},
	} {
		if err := vars.AddColumn(col); err != nil {
			return nil, fmt.Errorf("invalid feature table: %w", err)
		}
	}

	return &countMatrix{
		X:          x,
		Barcodes:   barcodes,
		Var:        vars,
		LibraryIDs: rootLibraryIDs(f),
	}, nil
}

// matrixPrefix finds the group holding the CSC arrays.
func matrixPrefix(datasets map[string]*hdf5.Dataset) (string, bool, error) {
	if _, ok := datasets["/matrix/data"]; ok {
		return "/matrix/", false, nil
	}
	for p := range datasets {
		if !strings.HasSuffix(p, "/indptr") {
			continue
		}
		prefix := strings.TrimSuffix(p, "indptr")
		if _, ok := datasets[prefix+"gene_names"]; ok {
			return prefix, true, nil
		}
	}
	return "", false, fmt.Errorf("no 10x count matrix group found")
}

// rootLibraryIDs reads the "library_ids" root attribute written by Space Ranger.
func rootLibraryIDs(f *hdf5.File) []string {
	attrs, err := f.Root().Attributes()
	if err != nil {
		return nil
	}
	for _, a := range attrs {
		if a.Name != "library_ids" {
			continue
		}
		v, err := a.ReadValue()
		if err != nil {
			return nil
		}
		switch t := v.(type) {
		case string:
			return []string{t}
		case []string:
			return t
		}
	}
	return nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
