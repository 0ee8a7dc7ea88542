package visium

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// Library holds the per-slide spatial metadata of an experiment.
type Library struct {
	ID           string
	ScaleFactors ScaleFactors
	// Images maps "hires" and "lowres" to the decoded tissue images.
	Images map[string]*Raster
}

// Experiment is a loaded Space Ranger output before it is turned into a dataset.
type Experiment struct {
	X   *spatialdata.CSR
	Obs *frame.Frame
	Var *frame.Frame
	// Spatial holds the full-resolution (x, y) pixel position of each spot.
	Spatial   [][2]float64
	Libraries map[string]*Library
}

// LoadExperiment reads the count matrix, spot positions, scale factors and
// tissue images of a Space Ranger output directory.
func LoadExperiment(path string) (*Experiment, error) {
	counts, err := readCountMatrix(filepath.Join(path, CountsFile))
	if err != nil {
		return nil, err
	}
	libraryIDs := counts.LibraryIDs
	if len(libraryIDs) == 0 {
		libraryIDs = []string{filepath.Base(filepath.Clean(path))}
	}
	return loadSpatial(path, counts, libraryIDs)
}

func loadSpatial(path string, counts *countMatrix, libraryIDs []string) (*Experiment, error) {
	spatialDir := filepath.Join(path, SpatialDir)

	pos, err := readPositions(filepath.Join(spatialDir, PositionsFile), true)
	if errors.Is(err, fs.ErrNotExist) {
		pos, err = readPositions(filepath.Join(spatialDir, PositionsListFile), false)
	}
	if err != nil {
		return nil, err
	}

	obs, xy, err := joinPositions(counts.Barcodes, pos)
	if err != nil {
		return nil, err
	}

	sf, err := readScaleFactors(filepath.Join(spatialDir, ScaleFactorsFile))
	if err != nil {
		return nil, err
	}
	images := map[string]*Raster{}
	for name, file := range map[string]string{"hires": HiresImageFile, "lowres": LowresImageFile} {
		p := filepath.Join(spatialDir, file)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		r, err := readRaster(p)
		if err != nil {
			return nil, err
		}
		images[name] = r
	}

	libs := make(map[string]*Library, len(libraryIDs))
	for _, id := range libraryIDs {
		libs[id] = &Library{ID: id, ScaleFactors: sf, Images: images}
	}

	return &Experiment{
		X:         counts.X,
		Obs:       obs,
		Var:       counts.Var,
		Spatial:   xy,
		Libraries: libs,
	}, nil
}

// joinPositions aligns spot positions to the matrix barcodes. The pixel
// columns move to the returned (x, y) array; x is the full-resolution column.
func joinPositions(barcodes []string, pos *frame.Frame) (*frame.Frame, [][2]float64, error) {
	lookup := pos.Lookup()
	rows := make([]int, len(barcodes))
	for i, bc := range barcodes {
		r, ok := lookup[bc]
		if !ok {
			return nil, nil, fmt.Errorf("barcode %s has no tissue position", bc)
		}
		rows[i] = r
	}
	aligned := pos.Take(rows)

	px, err := aligned.Float64s("pxl_col_in_fullres")
	if err != nil {
		return nil, nil, err
	}
	py, err := aligned.Float64s("pxl_row_in_fullres")
	if err != nil {
		return nil, nil, err
	}
	xy := make([][2]float64, len(barcodes))
	for i := range xy {
		xy[i] = [2]float64{px[i], py[i]}
	}

	obs := aligned.Drop("pxl_col_in_fullres", "pxl_row_in_fullres")
	obs.Index = append([]string(nil), barcodes...)
	return obs, xy, nil
}
