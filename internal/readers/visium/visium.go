// Package visium reads a 10x Genomics Visium (Space Ranger) output directory
// into a spatial dataset.
package visium

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// ErrNoLibrary is returned when the experiment carries no spatial library.
var ErrNoLibrary = errors.New("no spatial library")

// Options configures Read.
type Options struct {
	// CoordinateSystem names the target coordinate system and the image and
	// circle layers. Empty uses the library id.
	CoordinateSystem string
}

// Read loads path and assembles the hires image, spot circles and table.
func Read(path string, opts Options) (*spatialdata.Dataset, error) {
	exp, err := LoadExperiment(path)
	if err != nil {
		return nil, err
	}
	return Assemble(exp, opts)
}

// Assemble turns a loaded experiment into a dataset. Exactly one library must
// be present.
func Assemble(exp *Experiment, opts Options) (*spatialdata.Dataset, error) {
	lib, err := singleLibrary(exp.Libraries)
	if err != nil {
		return nil, err
	}
	csn := opts.CoordinateSystem
	if csn == "" {
		csn = lib.ID
	}
	region := spatialdata.ElementPath(spatialdata.KindPoints, csn)

	table, err := buildTable(exp, region)
	if err != nil {
		return nil, err
	}

	n := table.NumObs()
	radius := make([]float64, n)
	ids := make([]string, n)
	for i := range radius {
		radius[i] = lib.ScaleFactors.SpotDiameterFullres / 2
		ids[i] = strconv.Itoa(i)
	}
	circles := spatialdata.NewCircles(csn, exp.Spatial, radius, InstanceKey, ids)
	circles.Region = region
	circles.Transforms = map[string]spatialdata.Transform{csn: spatialdata.Identity{}}

	hires, ok := lib.Images["hires"]
	if !ok {
		return nil, fmt.Errorf("library %s has no hires image", lib.ID)
	}
	img, err := hiresImage(csn, hires, lib.ScaleFactors.TissueHiresScalef)
	if err != nil {
		return nil, err
	}

	log.Printf("[visium] library %s: %d spots x %d genes, image %dx%d", lib.ID, n, table.NumVars(), hires.Width, hires.Height)

	ds, err := spatialdata.NewBuilder().
		AddImage(img).
		AddPoints(circles).
		SetTable(table).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}
	return ds, nil
}

func singleLibrary(libs map[string]*Library) (*Library, error) {
	switch len(libs) {
	case 0:
		return nil, ErrNoLibrary
	case 1:
		for _, l := range libs {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: expected one library, found %d", spatialdata.ErrInvariant, len(libs))
}

func buildTable(exp *Experiment, region string) (*spatialdata.Table, error) {
	obs := exp.Obs.Copy()
	obs.Index = frame.MakeUnique(obs.Index)
	vars := exp.Var.Copy()
	vars.Index = frame.MakeUnique(vars.Index)

	n := obs.NumRows()
	spot := make([]int64, n)
	for i := range spot {
		spot[i] = int64(i)
	}
	if err := obs.AddColumn(frame.Repeat(RegionKey, region, n)); err != nil {
		return nil, err
	}
	if err := obs.AddColumn(&frame.Int64Column{ColName: InstanceKey, Values: spot}); err != nil {
		return nil, err
	}

	t := &spatialdata.Table{X: exp.X, Obs: obs, Var: vars}
	if err := spatialdata.ParseTable(t, RegionKey, InstanceKey); err != nil {
		return nil, err
	}
	return t, nil
}

// ImageScale maps hires pixels to full-resolution pixels on axes c,y,x.
func ImageScale(hiresScalef float64) (*spatialdata.Scale, error) {
	if hiresScalef <= 0 {
		return nil, fmt.Errorf("invalid hires scale factor %g", hiresScalef)
	}
	return spatialdata.NewScale([]float64{1, 1 / hiresScalef, 1 / hiresScalef}, []string{"c", "y", "x"})
}

// hiresImage checks the raster is float in [0,1] and converts it to uint8 planes.
func hiresImage(name string, r *Raster, hiresScalef float64) (*spatialdata.Image, error) {
	if r.DType != spatialdata.Float32 {
		return nil, fmt.Errorf("%w: hires image is %s, expected float32", spatialdata.ErrInvariant, r.DType)
	}
	planes := make([][]*spatialdata.Plane, r.Channels)
	for c := range planes {
		planes[c] = []*spatialdata.Plane{{Width: r.Width, Height: r.Height, Pix: make([]float32, r.Width*r.Height)}}
	}
	for i, v := range r.Pix {
		if !(v >= 0 && v <= 1) {
			return nil, fmt.Errorf("%w: hires image value %g outside [0, 1]", spatialdata.ErrInvariant, v)
		}
		c := i % r.Channels
		planes[c][0].Pix[i/r.Channels] = float32(uint8(v * 255))
	}

	scale, err := ImageScale(hiresScalef)
	if err != nil {
		return nil, err
	}
	channels := make([]string, r.Channels)
	for i := range channels {
		channels[i] = strconv.Itoa(i)
	}
	return &spatialdata.Image{
		Name:       name,
		Dims:       []string{"y", "x", "c"},
		Shape:      []int{r.Height, r.Width, r.Channels},
		Channels:   channels,
		DType:      spatialdata.Uint8,
		Transforms: map[string]spatialdata.Transform{name: scale},
		Source:     &spatialdata.MemoryImage{Planes: planes},
	}, nil
}
