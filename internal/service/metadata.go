package service

import (
	"sort"

	"github.com/spatialdata-io/server/internal/spatialdata"
)

// TransformInfo describes one transform in homogeneous matrix form.
type TransformInfo struct {
	Kind   string      `json:"kind"`
	Axes   []string    `json:"axes"`
	Matrix [][]float64 `json:"matrix"`
}

// LayerInfo describes one image, points or shapes layer.
type LayerInfo struct {
	Name       string                   `json:"name"`
	Kind       string                   `json:"kind"`
	Count      int                      `json:"count,omitempty"`
	Columns    []string                 `json:"columns,omitempty"`
	Features   int                      `json:"features,omitempty"`
	Region     string                   `json:"region,omitempty"`
	Dims       []string                 `json:"dims,omitempty"`
	Shape      []int                    `json:"shape,omitempty"`
	Channels   []string                 `json:"channels,omitempty"`
	DType      string                   `json:"dtype,omitempty"`
	Bounds     []float64                `json:"bounds,omitempty"`
	Transforms map[string]TransformInfo `json:"transforms"`
}

// TableInfo describes the expression table.
type TableInfo struct {
	NumObs      int      `json:"n_obs"`
	NumVars     int      `json:"n_vars"`
	RegionKey   string   `json:"region_key"`
	InstanceKey string   `json:"instance_key"`
	Regions     []string `json:"regions"`
	ObsColumns  []string `json:"obs_columns"`
	VarColumns  []string `json:"var_columns"`
	Obsm        []string `json:"obsm"`
}

// Metadata describes a dataset.
type Metadata struct {
	ID                string      `json:"id"`
	CoordinateSystems []string    `json:"coordinate_systems"`
	Images            []LayerInfo `json:"images"`
	Points            []LayerInfo `json:"points"`
	Shapes            []LayerInfo `json:"shapes"`
	Table             *TableInfo  `json:"table,omitempty"`
	Summary           string      `json:"summary"`
}

func transformInfos(transforms map[string]spatialdata.Transform, axes []string) map[string]TransformInfo {
	out := make(map[string]TransformInfo, len(transforms))
	for _, cs := range spatialdata.TransformTargets(transforms) {
		t := transforms[cs]
		info := TransformInfo{Kind: t.Kind(), Axes: axes}
		if m, err := t.Matrix(axes); err == nil {
			r, c := m.Dims()
			info.Matrix = make([][]float64, r)
			for i := 0; i < r; i++ {
				info.Matrix[i] = make([]float64, c)
				for j := 0; j < c; j++ {
					info.Matrix[i][j] = m.At(i, j)
				}
			}
		}
		out[cs] = info
	}
	return out
}

// Metadata returns a description of every layer and the table.
func (s *DatasetService) Metadata() *Metadata {
	md := &Metadata{
		ID:                s.datasetID,
		CoordinateSystems: s.ds.CoordinateSystems(),
		Images:            []LayerInfo{},
		Points:            []LayerInfo{},
		Shapes:            []LayerInfo{},
		Summary:           s.ds.Summary(),
	}
	xy := []string{"x", "y"}

	for _, name := range s.ds.ImageNames() {
		im := s.ds.Images[name]
		md.Images = append(md.Images, LayerInfo{
			Name:       name,
			Kind:       string(spatialdata.KindImages),
			Dims:       im.Dims,
			Shape:      im.Shape,
			Channels:   im.Channels,
			DType:      string(im.DType),
			Transforms: transformInfos(im.Transforms, im.Dims),
		})
	}
	for _, name := range s.ds.PointNames() {
		p := s.ds.Points[name]
		info := LayerInfo{
			Name:       name,
			Kind:       string(spatialdata.KindPoints),
			Count:      p.Len(),
			Columns:    p.Columns(),
			Features:   len(p.Features),
			Region:     p.Region,
			Transforms: transformInfos(p.Transforms, xy),
		}
		if b, err := s.PointsBounds(name); err == nil {
			info.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		}
		md.Points = append(md.Points, info)
	}
	for _, name := range s.ds.ShapeNames() {
		sh := s.ds.Shapes[name]
		b := sh.Bound()
		info := LayerInfo{
			Name:       name,
			Kind:       string(spatialdata.KindShapes),
			Count:      sh.Len(),
			Region:     sh.Region,
			Bounds:     []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
			Transforms: transformInfos(sh.Transforms, xy),
		}
		if sh.Attributes != nil {
			info.Columns = sh.Attributes.Names()
		}
		md.Shapes = append(md.Shapes, info)
	}

	if t := s.ds.Table; t != nil {
		obsm := make([]string, 0, len(t.Obsm))
		for k := range t.Obsm {
			obsm = append(obsm, k)
		}
		sort.Strings(obsm)
		md.Table = &TableInfo{
			NumObs:      t.NumObs(),
			NumVars:     t.NumVars(),
			RegionKey:   t.RegionKey,
			InstanceKey: t.InstanceKey,
			Regions:     t.Regions,
			ObsColumns:  t.Obs.Names(),
			VarColumns:  t.Var.Names(),
			Obsm:        obsm,
		}
	}
	return md
}
