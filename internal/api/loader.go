package api

import (
	"fmt"
	"log"
	"time"

	"github.com/spatialdata-io/server/internal/cache"
	"github.com/spatialdata-io/server/internal/config"
	"github.com/spatialdata-io/server/internal/detect"
	"github.com/spatialdata-io/server/internal/jobstore"
	"github.com/spatialdata-io/server/internal/readers/merscope"
	"github.com/spatialdata-io/server/internal/render"
	"github.com/spatialdata-io/server/internal/service"
)

// Loader converts dataset directories into dataset services.
type Loader struct {
	Cache    *cache.Manager
	Renderer *render.TileRenderer
	Spill    config.SpillConfig
	Metrics  *Metrics
}

// ParamsFromConfig turns a configured dataset into ingest parameters.
func ParamsFromConfig(d config.DatasetConfig) jobstore.IngestParams {
	return jobstore.IngestParams{
		DatasetID:        d.ID,
		Reader:           d.Type,
		Path:             d.Path,
		VPTOutputs:       d.VPTOutputs,
		ReadTIF:          d.ReadTIF,
		CoordinateSystem: d.CoordinateSystem,
	}
}

// Options builds reader options for p.
func (l *Loader) Options(p jobstore.IngestParams) (detect.Options, error) {
	opts := detect.DefaultOptions()

	vpt, err := merscope.ParseVPTOutputs(p.VPTOutputs)
	if err != nil {
		return opts, err
	}
	opts.MERSCOPE.VPTOutputs = vpt
	if p.ReadTIF != nil {
		opts.MERSCOPE.ReadTIF = *p.ReadTIF
	}
	opts.MERSCOPE.SpillDir = l.Spill.Dir
	if l.Spill.ChunkRows > 0 {
		opts.MERSCOPE.ChunkRows = l.Spill.ChunkRows
	}
	if l.Cache != nil {
		opts.MERSCOPE.Planes = l.Cache.Planes()
	}

	opts.Visium.CoordinateSystem = p.CoordinateSystem
	return opts, nil
}

// Load reads the dataset described by p and wraps it in a service.
func (l *Loader) Load(p jobstore.IngestParams) (*service.DatasetService, detect.Kind, error) {
	kind, err := detect.ParseKind(p.Reader)
	if err != nil {
		return nil, "", err
	}
	opts, err := l.Options(p)
	if err != nil {
		return nil, "", err
	}

	start := time.Now()
	ds, kind, err := detect.Open(kind, p.Path, opts)
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	l.Metrics.ObserveConversion(label, err, time.Since(start))
	if err != nil {
		return nil, kind, fmt.Errorf("failed to read dataset %s: %w", p.DatasetID, err)
	}
	log.Printf("[loader] %s: read %s dataset from %s in %s", p.DatasetID, kind, p.Path, time.Since(start).Round(time.Millisecond))

	svc := service.NewDatasetService(service.DatasetServiceConfig{
		DatasetID: p.DatasetID,
		Dataset:   ds,
		Cache:     l.Cache,
		Renderer:  l.Renderer,
	})
	return svc, kind, nil
}
