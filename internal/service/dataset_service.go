// Package service provides business logic for the dataset server.
package service

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/paulmach/orb"

	"github.com/spatialdata-io/server/internal/cache"
	"github.com/spatialdata-io/server/internal/render"
	"github.com/spatialdata-io/server/internal/spatialdata"
	"github.com/spatialdata-io/server/pkg/colormap"
)

// MaxZoom bounds tile zoom levels.
const MaxZoom = 20

var (
	// ErrLayerNotFound is returned for an unknown layer name.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrGeneNotFound is returned for a gene absent from the table.
	ErrGeneNotFound = errors.New("gene not found")
	// ErrInvalidTile is returned for tile coordinates outside the pyramid.
	ErrInvalidTile = errors.New("invalid tile")
)

// DatasetServiceConfig contains dataset service configuration.
type DatasetServiceConfig struct {
	DatasetID string
	Dataset   *spatialdata.Dataset
	Cache     *cache.Manager
	Renderer  *render.TileRenderer
}

// DatasetService serves metadata, statistics and tiles of one dataset.
type DatasetService struct {
	datasetID string
	ds        *spatialdata.Dataset
	cache     *cache.Manager
	renderer  *render.TileRenderer

	// Per-layer point bounds, computed on first use.
	boundsMu    sync.Mutex
	pointBounds map[string]orb.Bound

	closeOnce sync.Once
	closeErr  error
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(cfg DatasetServiceConfig) *DatasetService {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	return &DatasetService{
		datasetID:   datasetID,
		ds:          cfg.Dataset,
		cache:       cfg.Cache,
		renderer:    cfg.Renderer,
		pointBounds: make(map[string]orb.Bound),
	}
}

// ID returns the dataset id.
func (s *DatasetService) ID() string { return s.datasetID }

// Dataset returns the underlying dataset.
func (s *DatasetService) Dataset() *spatialdata.Dataset { return s.ds }

// Close releases the dataset.
func (s *DatasetService) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ds.Close()
	})
	return s.closeErr
}

// GetEmptyTile returns a transparent tile.
func (s *DatasetService) GetEmptyTile() ([]byte, error) {
	return s.renderer.CreateEmptyTile()
}

func checkTile(z, x, y int) error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("%w: zoom %d", ErrInvalidTile, z)
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return fmt.Errorf("%w: %d/%d out of range at zoom %d", ErrInvalidTile, x, y, z)
	}
	return nil
}

// PointsBounds returns the bounding box of a point layer in its own coordinates.
func (s *DatasetService) PointsBounds(layer string) (orb.Bound, error) {
	p, ok := s.ds.Points[layer]
	if !ok {
		return orb.Bound{}, fmt.Errorf("%w: points %s", ErrLayerNotFound, layer)
	}

	s.boundsMu.Lock()
	defer s.boundsMu.Unlock()
	if b, ok := s.pointBounds[layer]; ok {
		return b, nil
	}

	var b orb.Bound
	first := true
	err := p.Each(func(c *spatialdata.PointChunk) error {
		for i := range c.X {
			pt := orb.Point{c.X[i], c.Y[i]}
			if first {
				b = pt.Bound()
				first = false
				continue
			}
			b = b.Extend(pt)
		}
		return nil
	})
	if err != nil {
		return orb.Bound{}, err
	}
	if p.Radius != nil && !first {
		maxR := 0.0
		for _, r := range p.Radius {
			if r > maxR {
				maxR = r
			}
		}
		b = b.Pad(maxR)
	}
	s.pointBounds[layer] = b
	return b, nil
}

// PointsTile renders a point layer tile. A non-empty gene shows only that feature.
func (s *DatasetService) PointsTile(layer string, z, x, y int, gene string) ([]byte, error) {
	if err := checkTile(z, x, y); err != nil {
		return nil, err
	}
	p, ok := s.ds.Points[layer]
	if !ok {
		return nil, fmt.Errorf("%w: points %s", ErrLayerNotFound, layer)
	}

	key := cache.PointsTileKey(s.datasetID, layer, z, x, y, gene)
	if data, ok := s.cache.GetTile(key); ok {
		return data, nil
	}

	code := int32(-1)
	if gene != "" {
		for i, f := range p.Features {
			if f == gene {
				code = int32(i)
				break
			}
		}
		if code < 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrGeneNotFound, gene, layer)
		}
	}

	bound, err := s.PointsBounds(layer)
	if err != nil {
		return nil, err
	}
	vp := render.TileViewport(bound, z, x, y)
	view := vp.Bound()

	var xs, ys, radius []float64
	var codes []int32
	offset := 0
	err = p.Each(func(c *spatialdata.PointChunk) error {
		for i := range c.X {
			r := 0.0
			if p.Radius != nil {
				r = p.Radius[offset+i]
			}
			if c.X[i]+r < view.Min[0] || c.X[i]-r > view.Max[0] || c.Y[i]+r < view.Min[1] || c.Y[i]-r > view.Max[1] {
				continue
			}
			fc := int32(0)
			if c.Feature != nil {
				fc = c.Feature[i]
			}
			if gene != "" && fc != code {
				continue
			}
			xs = append(xs, c.X[i])
			ys = append(ys, c.Y[i])
			codes = append(codes, fc)
			if p.Radius != nil {
				radius = append(radius, r)
			}
		}
		offset += c.Len()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.Radius != nil && radius == nil {
		radius = []float64{}
	}

	data, err := s.renderer.RenderPointsTile(vp, xs, ys, codes, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to render tile: %w", err)
	}
	_ = s.cache.SetTile(key, data)
	return data, nil
}

// ShapesTile renders polygon outlines of a shape layer.
func (s *DatasetService) ShapesTile(layer string, z, x, y int) ([]byte, error) {
	if err := checkTile(z, x, y); err != nil {
		return nil, err
	}
	sh, ok := s.ds.Shapes[layer]
	if !ok {
		return nil, fmt.Errorf("%w: shapes %s", ErrLayerNotFound, layer)
	}

	key := cache.ShapesTileKey(s.datasetID, layer, z, x, y)
	if data, ok := s.cache.GetTile(key); ok {
		return data, nil
	}

	vp := render.TileViewport(sh.Bound(), z, x, y)
	data, err := s.renderer.RenderShapesTile(vp, sh.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to render tile: %w", err)
	}
	_ = s.cache.SetTile(key, data)
	return data, nil
}

// ImageTile renders one channel of an image layer. The channel is a label or
// a numeric index. An empty colormap tints multi-channel images with a
// per-stain colour and uses the default colormap otherwise.
func (s *DatasetService) ImageTile(layer, channel string, z, x, y int, cmapName string) ([]byte, error) {
	if err := checkTile(z, x, y); err != nil {
		return nil, err
	}
	im, ok := s.ds.Images[layer]
	if !ok {
		return nil, fmt.Errorf("%w: image %s", ErrLayerNotFound, layer)
	}
	c, ok := im.ChannelIndex(channel)
	if !ok {
		n, err := strconv.Atoi(channel)
		if err != nil || n < 0 || n >= len(im.Channels) {
			return nil, fmt.Errorf("%w: channel %s of image %s", ErrLayerNotFound, channel, layer)
		}
		c = n
	}

	key := cache.ImageTileKey(s.datasetID, layer, im.Channels[c], z, x, y, cmapName)
	if data, ok := s.cache.GetTile(key); ok {
		return data, nil
	}

	plane, err := im.Plane(c, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load plane: %w", err)
	}
	lo, hi := plane.MinMax()

	var cmap colormap.Colormap
	switch {
	case cmapName != "":
		cmap = s.renderer.Colormap(cmapName)
	case len(im.Channels) > 1:
		cmap = colormap.Tinted{C: colormap.StainColors(len(im.Channels))[c]}
	default:
		cmap = s.renderer.Colormap("")
	}

	bound := orb.Bound{Max: orb.Point{float64(plane.Width), float64(plane.Height)}}
	vp := render.TileViewport(bound, z, x, y)
	data, err := s.renderer.RenderImageTile(vp, plane, lo, hi, cmap)
	if err != nil {
		return nil, fmt.Errorf("failed to render tile: %w", err)
	}
	_ = s.cache.SetTile(key, data)
	return data, nil
}
