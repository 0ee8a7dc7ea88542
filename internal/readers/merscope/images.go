package merscope

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/spatialdata-io/server/internal/cache"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// mosaicSource lazily decodes one TIFF per channel for a single z-level.
type mosaicSource struct {
	paths  []string
	width  int
	height int
	planes *cache.PlaneCache
}

// Plane implements spatialdata.ImageSource. The z index is always 0 since each
// layer holds one z-level.
func (s *mosaicSource) Plane(channel, z int) (*spatialdata.Plane, error) {
	if z != 0 {
		return nil, fmt.Errorf("mosaic layer has a single z-plane, got z=%d", z)
	}
	path := s.paths[channel]
	if p, ok := s.planes.Get(path); ok {
		return p, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mosaic: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	p := planeFromImage(img)
	if p.Width != s.width || p.Height != s.height {
		return nil, fmt.Errorf("mosaic %s is %dx%d, expected %dx%d", filepath.Base(path), p.Width, p.Height, s.width, s.height)
	}
	s.planes.Add(path, p)
	return p, nil
}

func planeFromImage(img image.Image) *spatialdata.Plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &spatialdata.Plane{Width: w, Height: h, Pix: make([]float32, w*h)}

	switch t := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			row := t.Pix[y*t.Stride:]
			for x := 0; x < w; x++ {
				p.Pix[y*w+x] = float32(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := t.Pix[y*t.Stride:]
			for x := 0; x < w; x++ {
				p.Pix[y*w+x] = float32(row[x])
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				p.Pix[y*w+x] = float32(g.Y)
			}
		}
	}
	return p
}

func dtypeOf(m color.Model) spatialdata.DType {
	switch m {
	case color.GrayModel:
		return spatialdata.Uint8
	case color.Gray16Model:
		return spatialdata.Uint16
	default:
		return spatialdata.Uint16
	}
}

// stackMosaics builds the image layer for one z-level from the per-stain
// mosaics. Only TIFF headers are read here.
func stackMosaics(dir string, stains []string, z string, planes *cache.PlaneCache) (*spatialdata.Image, error) {
	paths := make([]string, len(stains))
	var cfg image.Config
	for i, stain := range stains {
		paths[i] = filepath.Join(dir, MosaicName(stain, z))
		c, err := readTIFFConfig(paths[i])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			cfg = c
		} else if c.Width != cfg.Width || c.Height != cfg.Height {
			return nil, fmt.Errorf("mosaic %s is %dx%d, expected %dx%d",
				filepath.Base(paths[i]), c.Width, c.Height, cfg.Width, cfg.Height)
		}
	}

	return &spatialdata.Image{
		Name:       "z" + z,
		Dims:       []string{"c", "z", "y", "x"},
		Shape:      []int{len(stains), 1, cfg.Height, cfg.Width},
		Channels:   append([]string(nil), stains...),
		DType:      dtypeOf(cfg.ColorModel),
		Transforms: map[string]spatialdata.Transform{PixelSpace: spatialdata.Identity{}},
		Source: &mosaicSource{
			paths:  paths,
			width:  cfg.Width,
			height: cfg.Height,
			planes: planes,
		},
	}, nil
}

func readTIFFConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to open mosaic: %w", err)
	}
	defer f.Close()

	cfg, err := tiff.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to read header of %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
