package visium

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/spatialdata-io/server/internal/frame"
	"github.com/spatialdata-io/server/internal/spatialdata"
)

// ScaleFactors is the content of scalefactors_json.json.
type ScaleFactors struct {
	SpotDiameterFullres     float64 `json:"spot_diameter_fullres"`
	FiducialDiameterFullres float64 `json:"fiducial_diameter_fullres"`
	TissueHiresScalef       float64 `json:"tissue_hires_scalef"`
	TissueLowresScalef      float64 `json:"tissue_lowres_scalef"`
}

// Raster is a decoded tissue image stored y,x,c with values normalized to [0,1]
// for 8 and 16 bit sources.
type Raster struct {
	Height, Width, Channels int
	DType                   spatialdata.DType
	Pix                     []float32
}

// At returns the value at row y, column x, channel c.
func (r *Raster) At(y, x, c int) float32 {
	return r.Pix[(y*r.Width+x)*r.Channels+c]
}

func readScaleFactors(path string) (ScaleFactors, error) {
	var sf ScaleFactors
	b, err := os.ReadFile(path)
	if err != nil {
		return sf, fmt.Errorf("failed to read scale factors: %w", err)
	}
	if err := json.Unmarshal(b, &sf); err != nil {
		return sf, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return sf, nil
}

// readPositions reads tissue_positions.csv (with header) or the headerless
// tissue_positions_list.csv, indexed by barcode.
func readPositions(path string, header bool) (*frame.Frame, error) {
	opts := frame.CSVOptions{IndexCol: "barcode"}
	if !header {
		opts.NoHeader = true
		opts.Header = positionColumns
	}
	pos, err := frame.ReadCSVFile(path, opts)
	if err != nil {
		return nil, err
	}
	for _, c := range positionColumns[1:] {
		if !pos.Has(c) {
			return nil, fmt.Errorf("%s has no %s column", path, c)
		}
	}
	return pos, nil
}

// readRaster decodes a PNG. RGB images yield three channels, images with
// alpha yield four and grayscale images one.
func readRaster(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return rasterFromImage(img), nil
}

func rasterFromImage(img image.Image) *Raster {
	b := img.Bounds()
	channels := 3
	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model:
		channels = 4
	case color.GrayModel, color.Gray16Model:
		channels = 1
	}

	r := &Raster{
		Height:   b.Dy(),
		Width:    b.Dx(),
		Channels: channels,
		DType:    spatialdata.Float32,
		Pix:      make([]float32, b.Dx()*b.Dy()*channels),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			px := [4]uint16{c.R, c.G, c.B, c.A}
			for k := 0; k < channels; k++ {
				r.Pix[i] = float32(px[k]) / 65535
				i++
			}
		}
	}
	return r
}
