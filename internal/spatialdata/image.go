package spatialdata

import (
	"fmt"
)

// DType is the element type of an image.
type DType string

const (
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Float32 DType = "float32"
)

// Plane is one 2D raster (a single channel at a single z-level), row-major.
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the pixel at (x, y).
func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.Width+x]
}

// MinMax returns the smallest and largest pixel values.
func (p *Plane) MinMax() (float32, float32) {
	if len(p.Pix) == 0 {
		return 0, 0
	}
	lo, hi := p.Pix[0], p.Pix[0]
	for _, v := range p.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// ImageSource materializes image planes on demand.
type ImageSource interface {
	Plane(channel, z int) (*Plane, error)
}

// Image is a named raster layer.
type Image struct {
	Name string
	// Dims lists axis names in storage order, e.g. c,z,y,x or y,x,c.
	Dims  []string
	Shape []int
	// Channels labels the c axis in order.
	Channels   []string
	DType      DType
	Transforms map[string]Transform
	Source     ImageSource
}

// Size returns the length of the named axis, or 1 when the axis is absent.
func (im *Image) Size(axis string) int {
	for i, d := range im.Dims {
		if d == axis {
			return im.Shape[i]
		}
	}
	return 1
}

// Plane loads a single channel/z plane.
func (im *Image) Plane(channel, z int) (*Plane, error) {
	if channel < 0 || channel >= im.Size("c") {
		return nil, fmt.Errorf("channel %d out of range for image %s", channel, im.Name)
	}
	if z < 0 || z >= im.Size("z") {
		return nil, fmt.Errorf("z %d out of range for image %s", z, im.Name)
	}
	if im.Source == nil {
		return nil, fmt.Errorf("image %s has no pixel source", im.Name)
	}
	return im.Source.Plane(channel, z)
}

// ChannelIndex returns the position of a channel label.
func (im *Image) ChannelIndex(label string) (int, bool) {
	for i, c := range im.Channels {
		if c == label {
			return i, true
		}
	}
	return 0, false
}

func (im *Image) validate() error {
	if len(im.Dims) != len(im.Shape) {
		return invariantf("image %s has %d dims and %d shape entries", im.Name, len(im.Dims), len(im.Shape))
	}
	if got := im.Size("c"); got != len(im.Channels) {
		return invariantf("image %s has %d channels but %d channel labels", im.Name, got, len(im.Channels))
	}
	return nil
}

// MemoryImage holds planes indexed by [channel][z].
type MemoryImage struct {
	Planes [][]*Plane
}

// Plane implements ImageSource.
func (m *MemoryImage) Plane(channel, z int) (*Plane, error) {
	if channel >= len(m.Planes) || z >= len(m.Planes[channel]) {
		return nil, fmt.Errorf("plane c=%d z=%d not present", channel, z)
	}
	return m.Planes[channel][z], nil
}
