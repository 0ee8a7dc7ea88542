// Package colormap maps normalized intensities and category codes to colours
// for tile rendering.
package colormap

import (
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
}

// Ramp interpolates in RGB between evenly spaced colour stops.
type Ramp struct {
	stops []colorful.Color
}

func hexRamp(hexes ...string) Ramp {
	stops := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic("colormap: bad stop " + h)
		}
		stops[i] = c
	}
	return Ramp{stops: stops}
}

// At returns the colour at t. NaN maps to the first stop.
func (r Ramp) At(t float64) color.Color {
	n := len(r.stops)
	if t <= 0 || math.IsNaN(t) {
		return toRGBA(r.stops[0])
	}
	if t >= 1 {
		return toRGBA(r.stops[n-1])
	}
	pos := t * float64(n-1)
	i := int(pos)
	return toRGBA(r.stops[i].BlendRgb(r.stops[i+1], pos-float64(i)))
}

// AtIndex returns stop i, wrapping around.
func (r Ramp) AtIndex(i int) color.Color {
	return toRGBA(r.stops[wrap(i, len(r.stops))])
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

var (
	// Viridis is matplotlib's viridis sampled at 11 stops.
	Viridis = hexRamp(
		"#440154", "#482374", "#404387", "#345e8d", "#29788e", "#20908c",
		"#22a784", "#44be70", "#79d151", "#bdde26", "#fde725",
	)

	// Magma is matplotlib's magma sampled at 9 stops.
	Magma = hexRamp(
		"#000004", "#1c1044", "#4f127b", "#812581", "#b5367a",
		"#e55064", "#fb8761", "#fec287", "#fcfdbf",
	)

	// Grays runs from black to white, for single-channel images.
	Grays = hexRamp("#000000", "#ffffff")
)

// Palette is a fixed list of distinct colours for category codes.
type Palette []color.RGBA

// At picks the palette entry covering t.
func (p Palette) At(t float64) color.Color {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	idx := int(t * float64(len(p)))
	if idx >= len(p) {
		idx = len(p) - 1
	}
	return p[idx]
}

// AtIndex returns entry i, wrapping around.
func (p Palette) AtIndex(i int) color.Color {
	return p[wrap(i, len(p))]
}

// Categorical is the 20-colour tab20 palette.
var Categorical = hexPalette(
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
	"#aec7e8", "#ffbb78", "#98df8a", "#ff9896", "#c5b0d5",
	"#c49c94", "#f7b6d2", "#c7c7c7", "#dbdb8d", "#9edae5",
)

func hexPalette(hexes ...string) Palette {
	r := hexRamp(hexes...)
	p := make(Palette, len(r.stops))
	for i, c := range r.stops {
		p[i] = toRGBA(c)
	}
	return p
}

var named = map[string]Colormap{
	"viridis":     Viridis,
	"magma":       Magma,
	"grays":       Grays,
	"gray":        Grays,
	"categorical": Categorical,
}

// ByName looks up a colormap case-insensitively.
func ByName(name string) (Colormap, bool) {
	c, ok := named[strings.ToLower(name)]
	return c, ok
}

// StainColors returns n fully saturated colours with evenly spaced hues,
// starting at blue so a single DAPI channel renders blue.
func StainColors(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		h := math.Mod(240+360*float64(i)/float64(n), 360)
		out[i] = toRGBA(colorful.Hsv(h, 1, 1))
	}
	return out
}

// Tint scales a stain colour by intensity t in [0, 1].
func Tint(c color.RGBA, t float64) color.RGBA {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.RGBA{
		R: uint8(float64(c.R) * t),
		G: uint8(float64(c.G) * t),
		B: uint8(float64(c.B) * t),
		A: 255,
	}
}

// Tinted is a single-colour ramp from black to C.
type Tinted struct {
	C color.RGBA
}

// At returns C scaled by t.
func (c Tinted) At(t float64) color.Color { return Tint(c.C, t) }

// AtIndex returns C.
func (c Tinted) AtIndex(int) color.Color { return c.C }
