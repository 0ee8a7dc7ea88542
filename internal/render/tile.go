// Package render provides tile rendering using fogleman/gg.
package render

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/spatialdata-io/server/internal/spatialdata"
	"github.com/spatialdata-io/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	TileSize        int
	DefaultColormap string
}

// Viewport is the square world-space region covered by one tile.
type Viewport struct {
	MinX, MinY float64
	Span       float64
}

// TileViewport splits the square enclosing bound into 2^z x 2^z tiles and
// returns tile (x, y).
func TileViewport(bound orb.Bound, z, x, y int) Viewport {
	span := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	if span <= 0 {
		span = 1
	}
	n := float64(int(1) << uint(z))
	tile := span / n
	return Viewport{
		MinX: bound.Min[0] + float64(x)*tile,
		MinY: bound.Min[1] + float64(y)*tile,
		Span: tile,
	}
}

// Bound returns the viewport as a bounding box.
func (v Viewport) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{v.MinX, v.MinY}, Max: orb.Point{v.MinX + v.Span, v.MinY + v.Span}}
}

// TileRenderer renders dataset layers into PNG tiles.
type TileRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "viridis"
	}
	return &TileRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.TileSize, cfg.TileSize)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// TileSize returns the tile edge in pixels.
func (r *TileRenderer) TileSize() int { return r.config.TileSize }

// Colormap returns the named colormap, falling back to the default.
func (r *TileRenderer) Colormap(name string) colormap.Colormap {
	if cmap, ok := colormap.ByName(name); ok {
		return cmap
	}
	cmap, _ := colormap.ByName(r.config.DefaultColormap)
	if cmap == nil {
		return colormap.Viridis
	}
	return cmap
}

func (r *TileRenderer) scale(vp Viewport) float64 {
	return float64(r.config.TileSize) / vp.Span
}

// RenderPointsTile draws points coloured by feature code. A negative code
// hides the point. A nil radius draws single-pixel dots; otherwise each point
// is a circle with its world-space radius.
func (r *TileRenderer) RenderPointsTile(vp Viewport, xs, ys []float64, codes []int32, radius []float64) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetRGBA(1, 1, 1, 0)
	dc.Clear()

	k := r.scale(vp)
	tileSize := float64(r.config.TileSize)
	for i := range xs {
		code := 0
		if i < len(codes) {
			code = int(codes[i])
		}
		if code < 0 {
			continue
		}
		px := (xs[i] - vp.MinX) * k
		py := (ys[i] - vp.MinY) * k
		rad := 1.0
		if radius != nil {
			rad = math.Max(radius[i]*k, 1)
		}
		if px+rad < 0 || px-rad >= tileSize || py+rad < 0 || py-rad >= tileSize {
			continue
		}

		dc.SetColor(colormap.Categorical.AtIndex(code))
		if radius == nil {
			dc.DrawRectangle(math.Floor(px), math.Floor(py), 1, 1)
		} else {
			dc.DrawCircle(px, py, rad)
		}
		dc.Fill()
	}

	return r.encodeContext(dc)
}

// RenderShapesTile draws polygon outlines, one categorical colour per shape.
func (r *TileRenderer) RenderShapesTile(vp Viewport, geoms []orb.Geometry) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetRGBA(1, 1, 1, 0)
	dc.Clear()
	dc.SetLineWidth(1)

	k := r.scale(vp)
	view := vp.Bound()
	for i, g := range geoms {
		if g == nil || !g.Bound().Intersects(view) {
			continue
		}
		dc.SetColor(colormap.Categorical.AtIndex(i))
		switch t := g.(type) {
		case orb.Polygon:
			r.drawPolygon(dc, vp, k, t)
		case orb.MultiPolygon:
			for _, p := range t {
				r.drawPolygon(dc, vp, k, p)
			}
		case orb.Point:
			dc.DrawCircle((t[0]-vp.MinX)*k, (t[1]-vp.MinY)*k, 2)
			dc.Fill()
		}
	}

	return r.encodeContext(dc)
}

func (r *TileRenderer) drawPolygon(dc *gg.Context, vp Viewport, k float64, p orb.Polygon) {
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		dc.NewSubPath()
		for _, pt := range ring {
			dc.LineTo((pt[0]-vp.MinX)*k, (pt[1]-vp.MinY)*k)
		}
		dc.ClosePath()
	}
	dc.Stroke()
}

// RenderImageTile samples one plane with nearest-neighbour lookup, mapping
// [lo, hi] through cmap. Pixels outside the plane are transparent.
func (r *TileRenderer) RenderImageTile(vp Viewport, plane *spatialdata.Plane, lo, hi float32, cmap colormap.Colormap) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetRGBA(1, 1, 1, 0)
	dc.Clear()

	span := float64(hi - lo)
	if span == 0 {
		span = 1
	}
	step := vp.Span / float64(r.config.TileSize)
	for ty := 0; ty < r.config.TileSize; ty++ {
		iy := int(vp.MinY + (float64(ty)+0.5)*step)
		if iy < 0 || iy >= plane.Height {
			continue
		}
		for tx := 0; tx < r.config.TileSize; tx++ {
			ix := int(vp.MinX + (float64(tx)+0.5)*step)
			if ix < 0 || ix >= plane.Width {
				continue
			}
			t := float64(plane.At(ix, iy)-lo) / span
			dc.SetColor(cmap.At(t))
			dc.SetPixel(tx, ty)
		}
	}

	return r.encodeContext(dc)
}

func (r *TileRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptyTile creates an empty transparent tile.
func (r *TileRenderer) CreateEmptyTile() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.TileSize, r.config.TileSize))
	// Fill with transparent white
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255   // R
		img.Pix[i+1] = 255 // G
		img.Pix[i+2] = 255 // B
		img.Pix[i+3] = 0   // A (transparent)
	}

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
