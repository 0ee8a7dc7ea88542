package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/paulmach/orb"

	"github.com/spatialdata-io/server/internal/spatialdata"
	"github.com/spatialdata-io/server/pkg/colormap"
)

func decodeTile(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode tile: %v", err)
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestTileViewport(t *testing.T) {
	b := orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{110, 70}}

	root := TileViewport(b, 0, 0, 0)
	if root.MinX != 10 || root.MinY != 20 || root.Span != 100 {
		t.Fatalf("unexpected root viewport: %+v", root)
	}

	vp := TileViewport(b, 1, 1, 0)
	if vp.MinX != 60 || vp.MinY != 20 || vp.Span != 50 {
		t.Fatalf("unexpected z1 viewport: %+v", vp)
	}

	empty := TileViewport(orb.Bound{}, 0, 0, 0)
	if empty.Span != 1 {
		t.Fatalf("expected unit span for empty bound, got %v", empty.Span)
	}
}

func TestRenderPointsTile(t *testing.T) {
	r := NewTileRenderer(Config{TileSize: 16})
	vp := Viewport{Span: 16}

	data, err := r.RenderPointsTile(vp, []float64{8, 2}, []float64{8, 2}, []int32{0, -1}, []float64{3, 3})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	img := decodeTile(t, data)
	if got, want := rgbaAt(img, 8, 8), colormap.Categorical.AtIndex(0); got != want {
		t.Errorf("centre pixel = %v, want %v", got, want)
	}
	if got := rgbaAt(img, 2, 2); got.A != 0 {
		t.Errorf("hidden point was drawn: %v", got)
	}
	if got := rgbaAt(img, 15, 0); got.A != 0 {
		t.Errorf("expected transparent background, got %v", got)
	}
}

func TestRenderImageTile(t *testing.T) {
	r := NewTileRenderer(Config{TileSize: 4})
	plane := &spatialdata.Plane{Width: 2, Height: 2, Pix: []float32{0, 10, 10, 0}}

	data, err := r.RenderImageTile(Viewport{Span: 2}, plane, 0, 10, colormap.Grays)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	img := decodeTile(t, data)
	if got := rgbaAt(img, 0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel (0,0) = %v, want black", got)
	}
	if got := rgbaAt(img, 3, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel (3,0) = %v, want white", got)
	}

	// viewport past the plane edge stays transparent
	data, err = r.RenderImageTile(Viewport{MinX: 4, Span: 2}, plane, 0, 10, colormap.Grays)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if got := rgbaAt(decodeTile(t, data), 0, 0); got.A != 0 {
		t.Errorf("expected transparent pixel, got %v", got)
	}
}

func TestRenderShapesTile(t *testing.T) {
	r := NewTileRenderer(Config{TileSize: 32})
	square := orb.Polygon{orb.Ring{{4, 4}, {28, 4}, {28, 28}, {4, 28}, {4, 4}}}
	far := orb.Polygon{orb.Ring{{100, 100}, {110, 100}, {110, 110}, {100, 100}}}

	data, err := r.RenderShapesTile(Viewport{Span: 32}, []orb.Geometry{square, far, nil})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	img := decodeTile(t, data)
	if got := rgbaAt(img, 16, 16); got.A != 0 {
		t.Errorf("polygon interior should be unfilled, got %v", got)
	}
	if got := rgbaAt(img, 16, 4); got.A == 0 {
		t.Error("expected outline pixel on the top edge")
	}
}

func TestCreateEmptyTile(t *testing.T) {
	r := NewTileRenderer(Config{TileSize: 8})
	data, err := r.CreateEmptyTile()
	if err != nil {
		t.Fatalf("failed: %v", err)
	}
	img := decodeTile(t, data)
	if img.Bounds().Dx() != 8 {
		t.Errorf("expected 8px tile, got %d", img.Bounds().Dx())
	}
	if got := rgbaAt(img, 0, 0); got.A != 0 {
		t.Errorf("expected transparent tile, got %v", got)
	}
}

func TestColormapFallback(t *testing.T) {
	r := NewTileRenderer(Config{TileSize: 8, DefaultColormap: "magma"})
	if got := r.Colormap("nope").At(0); got != colormap.Magma.At(0) {
		t.Errorf("expected fallback to magma, got %v", got)
	}
	if got := r.Colormap("viridis").At(0); got != colormap.Viridis.At(0) {
		t.Errorf("expected viridis, got %v", got)
	}
}
