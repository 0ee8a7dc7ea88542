package colormap

import (
	"image/color"
	"math"
	"testing"
)

func TestRampEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cmap       Ramp
		start, end color.RGBA
	}{
		{"viridis", Viridis, color.RGBA{68, 1, 84, 255}, color.RGBA{253, 231, 37, 255}},
		{"magma", Magma, color.RGBA{0, 0, 4, 255}, color.RGBA{252, 253, 191, 255}},
		{"grays", Grays, color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmap.At(0); got != tt.start {
				t.Errorf("At(0) = %#v, want %#v", got, tt.start)
			}
			if got := tt.cmap.At(-3); got != tt.start {
				t.Errorf("At(-3) = %#v, want %#v", got, tt.start)
			}
			if got := tt.cmap.At(math.NaN()); got != tt.start {
				t.Errorf("At(NaN) = %#v, want %#v", got, tt.start)
			}
			if got := tt.cmap.At(1); got != tt.end {
				t.Errorf("At(1) = %#v, want %#v", got, tt.end)
			}
		})
	}
}

func TestRampInterpolates(t *testing.T) {
	t.Parallel()

	mid, ok := Grays.At(0.5).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA, got %T", Grays.At(0.5))
	}
	if mid.R != mid.G || mid.G != mid.B || mid.R < 127 || mid.R > 128 {
		t.Fatalf("unexpected Grays.At(0.5): %#v", mid)
	}

	// stop 1 of 11 sits at t = 0.1
	if got := Viridis.At(0.1); got != (color.RGBA{72, 35, 116, 255}) {
		t.Fatalf("unexpected Viridis.At(0.1): %#v", got)
	}
	if got := Viridis.AtIndex(12); got != Viridis.AtIndex(1) {
		t.Fatalf("AtIndex should wrap, got %#v", got)
	}
}

func TestCategorical(t *testing.T) {
	t.Parallel()

	if len(Categorical) != 20 {
		t.Fatalf("expected 20 colours, got %d", len(Categorical))
	}
	if got := Categorical.AtIndex(0); got != (color.RGBA{31, 119, 180, 255}) {
		t.Fatalf("unexpected first colour %#v", got)
	}
	if Categorical.AtIndex(21) != Categorical.AtIndex(1) || Categorical.AtIndex(-1) != Categorical.AtIndex(19) {
		t.Fatal("AtIndex should wrap in both directions")
	}
	if got := Categorical.At(1); got != Categorical.AtIndex(19) {
		t.Fatalf("At(1) = %#v, want last colour", got)
	}
}

func TestStainColors(t *testing.T) {
	t.Parallel()

	if got := StainColors(0); len(got) != 0 {
		t.Fatalf("expected no colours, got %d", len(got))
	}

	one := StainColors(1)
	if one[0] != (color.RGBA{R: 0, G: 0, B: 255, A: 255}) {
		t.Fatalf("expected blue for a single stain, got %#v", one[0])
	}

	three := StainColors(3)
	seen := map[color.RGBA]bool{}
	for _, c := range three {
		if c.A != 255 {
			t.Fatalf("expected opaque colour, got %#v", c)
		}
		seen[c] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct colours, got %v", three)
	}
}

func TestTint(t *testing.T) {
	t.Parallel()

	c := color.RGBA{R: 200, G: 100, B: 0, A: 255}
	if got := Tint(c, 0.5); got != (color.RGBA{R: 100, G: 50, B: 0, A: 255}) {
		t.Fatalf("unexpected Tint(0.5): %#v", got)
	}
	if got := Tint(c, 2); got != c {
		t.Fatalf("expected clamped tint, got %#v", got)
	}
	if got := Tint(c, math.NaN()); got != (color.RGBA{A: 255}) {
		t.Fatalf("expected black for NaN, got %#v", got)
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"viridis", "Magma", "grays", "gray", "categorical"} {
		if _, ok := ByName(name); !ok {
			t.Errorf("expected colormap %q", name)
		}
	}
	for _, name := range []string{"jet", "plasma", ""} {
		if _, ok := ByName(name); ok {
			t.Errorf("unexpected colormap %q", name)
		}
	}
}
